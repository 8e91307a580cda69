package middleware

import (
	"context"
	"log/slog"
	"time"

	"scout/core/orchestrator"
	"scout/providers/ai"
)

// NewLoggingMiddleware emits structured log entries around every model call.
// For streams the completion entry is logged once the iterator is consumed.
// The logger must not be nil; pass slog.Default() when no custom logger is
// configured.
func NewLoggingMiddleware(logger *slog.Logger) orchestrator.MiddlewareConfig {
	return orchestrator.MiddlewareConfig{
		Send:   sendLogging(logger),
		Stream: streamLogging(logger),
	}
}

func sendLogging(logger *slog.Logger) orchestrator.Middleware {
	return func(next orchestrator.SendFunc) orchestrator.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			logger.InfoContext(ctx, "model send",
				slog.String("model", request.Model),
				slog.Int("messages", len(request.Messages)),
				slog.Int("tools", len(request.Tools)))

			start := time.Now()
			response, err := next(ctx, request)
			elapsed := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "model send failed",
					slog.String("model", request.Model),
					slog.Duration("duration", elapsed),
					slog.String("error", err.Error()))
				return nil, err
			}

			logger.InfoContext(ctx, "model send completed",
				responseAttrs(response, elapsed)...)
			return response, nil
		}
	}
}

func streamLogging(logger *slog.Logger) orchestrator.StreamMiddleware {
	return func(next orchestrator.StreamFunc) orchestrator.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			logger.InfoContext(ctx, "model stream",
				slog.String("model", request.Model),
				slog.Int("messages", len(request.Messages)),
				slog.Int("tools", len(request.Tools)))

			start := time.Now()
			stream, err := next(ctx, request)
			if err != nil {
				logger.ErrorContext(ctx, "model stream failed",
					slog.String("model", request.Model),
					slog.Duration("duration", time.Since(start)),
					slog.String("error", err.Error()))
				return nil, err
			}

			return wrapStreamWithLogging(ctx, stream, logger, request.Model, start), nil
		}
	}
}

// wrapStreamWithLogging logs a completion entry when the stream finishes and
// an error entry on mid-stream failure.
func wrapStreamWithLogging(ctx context.Context, stream *ai.ChatStream, logger *slog.Logger, model string, start time.Time) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		var usage *ai.Usage

		for event, err := range stream.Iter() {
			if err != nil {
				logger.ErrorContext(ctx, "model stream failed",
					slog.String("model", model),
					slog.Duration("duration", time.Since(start)),
					slog.String("error", err.Error()))
				yield(event, err)
				return
			}

			if event.Type == ai.StreamEventUsage && event.Usage != nil {
				usage = event.Usage
			}
			if event.Type == ai.StreamEventDone {
				attrs := []any{
					slog.String("model", model),
					slog.Duration("duration", time.Since(start)),
					slog.String("finish_reason", event.FinishReason),
				}
				if usage != nil {
					attrs = append(attrs, slog.Int("total_tokens", usage.TotalTokens))
				}
				logger.InfoContext(ctx, "model stream completed", attrs...)
			}

			if !yield(event, nil) {
				return
			}
		}
	})
}

func responseAttrs(response *ai.ChatResponse, elapsed time.Duration) []any {
	attrs := []any{
		slog.String("model", response.Model),
		slog.Duration("duration", elapsed),
		slog.String("finish_reason", response.FinishReason),
		slog.Int("tool_calls", len(response.ToolCalls)),
	}
	if response.Usage != nil {
		attrs = append(attrs, slog.Int("total_tokens", response.Usage.TotalTokens))
	}
	return attrs
}
