package middleware

import (
	"context"
	"time"

	"scout/core/orchestrator"
	"scout/providers/ai"
)

// NewTimeoutMiddleware enforces a per-request deadline on both synchronous and
// streaming model calls. For streams the cancel function is not released until
// the stream finishes or is abandoned, so the deadline governs the whole
// stream lifetime, not just the first byte. A caller-supplied shorter deadline
// wins as usual.
func NewTimeoutMiddleware(timeout time.Duration) orchestrator.MiddlewareConfig {
	return orchestrator.MiddlewareConfig{
		Send:   sendTimeout(timeout),
		Stream: streamTimeout(timeout),
	}
}

func sendTimeout(timeout time.Duration) orchestrator.Middleware {
	return func(next orchestrator.SendFunc) orchestrator.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, request)
		}
	}
}

func streamTimeout(timeout time.Duration) orchestrator.StreamMiddleware {
	return func(next orchestrator.StreamFunc) orchestrator.StreamFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatStream, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)

			stream, err := next(ctx, request)
			if err != nil {
				cancel()
				return nil, err
			}
			return wrapStreamWithCancel(stream, cancel), nil
		}
	}
}

// wrapStreamWithCancel calls cancel when the stream ends, errors, or the
// caller breaks out of the loop.
func wrapStreamWithCancel(stream *ai.ChatStream, cancel context.CancelFunc) *ai.ChatStream {
	return ai.NewChatStream(func(yield func(ai.StreamEvent, error) bool) {
		defer cancel()

		for event, err := range stream.Iter() {
			if !yield(event, err) {
				return
			}
			if err != nil || event.Type == ai.StreamEventDone {
				return
			}
		}
	})
}
