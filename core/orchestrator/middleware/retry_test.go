package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"scout/core/orchestrator"
	"scout/providers/ai"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	next := orchestrator.SendFunc(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("upstream returned 503")
		}
		return &ai.ChatResponse{Content: "ok"}, nil
	})

	send := NewRetryMiddleware(fastRetryConfig(3)).Send(next)
	response, err := send(context.Background(), ai.ChatRequest{})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if response.Content != "ok" {
		t.Errorf("content = %q, want %q", response.Content, "ok")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_NonRetryableErrorStopsImmediately(t *testing.T) {
	calls := 0
	next := orchestrator.SendFunc(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		calls++
		return nil, errors.New("upstream returned 401")
	})

	send := NewRetryMiddleware(fastRetryConfig(3)).Send(next)
	if _, err := send(context.Background(), ai.ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_ExhaustionWrapsSentinelAndLastError(t *testing.T) {
	lastErr := errors.New("upstream returned 429")
	next := orchestrator.SendFunc(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		return nil, lastErr
	})

	send := NewRetryMiddleware(fastRetryConfig(2)).Send(next)
	_, err := send(context.Background(), ai.ChatRequest{})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("expected wrapped last error, got %v", err)
	}
}

func TestRetry_ContextCancellationStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	next := orchestrator.SendFunc(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		cancel()
		return nil, errors.New("upstream returned 500")
	})

	config := RetryConfig{MaxRetries: 3, InitialBackoff: time.Hour}
	send := NewRetryMiddleware(config).Send(next)
	_, err := send(ctx, ai.ChatRequest{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRetry_CustomRetryableFunc(t *testing.T) {
	custom := errors.New("flaky")
	calls := 0
	next := orchestrator.SendFunc(func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
		calls++
		if calls == 1 {
			return nil, custom
		}
		return &ai.ChatResponse{}, nil
	})

	config := fastRetryConfig(2)
	config.RetryableFunc = func(err error) bool { return errors.Is(err, custom) }
	send := NewRetryMiddleware(config).Send(next)
	if _, err := send(context.Background(), ai.ChatRequest{}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestComputeBackoff_CappedAtMax(t *testing.T) {
	config := RetryConfig{}
	applyRetryDefaults(&config)

	backoff := computeBackoff(config, 10)
	// 1s * 2^10 far exceeds the 30s cap; jitter adds at most 10%.
	if backoff < config.MaxBackoff || backoff > config.MaxBackoff+config.MaxBackoff/10+time.Millisecond {
		t.Errorf("backoff = %v, want within [%v, %v+10%%]", backoff, config.MaxBackoff, config.MaxBackoff)
	}
}

func TestRetry_StreamChainUnaffected(t *testing.T) {
	if NewRetryMiddleware(RetryConfig{}).Stream != nil {
		t.Error("retry middleware should not wrap the stream chain")
	}
}
