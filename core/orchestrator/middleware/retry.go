// Package middleware provides the standard orchestrator middlewares: retry
// with exponential backoff, per-request timeouts, and structured request
// logging.
package middleware

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"scout/core/orchestrator"
	"scout/providers/ai"
)

// RetryConfig tunes the retry middleware. Zero values take the defaults
// documented per field.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first failure.
	// Default: 3.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the computed backoff. Default: 30s.
	MaxBackoff time.Duration

	// BackoffFactor is the exponential growth multiplier. Default: 2.
	BackoffFactor float64

	// JitterFraction adds random noise in [0, JitterFraction*backoff].
	// Default: 0.1.
	JitterFraction float64

	// RetryableFunc reports whether an error is worth retrying. The default
	// matches transient HTTP status codes in the error text.
	RetryableFunc func(error) bool
}

// defaultRetryableFunc retries transient HTTP failures (429, 500, 502, 503,
// 529). Provider errors carry status codes as text, so this is a string
// match.
func defaultRetryableFunc(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	for _, code := range []string{"429", "500", "502", "503", "529"} {
		if strings.Contains(message, code) {
			return true
		}
	}
	return false
}

func applyRetryDefaults(config *RetryConfig) {
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffFactor == 0 {
		config.BackoffFactor = 2.0
	}
	if config.JitterFraction == 0 {
		config.JitterFraction = 0.1
	}
	if config.RetryableFunc == nil {
		config.RetryableFunc = defaultRetryableFunc
	}
}

// computeBackoff returns min(InitialBackoff * BackoffFactor^attempt,
// MaxBackoff) plus jitter.
func computeBackoff(config RetryConfig, attempt int) time.Duration {
	base := float64(config.InitialBackoff) * math.Pow(config.BackoffFactor, float64(attempt))
	if base > float64(config.MaxBackoff) {
		base = float64(config.MaxBackoff)
	}

	jitter := base * config.JitterFraction * rand.Float64()
	return time.Duration(base + jitter)
}

// NewRetryMiddleware retries failed synchronous model calls. The Stream field
// of the returned config is nil: a mid-stream failure cannot be transparently
// retried, so streaming requests bypass this middleware.
func NewRetryMiddleware(config RetryConfig) orchestrator.MiddlewareConfig {
	applyRetryDefaults(&config)

	send := orchestrator.Middleware(func(next orchestrator.SendFunc) orchestrator.SendFunc {
		return func(ctx context.Context, request ai.ChatRequest) (*ai.ChatResponse, error) {
			var lastErr error

			for attempt := 0; attempt <= config.MaxRetries; attempt++ {
				if attempt > 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(computeBackoff(config, attempt-1)):
					}
				}

				response, err := next(ctx, request)
				if err == nil {
					return response, nil
				}
				lastErr = err

				if !config.RetryableFunc(err) {
					return nil, err
				}
			}

			return nil, fmt.Errorf("%w after %d retries: %w", ErrRetryExhausted, config.MaxRetries, lastErr)
		}
	})

	return orchestrator.MiddlewareConfig{Send: send}
}
