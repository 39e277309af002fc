package history

import (
	"context"
	"math"
	"math/rand"
	"time"

	"spendcast/internal/core"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	JitterFraction float64 // 0.0 to 1.0, fraction of delay to randomize
}

// DefaultRetryConfig suits banking APIs that throttle bursts of page requests.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     4,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       15 * time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.2,
	}
}

// WithRetry executes fn with exponential backoff and jitter.
// It stops retrying when the error is not a retryable *core.FetchError,
// the context is cancelled, or max retries are exhausted. The returned
// attempt count includes the final call.
func WithRetry[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, int, error) {
	var lastErr error
	var zero T

	attempt := 0
	for ; attempt <= cfg.MaxRetries; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, attempt + 1, nil
		}
		lastErr = err

		if !core.IsRetryable(err) {
			return zero, attempt + 1, err
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return zero, attempt + 1, ctx.Err()
		case <-time.After(backoff(cfg, attempt)):
		}
	}

	return zero, attempt + 1, lastErr
}

func backoff(cfg RetryConfig, attempt int) time.Duration {
	factor := cfg.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(factor, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterFraction > 0 {
		jitter := delay * cfg.JitterFraction * (rand.Float64()*2 - 1) // +/- jitter
		delay += jitter
		if delay < 0 {
			delay = float64(cfg.InitialDelay)
		}
	}
	return time.Duration(delay)
}
