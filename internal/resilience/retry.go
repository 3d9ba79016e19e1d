package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// BackoffLinear waits BaseDelay * attempt (1x, 2x, 3x, ...).
	BackoffLinear Backoff = iota
	// BackoffExponential waits BaseDelay * Multiplier^(attempt-1).
	BackoffExponential
)

// RetryConfig controls how many times an operation is retried and how long
// to wait in between.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	// Zero means a single attempt.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps any single delay. Default: 60s.
	MaxDelay time.Duration

	// Backoff selects linear or exponential growth. Default: linear.
	Backoff Backoff

	// Multiplier is used by BackoffExponential. Default: 2.0.
	Multiplier float64

	// JitterFraction adds ±fraction random jitter to each delay.
	JitterFraction float64

	// ShouldRetry overrides the transient-error check. If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with the retry number (1-based).
	OnRetry func(retry int, err error)

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns the batch geocoding retry policy: three retries
// with linearly increasing delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Backoff:    BackoffLinear,
		Multiplier: 2.0,
	}
}

// Do runs fn until it succeeds or returns a non-retryable error. It also
// stops when attempts run out or ctx is cancelled, returning the last error.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt, lastErr)
			}
			if err := cfg.sleep(ctx, cfg.Delay(attempt)); err != nil {
				return zero, lastErr
			}
		}

		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// Delay returns the wait before the given retry (1-based).
func (cfg RetryConfig) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}

	var d float64
	switch cfg.Backoff {
	case BackoffExponential:
		d = float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(retry-1))
	default:
		d = float64(cfg.BaseDelay) * float64(retry)
	}
	if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * cfg.JitterFraction
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 60 * time.Second
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	return cfg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryLogger returns an OnRetry callback that logs each retry.
func RetryLogger(operation string, fields ...zap.Field) func(int, error) {
	log := zap.L().With(append(fields, zap.String("operation", operation))...)
	return func(retry int, err error) {
		log.Warn("retrying", zap.Int("retry", retry), zap.Error(err))
	}
}
