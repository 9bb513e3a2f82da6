package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts   int           // Maximum number of attempts, including the first
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	Multiplier    float64       // Backoff multiplier
	JitterPercent float64       // Jitter percentage (0.0 to 1.0)
	OnRetry       func(attempt int, delay time.Duration, err error) // Optional callback for retry attempts
	ShouldRetry   func(err error) bool                               // Optional; nil retries every error
}

// WithRetry executes the given function with retry logic and exponential backoff.
// A single configured attempt returns fn's error unchanged.
func WithRetry(ctx context.Context, cfg Config, fn func() error) error {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(err) {
			return err
		}

		// Don't sleep after the last attempt
		if attempt == maxAttempts-1 {
			break
		}

		delay := calculateBackoff(cfg, attempt)

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	if maxAttempts == 1 {
		return lastErr
	}
	return fmt.Errorf("all retry attempts exhausted: %w", lastErr)
}

// calculateBackoff calculates the backoff delay with exponential backoff and jitter
// Formula: delay = min(initialDelay * (multiplier ^ attempt), maxDelay)
// Then apply jitter: delay * (1 + random(-jitterPercent, +jitterPercent))
func calculateBackoff(cfg Config, attempt int) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(cfg.InitialDelay) * math.Pow(multiplier, float64(attempt))

	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	if cfg.JitterPercent > 0 {
		jitter := delay * cfg.JitterPercent * (2*rand.Float64() - 1)
		delay += jitter

		if delay < 0 {
			delay = float64(cfg.InitialDelay)
		}
	}

	return time.Duration(delay)
}

// AskRetryConfig returns the configuration for client → /ask calls.
// maxAttempts of 1 disables retrying.
func AskRetryConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:   maxAttempts,
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.2,
	}
}

// GeneratorRetryConfig returns the configuration for server → model calls.
func GeneratorRetryConfig() Config {
	return Config{
		MaxAttempts:   2,
		InitialDelay:  200 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.2,
	}
}

// CacheRetryConfig returns the configuration for server → Redis cache writes.
func CacheRetryConfig() Config {
	return Config{
		MaxAttempts:   2,
		InitialDelay:  50 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		Multiplier:    1.0,
		JitterPercent: 0.0,
	}
}
