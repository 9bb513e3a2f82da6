package qa

import (
	"context"
	"errors"
	"strconv"
	"time"

	"lawqa/pkg/circuitbreaker"
	"lawqa/pkg/logging"
	"lawqa/pkg/retry"
)

// RetryRecorder counts retries; metrics.MetricsCollector satisfies it.
type RetryRecorder interface {
	IncrementRetryAttempts(operation, attemptNumber string)
}

// GuardedGenerator runs Primary behind a circuit breaker with retries and
// falls back to Fallback when Primary cannot produce an answer.
type GuardedGenerator struct {
	Primary  Generator
	Fallback Generator
	Breaker  *circuitbreaker.CircuitBreaker
	Retry    retry.Config
	Logger   logging.Logger
	Retries  RetryRecorder
}

// NewGuardedGenerator wires primary with the standard breaker and retry settings.
func NewGuardedGenerator(primary, fallback Generator, breaker *circuitbreaker.CircuitBreaker, logger logging.Logger, retries RetryRecorder) *GuardedGenerator {
	g := &GuardedGenerator{
		Primary:  primary,
		Fallback: fallback,
		Breaker:  breaker,
		Retry:    retry.GeneratorRetryConfig(),
		Logger:   logger,
		Retries:  retries,
	}
	g.Retry.ShouldRetry = func(err error) bool {
		return !errors.Is(err, circuitbreaker.ErrCircuitOpen) && !errors.Is(err, context.Canceled)
	}
	g.Retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		if g.Retries != nil {
			g.Retries.IncrementRetryAttempts("generate", strconv.Itoa(attempt))
		}
		g.Logger.WithFields(map[string]interface{}{
			"generator": g.Primary.Name(),
			"attempt":   attempt,
			"delay_ms":  delay.Milliseconds(),
		}).Error("Generation failed, retrying", err)
	}
	return g
}

func (g *GuardedGenerator) Name() string { return g.Primary.Name() }

// Generate returns the primary answer, or the fallback answer when the
// primary fails or its breaker is open. Without a fallback the error is returned.
func (g *GuardedGenerator) Generate(ctx context.Context, question, text string) (string, error) {
	answer, _, err := g.GenerateWithSource(ctx, question, text)
	return answer, err
}

// GenerateWithSource is Generate that also names the generator that answered.
func (g *GuardedGenerator) GenerateWithSource(ctx context.Context, question, text string) (string, string, error) {
	log := logging.FromContextOr(ctx, g.Logger)

	var answer string
	err := retry.WithRetry(ctx, g.Retry, func() error {
		return g.Breaker.Call(func() error {
			var gerr error
			answer, gerr = g.Primary.Generate(ctx, question, text)
			return gerr
		})
	})
	if err == nil {
		return answer, g.Primary.Name(), nil
	}
	if g.Fallback == nil || errors.Is(err, context.Canceled) {
		return "", g.Primary.Name(), err
	}

	bm := g.Breaker.Metrics()
	log.WithFields(map[string]interface{}{
		"generator":            g.Primary.Name(),
		"fallback":             g.Fallback.Name(),
		"breaker":              bm.State.String(),
		"consecutive_failures": bm.ConsecutiveFails,
	}).Error("Primary generator unavailable, using fallback", err)

	answer, ferr := g.Fallback.Generate(ctx, question, text)
	return answer, g.Fallback.Name(), ferr
}
