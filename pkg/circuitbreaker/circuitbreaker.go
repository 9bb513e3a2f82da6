package circuitbreaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	FailureThreshold uint32        // Consecutive failures before opening
	Interval         time.Duration // Closed-state window after which counts reset; 0 never resets
	Timeout          time.Duration // Time to wait before transitioning to half-open
	MaxRequests      uint32        // Max requests allowed in half-open state
}

// MetricsCollector receives state transitions (0=closed, 1=half-open, 2=open).
type MetricsCollector interface {
	SetCircuitBreakerState(service, component string, state float64)
	IncrementCircuitBreakerFailures(service, component string)
}

// CircuitBreaker wraps sony/gobreaker with metrics integration
type CircuitBreaker struct {
	breaker   *gobreaker.CircuitBreaker
	config    Config
	ignore    func(err error) bool
	listeners []func(from, to State)
}

// Metrics holds circuit breaker metrics
type Metrics struct {
	State            State
	Failures         uint32
	Successes        uint32
	Requests         uint32
	ConsecutiveFails uint32
}

// Option customizes a CircuitBreaker at construction.
type Option func(*CircuitBreaker)

// WithStateListener registers fn to run on every state change.
func WithStateListener(fn func(from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.listeners = append(cb.listeners, fn)
	}
}

// WithMetrics reports state changes for service/component to mc.
func WithMetrics(mc MetricsCollector, service, component string) Option {
	return WithStateListener(func(_, to State) {
		if mc == nil {
			return
		}
		mc.SetCircuitBreakerState(service, component, float64(to))
		if to == StateOpen {
			mc.IncrementCircuitBreakerFailures(service, component)
		}
	})
}

// WithIgnoredErrors makes errors matching fn pass through without counting as failures.
// Client mistakes such as a 4xx response say nothing about the health of the peer.
func WithIgnoredErrors(fn func(err error) bool) Option {
	return func(cb *CircuitBreaker) {
		cb.ignore = fn
	}
}

// New creates a new circuit breaker with the given configuration
func New(name string, config Config, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{config: config}
	for _, opt := range opts {
		opt(cb)
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.FailureThreshold
		},
		OnStateChange: func(_ string, from gobreaker.State, to gobreaker.State) {
			for _, fn := range cb.listeners {
				fn(convertState(from), convertState(to))
			}
		},
	}

	cb.breaker = gobreaker.NewCircuitBreaker(settings)
	return cb
}

// Call executes the given function with circuit breaker protection.
// Rejections while open or over the half-open limit return ErrCircuitOpen.
func (cb *CircuitBreaker) Call(fn func() error) error {
	var passthrough error
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		ferr := fn()
		if ferr != nil && cb.ignore != nil && cb.ignore(ferr) {
			passthrough = ferr
			return nil, nil
		}
		return nil, ferr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	if err != nil {
		return err
	}
	return passthrough
}

// State returns the current circuit breaker state
func (cb *CircuitBreaker) State() State {
	return convertState(cb.breaker.State())
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.breaker.Name()
}

// Metrics returns current circuit breaker metrics
func (cb *CircuitBreaker) Metrics() Metrics {
	counts := cb.breaker.Counts()
	return Metrics{
		State:            cb.State(),
		Failures:         counts.TotalFailures,
		Successes:        counts.TotalSuccesses,
		Requests:         counts.Requests,
		ConsecutiveFails: counts.ConsecutiveFailures,
	}
}

// convertState converts gobreaker.State to our State type
func convertState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateClosed:
		return StateClosed
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

// IsOpen returns true if the circuit breaker is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// IsClosed returns true if the circuit breaker is closed
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.State() == StateClosed
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// AskEndpointConfig returns the configuration for client → /ask calls.
func AskEndpointConfig() Config {
	return Config{
		FailureThreshold: 3,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// GeneratorConfig returns the configuration for server → model calls.
func GeneratorConfig() Config {
	return Config{
		FailureThreshold: 5,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}
