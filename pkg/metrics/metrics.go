package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics collection for the answer server
type MetricsCollector struct {
	registry *prometheus.Registry

	// HTTP metrics
	requestDuration *prometheus.HistogramVec
	requestCounter  *prometheus.CounterVec

	// Answer pipeline metrics
	retrievalTime   prometheus.Histogram
	generationTime  *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	answeredTotal   prometheus.Counter
	indexedChunks   prometheus.Gauge
	contextTruncate prometheus.Counter

	// Circuit breaker metrics
	circuitState    *prometheus.GaugeVec
	circuitFailures *prometheus.CounterVec

	// Retry metrics
	retryAttempts *prometheus.CounterVec
}

// NewMetricsCollector creates a collector backed by its own registry,
// so several collectors can coexist in one process (tests, embedded servers).
func NewMetricsCollector(serviceName string) *MetricsCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"service": serviceName}

	mc := &MetricsCollector{registry: reg}

	mc.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "lawqa_request_duration_seconds",
			Help:        "HTTP request latency by endpoint and status code",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "status_code"},
	)

	mc.requestCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lawqa_requests_total",
			Help:        "Total requests by endpoint and status code",
			ConstLabels: constLabels,
		},
		[]string{"endpoint", "status_code"},
	)

	mc.retrievalTime = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:        "lawqa_retrieval_seconds",
			Help:        "Vector store search time",
			Buckets:     []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			ConstLabels: constLabels,
		},
	)

	mc.generationTime = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:        "lawqa_generation_seconds",
			Help:        "Answer generation time by generator",
			Buckets:     []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: constLabels,
		},
		[]string{"generator"},
	)

	mc.cacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "lawqa_cache_lookups_total",
			Help:        "Answer cache lookups by result (hit, miss, error)",
			ConstLabels: constLabels,
		},
		[]string{"result"},
	)

	mc.answeredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name:        "lawqa_answers_total",
			Help:        "Questions answered successfully",
			ConstLabels: constLabels,
		},
	)

	mc.indexedChunks = factory.NewGauge(
		prometheus.GaugeOpts{
			Name:        "lawqa_indexed_chunks",
			Help:        "Number of text chunks in the loaded vector store",
			ConstLabels: constLabels,
		},
	)

	mc.contextTruncate = factory.NewCounter(
		prometheus.CounterOpts{
			Name:        "lawqa_context_truncations_total",
			Help:        "Retrieved contexts cut to the generator's character limit",
			ConstLabels: constLabels,
		},
	)

	mc.circuitState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "circuit_breaker_state",
			Help:        "Circuit breaker state: 0=closed, 1=half-open, 2=open",
			ConstLabels: constLabels,
		},
		[]string{"breaker", "component"},
	)

	mc.circuitFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "circuit_breaker_failures_total",
			Help:        "Times the circuit breaker opened",
			ConstLabels: constLabels,
		},
		[]string{"breaker", "component"},
	)

	mc.retryAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "retry_attempts_total",
			Help:        "Retry counts by operation and attempt number",
			ConstLabels: constLabels,
		},
		[]string{"operation", "attempt_number"},
	)

	return mc
}

// Registry returns the registry to expose over HTTP.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// RecordRequest records one served request
func (mc *MetricsCollector) RecordRequest(endpoint, statusCode string, duration time.Duration) {
	mc.requestDuration.WithLabelValues(endpoint, statusCode).Observe(duration.Seconds())
	mc.requestCounter.WithLabelValues(endpoint, statusCode).Inc()
}

// RecordRetrievalTime records a vector store search
func (mc *MetricsCollector) RecordRetrievalTime(duration time.Duration) {
	mc.retrievalTime.Observe(duration.Seconds())
}

// RecordGenerationTime records answer generation time
func (mc *MetricsCollector) RecordGenerationTime(generator string, duration time.Duration) {
	mc.generationTime.WithLabelValues(generator).Observe(duration.Seconds())
}

// RecordCacheLookup counts a cache lookup; result is hit, miss or error
func (mc *MetricsCollector) RecordCacheLookup(result string) {
	mc.cacheLookups.WithLabelValues(result).Inc()
}

// IncrementAnswered counts a successful answer
func (mc *MetricsCollector) IncrementAnswered() {
	mc.answeredTotal.Inc()
}

// SetIndexedChunks sets the loaded chunk count
func (mc *MetricsCollector) SetIndexedChunks(n int) {
	mc.indexedChunks.Set(float64(n))
}

// IncrementContextTruncations counts a truncated context
func (mc *MetricsCollector) IncrementContextTruncations() {
	mc.contextTruncate.Inc()
}

// SetCircuitBreakerState sets circuit breaker state (0=closed, 1=half-open, 2=open)
func (mc *MetricsCollector) SetCircuitBreakerState(breaker, component string, state float64) {
	mc.circuitState.WithLabelValues(breaker, component).Set(state)
}

// IncrementCircuitBreakerFailures increments circuit breaker failure count
func (mc *MetricsCollector) IncrementCircuitBreakerFailures(breaker, component string) {
	mc.circuitFailures.WithLabelValues(breaker, component).Inc()
}

// IncrementRetryAttempts increments retry attempt counter
func (mc *MetricsCollector) IncrementRetryAttempts(operation, attemptNumber string) {
	mc.retryAttempts.WithLabelValues(operation, attemptNumber).Inc()
}

// LatencyTracker tracks per-request stage timings
type LatencyTracker struct {
	startTime   time.Time
	checkpoints map[string]time.Duration
	mu          sync.RWMutex
}

// NewLatencyTracker creates a new latency tracker
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		startTime:   time.Now(),
		checkpoints: make(map[string]time.Duration),
	}
}

// Checkpoint records a timing checkpoint
func (lt *LatencyTracker) Checkpoint(name string) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.checkpoints[name] = time.Since(lt.startTime)
}

// GetDuration returns the duration since start
func (lt *LatencyTracker) GetDuration() time.Duration {
	return time.Since(lt.startTime)
}

// GetCheckpoint returns the duration at a specific checkpoint
func (lt *LatencyTracker) GetCheckpoint(name string) (time.Duration, bool) {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	duration, ok := lt.checkpoints[name]
	return duration, ok
}

// GetAllCheckpoints returns all checkpoints
func (lt *LatencyTracker) GetAllCheckpoints() map[string]time.Duration {
	lt.mu.RLock()
	defer lt.mu.RUnlock()

	result := make(map[string]time.Duration, len(lt.checkpoints))
	for k, v := range lt.checkpoints {
		result[k] = v
	}
	return result
}
