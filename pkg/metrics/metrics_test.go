package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewMetricsCollector("api")
	b := NewMetricsCollector("api")

	a.RecordRequest("/ask", "200", 10*time.Millisecond)
	a.RecordRequest("/ask", "200", 20*time.Millisecond)
	a.RecordCacheLookup("hit")
	a.SetIndexedChunks(42)

	assert.Equal(t, float64(2), testutil.ToFloat64(a.requestCounter.WithLabelValues("/ask", "200")))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.requestCounter.WithLabelValues("/ask", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(a.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(42), testutil.ToFloat64(a.indexedChunks))
}

func TestCircuitBreakerMetrics(t *testing.T) {
	mc := NewMetricsCollector("api")
	mc.SetCircuitBreakerState("generator", "api", 2)
	mc.IncrementCircuitBreakerFailures("generator", "api")
	mc.IncrementRetryAttempts("generate", "1")

	assert.Equal(t, float64(2), testutil.ToFloat64(mc.circuitState.WithLabelValues("generator", "api")))
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.circuitFailures.WithLabelValues("generator", "api")))
	assert.Equal(t, float64(1), testutil.ToFloat64(mc.retryAttempts.WithLabelValues("generate", "1")))

	families, err := mc.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestLatencyTracker(t *testing.T) {
	lt := NewLatencyTracker()
	lt.Checkpoint("retrieve")
	time.Sleep(time.Millisecond)
	lt.Checkpoint("generate")

	retrieve, ok := lt.GetCheckpoint("retrieve")
	require.True(t, ok)
	generate, ok := lt.GetCheckpoint("generate")
	require.True(t, ok)
	assert.GreaterOrEqual(t, generate, retrieve)

	_, ok = lt.GetCheckpoint("missing")
	assert.False(t, ok)
	assert.Len(t, lt.GetAllCheckpoints(), 2)
	assert.GreaterOrEqual(t, lt.GetDuration(), generate)
}
