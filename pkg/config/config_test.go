package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		envValue   string
		defaultVal string
		expected   string
	}{
		{"uses env value", "LAWQA_TEST_VAR_1", "hello", "default", "hello"},
		{"uses default when empty", "LAWQA_TEST_VAR_2", "", "default", "default"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.envValue)
			assert.Equal(t, tc.expected, getEnv(tc.key, tc.defaultVal))
		})
	}
}

func TestGetIntEnv(t *testing.T) {
	tests := []struct {
		name       string
		envValue   string
		defaultVal int
		expected   int
	}{
		{"parses integer", "42", 10, 42},
		{"uses default for empty", "", 10, 10},
		{"uses default for non-numeric", "abc", 10, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("LAWQA_TEST_INT", tc.envValue)
			assert.Equal(t, tc.expected, getIntEnv("LAWQA_TEST_INT", tc.defaultVal))
		})
	}
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("LAWQA_TEST_DUR", "250ms")
	assert.Equal(t, 250*time.Millisecond, getDurationEnv("LAWQA_TEST_DUR", time.Second))

	t.Setenv("LAWQA_TEST_DUR", "soon")
	assert.Equal(t, time.Second, getDurationEnv("LAWQA_TEST_DUR", time.Second))
}

func TestLoadClientDefaults(t *testing.T) {
	t.Setenv("ASK_URL", "")
	t.Setenv("ASK_TIMEOUT", "")
	t.Setenv("ASK_MAX_ATTEMPTS", "")

	cfg := LoadClient()
	assert.Equal(t, "http://localhost:5000", cfg.BaseURL)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 1, cfg.MaxAttempts)
}

func TestLoadServerOverrides(t *testing.T) {
	t.Setenv("PORT", "8081")
	t.Setenv("TOP_K", "5")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CACHE_TTL", "10m")

	cfg := LoadServer()
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 1024, cfg.MaxContextChars)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
}

func TestLoadIngestDefaults(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "")
	t.Setenv("CHUNK_OVERLAP", "")

	cfg := LoadIngest()
	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, "vector_store", cfg.VectorStoreDir)
}
