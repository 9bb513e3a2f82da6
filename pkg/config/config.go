package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ClientConfig configures the ask client
type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
	LogLevel    string
}

// ServerConfig configures the answer server
type ServerConfig struct {
	Port            string
	VectorStoreDir  string
	TopK            int
	MaxContextChars int
	RequestTimeout  time.Duration
	CORSAllowOrigin string
	LogLevel        string

	// Answer cache; empty RedisAddr disables it
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// OpenAI-compatible model; empty key selects the extractive generator
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

// IngestConfig configures the offline ingestion run
type IngestConfig struct {
	LawBooksDir    string
	ChunksOut      string
	VectorStoreDir string
	ChunkSize      int
	ChunkOverlap   int
	LogLevel       string
}

// loadDotEnv loads .env when present. A missing file is not an error.
func loadDotEnv() {
	_ = godotenv.Load()
}

// LoadClient loads client configuration from the environment
func LoadClient() *ClientConfig {
	loadDotEnv()
	return &ClientConfig{
		BaseURL:     getEnv("ASK_URL", "http://localhost:5000"),
		Timeout:     getDurationEnv("ASK_TIMEOUT", 60*time.Second),
		MaxAttempts: getIntEnv("ASK_MAX_ATTEMPTS", 1),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}
}

// LoadServer loads server configuration from the environment
func LoadServer() *ServerConfig {
	loadDotEnv()
	return &ServerConfig{
		Port:            getEnv("PORT", "5000"),
		VectorStoreDir:  getEnv("VECTOR_STORE_DIR", "vector_store"),
		TopK:            getIntEnv("TOP_K", 3),
		MaxContextChars: getIntEnv("MAX_CONTEXT_CHARS", 1024),
		RequestTimeout:  getDurationEnv("REQUEST_TIMEOUT", 60*time.Second),
		CORSAllowOrigin: getEnv("CORS_ALLOW_ORIGIN", "*"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		CacheTTL:      getDurationEnv("CACHE_TTL", time.Hour),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
	}
}

// LoadIngest loads ingestion configuration from the environment
func LoadIngest() *IngestConfig {
	loadDotEnv()
	return &IngestConfig{
		LawBooksDir:    getEnv("LAW_BOOKS_DIR", "data/law_books"),
		ChunksOut:      getEnv("CHUNKS_OUT", "data/processed_chunks.json"),
		VectorStoreDir: getEnv("VECTOR_STORE_DIR", "vector_store"),
		ChunkSize:      getIntEnv("CHUNK_SIZE", 500),
		ChunkOverlap:   getIntEnv("CHUNK_OVERLAP", 50),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
