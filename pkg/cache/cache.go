// Package cache remembers answers to previously asked questions.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"lawqa/pkg/retry"
)

// KeyPrefix namespaces answer keys in Redis.
const KeyPrefix = "lawqa:answer:"

// Source is a document that contributed to an answer.
type Source struct {
	Source    string  `json:"source"`
	Relevance float64 `json:"relevance"`
}

// Answer is the cached part of an ask response.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// AnswerCache stores answers by question.
type AnswerCache interface {
	Get(ctx context.Context, question string) (*Answer, bool, error)
	Set(ctx context.Context, question string, answer *Answer) error
	Close() error
}

// Key returns the cache key for question. Questions differing only in case
// or whitespace share a key.
func Key(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := sha256.Sum256([]byte(normalized))
	return KeyPrefix + hex.EncodeToString(sum[:])
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Answer, bool, error) { return nil, false, nil }
func (NopCache) Set(context.Context, string, *Answer) error         { return nil }
func (NopCache) Close() error                                       { return nil }

// redisClient is the subset of go-redis used here.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ AnswerCache = (*RedisCache)(nil)

// RedisCache keeps answers in Redis with a TTL.
type RedisCache struct {
	rdb   redisClient
	ttl   time.Duration
	retry retry.Config
}

// RedisOptions configures NewRedisCache.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisCache connects to Redis. The connection is verified with a ping.
func NewRedisCache(ctx context.Context, opts RedisOptions) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	c := newRedisCache(rdb, opts.TTL)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	return c, nil
}

func newRedisCache(rdb redisClient, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{rdb: rdb, ttl: ttl, retry: retry.CacheRetryConfig()}
}

// Get returns the cached answer for question. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, question string) (*Answer, bool, error) {
	key := Key(question)
	var raw string
	err := retry.WithRetry(ctx, c.retry, func() error {
		v, err := c.rdb.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			raw = ""
			return nil
		}
		raw = v
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	if raw == "" {
		return nil, false, nil
	}

	var a Answer
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return &a, true, nil
}

// Set stores answer under question for the cache TTL.
func (c *RedisCache) Set(ctx context.Context, question string, answer *Answer) error {
	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	key := Key(question)
	err = retry.WithRetry(ctx, c.retry, func() error {
		return c.rdb.Set(ctx, key, data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
