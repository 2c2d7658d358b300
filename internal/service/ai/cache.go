package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"fooddetect/internal/logger"

	"github.com/redis/go-redis/v9"
)

// CacheKeyPrefix namespaces inference entries in the cache.
const CacheKeyPrefix = "fooddetect:inference:"

// Cache stores opaque values by key. Get reports ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache implements Cache on a Redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection with PING.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedDetector memoizes another Detector by image content. Cache failures
// are logged and never fail a detection.
type CachedDetector struct {
	next   Detector
	cache  Cache
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedDetector wraps next with cache.
func NewCachedDetector(next Detector, cache Cache, ttl time.Duration, logger *logger.Logger) *CachedDetector {
	return &CachedDetector{
		next:   next,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// Detect returns the cached inference for identical image bytes, or runs
// the wrapped detector and stores its result.
func (d *CachedDetector) Detect(ctx context.Context, imagePath string) (*Inference, error) {
	key, err := ContentKey(imagePath)
	if err != nil {
		return nil, err
	}

	if value, ok, err := d.cache.Get(ctx, key); err != nil {
		d.logger.Warning("Inference cache read failed: %v", err)
	} else if ok {
		var inf Inference
		if err := json.Unmarshal(value, &inf); err == nil {
			d.logger.Info("Inference cache hit for %s", imagePath)
			return &inf, nil
		}
		d.logger.Warning("Discarding corrupt cache entry %s", key)
	}

	inf, err := d.next.Detect(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	value, err := json.Marshal(inf)
	if err != nil {
		d.logger.Warning("Failed to encode inference for cache: %v", err)
		return inf, nil
	}
	if err := d.cache.Set(ctx, key, value, d.ttl); err != nil {
		d.logger.Warning("Inference cache write failed: %v", err)
	}

	return inf, nil
}

// ContentKey derives the cache key from the SHA-256 of the file contents.
func ContentKey(imagePath string) (string, error) {
	file, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to hash image: %w", err)
	}

	return CacheKeyPrefix + hex.EncodeToString(h.Sum(nil)), nil
}
