package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/henny-hen/DASOS-backend/internal/metrics"
	"github.com/henny-hen/DASOS-backend/pkg/logger"
	"github.com/henny-hen/DASOS-backend/pkg/utils"
)

const keyPrefix = "dasos:payload"

// Client stores raw academic API payloads keyed by year, semester and subject.
type Client struct {
	client *redis.Client
	ttl    time.Duration
}

func NewClient(host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr), zap.Duration("ttl", ttl))

	return &Client{client: client, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func payloadKey(academicYear, semester, name string) string {
	return utils.CacheKey(keyPrefix, academicYear, semester, name)
}

// Get returns the cached payload; found is false on a miss.
func (c *Client) Get(ctx context.Context, academicYear, semester, name string) ([]byte, bool, error) {
	key := payloadKey(academicYear, semester, name)
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMisses.WithLabelValues("redis").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get payload cache: %w", err)
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	logger.Debug("Payload cache hit", zap.String("key", key))
	return data, true, nil
}

func (c *Client) Set(ctx context.Context, academicYear, semester, name string, payload []byte) error {
	key := payloadKey(academicYear, semester, name)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set payload cache: %w", err)
	}
	logger.Debug("Payload cached", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// Invalidate drops every cached payload for academicYear, or all of them when
// academicYear is empty.
func (c *Client) Invalidate(ctx context.Context, academicYear string) (int, error) {
	pattern := keyPrefix + ":*"
	if academicYear != "" {
		pattern = payloadKey(academicYear, "", "") + ":*"
	}

	deleted := 0
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		deleted++
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Payload cache invalidated", zap.String("pattern", pattern), zap.Int("deleted", deleted))
	return deleted, nil
}
