package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

const rateKeyPrefix = "ratelimit:ws:"

// Compile-time check to ensure RedisStore implements SnapshotStore
var _ SnapshotStore = (*RedisStore)(nil)

type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger.Named("snapshots")}
}

// GetSnapshots fetches the latest cached quote for a list of symbols (MGET).
// Missing or undecodable entries are skipped.
func (r *RedisStore) GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = models.SnapshotKey(models.NormalizeSymbol(sym))
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget snapshots: %w", err)
	}

	snapshots := make([]models.Quote, 0, len(results))
	for i, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(payload), &q); err != nil {
			r.logger.Warn("Corrupt snapshot", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		snapshots = append(snapshots, q)
	}
	return snapshots, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Compile-time check to ensure RedisRateLimiter implements RateLimiter
var _ RateLimiter = (*RedisRateLimiter)(nil)

// RedisRateLimiter is a fixed window counter shared by every gateway instance
// pointed at the same Redis.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: int64(limit), window: window}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	key := rateKeyPrefix + ip

	// SET NX opens the window with its TTL; INCR keeps that TTL. One MULTI so
	// the counter never exists without an expiry.
	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, key, 0, l.window)
		incr = pipe.Incr(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", ip, err)
	}
	return incr.Val() <= l.limit, nil
}
