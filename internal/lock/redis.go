package lock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

// releaseScript deletes the key only if it still holds this holder's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

// Connect initializes a Redis client from URL or host:port input.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, "escrow_lock:"+key, token, ttl).Result()
	if err != nil {
		return func() {}, false, err
	}
	if !ok {
		return func() {}, false, nil
	}
	release := func() {
		// The caller's context may already be done; release on a fresh one.
		relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.client, []string{"escrow_lock:" + key}, token).Err(); err != nil {
			telemetry.Logger.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

func (l *RedisLocker) Seen(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, "escrow_seen:"+key).Result()
	return n > 0, err
}

func (l *RedisLocker) MarkSeen(ctx context.Context, key string, ttl time.Duration) error {
	return l.client.Set(ctx, "escrow_seen:"+key, "1", ttl).Err()
}
