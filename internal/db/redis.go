package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/adlaunch/adlaunch/internal/models"
)

// dedupWindow is how long a media handle stays locked after a deploy
// starts. Long enough to cover the slowest platform timeout.
const dedupWindow = 5 * time.Minute

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// AcquireDeployLock takes the dedup lock for a media handle so two
// concurrent requests cannot deploy the same asset twice. Returns false
// when another run already holds it. A nil store or a Redis error
// grants the lock: deduplication degrades open rather than blocking
// deployments.
func (r *RedisStore) AcquireDeployLock(handle string) bool {
	if r == nil || r.Client == nil {
		return true
	}
	key := "deploylock:" + handle
	ok, err := r.Client.SetNX(r.Ctx, key, time.Now().Unix(), dedupWindow).Result()
	if err != nil {
		zap.L().Warn("deploy lock acquire, proceeding without dedup", zap.Error(err))
		return true
	}
	return ok
}

// ReleaseDeployLock frees the dedup lock once a run finishes.
func (r *RedisStore) ReleaseDeployLock(handle string) {
	if r == nil || r.Client == nil {
		return
	}
	if err := r.Client.Del(r.Ctx, "deploylock:"+handle).Err(); err != nil {
		zap.L().Warn("deploy lock release", zap.Error(err))
	}
}

// IncrementPlatformCall increments the daily outbound-call counter for
// a platform. A 24h TTL is applied on first set. Returns the current
// count.
func (r *RedisStore) IncrementPlatformCall(platform models.Platform) (int64, error) {
	if r == nil || r.Client == nil {
		return 0, nil
	}
	key := fmt.Sprintf("calls:platform:%s:%s", platform, time.Now().Format("2006-01-02"))
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, 24*time.Hour)
	}
	return val, nil
}

// GetPlatformCallCount returns today's outbound-call count for a platform.
func (r *RedisStore) GetPlatformCallCount(platform models.Platform) int64 {
	if r == nil || r.Client == nil {
		return 0
	}
	key := fmt.Sprintf("calls:platform:%s:%s", platform, time.Now().Format("2006-01-02"))
	count, _ := r.Client.Get(r.Ctx, key).Int64()
	return count
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
