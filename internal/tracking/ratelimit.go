package tracking

import (
	"context"
	"sync"
	"time"

	redisclient "github.com/sealtrack/sealtrack-backend/pkg/redis"
)

// PingLimiter throttles location pings per authenticated user. Excess pings
// are rejected, never queued.
type PingLimiter interface {
	// Allow reports whether the user may submit a ping now.
	Allow(ctx context.Context, userID string) (bool, error)
	// Forget drops any state held for the user, called on disconnect.
	Forget(ctx context.Context, userID string) error
}

// memoryLimiter keeps the last accepted ping time per user. Sufficient for a
// single gateway instance; a horizontally scaled deployment uses the Redis
// limiter instead.
type memoryLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
	now      func() time.Time
}

// NewMemoryLimiter builds an in-process fixed-interval limiter.
func NewMemoryLimiter(interval time.Duration) PingLimiter {
	return &memoryLimiter{
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

func (l *memoryLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[userID]; ok && now.Sub(last) < l.interval {
		return false, nil
	}
	l.last[userID] = now
	return true, nil
}

func (l *memoryLimiter) Forget(ctx context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.last, userID)
	return nil
}

// pingLeaseStore is the slice of the Redis client the shared limiter needs.
type pingLeaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	RateLimitKey(scope string) string
}

// redisLimiter enforces the interval in the shared store so every gateway
// instance sees the same clock. A SET NX with the interval as TTL acts as a
// per-user lease: the ping that sets the key is accepted, everything until
// the key expires is rejected. Unlike a fixed window, two pings straddling a
// window boundary can never both pass.
type redisLimiter struct {
	client   pingLeaseStore
	interval time.Duration
}

// NewRedisLimiter builds a limiter backed by the shared Redis store.
func NewRedisLimiter(client *redisclient.Client, interval time.Duration) PingLimiter {
	return &redisLimiter{client: client, interval: interval}
}

func (l *redisLimiter) key(userID string) string {
	return l.client.RateLimitKey("tracking:ping:" + userID)
}

func (l *redisLimiter) Allow(ctx context.Context, userID string) (bool, error) {
	return l.client.SetNX(ctx, l.key(userID), 1, l.interval)
}

func (l *redisLimiter) Forget(ctx context.Context, userID string) error {
	return l.client.Del(ctx, l.key(userID))
}
