package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateDecision is the outcome of one rate limit check.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type RateLimiter interface {
	// 檢查：key 在目前時間窗內是否還有額度
	Allow(ctx context.Context, key string) (RateDecision, error)
}

// RedisRateLimiterImpl counts requests per fixed window so every instance
// sharing the Redis server sees the same budget.
type RedisRateLimiterImpl struct {
	client *redis.Client
	name   string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRedisRateLimiter(client *redis.Client, name string, limit int, window time.Duration) *RedisRateLimiterImpl {
	return &RedisRateLimiterImpl{
		client: client,
		name:   name,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

func RateLimitKey(name, key string, windowStart time.Time) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", name, key, windowStart.Unix())
}

func (l *RedisRateLimiterImpl) Allow(ctx context.Context, key string) (RateDecision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	redisKey := RateLimitKey(l.name, key, windowStart)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return RateDecision{}, fmt.Errorf("incr %s: %w", redisKey, err)
	}
	// 第一次計數時設定過期，時間窗結束後自動清除
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return RateDecision{}, fmt.Errorf("expire %s: %w", redisKey, err)
		}
	}

	decision := RateDecision{
		Allowed: count <= int64(l.limit),
		Limit:   l.limit,
	}
	if decision.Allowed {
		decision.Remaining = l.limit - int(count)
	} else {
		decision.RetryAfter = windowStart.Add(l.window).Sub(now)
	}
	return decision, nil
}

type memoryRateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiterImpl keeps one token bucket per key in process memory.
// Used when no Redis server is configured.
type MemoryRateLimiterImpl struct {
	mu        sync.Mutex
	entries   map[string]*memoryRateEntry
	limit     int
	window    time.Duration
	lastPrune time.Time
	now       func() time.Time
}

func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiterImpl {
	return &MemoryRateLimiterImpl{
		entries: make(map[string]*memoryRateEntry),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

func (l *MemoryRateLimiterImpl) Allow(_ context.Context, key string) (RateDecision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)

	entry, ok := l.entries[key]
	if !ok {
		entry = &memoryRateEntry{
			limiter: rate.NewLimiter(rate.Every(l.window/time.Duration(l.limit)), l.limit),
		}
		l.entries[key] = entry
	}
	entry.lastSeen = now

	reservation := entry.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return RateDecision{Allowed: false, Limit: l.limit, RetryAfter: delay}, nil
	}

	remaining := int(entry.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return RateDecision{Allowed: true, Limit: l.limit, Remaining: remaining}, nil
}

// 閒置超過一個時間窗的 key 桶已補滿，可直接移除
func (l *MemoryRateLimiterImpl) prune(now time.Time) {
	if now.Sub(l.lastPrune) < l.window {
		return
	}
	for key, entry := range l.entries {
		if now.Sub(entry.lastSeen) >= l.window {
			delete(l.entries, key)
		}
	}
	l.lastPrune = now
}
