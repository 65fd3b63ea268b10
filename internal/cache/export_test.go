package cache

import "time"

func (l *RedisRateLimiterImpl) SetClock(now func() time.Time) {
	l.now = now
}

func (l *MemoryRateLimiterImpl) SetClock(now func() time.Time) {
	l.now = now
}

func (l *MemoryRateLimiterImpl) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
