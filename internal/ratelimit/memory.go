package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter keeps counters in process memory. Counters are not shared
// between instances.
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Check(_ context.Context, key string, maxRequests int, size time.Duration) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now, size)

	entry, ok := l.windows[key]
	if !ok || !now.Before(entry.start.Add(size)) {
		l.windows[key] = &window{start: now, count: 1}
		return Decision{Allowed: true, Remaining: max(maxRequests-1, 0)}, nil
	}

	if entry.count >= maxRequests {
		return Decision{
			Allowed:           false,
			RetryAfterSeconds: retryAfter(entry.start.Add(size).Sub(now)),
		}, nil
	}

	entry.count++
	return Decision{Allowed: true, Remaining: maxRequests - entry.count}, nil
}

// sweep drops expired windows at most once per window length so the table
// does not grow without bound.
func (l *MemoryLimiter) sweep(now time.Time, size time.Duration) {
	if now.Sub(l.lastSweep) < size {
		return
	}
	l.lastSweep = now
	for key, entry := range l.windows {
		if !now.Before(entry.start.Add(size)) {
			delete(l.windows, key)
		}
	}
}

// Len reports how many keys currently hold a window.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
