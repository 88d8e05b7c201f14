// Package ratelimit provides per-client request budgets, either in process
// or shared across replicas through the cache.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	last time.Time
}

// Limiter keeps one token bucket per key. Buckets idle for longer than
// the idle window are dropped on the next sweep.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	rps   rate.Limit
	burst int
	idle  time.Duration
	swept time.Time
	now   func() time.Time
}

// New builds a local limiter allowing rps requests per second with the
// given burst per key.
func New(rps float64, burst int) *Limiter {
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		m:     make(map[string]*bucket),
		rps:   rate.Limit(rps),
		burst: burst,
		idle:  10 * time.Minute,
		now:   time.Now,
	}
}

// Allow consumes one token for key.
func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > l.idle {
		for k, b := range l.m {
			if now.Sub(b.last) > l.idle {
				delete(l.m, k)
			}
		}
		l.swept = now
	}

	b, ok := l.m[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rps, l.burst)}
		l.m[key] = b
	}
	b.last = now
	return b.lim.AllowN(now, 1), nil
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// Counter is the slice of the cache a shared limiter needs.
type Counter interface {
	Increment(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, expiration time.Duration) (bool, error)
}

// Shared is a fixed-window limiter backed by a counter every replica sees.
type Shared struct {
	counter Counter
	limit   int64
	window  time.Duration
	now     func() time.Time
}

func NewShared(counter Counter, limit int, window time.Duration) *Shared {
	if window <= 0 {
		window = time.Minute
	}
	return &Shared{counter: counter, limit: int64(limit), window: window, now: time.Now}
}

// Allow counts the request in the current window.
func (s *Shared) Allow(ctx context.Context, key string) (bool, error) {
	slot := s.now().UnixNano() / int64(s.window)
	k := fmt.Sprintf("ratelimit:%s:%d", key, slot)
	n, err := s.counter.Increment(ctx, k)
	if err != nil {
		return false, fmt.Errorf("rate counter: %w", err)
	}
	if n == 1 {
		if _, err := s.counter.Expire(ctx, k, s.window); err != nil {
			return false, fmt.Errorf("rate counter expiry: %w", err)
		}
	}
	return n <= s.limit, nil
}
