package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/signalrelay/internal/domain"
)

// LocalLimiter is an in-process domain.RateLimiter backed by one token bucket
// per key. It is used when no Redis is configured. Buckets idle for longer
// than idleTTL are dropped on the next call.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localBucket
	idleTTL time.Duration
	now     func() time.Time
}

type localBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLocalLimiter creates a LocalLimiter.
func NewLocalLimiter(idleTTL time.Duration) *LocalLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &LocalLimiter{
		buckets: make(map[string]*localBucket),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow reports whether one more request for key fits in limit per window.
// The bucket refills continuously at limit/window with a burst of limit.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 || window <= 0 {
		return true, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, b := range l.buckets {
		if now.Sub(b.seen) > l.idleTTL {
			delete(l.buckets, k)
		}
	}

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(window / time.Duration(limit))
		b = &localBucket{lim: rate.NewLimiter(every, limit)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1), nil
}

var _ domain.RateLimiter = (*LocalLimiter)(nil)
