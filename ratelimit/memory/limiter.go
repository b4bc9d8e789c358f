// Package memorylimiter is a single-node token bucket limiter keyed by
// bucket and caller.
package memorylimiter

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limit allows Limit events per Window with bursts up to Limit.
type Limit struct {
	Limit  int
	Window time.Duration
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter keeps one token bucket per bucket/key pair. Buckets idle for longer
// than twice their window are swept on later calls.
type Limiter struct {
	mu      sync.Mutex
	limits  map[string]Limit
	buckets map[string]*entry
	now     func() time.Time
	calls   int
}

func New(limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{limits: limits, buckets: make(map[string]*entry), now: time.Now}
}

func (l *Limiter) get(bucket string) Limit {
	if v, ok := l.limits[bucket]; ok {
		return v
	}
	if v, ok := l.limits["default"]; ok {
		return v
	}
	return Limit{Limit: 100, Window: time.Minute}
}

// Allow reports whether one more event for key in bucket fits the limit.
func (l *Limiter) Allow(_ context.Context, bucket, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("bucket and key required")
	}
	lim := l.get(bucket)
	if lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}
	now := l.now()
	k := bucket + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls%1024 == 0 {
		l.sweep(now)
	}
	e, ok := l.buckets[k]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(lim.Window/time.Duration(lim.Limit)), lim.Limit)}
		l.buckets[k] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1), nil
}

func (l *Limiter) sweep(now time.Time) {
	for k, e := range l.buckets {
		bucket, _, _ := strings.Cut(k, ":")
		if now.Sub(e.seen) > 2*l.get(bucket).Window {
			delete(l.buckets, k)
		}
	}
}

// Len returns the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
