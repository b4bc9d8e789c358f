// Package redislimiter is a sliding window limiter shared across replicas.
package redislimiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "contentgate:rl:"

// Limit allows Limit events in any Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

// Limiter counts events in a ZSET per bucket/key.
type Limiter struct {
	rdb    redis.UniversalClient
	limits map[string]Limit
	now    func() time.Time
	seq    atomic.Uint64
}

func New(rdb redis.UniversalClient, limits map[string]Limit) *Limiter {
	if limits == nil {
		limits = map[string]Limit{}
	}
	return &Limiter{rdb: rdb, limits: limits, now: time.Now}
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

// Allow records one event for key in bucket and reports whether it fits.
// Rejected events are not counted.
func (l *Limiter) Allow(ctx context.Context, bucket, key string) (bool, error) {
	if l == nil || l.rdb == nil {
		return true, nil
	}
	if bucket == "" || key == "" {
		return false, errors.New("bucket and key required")
	}
	lim := l.get(bucket)
	if lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}
	now := l.now().UnixMilli()
	start := now - lim.Window.Milliseconds()
	k := keyPrefix + bucket + ":" + key
	member := strconv.FormatInt(now, 10) + "-" + strconv.FormatUint(l.seq.Add(1), 10)

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", start))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now), Member: member})
	count := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, lim.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	if count.Val() > int64(lim.Limit) {
		l.rdb.ZRem(ctx, k, member)
		return false, nil
	}
	return true, nil
}
