package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/tracking"
	"github.com/redis/go-redis/v9"
)

const (
	fieldSep  = "\x1f"
	lastAtSfx = fieldSep + "at"
)

// AccessCounter accumulates access hits in one redis hash. It is a
// tracking.Recorder on the request side and a tracking.CounterSource for the
// periodic flush into postgres.
type AccessCounter struct {
	rdb *redis.Client
	key string
	now func() time.Time
}

func NewAccessCounter(rdb *redis.Client, key string) *AccessCounter {
	if key == "" {
		key = "contentgate:access:counts"
	}
	return &AccessCounter{rdb: rdb, key: key, now: time.Now}
}

func field(identityID, contentID string) string { return identityID + fieldSep + contentID }

func (c *AccessCounter) RecordAccess(ctx context.Context, a entitlements.Access) error {
	at := a.At
	if at.IsZero() {
		at = c.now()
	}
	f := field(a.IdentityID, a.ContentID)
	pipe := c.rdb.Pipeline()
	pipe.HIncrBy(ctx, c.key, f, 1)
	pipe.HSet(ctx, c.key, f+lastAtSfx, at.Unix())
	_, err := pipe.Exec(ctx)
	return err
}

// Drain atomically moves the hash aside and returns its counts.
func (c *AccessCounter) Drain(ctx context.Context) ([]tracking.Count, error) {
	tmp := c.key + ":draining:" + strconv.FormatInt(c.now().UnixNano(), 10)
	if err := c.rdb.Rename(ctx, c.key, tmp).Err(); err != nil {
		if isNoSuchKey(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisstore: rename counters: %w", err)
	}
	m, err := c.rdb.HGetAll(ctx, tmp).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: read counters: %w", err)
	}
	_ = c.rdb.Del(ctx, tmp).Err()

	out := make([]tracking.Count, 0, len(m)/2)
	for f, v := range m {
		if strings.HasSuffix(f, lastAtSfx) {
			continue
		}
		parts := strings.SplitN(f, fieldSep, 2)
		if len(parts) != 2 {
			continue
		}
		hits, err := strconv.ParseInt(v, 10, 64)
		if err != nil || hits <= 0 {
			continue
		}
		cnt := tracking.Count{IdentityID: parts[0], ContentID: parts[1], Hits: hits}
		if ts, err := strconv.ParseInt(m[f+lastAtSfx], 10, 64); err == nil {
			cnt.LastAt = time.Unix(ts, 0).UTC()
		}
		out = append(out, cnt)
	}
	return out, nil
}

func isNoSuchKey(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such key")
}
