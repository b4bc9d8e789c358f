package redislimiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, limits map[string]Limit) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, limits), mr
}

func TestLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	l, _ := newLimiter(t, map[string]Limit{"content": {Limit: 2, Window: time.Minute}})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "content", "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := l.Allow(ctx, "content", "u1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, _ = l.Allow(ctx, "content", "u2")
	require.True(t, ok)

	now = now.Add(61 * time.Second)
	ok, _ = l.Allow(ctx, "content", "u1")
	require.True(t, ok)
}

func TestLimiter_SameMillisecondCountsSeparately(t *testing.T) {
	ctx := context.Background()
	l, mr := newLimiter(t, map[string]Limit{"default": {Limit: 5, Window: time.Minute}})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_, err := l.Allow(ctx, "content", "u1")
		require.NoError(t, err)
	}
	members, err := mr.ZMembers(keyPrefix + "content:u1")
	require.NoError(t, err)
	require.Len(t, members, 3)
}

func TestLimiter_NilClientAllows(t *testing.T) {
	ok, err := New(nil, nil).Allow(context.Background(), "content", "u1")
	require.NoError(t, err)
	require.True(t, ok)
}
