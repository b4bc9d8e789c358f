package memorylimiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsBurstThenDenies(t *testing.T) {
	ctx := context.Background()
	l := New(map[string]Limit{"content": {Limit: 2, Window: time.Minute}})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(ctx, "content", "u1")
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, _ := l.Allow(ctx, "content", "u1")
	require.False(t, ok)

	ok, _ = l.Allow(ctx, "content", "u2")
	require.True(t, ok, "keys are independent")

	now = now.Add(30 * time.Second)
	ok, _ = l.Allow(ctx, "content", "u1")
	require.True(t, ok, "one token refills per half window")
}

func TestLimiter_RequiresBucketAndKey(t *testing.T) {
	_, err := New(nil).Allow(context.Background(), "", "u1")
	require.Error(t, err)

	var nilLimiter *Limiter
	ok, err := nilLimiter.Allow(context.Background(), "content", "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLimiter_SweepsIdleBuckets(t *testing.T) {
	l := New(map[string]Limit{"default": {Limit: 5, Window: time.Second}})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	_, _ = l.Allow(context.Background(), "content", "u1")
	require.Equal(t, 1, l.Len())

	now = now.Add(time.Minute)
	l.mu.Lock()
	l.sweep(now)
	l.mu.Unlock()
	require.Zero(t, l.Len())
}
