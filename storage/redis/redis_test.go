package redisstore

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/player"
	"github.com/PaulFidika/contentgate/tracking"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSessionStore(t *testing.T) {
	mr, rdb := newRedis(t)
	s := NewSessionStore(rdb, "", time.Minute)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "u", player.Credential{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}))
	c, ok, err := s.Get(ctx, "u")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", c.AccessToken)

	mr.FastForward(2 * time.Minute)
	_, ok, err = s.Get(ctx, "u")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, "u", player.Credential{AccessToken: "tok"}))
	require.NoError(t, s.Invalidate(ctx, "u"))
	_, ok, _ = s.Get(ctx, "u")
	require.False(t, ok)

	require.NoError(t, s.Put(ctx, "old", player.Credential{AccessToken: "tok", ExpiresAt: time.Now().Add(-time.Second)}))
	_, ok, _ = s.Get(ctx, "old")
	require.False(t, ok)
}

func TestAccessCounter_RecordAndDrain(t *testing.T) {
	_, rdb := newRedis(t)
	c := NewAccessCounter(rdb, "")
	ctx := context.Background()
	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

	empty, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Empty(t, empty)

	for i := 0; i < 3; i++ {
		require.NoError(t, c.RecordAccess(ctx, entitlements.Access{IdentityID: "auth0|u1", ContentID: "v1", At: at}))
	}
	require.NoError(t, c.RecordAccess(ctx, entitlements.Access{IdentityID: "u2", ContentID: "v1", At: at}))

	got, err := c.Drain(ctx)
	require.NoError(t, err)
	sort.Slice(got, func(i, j int) bool { return got[i].IdentityID < got[j].IdentityID })
	require.Equal(t, []tracking.Count{
		{IdentityID: "auth0|u1", ContentID: "v1", Hits: 3, LastAt: at},
		{IdentityID: "u2", ContentID: "v1", Hits: 1, LastAt: at},
	}, got)

	again, err := c.Drain(ctx)
	require.NoError(t, err)
	require.Empty(t, again)
}
