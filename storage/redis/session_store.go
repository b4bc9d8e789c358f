package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/PaulFidika/contentgate/player"
	"github.com/redis/go-redis/v9"
)

// SessionStore is a redis-backed player.SessionStore.
type SessionStore struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

func NewSessionStore(rdb *redis.Client, keyPrefix string, ttl time.Duration) *SessionStore {
	if keyPrefix == "" {
		keyPrefix = "contentgate:session:"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (s *SessionStore) key(k string) string { return s.keyNS + k }

// Put stores c until the store TTL or the credential's expiry, whichever is
// sooner. An already expired credential is not stored.
func (s *SessionStore) Put(ctx context.Context, key string, c player.Credential) error {
	ttl := s.ttl
	if !c.ExpiresAt.IsZero() {
		left := time.Until(c.ExpiresAt)
		if left <= 0 {
			return s.Invalidate(ctx, key)
		}
		if left < ttl {
			ttl = left
		}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(key), b, ttl).Err()
}

func (s *SessionStore) Get(ctx context.Context, key string) (player.Credential, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if err == redis.Nil {
		return player.Credential{}, false, nil
	}
	if err != nil {
		return player.Credential{}, false, err
	}
	var c player.Credential
	if err := json.Unmarshal(val, &c); err != nil {
		return player.Credential{}, false, err
	}
	return c, true, nil
}

func (s *SessionStore) Invalidate(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}
