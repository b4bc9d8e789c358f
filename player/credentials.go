package player

import (
	"context"
	"time"
)

// Credential is the session token the client presents to the content API.
type Credential struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Usable reports whether c is present and not past its expiry at now.
func (c Credential) Usable(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// SessionStore holds credentials keyed by session. Entries expire after the
// store's TTL or the credential's own expiry, whichever comes first, and are
// dropped explicitly with Invalidate when the API rejects them.
// Implementations: storage/memory.SessionStore, storage/redis.SessionStore.
type SessionStore interface {
	Get(ctx context.Context, key string) (Credential, bool, error)
	Put(ctx context.Context, key string, c Credential) error
	Invalidate(ctx context.Context, key string) error
}
