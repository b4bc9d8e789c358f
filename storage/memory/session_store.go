package memorystore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PaulFidika/contentgate/player"
)

// ErrClosed is returned by a SessionStore after Close.
var ErrClosed = errors.New("memorystore: session store closed")

// sweepEvery is the number of writes between expiry sweeps.
const sweepEvery = 64

// SessionStore keeps player credentials in process memory. Each entry lives
// for the store TTL or until the credential expires, whichever is sooner.
// Expired entries are dropped on read and by a sweep every sweepEvery writes.
type SessionStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	creds   map[string]player.Credential
	expires map[string]time.Time
	writes  int
	closed  bool
}

// NewSessionStore uses a one hour TTL when ttl <= 0.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{
		ttl:     ttl,
		now:     time.Now,
		creds:   make(map[string]player.Credential),
		expires: make(map[string]time.Time),
	}
}

func (s *SessionStore) Put(_ context.Context, key string, c player.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	now := s.now()
	until := now.Add(s.ttl)
	if !c.ExpiresAt.IsZero() && c.ExpiresAt.Before(until) {
		until = c.ExpiresAt
	}
	s.creds[key], s.expires[key] = c, until
	if s.writes++; s.writes%sweepEvery == 0 {
		s.sweep(now)
	}
	return nil
}

func (s *SessionStore) Get(_ context.Context, key string) (player.Credential, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return player.Credential{}, false, ErrClosed
	}
	until, ok := s.expires[key]
	if !ok {
		return player.Credential{}, false, nil
	}
	if !s.now().Before(until) {
		s.drop(key)
		return player.Credential{}, false, nil
	}
	return s.creds[key], true, nil
}

func (s *SessionStore) Invalidate(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(key)
	return nil
}

// Len counts stored entries, expired ones included until they are swept.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.creds)
}

// Close forgets every credential. Later reads and writes fail with ErrClosed.
func (s *SessionStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.creds)
	clear(s.expires)
	return nil
}

func (s *SessionStore) drop(key string) {
	delete(s.creds, key)
	delete(s.expires, key)
}

func (s *SessionStore) sweep(now time.Time) {
	for key, until := range s.expires {
		if !now.Before(until) {
			s.drop(key)
		}
	}
}
