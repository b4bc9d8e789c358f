// Package player keeps client-side playback alive across grant expiry. Each
// open content item gets a Session that loads a grant, refreshes it before it
// lapses while preserving the playback position, and falls back to in-memory
// playback when the direct URL cannot be played.
package player

import (
	"errors"
	"time"
)

// State of a Session.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateRefreshing
	StateExpired
	StateDenied
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	case StateDenied:
		return "denied"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateDenied || s == StateFailed || s == StateClosed
}

var (
	// ErrUnauthenticated means the API rejected or lacked a credential.
	ErrUnauthenticated = errors.New("player: unauthenticated")
	// ErrDenied means the caller is authenticated but may not open the item.
	ErrDenied = errors.New("player: access denied")
	// ErrUnavailable covers every other failure to obtain content.
	ErrUnavailable = errors.New("player: content unavailable")
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("player: session closed")
)

// Grant is the client's view of an access grant. PDF grants carry the
// document inline in Data and have no URL to refresh.
type Grant struct {
	URL         string
	ContentID   string
	ExpiresIn   time.Duration
	Data        []byte
	ContentType string
}

// Source is what the media element plays: a URL or an in-memory body.
type Source struct {
	URL         string
	Data        []byte
	ContentType string
}

// InMemory reports whether the source is a fetched body.
func (s Source) InMemory() bool { return s.Data != nil }

// Event is delivered to the observer on every state change.
type Event struct {
	ContentID string
	State     State
	// Message is the localized user-facing text for Denied and Failed.
	Message string
}

// RefreshDelay is how long after receiving a grant valid for expiresIn the
// next refresh runs: a minute before expiry but never sooner than 30s in.
// Windows of 30s or less refresh at their midpoint.
func RefreshDelay(expiresIn time.Duration) time.Duration {
	const (
		lead  = 60 * time.Second
		floor = 30 * time.Second
	)
	if expiresIn <= floor {
		return expiresIn / 2
	}
	return max(expiresIn-lead, floor)
}
