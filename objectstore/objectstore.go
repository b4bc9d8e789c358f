// Package objectstore issues time-bounded signed URLs for stored objects.
package objectstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the backend confirmed the object does not exist.
	ErrNotFound = errors.New("objectstore: object not found")
	// ErrTransient marks failures worth one retry (network, 5xx, throttling).
	ErrTransient = errors.New("objectstore: transient failure")
)

// Backend signs a read URL for path valid for ttl. Signing doubles as the
// existence check: a missing object yields ErrNotFound.
type Backend interface {
	Sign(ctx context.Context, path string, ttl time.Duration) (string, error)
}
