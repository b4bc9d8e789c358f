package entitlements

import (
	"context"
	"errors"

	"github.com/PaulFidika/contentgate/content"
)

// ErrNotFound is returned by stores for missing subscriptions and items.
var ErrNotFound = errors.New("entitlements: not found")

// Store reads the catalog, subscription and enrollment state the checker
// evaluates. Implementations live in storage/postgres and storage/memory.
type Store interface {
	Subscription(ctx context.Context, identityID string) (Subscription, error)
	Item(ctx context.Context, contentID string) (content.Item, error)
	IsEnrolled(ctx context.Context, identityID, courseID string) (bool, error)
}

// Tracker receives the best-effort access record after an allowed decision.
// Track must not block; tracking.Effect is the production implementation.
type Tracker interface {
	Track(ctx context.Context, a Access)
}

type noopTracker struct{}

func (noopTracker) Track(context.Context, Access) {}
