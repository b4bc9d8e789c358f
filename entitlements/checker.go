// Package entitlements decides whether a verified identity may access a
// catalog item.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/identity"
	"github.com/sirupsen/logrus"
)

// Checker evaluates entitlement decisions against a Store.
type Checker struct {
	store   Store
	tracker Tracker
	now     func() time.Time
	log     logrus.FieldLogger
}

// Option configures a Checker.
type Option func(*Checker)

// WithTracker sets the side channel that records allowed accesses.
func WithTracker(t Tracker) Option {
	return func(c *Checker) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Checker) { c.now = now }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Checker) { c.log = l }
}

func NewChecker(store Store, opts ...Option) *Checker {
	c := &Checker{
		store:   store,
		tracker: noopTracker{},
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check decides whether id may access the item addressed by ref. The
// subscription is checked before the catalog, so an inactive subscriber is
// denied every item, free ones included. A missing item, a kind mismatch and a
// reference that does not match the item's published identity are all
// ReasonNotFound. The returned error is reserved for store failures.
func (c *Checker) Check(ctx context.Context, id identity.Identity, ref content.Ref, kind content.Kind) (Decision, content.Item, error) {
	d := Decision{IdentityID: id.ID, ContentID: ref.ID}
	now := c.now()

	sub, err := c.store.Subscription(ctx, id.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		sub = Subscription{IdentityID: id.ID}
	case err != nil:
		return d, content.Item{}, fmt.Errorf("entitlements: load subscription: %w", err)
	}
	if !sub.IsActive(now) {
		return c.deny(d, ReasonSubscriptionExpired), content.Item{}, nil
	}

	item, err := c.store.Item(ctx, ref.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return c.deny(d, ReasonNotFound), content.Item{}, nil
	case err != nil:
		return d, content.Item{}, fmt.Errorf("entitlements: load item: %w", err)
	}
	if item.Kind != kind || !item.Matches(ref) {
		return c.deny(d, ReasonNotFound), content.Item{}, nil
	}

	if !item.IsFree {
		enrolled, err := c.store.IsEnrolled(ctx, id.ID, item.CourseID)
		if err != nil {
			return d, content.Item{}, fmt.Errorf("entitlements: load enrollment: %w", err)
		}
		if !enrolled {
			return c.deny(d, ReasonNotEnrolled), content.Item{}, nil
		}
	}

	d.Allowed = true
	c.tracker.Track(ctx, Access{IdentityID: id.ID, ContentID: item.ID, At: now})
	return d, item, nil
}

func (c *Checker) deny(d Decision, r Reason) Decision {
	d.Reason = r
	c.log.WithFields(logrus.Fields{
		"identity_id": d.IdentityID,
		"content_id":  d.ContentID,
		"reason":      r,
	}).Info("content access denied")
	return d
}
