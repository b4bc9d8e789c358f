// Package memorystore provides in-process stores for development and tests.
package memorystore

import (
	"context"
	"sync"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/entitlements"
)

// Catalog is an in-memory entitlements.Store and tracking.Recorder.
type Catalog struct {
	mu       sync.RWMutex
	subs     map[string]entitlements.Subscription
	items    map[string]content.Item
	enrolled map[string]map[string]struct{}
	hits     map[string]int64
}

func NewCatalog() *Catalog {
	return &Catalog{
		subs:     map[string]entitlements.Subscription{},
		items:    map[string]content.Item{},
		enrolled: map[string]map[string]struct{}{},
		hits:     map[string]int64{},
	}
}

func (c *Catalog) PutSubscription(s entitlements.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[s.IdentityID] = s
}

func (c *Catalog) PutItem(it content.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[it.ID] = it
}

func (c *Catalog) Enroll(identityID, courseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.enrolled[identityID]
	if !ok {
		set = map[string]struct{}{}
		c.enrolled[identityID] = set
	}
	set[courseID] = struct{}{}
}

func (c *Catalog) Subscription(_ context.Context, identityID string) (entitlements.Subscription, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.subs[identityID]
	if !ok {
		return entitlements.Subscription{}, entitlements.ErrNotFound
	}
	return s, nil
}

func (c *Catalog) Item(_ context.Context, contentID string) (content.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[contentID]
	if !ok {
		return content.Item{}, entitlements.ErrNotFound
	}
	return it, nil
}

func (c *Catalog) IsEnrolled(_ context.Context, identityID, courseID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.enrolled[identityID][courseID]
	return ok, nil
}

func (c *Catalog) RecordAccess(_ context.Context, a entitlements.Access) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hits[a.IdentityID+"\x00"+a.ContentID]++
	return nil
}

// Hits returns how many accesses were recorded for the pair.
func (c *Catalog) Hits(identityID, contentID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits[identityID+"\x00"+contentID]
}
