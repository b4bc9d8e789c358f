// Package pgstore reads the catalog, subscription and enrollment state from
// postgres and persists access counters.
package pgstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/tracking"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements entitlements.Store, tracking.Recorder and
// tracking.CountSink against the content schema.
type Store struct {
	pg     *pgxpool.Pool
	schema string
}

func NewStore(pg *pgxpool.Pool, schema string) *Store {
	s := strings.TrimSpace(schema)
	if s == "" {
		s = "content"
	}
	return &Store{pg: pg, schema: s}
}

func (s *Store) profilesTable() string    { return s.schema + ".profiles" }
func (s *Store) itemsTable() string       { return s.schema + ".items" }
func (s *Store) enrollmentsTable() string { return s.schema + ".enrollments" }
func (s *Store) countersTable() string    { return s.schema + ".access_counters" }

// Subscription returns the billing state of identityID. Identity ids that are
// not UUIDs cannot have a profile row and report entitlements.ErrNotFound.
func (s *Store) Subscription(ctx context.Context, identityID string) (entitlements.Subscription, error) {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return entitlements.Subscription{}, entitlements.ErrNotFound
	}
	sub := entitlements.Subscription{IdentityID: identityID}
	err = s.pg.QueryRow(ctx, `SELECT subscription_active, subscription_end_date FROM `+s.profilesTable()+` WHERE id=$1 LIMIT 1`, id).
		Scan(&sub.Active, &sub.EndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return entitlements.Subscription{}, entitlements.ErrNotFound
	}
	if err != nil {
		return entitlements.Subscription{}, err
	}
	return sub, nil
}

func (s *Store) Item(ctx context.Context, contentID string) (content.Item, error) {
	var it content.Item
	var kind string
	err := s.pg.QueryRow(ctx, `SELECT id, chapter_id, kind, is_free, course_id, public_url FROM `+s.itemsTable()+` WHERE id=$1 LIMIT 1`, contentID).
		Scan(&it.ID, &it.ChapterID, &kind, &it.IsFree, &it.CourseID, &it.PublicURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return content.Item{}, entitlements.ErrNotFound
	}
	if err != nil {
		return content.Item{}, err
	}
	it.Kind = content.Kind(kind)
	return it, nil
}

func (s *Store) IsEnrolled(ctx context.Context, identityID, courseID string) (bool, error) {
	id, err := uuid.Parse(identityID)
	if err != nil || courseID == "" {
		return false, nil
	}
	var ok bool
	err = s.pg.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+s.enrollmentsTable()+` WHERE identity_id=$1 AND course_id=$2)`, id, courseID).Scan(&ok)
	return ok, err
}

// RecordAccess increments the counter for one access.
func (s *Store) RecordAccess(ctx context.Context, a entitlements.Access) error {
	return s.AddAccessCounts(ctx, []tracking.Count{{IdentityID: a.IdentityID, ContentID: a.ContentID, Hits: 1, LastAt: a.At}})
}

// AddAccessCounts upserts counts in one batch. Counts for non-UUID identities
// are skipped.
func (s *Store) AddAccessCounts(ctx context.Context, counts []tracking.Count) error {
	q := `INSERT INTO ` + s.countersTable() + ` (identity_id, content_id, hits, first_at, last_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (identity_id, content_id) DO UPDATE
SET hits = ` + s.countersTable() + `.hits + EXCLUDED.hits,
    last_at = GREATEST(` + s.countersTable() + `.last_at, EXCLUDED.last_at)`

	batch := &pgx.Batch{}
	for _, c := range counts {
		id, err := uuid.Parse(c.IdentityID)
		if err != nil || c.Hits <= 0 {
			continue
		}
		at := c.LastAt
		if at.IsZero() {
			at = time.Now()
		}
		batch.Queue(q, id, c.ContentID, c.Hits, at)
	}
	if batch.Len() == 0 {
		return nil
	}
	return s.pg.SendBatch(ctx, batch).Close()
}

// AccessCount returns the stored hit count for one identity/content pair.
func (s *Store) AccessCount(ctx context.Context, identityID, contentID string) (int64, error) {
	id, err := uuid.Parse(identityID)
	if err != nil {
		return 0, nil
	}
	var hits int64
	err = s.pg.QueryRow(ctx, `SELECT hits FROM `+s.countersTable()+` WHERE identity_id=$1 AND content_id=$2`, id, contentID).Scan(&hits)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return hits, err
}
