package memorystore

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/pelletier/go-toml/v2"
)

type catalogFile struct {
	Items []struct {
		ID        string `toml:"id"`
		ChapterID string `toml:"chapter_id"`
		Kind      string `toml:"kind"`
		IsFree    bool   `toml:"is_free"`
		CourseID  string `toml:"course_id"`
		PublicURL string `toml:"public_url"`
	} `toml:"items"`
	Subscriptions []struct {
		IdentityID string     `toml:"identity_id"`
		Active     bool       `toml:"active"`
		EndDate    *time.Time `toml:"end_date"`
	} `toml:"subscriptions"`
	Enrollments []struct {
		IdentityID string `toml:"identity_id"`
		CourseID   string `toml:"course_id"`
	} `toml:"enrollments"`
}

// LoadCatalogFile reads a development catalog:
//
//	[[items]]
//	id = "v1"
//	chapter_id = "c1"
//	kind = "video"
//	is_free = true
//
//	[[subscriptions]]
//	identity_id = "..."
//	active = true
//	end_date = 2030-01-01T00:00:00Z
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	defer f.Close()
	return ReadCatalog(f)
}

func ReadCatalog(r io.Reader) (*Catalog, error) {
	var doc catalogFile
	if err := toml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := NewCatalog()
	for _, it := range doc.Items {
		kind, ok := content.ParseKind(it.Kind)
		if !ok || it.ID == "" {
			return nil, fmt.Errorf("catalog: item %q: invalid kind %q", it.ID, it.Kind)
		}
		c.PutItem(content.Item{
			ID:        it.ID,
			ChapterID: it.ChapterID,
			Kind:      kind,
			IsFree:    it.IsFree,
			CourseID:  it.CourseID,
			PublicURL: it.PublicURL,
		})
	}
	for _, s := range doc.Subscriptions {
		c.PutSubscription(entitlements.Subscription{IdentityID: s.IdentityID, Active: s.Active, EndDate: s.EndDate})
	}
	for _, e := range doc.Enrollments {
		c.Enroll(e.IdentityID, e.CourseID)
	}
	return c, nil
}
