// Package content holds the catalog vocabulary shared by the delivery
// pipeline: content kinds, catalog items and the public reference clients
// use to address them.
package content

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

// Kind is the media class of a catalog item.
type Kind string

const (
	KindVideo Kind = "video"
	KindPDF   Kind = "pdf"
)

// ParseKind accepts the kind segment of a content request.
func ParseKind(s string) (Kind, bool) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindVideo:
		return KindVideo, true
	case KindPDF:
		return KindPDF, true
	}
	return "", false
}

// Ref is the (content id, chapter id) pair a client asks for.
type Ref struct {
	ID        string
	ChapterID string
}

// Item is a catalog row. The catalog is owned elsewhere; this package only reads it.
type Item struct {
	ID        string
	ChapterID string
	Kind      Kind
	IsFree    bool
	CourseID  string
	// PublicURL is the URL the catalog serves the item under, e.g.
	// "/content/video?id=v1&chapterId=c1" or "/video/c1/v1.mp4".
	PublicURL string
}

// PublicRef derives the reference an item is published under. Items without a
// PublicURL are addressed by their own row ids.
func (it Item) PublicRef() (Ref, bool) {
	raw := strings.TrimSpace(it.PublicURL)
	if raw == "" {
		return Ref{ID: it.ID, ChapterID: it.ChapterID}, true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Ref{}, false
	}
	q := u.Query()
	if id := q.Get("id"); id != "" {
		return Ref{ID: id, ChapterID: q.Get("chapterId")}, true
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segs) < 2 {
		return Ref{}, false
	}
	file := segs[len(segs)-1]
	file = strings.TrimSuffix(file, path.Ext(file))
	return Ref{ID: file, ChapterID: segs[len(segs)-2]}, true
}

// Matches reports whether ref addresses this item.
func (it Item) Matches(ref Ref) bool {
	pub, ok := it.PublicRef()
	if !ok {
		return false
	}
	return pub.ID == ref.ID && pub.ChapterID == ref.ChapterID
}

var reSegment = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidSegment reports whether s is safe to use as one storage path segment.
func ValidSegment(s string) bool {
	return reSegment.MatchString(s)
}
