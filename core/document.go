package core

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PaulFidika/contentgate/assets"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

// ErrDocumentTooLarge is returned when a document exceeds the configured cap.
var ErrDocumentTooLarge = errors.New("document too large")

// Document is a fetched PDF body with its cache validators. NotModified
// documents carry no body.
type Document struct {
	Body         []byte
	ContentType  string
	ETag         string
	LastModified time.Time
	NotModified  bool
}

// FetchDocument retrieves the object behind g. ifNoneMatch is forwarded
// upstream and also checked against the computed ETag.
func (s *Service) FetchDocument(ctx context.Context, g assets.Grant, ifNoneMatch string) (*Document, error) {
	ctx, span := s.tracer.Start(ctx, "content.fetch_document")
	defer span.End()
	log := s.log.WithFields(logrus.Fields{"grant_id": g.ID, "content_id": g.ContentID})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.URL, nil)
	if err != nil {
		return nil, err
	}
	if ifNoneMatch != "" {
		req.Header.Set("If-None-Match", ifNoneMatch)
	}
	resp, err := s.docs.Do(req)
	if err != nil {
		log.WithError(err).Warn("document fetch failed")
		return nil, assets.ErrAssetUnreachable
	}
	defer resp.Body.Close()

	lastMod, _ := http.ParseTime(resp.Header.Get("Last-Modified"))
	if resp.StatusCode == http.StatusNotModified {
		return &Document{ETag: resp.Header.Get("ETag"), LastModified: lastMod, NotModified: true}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithField("status", resp.StatusCode).Warn("document fetch rejected")
		return nil, assets.ErrAssetUnreachable
	}
	if resp.ContentLength > s.maxDoc {
		return nil, ErrDocumentTooLarge
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxDoc+1))
	if err != nil {
		log.WithError(err).Warn("document read failed")
		return nil, assets.ErrAssetUnreachable
	}
	if int64(len(body)) > s.maxDoc {
		return nil, ErrDocumentTooLarge
	}

	etag := resp.Header.Get("ETag")
	if etag == "" {
		sum := sha256.Sum256(body)
		etag = fmt.Sprintf("%q", base58.Encode(sum[:]))
	}
	doc := &Document{
		Body:         body,
		ContentType:  "application/pdf",
		ETag:         etag,
		LastModified: lastMod,
	}
	if ETagMatches(ifNoneMatch, etag) {
		doc.Body = nil
		doc.NotModified = true
	}
	return doc, nil
}

// ETagMatches implements the weak comparison of If-None-Match.
func ETagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" || etag == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, part := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(part), "W/") == want {
			return true
		}
	}
	return false
}
