// Package assets locates stored objects for catalog items and turns them into
// short-lived access grants.
package assets

import (
	"context"
	"errors"
	"time"

	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/metrics"
	"github.com/PaulFidika/contentgate/objectstore"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrAssetNotFound means no candidate object exists for the item.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrAssetUnreachable means storage failed or the signed URL did not
	// answer. Details are logged, never carried in the error.
	ErrAssetUnreachable = errors.New("asset unreachable")
)

// DefaultVideoExtensions is the probe order for video, most common first.
var DefaultVideoExtensions = []string{".mp4", ".webm", ".mov", ".avi"}

// StoredAsset is the physical object behind a catalog item.
type StoredAsset struct {
	Path string
	Kind content.Kind

	// signature obtained while probing, reused by the Issuer while fresh
	signedURL string
	signedAt  time.Time
}

// Locator resolves a content reference to a stored object.
type Locator struct {
	backend  objectstore.Backend
	exts     []string
	ttl      time.Duration
	parallel bool
	backoff  time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

type LocatorOption func(*Locator)

// WithExtensions replaces the video probe order.
func WithExtensions(exts ...string) LocatorOption {
	return func(l *Locator) {
		if len(exts) > 0 {
			l.exts = append([]string(nil), exts...)
		}
	}
}

// WithParallelProbing probes all candidates concurrently. The result is still
// the first hit in probe order.
func WithParallelProbing(on bool) LocatorOption {
	return func(l *Locator) { l.parallel = on }
}

// WithSignTTL sets the lifetime of signatures taken while probing; it should
// match the Issuer TTL so they can be reused.
func WithSignTTL(d time.Duration) LocatorOption {
	return func(l *Locator) {
		if d > 0 {
			l.ttl = d
		}
	}
}

// WithRetryBackoff sets the pause before retrying a transient storage failure.
func WithRetryBackoff(d time.Duration) LocatorOption {
	return func(l *Locator) { l.backoff = d }
}

func WithLocatorLogger(log logrus.FieldLogger) LocatorOption {
	return func(l *Locator) { l.log = log }
}

func NewLocator(backend objectstore.Backend, opts ...LocatorOption) *Locator {
	l := &Locator{
		backend: backend,
		exts:    DefaultVideoExtensions,
		ttl:     DefaultTTL,
		backoff: 200 * time.Millisecond,
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the stored object for ref. PDFs live at a fixed path and are
// not probed; videos are probed in extension order and the first hit wins.
func (l *Locator) Locate(ctx context.Context, ref content.Ref, kind content.Kind) (StoredAsset, error) {
	if !content.ValidSegment(ref.ID) || !content.ValidSegment(ref.ChapterID) {
		return StoredAsset{}, ErrAssetNotFound
	}
	base := ref.ChapterID + "/" + ref.ID
	switch kind {
	case content.KindPDF:
		return StoredAsset{Path: base + ".pdf", Kind: kind}, nil
	case content.KindVideo:
	default:
		return StoredAsset{}, ErrAssetNotFound
	}
	if l.parallel {
		return l.locateParallel(ctx, base)
	}
	for _, ext := range l.exts {
		p := base + ext
		signed, err := l.probe(ctx, p)
		switch {
		case err == nil:
			return StoredAsset{Path: p, Kind: kind, signedURL: signed, signedAt: l.now()}, nil
		case errors.Is(err, objectstore.ErrNotFound):
			continue
		default:
			return StoredAsset{}, l.unreachable(p, err)
		}
	}
	return StoredAsset{}, ErrAssetNotFound
}

type probeResult struct {
	signed string
	at     time.Time
	err    error
}

func (l *Locator) locateParallel(ctx context.Context, base string) (StoredAsset, error) {
	results := make([]probeResult, len(l.exts))
	cancels := make([]context.CancelFunc, len(l.exts))
	ctxs := make([]context.Context, len(l.exts))
	for i := range l.exts {
		ctxs[i], cancels[i] = context.WithCancel(ctx)
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	g, _ := errgroup.WithContext(ctx)
	for i, ext := range l.exts {
		g.Go(func() error {
			signed, err := l.probe(ctxs[i], base+ext)
			results[i] = probeResult{signed: signed, at: l.now(), err: err}
			if err == nil || !errors.Is(err, objectstore.ErrNotFound) {
				// later candidates cannot change the outcome
				for j := i + 1; j < len(cancels); j++ {
					cancels[j]()
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, r := range results {
		p := base + l.exts[i]
		switch {
		case r.err == nil:
			return StoredAsset{Path: p, Kind: content.KindVideo, signedURL: r.signed, signedAt: r.at}, nil
		case errors.Is(r.err, objectstore.ErrNotFound):
			continue
		default:
			return StoredAsset{}, l.unreachable(p, r.err)
		}
	}
	return StoredAsset{}, ErrAssetNotFound
}

// probe signs p, retrying a transient failure once.
func (l *Locator) probe(ctx context.Context, p string) (string, error) {
	signed, err := signWithRetry(ctx, l.backend, p, l.ttl, l.backoff)
	switch {
	case err == nil:
		metrics.StorageProbes.WithLabelValues("hit").Inc()
	case errors.Is(err, objectstore.ErrNotFound):
		metrics.StorageProbes.WithLabelValues("miss").Inc()
	default:
		metrics.StorageProbes.WithLabelValues("error").Inc()
	}
	return signed, err
}

func (l *Locator) unreachable(p string, err error) error {
	l.log.WithFields(logrus.Fields{"path": p}).WithError(err).Warn("storage probe failed")
	return ErrAssetUnreachable
}

func signWithRetry(ctx context.Context, b objectstore.Backend, p string, ttl, backoff time.Duration) (string, error) {
	signed, err := b.Sign(ctx, p, ttl)
	if err == nil || !errors.Is(err, objectstore.ErrTransient) {
		return signed, err
	}
	if err := sleep(ctx, backoff); err != nil {
		return "", err
	}
	return b.Sign(ctx, p, ttl)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
