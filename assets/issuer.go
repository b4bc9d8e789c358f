package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/PaulFidika/contentgate/metrics"
	"github.com/PaulFidika/contentgate/objectstore"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL          = 600 * time.Second
	DefaultProbeTimeout = 5 * time.Second
	DefaultMaxRedirects = 5

	// signatures younger than this taken by the Locator are reused
	reuseWindow = 30 * time.Second
)

// Grant is a short-lived URL for one stored object.
type Grant struct {
	ID        string
	URL       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	ContentID string
}

// ExpiresIn is the remaining validity at now, never negative.
func (g Grant) ExpiresIn(now time.Time) time.Duration {
	d := g.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Issuer signs stored objects, checks the signed URL answers, and resolves
// redirects so the client is handed the terminal resource.
type Issuer struct {
	backend      objectstore.Backend
	ttl          time.Duration
	probeTimeout time.Duration
	maxHops      int
	backoff      time.Duration
	client       *http.Client
	now          func() time.Time
	log          logrus.FieldLogger
}

type IssuerOption func(*Issuer)

func WithTTL(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.ttl = d
		}
	}
}

// WithProbeTimeout bounds the whole reachability check including redirects.
func WithProbeTimeout(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		if d > 0 {
			i.probeTimeout = d
		}
	}
}

func WithMaxRedirects(n int) IssuerOption {
	return func(i *Issuer) {
		if n >= 0 {
			i.maxHops = n
		}
	}
}

// WithProbeClient sets the client used for probes. Redirect following is
// always disabled on it; the issuer walks redirects itself.
func WithProbeClient(c *http.Client) IssuerOption {
	return func(i *Issuer) {
		if c != nil {
			cp := *c
			i.client = &cp
		}
	}
}

func WithProbeBackoff(d time.Duration) IssuerOption {
	return func(i *Issuer) { i.backoff = d }
}

func WithIssuerLogger(log logrus.FieldLogger) IssuerOption {
	return func(i *Issuer) { i.log = log }
}

func NewIssuer(backend objectstore.Backend, opts ...IssuerOption) *Issuer {
	i := &Issuer{
		backend:      backend,
		ttl:          DefaultTTL,
		probeTimeout: DefaultProbeTimeout,
		maxHops:      DefaultMaxRedirects,
		backoff:      200 * time.Millisecond,
		now:          time.Now,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.client == nil {
		i.client = &http.Client{Transport: objectstore.NewTransport(i.probeTimeout)}
	}
	i.client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return i
}

// TTL is the fixed grant lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue produces a grant for asset. It fails with ErrAssetNotFound when the
// object is gone and ErrAssetUnreachable for every other storage or probe
// failure.
func (i *Issuer) Issue(ctx context.Context, asset StoredAsset, contentID string) (Grant, error) {
	log := i.log.WithFields(logrus.Fields{"path": asset.Path, "content_id": contentID})
	now := i.now()

	signed, signedAt := asset.signedURL, asset.signedAt
	if signed == "" || now.Sub(signedAt) > reuseWindow {
		var err error
		signed, err = signWithRetry(ctx, i.backend, asset.Path, i.ttl, i.backoff)
		if errors.Is(err, objectstore.ErrNotFound) {
			return Grant{}, ErrAssetNotFound
		}
		if err != nil {
			log.WithError(err).Warn("signing failed")
			return Grant{}, ErrAssetUnreachable
		}
		signedAt = now
	}

	final, err := i.resolve(ctx, signed)
	if err != nil {
		log.WithError(err).Warn("signed url unreachable")
		return Grant{}, ErrAssetUnreachable
	}

	id := uuid.New()
	g := Grant{
		ID:        base58.Encode(id[:]),
		URL:       final,
		IssuedAt:  now,
		ExpiresAt: signedAt.Add(i.ttl),
		ContentID: contentID,
	}
	metrics.GrantsIssued.WithLabelValues(string(asset.Kind)).Inc()
	log.WithFields(logrus.Fields{"grant_id": g.ID, "redirected": final != signed}).Debug("grant issued")
	return g, nil
}

// resolve probes raw under the probe timeout and follows up to maxHops
// redirects, returning the URL that finally answered 2xx.
func (i *Issuer) resolve(ctx context.Context, raw string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, i.probeTimeout)
	defer cancel()
	start := time.Now()

	cur := raw
	for hop := 0; ; hop++ {
		status, loc, err := i.probe(ctx, cur)
		if err != nil {
			metrics.ObserveProbe(false, time.Since(start))
			return "", err
		}
		switch {
		case status >= 200 && status < 300:
			metrics.ObserveProbe(true, time.Since(start))
			return cur, nil
		case isRedirect(status) && loc != "":
			if hop >= i.maxHops {
				metrics.ObserveProbe(false, time.Since(start))
				return "", fmt.Errorf("too many redirects (%d)", hop)
			}
			next, err := resolveLocation(cur, loc)
			if err != nil {
				metrics.ObserveProbe(false, time.Since(start))
				return "", err
			}
			metrics.RedirectsResolved.Inc()
			cur = next
		default:
			metrics.ObserveProbe(false, time.Since(start))
			return "", fmt.Errorf("probe status %d", status)
		}
	}
}

// probe issues one hop, retrying a transient failure once.
func (i *Issuer) probe(ctx context.Context, u string) (int, string, error) {
	status, loc, err := i.probeOnce(ctx, u)
	if !transient(status, err) || ctx.Err() != nil {
		return status, loc, err
	}
	if err := sleep(ctx, i.backoff); err != nil {
		return 0, "", err
	}
	return i.probeOnce(ctx, u)
}

// probeOnce sends HEAD, falling back to a one-byte ranged GET for servers that
// refuse HEAD.
func (i *Issuer) probeOnce(ctx context.Context, u string) (int, string, error) {
	status, loc, err := i.do(ctx, http.MethodHead, u)
	if err == nil && (status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented) {
		return i.do(ctx, http.MethodGet, u)
	}
	return status, loc, err
}

func (i *Issuer) do(ctx context.Context, method, u string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, "", err
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, resp.Header.Get("Location"), nil
}

func transient(status int, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return status >= 500 && status != http.StatusNotImplemented
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

func resolveLocation(cur, loc string) (string, error) {
	base, err := url.Parse(cur)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(loc)
	if err != nil {
		return "", err
	}
	next := base.ResolveReference(ref)
	if next.Scheme != "http" && next.Scheme != "https" {
		return "", fmt.Errorf("redirect to unsupported scheme %q", next.Scheme)
	}
	return next.String(), nil
}
