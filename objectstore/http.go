package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// HTTPBackend signs URLs through a Supabase-style storage API:
//
//	POST {base}/object/sign/{bucket}/{path}  {"expiresIn": seconds}
//	200 {"signedURL": "/object/sign/...?token=..."}
type HTTPBackend struct {
	base       string
	bucket     string
	serviceKey string
	client     *http.Client
	limiter    *rate.Limiter
}

// HTTPOption configures an HTTPBackend.
type HTTPOption func(*HTTPBackend)

func WithClient(c *http.Client) HTTPOption {
	return func(b *HTTPBackend) {
		if c != nil {
			b.client = c
		}
	}
}

// WithRateLimit caps outbound sign calls per second. rps <= 0 disables it.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(b *HTTPBackend) {
		if rps <= 0 {
			b.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewHTTPBackend(baseURL, bucket, serviceKey string, opts ...HTTPOption) (*HTTPBackend, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" || bucket == "" {
		return nil, fmt.Errorf("objectstore: base url and bucket required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("objectstore: bad base url: %w", err)
	}
	b := &HTTPBackend{
		base:       base,
		bucket:     bucket,
		serviceKey: serviceKey,
		client:     NewHTTPClient(0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

type signRequest struct {
	ExpiresIn int64 `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

type errorResponse struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

func (b *HTTPBackend) Sign(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: throttled: %v", ErrTransient, err)
		}
	}
	body, _ := json.Marshal(signRequest{ExpiresIn: int64(ttl / time.Second)})
	endpoint := b.base + "/object/sign/" + url.PathEscape(b.bucket) + "/" + escapePath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.serviceKey)
		req.Header.Set("apikey", b.serviceKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: sign %s: %v", ErrTransient, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || isNotFoundBody(resp.StatusCode, raw):
		return "", ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: sign %s: %s", ErrTransient, path, resp.Status)
	default:
		return "", fmt.Errorf("objectstore: sign %s: %s", path, resp.Status)
	}

	var out signResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.SignedURL == "" {
		return "", fmt.Errorf("objectstore: sign %s: malformed response", path)
	}
	return b.resolve(out.SignedURL)
}

// resolve turns the API's relative signed path into an absolute URL.
func (b *HTTPBackend) resolve(signed string) (string, error) {
	ref, err := url.Parse(signed)
	if err != nil {
		return "", fmt.Errorf("objectstore: bad signed url: %w", err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(b.base + "/")
	if err != nil {
		return "", err
	}
	return base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/"), RawQuery: ref.RawQuery}).String(), nil
}

// isNotFoundBody detects the storage API's habit of answering a missing object
// with 400 and a not_found error body.
func isNotFoundBody(status int, raw []byte) bool {
	if status != http.StatusBadRequest {
		return false
	}
	var e errorResponse
	if json.Unmarshal(raw, &e) != nil {
		return false
	}
	if e.StatusCode == "404" {
		return true
	}
	s := strings.ToLower(e.Error + " " + e.Message)
	return strings.Contains(s, "not_found") || strings.Contains(s, "not found")
}

func escapePath(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
