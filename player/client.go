package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaulFidika/contentgate/content"
)

const defaultMaxBody = 512 << 20

// APIClient fetches grants from the content API using the credential held in
// a SessionStore.
type APIClient struct {
	base    string
	http    *http.Client
	store   SessionStore
	key     string
	maxBody int64
	now     func() time.Time
}

type ClientOption func(*APIClient)

func WithHTTPClient(c *http.Client) ClientOption { return func(a *APIClient) { a.http = c } }

// WithMaxBody caps in-memory downloads.
func WithMaxBody(n int64) ClientOption { return func(a *APIClient) { a.maxBody = n } }

// NewAPIClient targets the API at base; key selects the credential in store.
func NewAPIClient(base string, store SessionStore, key string, opts ...ClientOption) (*APIClient, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("player: invalid api base %q", base)
	}
	if store == nil {
		return nil, errors.New("player: session store required")
	}
	c := &APIClient{
		base:    u.String(),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
		key:     key,
		maxBody: defaultMaxBody,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type grantResponse struct {
	URL              string `json:"url"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
	ContentID        string `json:"contentId"`
}

// FetchGrant requests req from the API. A 401 drops the stored credential.
func (c *APIClient) FetchGrant(ctx context.Context, req Request) (Grant, error) {
	cred, ok, err := c.store.Get(ctx, c.key)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: session store: %v", ErrUnavailable, err)
	}
	if !ok || !cred.Usable(c.now()) {
		return Grant{}, ErrUnauthenticated
	}

	q := url.Values{}
	q.Set("id", req.ContentID)
	q.Set("chapterId", req.ChapterID)
	endpoint := c.base + "/content/" + url.PathEscape(string(req.Kind)) + "?" + q.Encode()
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	hreq.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	res, err := c.http.Do(hreq)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		_ = c.store.Invalidate(ctx, c.key)
		return Grant{}, ErrUnauthenticated
	case res.StatusCode == http.StatusForbidden || res.StatusCode == http.StatusNotFound:
		return Grant{}, ErrDenied
	case res.StatusCode < 200 || res.StatusCode > 299:
		return Grant{}, fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}

	if req.Kind == content.KindPDF {
		data, err := readCapped(res.Body, c.maxBody)
		if err != nil {
			return Grant{}, err
		}
		return Grant{
			ContentID:   req.ContentID,
			Data:        data,
			ContentType: res.Header.Get("Content-Type"),
			ExpiresIn:   maxAge(res.Header.Get("Cache-Control")),
		}, nil
	}

	var body grantResponse
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&body); err != nil {
		return Grant{}, fmt.Errorf("%w: decode grant: %v", ErrUnavailable, err)
	}
	if body.URL == "" {
		return Grant{}, fmt.Errorf("%w: empty grant url", ErrUnavailable)
	}
	return Grant{
		URL:       body.URL,
		ContentID: body.ContentID,
		ExpiresIn: time.Duration(body.ExpiresInSeconds) * time.Second,
	}, nil
}

// FetchBody downloads a signed URL. The URL carries its own authorization.
func (c *APIClient) FetchBody(ctx context.Context, rawURL string) ([]byte, string, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	res, err := c.http.Do(hreq)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: status %d", ErrUnavailable, res.StatusCode)
	}
	data, err := readCapped(res.Body, c.maxBody)
	if err != nil {
		return nil, "", err
	}
	return data, res.Header.Get("Content-Type"), nil
}

func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: body exceeds %d bytes", ErrUnavailable, limit)
	}
	return data, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		v, ok := strings.CutPrefix(strings.TrimSpace(strings.ToLower(part)), "max-age=")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}
