package oidckit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

// UserInfoClient performs the provider's "who am I" call with the caller's
// own access token. It is the verification path of last resort: one network
// round trip per request.
type UserInfoClient struct {
	endpoint string
	apiKey   string
	base     *http.Client
}

// UserInfoOpt configures a UserInfoClient.
type UserInfoOpt func(*UserInfoClient)

// WithAPIKey sends key in the apikey header (hosted auth gateways require it).
func WithAPIKey(key string) UserInfoOpt {
	return func(c *UserInfoClient) { c.apiKey = key }
}

// WithHTTPClient sets the transport used underneath the oauth2 client.
func WithHTTPClient(hc *http.Client) UserInfoOpt {
	return func(c *UserInfoClient) { c.base = hc }
}

func NewUserInfoClient(endpoint string, opts ...UserInfoOpt) (*UserInfoClient, error) {
	if endpoint == "" {
		return nil, errors.New("oidc: missing userinfo endpoint")
	}
	c := &UserInfoClient{endpoint: endpoint, base: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the who-am-I URL.
func (c *UserInfoClient) Endpoint() string { return c.endpoint }

// Fetch returns the raw JSON profile for accessToken. A 401/403 from the
// provider yields ErrRejected.
func (c *UserInfoClient) Fetch(ctx context.Context, accessToken string) ([]byte, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: userinfo request: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrRejected
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("oidc: userinfo failed: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
}
