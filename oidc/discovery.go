package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	discoveryPath     = "/.well-known/openid-configuration"
	maxDiscoveryBytes = 1 << 20
)

// Discover loads the provider's discovery document. The document's issuer
// must equal issuer up to a trailing slash; an empty one is filled in.
func Discover(ctx context.Context, client *http.Client, issuer string) (*Metadata, error) {
	want := strings.TrimRight(strings.TrimSpace(issuer), "/")
	if want == "" {
		return nil, errors.New("oidc: issuer is empty")
	}
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, want+discoveryPath, nil)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("oidc: discovery returned %s", res.Status)
	}

	var md Metadata
	if err := json.NewDecoder(io.LimitReader(res.Body, maxDiscoveryBytes)).Decode(&md); err != nil {
		return nil, fmt.Errorf("oidc: decode discovery: %w", err)
	}
	switch got := strings.TrimRight(md.Issuer, "/"); {
	case got == "":
		md.Issuer = want
	case got != want:
		return nil, fmt.Errorf("oidc: discovery issuer %q does not match %q", md.Issuer, want)
	}
	if md.JWKSURI == "" && md.UserInfoEndpoint == "" {
		return nil, errors.New("oidc: discovery lists neither jwks_uri nor userinfo_endpoint")
	}
	return &md, nil
}
