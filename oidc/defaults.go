package oidckit

import (
	"context"
	"net/http"
	"strings"
)

// Endpoints locates the verification endpoints of a provider.
type Endpoints struct {
	JWKSURL     string
	UserInfoURL string
	Issuer      string
}

// DefaultsFor returns the well-known endpoint layout for a provider rooted at
// baseURL. Generic OIDC providers are resolved through discovery instead.
func DefaultsFor(provider, baseURL string) (Endpoints, bool) {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return Endpoints{}, false
	}
	switch provider {
	case "supabase":
		return Endpoints{
			JWKSURL:     base + "/auth/v1/.well-known/jwks.json",
			UserInfoURL: base + "/auth/v1/user",
			Issuer:      base + "/auth/v1",
		}, true
	default:
		return Endpoints{}, false
	}
}

// ResolveEndpoints uses DefaultsFor when the provider has a fixed layout and
// OIDC discovery otherwise.
func ResolveEndpoints(ctx context.Context, client *http.Client, provider, baseURL string) (Endpoints, error) {
	if ep, ok := DefaultsFor(provider, baseURL); ok {
		return ep, nil
	}
	md, err := Discover(ctx, client, baseURL)
	if err != nil {
		return Endpoints{}, err
	}
	return Endpoints{JWKSURL: md.JWKSURI, UserInfoURL: md.UserInfoEndpoint, Issuer: md.Issuer}, nil
}
