package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// KeySet verifies tokens against a provider's published JWKS. Keys are cached
// and refreshed in the background, so verification does not call the
// provider per request.
type KeySet struct {
	url      string
	cache    *jwk.Cache
	issuer   string
	audience string
	skew     time.Duration
}

// KeySetOpt configures a KeySet.
type KeySetOpt func(*KeySet)

// WithIssuer requires the iss claim to equal issuer.
func WithIssuer(issuer string) KeySetOpt {
	return func(k *KeySet) { k.issuer = issuer }
}

// WithAudience requires aud to contain audience.
func WithAudience(audience string) KeySetOpt {
	return func(k *KeySet) { k.audience = audience }
}

// WithSkew tolerates clock skew on time-based claims.
func WithSkew(d time.Duration) KeySetOpt {
	return func(k *KeySet) { k.skew = d }
}

// NewKeySet registers jwksURL with a refreshing cache and performs the first
// fetch so misconfiguration surfaces at startup.
func NewKeySet(ctx context.Context, jwksURL string, opts ...KeySetOpt) (*KeySet, error) {
	if jwksURL == "" {
		return nil, errors.New("oidc: missing jwks_uri")
	}
	k := &KeySet{url: jwksURL, cache: jwk.NewCache(ctx)}
	for _, opt := range opts {
		opt(k)
	}
	if err := k.cache.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
		return nil, fmt.Errorf("oidc: register jwks: %w", err)
	}
	if _, err := k.cache.Refresh(ctx, jwksURL); err != nil {
		return nil, fmt.Errorf("oidc: initial jwks fetch: %w", err)
	}
	return k, nil
}

// Verify validates signature and time claims and returns the token's claims
// as a JSON document, ready to be decoded into a provider-specific struct.
func (k *KeySet) Verify(ctx context.Context, rawToken string) ([]byte, error) {
	if k == nil {
		return nil, errors.New("oidc: missing key set")
	}
	set, err := k.cache.Get(ctx, k.url)
	if err != nil {
		return nil, fmt.Errorf("oidc: jwks unavailable: %w", err)
	}
	opts := []jwt.ParseOption{
		jwt.WithKeySet(set),
		jwt.WithValidate(true),
		jwt.WithRequiredClaim(jwt.ExpirationKey),
		jwt.WithContext(ctx),
	}
	if k.issuer != "" {
		opts = append(opts, jwt.WithIssuer(k.issuer))
	}
	if k.audience != "" {
		opts = append(opts, jwt.WithAudience(k.audience))
	}
	if k.skew > 0 {
		opts = append(opts, jwt.WithAcceptableSkew(k.skew))
	}
	token, err := jwt.ParseString(rawToken, opts...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(token)
}
