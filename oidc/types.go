package oidckit

import "errors"

// Metadata is the subset of an identity provider's discovery document the
// verifier needs.
type Metadata struct {
	Issuer           string `json:"issuer"`
	JWKSURI          string `json:"jwks_uri"`
	UserInfoEndpoint string `json:"userinfo_endpoint"`
}

// ErrRejected is returned when the provider refuses the presented token.
var ErrRejected = errors.New("oidc: token rejected by provider")
