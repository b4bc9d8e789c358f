package jwtkit

import (
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// PublicJWK wraps an RSA public key as a signing JWK with kid and alg set.
func PublicJWK(pub *rsa.PublicKey, kid string, alg jwa.SignatureAlgorithm) (jwk.Key, error) {
	key, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, fmt.Errorf("jwk: %w", err)
	}
	for name, v := range map[string]any{
		jwk.KeyIDKey:     kid,
		jwk.AlgorithmKey: alg,
		jwk.KeyUsageKey:  jwk.ForSignature,
	} {
		if err := key.Set(name, v); err != nil {
			return nil, fmt.Errorf("jwk: set %s: %w", name, err)
		}
	}
	return key, nil
}

// PublishedKeys renders the RSA verification keys as a key set, ordered by kid.
// The HMAC secret is never published.
func (k VerificationKeys) PublishedKeys() (jwk.Set, error) {
	set := jwk.NewSet()
	for _, kid := range k.KeyIDs() {
		key, err := PublicJWK(k.RSA[kid], kid, jwa.RS256)
		if err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}
