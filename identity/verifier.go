package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwtkit "github.com/PaulFidika/contentgate/jwt"
	oidckit "github.com/PaulFidika/contentgate/oidc"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// Options selects and configures a verifier.
type Options struct {
	Provider Provider
	// Keys verifies tokens locally with a pre-shared secret or public keys.
	Keys jwtkit.VerificationKeys
	// KeySet verifies tokens against a cached provider JWKS.
	KeySet *oidckit.KeySet
	// UserInfo is the remote who-am-I fallback.
	UserInfo *oidckit.UserInfoClient

	Issuer   string
	Audience string
	Skew     time.Duration
	Logger   logrus.FieldLogger
}

// NewVerifier picks the cheapest available path: pre-shared keys, then a
// cached JWKS, then the provider's who-am-I call.
func NewVerifier(o Options) (Verifier, error) {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	switch {
	case !o.Keys.Empty():
		return NewLocalVerifier(o)
	case o.KeySet != nil:
		return &KeySetVerifier{provider: o.Provider, keys: o.KeySet, log: o.Logger}, nil
	case o.UserInfo != nil:
		return &RemoteVerifier{provider: o.Provider, client: o.UserInfo, log: o.Logger}, nil
	}
	return nil, errors.New("identity: no verification key or identity provider configured")
}

// LocalVerifier checks signatures in-process. No network call.
type LocalVerifier struct {
	provider Provider
	keys     jwtkit.VerificationKeys
	parser   *jwt.Parser
	log      logrus.FieldLogger
}

func NewLocalVerifier(o Options) (*LocalVerifier, error) {
	if o.Keys.Empty() {
		return nil, errors.New("identity: local verifier needs a secret or public key")
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	popts := []jwt.ParserOption{
		jwt.WithValidMethods(o.Keys.Algorithms()),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(o.Skew),
	}
	if o.Issuer != "" {
		popts = append(popts, jwt.WithIssuer(o.Issuer))
	}
	if o.Audience != "" {
		popts = append(popts, jwt.WithAudience(o.Audience))
	}
	return &LocalVerifier{
		provider: o.Provider,
		keys:     o.Keys,
		parser:   jwt.NewParser(popts...),
		log:      o.Logger,
	}, nil
}

func (v *LocalVerifier) Verify(_ context.Context, credential string) (Identity, error) {
	raw := strings.TrimSpace(credential)
	if raw == "" {
		return Identity{}, reject(v.log, "local", errors.New("empty credential"))
	}
	claims := v.provider.newClaims()
	if _, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc); err != nil {
		return Identity{}, reject(v.log, "local", err)
	}
	id, err := FromClaims(v.provider, claims)
	if err != nil {
		return Identity{}, reject(v.log, "local", err)
	}
	return id, nil
}

func (v *LocalVerifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.keys.HMACSecret) == 0 {
			return nil, errors.New("no hmac secret configured")
		}
		return v.keys.HMACSecret, nil
	case *jwt.SigningMethodRSA:
		kid, _ := t.Header["kid"].(string)
		pub, ok := v.keys.PublicKey(kid)
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return pub, nil
	}
	return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
}

// KeySetVerifier checks signatures against the provider's cached JWKS.
type KeySetVerifier struct {
	provider Provider
	keys     *oidckit.KeySet
	log      logrus.FieldLogger
}

func (v *KeySetVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	raw := strings.TrimSpace(credential)
	if raw == "" {
		return Identity{}, reject(v.log, "jwks", errors.New("empty credential"))
	}
	doc, err := v.keys.Verify(ctx, raw)
	if err != nil {
		return Identity{}, reject(v.log, "jwks", err)
	}
	id, err := DecodeClaims(v.provider, doc)
	if err != nil {
		return Identity{}, reject(v.log, "jwks", err)
	}
	return id, nil
}

// RemoteVerifier delegates to the provider's who-am-I endpoint.
type RemoteVerifier struct {
	provider Provider
	client   *oidckit.UserInfoClient
	log      logrus.FieldLogger
}

func (v *RemoteVerifier) Verify(ctx context.Context, credential string) (Identity, error) {
	raw := strings.TrimSpace(credential)
	if raw == "" {
		return Identity{}, reject(v.log, "remote", errors.New("empty credential"))
	}
	body, err := v.client.Fetch(ctx, raw)
	if err != nil {
		return Identity{}, reject(v.log, "remote", err)
	}
	id, err := DecodeUserInfo(v.provider, body)
	if err != nil {
		return Identity{}, reject(v.log, "remote", err)
	}
	return id, nil
}

func reject(log logrus.FieldLogger, path string, cause error) error {
	log.WithFields(logrus.Fields{"path": path, "cause": cause.Error()}).Debug("credential rejected")
	return ErrUnauthenticated
}
