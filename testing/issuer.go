// Package testing runs a fake identity provider for tests of services built
// on contentgate. It publishes JWKS, an OIDC discovery document and the two
// who-am-I endpoint shapes the verifier understands, and signs tokens that
// validate against them.
//
//	idp := testing.NewTestIssuer()
//	defer idp.Close()
//	tok := idp.Token("user-123", "test@example.com")
package testing

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"time"

	gatehttp "github.com/PaulFidika/contentgate/adapters/http"
	jwtkit "github.com/PaulFidika/contentgate/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	pathJWKS         = "/.well-known/jwks.json"
	pathDiscovery    = "/.well-known/openid-configuration"
	pathUserInfo     = "/userinfo"
	pathSupabaseUser = "/auth/v1/user"
	defaultTestKeyID = "test-key-1"
	defaultTestAud   = "test-app"
	defaultTokenTTL  = time.Hour
	supabaseUserRole = "authenticated"
)

// TestIssuer is an httptest server acting as the identity provider.
type TestIssuer struct {
	server        *httptest.Server
	signer        *jwtkit.RSASigner
	audience      string
	userInfoCalls atomic.Int64
}

func NewTestIssuer() *TestIssuer { return NewTestIssuerWithAudience(defaultTestAud) }

// NewTestIssuerWithAudience issues tokens for audience. It panics when the
// key cannot be generated.
func NewTestIssuerWithAudience(audience string) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, defaultTestKeyID)
	if err != nil {
		panic("testing: rsa signer: " + err.Error())
	}
	jwks, err := gatehttp.JWKSHandler(jwtkit.VerificationKeys{
		RSA: map[string]*rsa.PublicKey{signer.KID(): signer.PublicKey()},
	})
	if err != nil {
		panic("testing: jwks: " + err.Error())
	}

	ti := &TestIssuer{signer: signer, audience: audience}
	mux := http.NewServeMux()
	mux.Handle(pathJWKS, jwks)
	mux.HandleFunc(pathDiscovery, ti.discovery)
	mux.HandleFunc(pathUserInfo, ti.whoAmI)
	mux.HandleFunc(pathSupabaseUser, ti.whoAmI)
	ti.server = httptest.NewServer(mux)
	return ti
}

func (ti *TestIssuer) URL() string         { return ti.server.URL }
func (ti *TestIssuer) JWKSURL() string     { return ti.server.URL + pathJWKS }
func (ti *TestIssuer) UserInfoURL() string { return ti.server.URL + pathUserInfo }
func (ti *TestIssuer) Audience() string    { return ti.audience }

// Signer exposes the signing key, e.g. to configure local verification.
func (ti *TestIssuer) Signer() *jwtkit.RSASigner { return ti.signer }

// UserInfoCalls counts requests to either who-am-I endpoint.
func (ti *TestIssuer) UserInfoCalls() int64 { return ti.userInfoCalls.Load() }

func (ti *TestIssuer) Close() { ti.server.Close() }

func (ti *TestIssuer) discovery(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"issuer":            ti.URL(),
		"jwks_uri":          ti.JWKSURL(),
		"userinfo_endpoint": ti.UserInfoURL(),
	})
}

// whoAmI answers with the claims of a valid bearer token: {"id","email","role"}
// on the Supabase path, the raw claim set on the OIDC path.
func (ti *TestIssuer) whoAmI(w http.ResponseWriter, r *http.Request) {
	ti.userInfoCalls.Add(1)
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	claims := jwt.MapClaims{}
	pub := ti.signer.PublicKey()
	if _, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) { return pub, nil },
		jwt.WithValidMethods([]string{ti.signer.Algorithm()})); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var body any = claims
	if r.URL.Path == pathSupabaseUser {
		body = map[string]any{"id": claims["sub"], "email": claims["email"], "role": supabaseUserRole}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// TokenOption adjusts the claims of a minted token.
type TokenOption func(jwt.MapClaims)

// Extra merges claims over the defaults.
func Extra(claims map[string]any) TokenOption {
	return func(c jwt.MapClaims) {
		for k, v := range claims {
			c[k] = v
		}
	}
}

// Expired backdates exp by an hour.
func Expired() TokenOption {
	return func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }
}

// NoExpiry drops exp entirely.
func NoExpiry() TokenOption {
	return func(c jwt.MapClaims) { delete(c, "exp") }
}

// Token signs an RS256 token for subject, issued by this server for its
// audience and valid for an hour unless an option says otherwise.
func (ti *TestIssuer) Token(subject, email string, opts ...TokenOption) string {
	claims := jwtkit.SessionClaims(subject, email, ti.URL(), []string{ti.audience}, defaultTokenTTL)
	for _, o := range opts {
		o(claims)
	}
	return mustSign(ti.signer, claims)
}

// SharedSecretToken signs a Supabase-style HS256 session token.
func SharedSecretToken(secret []byte, subject, email string, ttl time.Duration, opts ...TokenOption) string {
	signer, err := jwtkit.NewHMACSigner(secret)
	if err != nil {
		panic("testing: " + err.Error())
	}
	claims := jwtkit.SessionClaims(subject, email, "", []string{supabaseUserRole}, ttl)
	claims["role"] = supabaseUserRole
	for _, o := range opts {
		o(claims)
	}
	return mustSign(signer, claims)
}

func mustSign(s jwtkit.Signer, claims jwt.MapClaims) string {
	tok, err := s.Sign(context.Background(), claims)
	if err != nil {
		panic("testing: sign: " + err.Error())
	}
	return tok
}
