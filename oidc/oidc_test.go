package oidckit_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	oidckit "github.com/PaulFidika/contentgate/oidc"
	gatetest "github.com/PaulFidika/contentgate/testing"
)

func TestDiscover(t *testing.T) {
	issuer := gatetest.NewTestIssuer()
	defer issuer.Close()

	md, err := oidckit.Discover(context.Background(), nil, issuer.URL()+"/")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if md.JWKSURI != issuer.JWKSURL() || md.UserInfoEndpoint != issuer.UserInfoURL() {
		t.Fatalf("unexpected metadata %+v", md)
	}
}

func TestDiscover_IssuerMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"issuer": "https://evil.example", "jwks_uri": "https://evil.example/jwks"})
	}))
	defer srv.Close()

	if _, err := oidckit.Discover(context.Background(), srv.Client(), srv.URL); err == nil {
		t.Fatal("expected issuer mismatch error")
	}
}

func TestResolveEndpoints(t *testing.T) {
	ep, err := oidckit.ResolveEndpoints(context.Background(), nil, "supabase", "https://proj.supabase.co/")
	if err != nil {
		t.Fatal(err)
	}
	if ep.UserInfoURL != "https://proj.supabase.co/auth/v1/user" || ep.Issuer != "https://proj.supabase.co/auth/v1" {
		t.Fatalf("unexpected endpoints %+v", ep)
	}

	issuer := gatetest.NewTestIssuer()
	defer issuer.Close()
	ep, err = oidckit.ResolveEndpoints(context.Background(), nil, "oidc", issuer.URL())
	if err != nil {
		t.Fatal(err)
	}
	if ep.JWKSURL != issuer.JWKSURL() {
		t.Fatalf("discovery not used: %+v", ep)
	}
}

func TestKeySet_Verify(t *testing.T) {
	issuer := gatetest.NewTestIssuer()
	defer issuer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ks, err := oidckit.NewKeySet(ctx, issuer.JWKSURL(), oidckit.WithIssuer(issuer.URL()))
	if err != nil {
		t.Fatalf("NewKeySet: %v", err)
	}

	doc, err := ks.Verify(ctx, issuer.Token("user-1", "one@example.com"))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(doc, &claims); err != nil {
		t.Fatal(err)
	}
	if claims["sub"] != "user-1" || claims["email"] != "one@example.com" {
		t.Fatalf("unexpected claims %v", claims)
	}
	if _, ok := claims["exp"].(float64); !ok {
		t.Fatalf("exp should stay numeric, got %T", claims["exp"])
	}

	if _, err := ks.Verify(ctx, issuer.Token("user-1", "", gatetest.Expired())); err == nil {
		t.Fatal("expected expired token to fail")
	}
	if _, err := ks.Verify(ctx, issuer.Token("user-1", "", gatetest.NoExpiry())); err == nil {
		t.Fatal("expected token without exp to fail")
	}

	other := gatetest.NewTestIssuer()
	defer other.Close()
	if _, err := ks.Verify(ctx, other.Token("user-1", "")); err == nil {
		t.Fatal("expected token from another key to fail")
	}
}

func TestNewKeySet_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	if _, err := oidckit.NewKeySet(context.Background(), srv.URL+"/jwks.json"); err == nil {
		t.Fatal("expected startup failure")
	}
}

func TestUserInfoClient_Fetch(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1"}`))
	}))
	defer srv.Close()

	c, err := oidckit.NewUserInfoClient(srv.URL, oidckit.WithAPIKey("anon"), oidckit.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	if c.Endpoint() != srv.URL {
		t.Fatalf("endpoint %q", c.Endpoint())
	}
	body, err := c.Fetch(context.Background(), "good")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(body) != `{"id":"u1"}` || gotKey != "anon" {
		t.Fatalf("body=%s apikey=%q", body, gotKey)
	}
	if _, err := c.Fetch(context.Background(), "bad"); !errors.Is(err, oidckit.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}
