package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func storageServer(t *testing.T, objects map[string]bool, fail *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if fail != nil && fail.Load() > 0 {
			fail.Add(-1)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		p := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/sign/media/")
		var body signRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.ExpiresIn != 600 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !objects[p] {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"statusCode":"404","error":"not_found","message":"Object not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(signResponse{SignedURL: "/object/sign/media/" + p + "?token=abc"})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackend_Sign(t *testing.T) {
	srv := storageServer(t, map[string]bool{"c1/v1.mp4": true}, nil)
	b, err := NewHTTPBackend(srv.URL+"/storage/v1", "media", "service", WithClient(srv.Client()))
	require.NoError(t, err)

	u, err := b.Sign(context.Background(), "c1/v1.mp4", 600*time.Second)
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/storage/v1/object/sign/media/c1/v1.mp4?token=abc", u)

	_, err = b.Sign(context.Background(), "c1/v1.webm", 600*time.Second)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHTTPBackend_TransientAndFatal(t *testing.T) {
	var fail atomic.Int32
	fail.Store(1)
	srv := storageServer(t, map[string]bool{"c1/v1.mp4": true}, &fail)
	b, err := NewHTTPBackend(srv.URL+"/storage/v1", "media", "service", WithClient(srv.Client()), WithRateLimit(100, 1))
	require.NoError(t, err)

	_, err = b.Sign(context.Background(), "c1/v1.mp4", 600*time.Second)
	require.ErrorIs(t, err, ErrTransient)

	_, err = b.Sign(context.Background(), "c1/v1.mp4", 600*time.Second)
	require.NoError(t, err)

	bad, err := NewHTTPBackend(srv.URL+"/storage/v1", "media", "wrong", WithClient(srv.Client()))
	require.NoError(t, err)
	_, err = bad.Sign(context.Background(), "c1/v1.mp4", 600*time.Second)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransient))
}

func TestLocalBackend_SignVerifyOpen(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "c1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c1", "v1.webm"), []byte("data"), 0o644))

	b, err := NewLocalBackend(dir, "http://localhost:8080/", []byte("secret"))
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	b.now = func() time.Time { return now }

	_, err = b.Sign(context.Background(), "c1/v1.mp4", time.Minute)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = b.Sign(context.Background(), "c1/../../etc/passwd", time.Minute)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = b.Sign(context.Background(), "c1", time.Minute)
	require.ErrorIs(t, err, ErrNotFound)

	raw, err := b.Sign(context.Background(), "c1/v1.webm", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "/objects/c1/v1.webm", u.Path)

	exp, sig := u.Query().Get("exp"), u.Query().Get("sig")
	require.NoError(t, b.Verify("c1/v1.webm", exp, sig))
	require.ErrorIs(t, b.Verify("c1/v2.webm", exp, sig), ErrBadSignature)
	require.ErrorIs(t, b.Verify("c1/v1.webm", exp, sig+"x"), ErrBadSignature)

	now = now.Add(2 * time.Minute)
	require.ErrorIs(t, b.Verify("c1/v1.webm", exp, sig), ErrExpired)

	f, fi, err := b.Open("c1/v1.webm")
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, int64(4), fi.Size())

	other, err := NewLocalBackend(dir, "", []byte("other-secret"))
	require.NoError(t, err)
	other.now = b.now
	require.ErrorIs(t, other.Verify("c1/v1.webm", exp, sig), ErrBadSignature)
}
