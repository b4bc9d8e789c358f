package gategin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PaulFidika/contentgate/adapters/gin/handlers"
	"github.com/PaulFidika/contentgate/assets"
	"github.com/PaulFidika/contentgate/content"
	core "github.com/PaulFidika/contentgate/core"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/identity"
	jwtkit "github.com/PaulFidika/contentgate/jwt"
	"github.com/PaulFidika/contentgate/objectstore"
	memorylimiter "github.com/PaulFidika/contentgate/ratelimit/memory"
	memorystore "github.com/PaulFidika/contentgate/storage/memory"
	gatetest "github.com/PaulFidika/contentgate/testing"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var secret = []byte("router-test-secret-router-test-secret")

const (
	userActive = "11111111-1111-1111-1111-111111111111"
	userLapsed = "22222222-2222-2222-2222-222222222222"
)

type originBackend struct{ base string }

func (b originBackend) Sign(_ context.Context, p string, _ time.Duration) (string, error) {
	switch p {
	case "c1/v1.mp4", "c2/d1.pdf":
		return b.base + "/" + p + "?token=t", nil
	}
	return "", objectstore.ErrNotFound
}

func newRouter(t *testing.T, rl *memorylimiter.Limiter) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".pdf") {
			w.Header().Set("Content-Type", "application/pdf")
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2026 15:04:05 GMT")
			if r.Method == http.MethodGet {
				_, _ = w.Write([]byte("%PDF-1.7 router"))
			}
		}
	}))
	t.Cleanup(origin.Close)

	end := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-time.Hour)
	cat := memorystore.NewCatalog()
	cat.PutSubscription(entitlements.Subscription{IdentityID: userActive, Active: true, EndDate: &end})
	cat.PutSubscription(entitlements.Subscription{IdentityID: userLapsed, Active: true, EndDate: &past})
	cat.PutItem(content.Item{ID: "v1", ChapterID: "c1", Kind: content.KindVideo, IsFree: true})
	cat.PutItem(content.Item{ID: "d1", ChapterID: "c2", Kind: content.KindPDF, IsFree: true})

	verifier, err := identity.NewVerifier(identity.Options{Keys: jwtkit.VerificationKeys{HMACSecret: secret}, Logger: log})
	require.NoError(t, err)
	backend := originBackend{base: origin.URL}
	svc, err := core.NewService(core.Options{
		Verifier:       verifier,
		Checker:        entitlements.NewChecker(cat, entitlements.WithLogger(log)),
		Locator:        assets.NewLocator(backend, assets.WithLocatorLogger(log)),
		Issuer:         assets.NewIssuer(backend, assets.WithProbeClient(origin.Client()), assets.WithIssuerLogger(log)),
		DocumentClient: origin.Client(),
		Logger:         log,
	})
	require.NoError(t, err)

	opts := RouterOptions{Service: svc, CookieName: "sb-access-token", Logger: log}
	if rl != nil {
		opts.RateLimiter = rl
	}
	return NewRouter(opts)
}

func bearer(userID string) string {
	return "Bearer " + gatetest.SharedSecretToken(secret, userID, "", time.Hour)
}

func do(r *gin.Engine, target string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestContentGET_VideoGrant(t *testing.T) {
	r := newRouter(t, nil)
	w := do(r, "/content/video?id=v1&chapterId=c1", map[string]string{"Authorization": bearer(userActive)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body struct {
		URL              string `json:"url"`
		ExpiresInSeconds int64  `json:"expiresInSeconds"`
		ContentID        string `json:"contentId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.True(t, strings.HasSuffix(body.URL, "/c1/v1.mp4?token=t"))
	require.InDelta(t, 600, body.ExpiresInSeconds, 1)
	require.Equal(t, "v1", body.ContentID)
}

func TestContentGET_SessionCookie(t *testing.T) {
	r := newRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/content/video?id=v1&chapterId=c1", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: strings.TrimPrefix(bearer(userActive), "Bearer ")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestContentGET_Failures(t *testing.T) {
	r := newRouter(t, nil)
	cases := []struct {
		name   string
		target string
		auth   string
		status int
		code   string
	}{
		{"no credential", "/content/video?id=v1&chapterId=c1", "", 401, core.CodeUnauthenticated},
		{"bad token", "/content/video?id=v1&chapterId=c1", "Bearer nope", 401, core.CodeUnauthenticated},
		{"lapsed subscription", "/content/video?id=v1&chapterId=c1", bearer(userLapsed), 403, core.CodeSubscriptionInactive},
		{"unknown item", "/content/video?id=zz&chapterId=c1", bearer(userActive), 404, core.CodeNotAccessible},
		{"kind mismatch", "/content/pdf?id=v1&chapterId=c1", bearer(userActive), 404, core.CodeNotAccessible},
		{"unknown kind", "/content/audio?id=v1&chapterId=c1", bearer(userActive), 400, core.CodeInvalidRequest},
		{"missing chapter", "/content/video?id=v1", bearer(userActive), 400, core.CodeInvalidRequest},
	}
	for _, tc := range cases {
		hdr := map[string]string{}
		if tc.auth != "" {
			hdr["Authorization"] = tc.auth
		}
		w := do(r, tc.target, hdr)
		require.Equal(t, tc.status, w.Code, tc.name)
		require.Equal(t, tc.code, errorBody(t, w)["error"], tc.name)
	}
}

func TestContentGET_LocalizedMessage(t *testing.T) {
	r := newRouter(t, nil)
	w := do(r, "/content/video?id=v1&chapterId=c1&lang=es", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, "el acceso expiró, inicia sesión de nuevo", errorBody(t, w)["message"])

	w = do(r, "/content/video?id=v1&chapterId=c1", nil)
	require.Equal(t, "access expired, please sign in again", errorBody(t, w)["message"])
}

func TestContentGET_PDFConditional(t *testing.T) {
	r := newRouter(t, nil)
	auth := map[string]string{"Authorization": bearer(userActive)}
	w := do(r, "/content/pdf?id=d1&chapterId=c2", auth)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, "%PDF-1.7 router", w.Body.String())
	require.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(w.Header().Get("Cache-Control"), "private, max-age="))
	require.Equal(t, "Mon, 02 Jan 2026 15:04:05 GMT", w.Header().Get("Last-Modified"))
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = do(r, "/content/pdf?id=d1&chapterId=c2", map[string]string{"Authorization": auth["Authorization"], "If-None-Match": etag})
	require.Equal(t, http.StatusNotModified, w.Code)
	require.Empty(t, w.Body.String())
	require.Equal(t, etag, w.Header().Get("ETag"))
}

func TestContentGET_RateLimited(t *testing.T) {
	rl := memorylimiter.New(map[string]memorylimiter.Limit{"content": {Limit: 1, Window: time.Hour}})
	r := newRouter(t, rl)
	auth := map[string]string{"Authorization": bearer(userActive)}
	require.Equal(t, http.StatusOK, do(r, "/content/video?id=v1&chapterId=c1", auth).Code)
	w := do(r, "/content/video?id=v1&chapterId=c1", auth)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, core.CodeRateLimited, errorBody(t, w)["error"])
}

func TestHealthAndMetrics(t *testing.T) {
	r := newRouter(t, nil)
	require.Equal(t, http.StatusOK, do(r, "/healthz", nil).Code)
	w := do(r, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "contentgate_")
}

func TestHealth_ReportsFailingDependency(t *testing.T) {
	r := gin.New()
	r.GET("/healthz", handlers.HandleHealthGET(map[string]handlers.HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}))
	w := do(r, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.JSONEq(t, `{"status":"degraded","failing":["redis"]}`, w.Body.String())
	require.NotContains(t, w.Body.String(), "refused")
}

func TestRouter_PanicAnswersInternalError(t *testing.T) {
	r := newRouter(t, nil)
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := do(r, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.Equal(t, core.CodeInternal, errorBody(t, w)["error"])
}

func TestContentGET_BadRequestIsNotCached(t *testing.T) {
	r := newRouter(t, nil)
	w := do(r, "/content/video?id=v1", map[string]string{"Authorization": bearer(userActive)})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	require.Equal(t, core.CodeInvalidRequest, errorBody(t, w)["error"])
}
