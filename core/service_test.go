package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PaulFidika/contentgate/assets"
	"github.com/PaulFidika/contentgate/content"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/identity"
	jwtkit "github.com/PaulFidika/contentgate/jwt"
	"github.com/PaulFidika/contentgate/objectstore"
	memorystore "github.com/PaulFidika/contentgate/storage/memory"
	gatetest "github.com/PaulFidika/contentgate/testing"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var secret = []byte("core-test-secret-core-test-secret-0123")

const (
	userActive = "11111111-1111-1111-1111-111111111111"
	userLapsed = "22222222-2222-2222-2222-222222222222"
)

type fixture struct {
	svc     *Service
	catalog *memorystore.Catalog
	origin  *httptest.Server
}

// staticBackend signs any path present under the origin server.
type staticBackend struct {
	base    string
	present map[string]bool
}

func (b staticBackend) Sign(_ context.Context, p string, _ time.Duration) (string, error) {
	if !b.present[p] {
		return "", objectstore.ErrNotFound
	}
	return b.base + "/" + p + "?token=t", nil
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".pdf") {
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2026 15:04:05 GMT")
			if r.Method == http.MethodHead {
				return
			}
			_, _ = w.Write([]byte("%PDF-1.7 test"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(origin.Close)

	end := time.Now().Add(24 * time.Hour)
	past := time.Now().Add(-time.Hour)
	cat := memorystore.NewCatalog()
	cat.PutSubscription(entitlements.Subscription{IdentityID: userActive, Active: true, EndDate: &end})
	cat.PutSubscription(entitlements.Subscription{IdentityID: userLapsed, Active: true, EndDate: &past})
	cat.PutItem(content.Item{ID: "v1", ChapterID: "c1", Kind: content.KindVideo, IsFree: true, CourseID: "k1"})
	cat.PutItem(content.Item{ID: "v2", ChapterID: "c1", Kind: content.KindVideo, CourseID: "k1"})
	cat.PutItem(content.Item{ID: "v3", ChapterID: "c1", Kind: content.KindVideo, IsFree: true, CourseID: "k1"})
	cat.PutItem(content.Item{ID: "d1", ChapterID: "c2", Kind: content.KindPDF, IsFree: true, CourseID: "k1"})

	backend := staticBackend{base: origin.URL, present: map[string]bool{"c1/v1.webm": true, "c2/d1.pdf": true, "c1/v2.mp4": true}}
	verifier, err := identity.NewVerifier(identity.Options{Keys: jwtkit.VerificationKeys{HMACSecret: secret}, Logger: log})
	require.NoError(t, err)

	svc, err := NewService(Options{
		Verifier:       verifier,
		Checker:        entitlements.NewChecker(cat, entitlements.WithLogger(log)),
		Locator:        assets.NewLocator(backend, assets.WithLocatorLogger(log)),
		Issuer:         assets.NewIssuer(backend, assets.WithProbeClient(origin.Client()), assets.WithIssuerLogger(log)),
		DocumentClient: origin.Client(),
		Logger:         log,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, catalog: cat, origin: origin}
}

func token(userID string) string {
	return gatetest.SharedSecretToken(secret, userID, "", time.Hour)
}

func TestOpen_VideoGrant(t *testing.T) {
	f := newFixture(t)
	g, err := f.svc.Open(context.Background(), token(userActive), content.Ref{ID: "v1", ChapterID: "c1"}, content.KindVideo)
	require.NoError(t, err)
	require.Equal(t, f.origin.URL+"/c1/v1.webm?token=t", g.URL)
	require.Equal(t, "v1", g.ContentID)
	require.InDelta(t, 600, g.ExpiresIn(time.Now()).Seconds(), 2)
}

func TestOpen_FailureClasses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		cred string
		ref  content.Ref
		want Failure
	}{
		{"no credential", "", content.Ref{ID: "v1", ChapterID: "c1"}, Failure{401, CodeUnauthenticated}},
		{"garbage credential", "abc", content.Ref{ID: "v1", ChapterID: "c1"}, Failure{401, CodeUnauthenticated}},
		{"lapsed subscription on free item", token(userLapsed), content.Ref{ID: "v1", ChapterID: "c1"}, Failure{403, CodeSubscriptionInactive}},
		{"not enrolled", token(userActive), content.Ref{ID: "v2", ChapterID: "c1"}, Failure{404, CodeNotAccessible}},
		{"unknown item", token(userActive), content.Ref{ID: "zz", ChapterID: "c1"}, Failure{404, CodeNotAccessible}},
		{"forged chapter", token(userActive), content.Ref{ID: "v1", ChapterID: "c9"}, Failure{404, CodeNotAccessible}},
		{"no stored object", token(userActive), content.Ref{ID: "v3", ChapterID: "c1"}, Failure{404, CodeNotAccessible}},
		{"bad segment", token(userActive), content.Ref{ID: "v1", ChapterID: "../c1"}, Failure{400, CodeInvalidRequest}},
	}
	for _, tc := range cases {
		_, err := f.svc.Open(ctx, tc.cred, tc.ref, content.KindVideo)
		require.Error(t, err, tc.name)
		require.Equal(t, tc.want, Classify(err), tc.name)
	}
}

func TestOpen_EnrolledPaidItem(t *testing.T) {
	f := newFixture(t)
	f.catalog.Enroll(userActive, "k1")
	g, err := f.svc.Open(context.Background(), token(userActive), content.Ref{ID: "v2", ChapterID: "c1"}, content.KindVideo)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(strings.Split(g.URL, "?")[0], "/c1/v2.mp4"))
	require.Equal(t, int64(1), f.catalog.Hits(userActive, "v2"))
}

func TestFetchDocument_ETagAndNotModified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.Open(ctx, token(userActive), content.Ref{ID: "d1", ChapterID: "c2"}, content.KindPDF)
	require.NoError(t, err)

	doc, err := f.svc.FetchDocument(ctx, g, "")
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.7 test", string(doc.Body))
	require.NotEmpty(t, doc.ETag)
	require.Equal(t, 2026, doc.LastModified.Year())

	again, err := f.svc.FetchDocument(ctx, g, doc.ETag)
	require.NoError(t, err)
	require.True(t, again.NotModified)
	require.Nil(t, again.Body)
	require.Equal(t, doc.ETag, again.ETag)
}

func TestFetchDocument_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.svc.maxDoc = 4
	g, err := f.svc.Open(context.Background(), token(userActive), content.Ref{ID: "d1", ChapterID: "c2"}, content.KindPDF)
	require.NoError(t, err)
	_, err = f.svc.FetchDocument(context.Background(), g, "")
	require.ErrorIs(t, err, ErrDocumentTooLarge)
	require.Equal(t, Failure{502, CodeUnavailable}, Classify(err))
}

func TestClassify(t *testing.T) {
	require.Equal(t, Failure{502, CodeUnavailable}, Classify(assets.ErrAssetUnreachable))
	require.Equal(t, Failure{500, CodeInternal}, Classify(errors.New("db down")))
	require.Equal(t, Failure{404, CodeNotAccessible}, Classify(&entitlements.DeniedError{Reason: entitlements.ReasonNotFound}))
}

func TestETagMatches(t *testing.T) {
	require.True(t, ETagMatches(`"a", W/"b"`, `"b"`))
	require.True(t, ETagMatches("*", `"x"`))
	require.False(t, ETagMatches(`"a"`, `"b"`))
	require.False(t, ETagMatches("", `"b"`))
}
