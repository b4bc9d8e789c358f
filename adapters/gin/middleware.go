package gategin

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PaulFidika/contentgate/adapters/ginutil"
	"github.com/PaulFidika/contentgate/identity"
	"github.com/gin-gonic/gin"
)

const ctxKeyIdentity = "contentgate.identity"

// DefaultSessionCookie is read when no cookie name is configured.
const DefaultSessionCookie = "sb-access-token"

// Authenticator verifies a presented credential. core.Service implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (identity.Identity, error)
}

// AuthRequired verifies the caller and attaches the identity to the request
// context. Missing or rejected credentials get a 401.
func AuthRequired(a Authenticator, cookieName string) gin.HandlerFunc {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = DefaultSessionCookie
	}
	return func(c *gin.Context) {
		cred := Credential(c.Request, cookieName)
		if cred == "" {
			ginutil.Unauthorized(c)
			return
		}
		id, err := a.Authenticate(c.Request.Context(), cred)
		if err != nil {
			ginutil.Unauthorized(c)
			return
		}
		c.Set(ctxKeyIdentity, id)
		c.Request = c.Request.WithContext(identity.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// CurrentIdentity returns the identity attached by AuthRequired.
func CurrentIdentity(c *gin.Context) (identity.Identity, bool) {
	if v, ok := c.Get(ctxKeyIdentity); ok {
		if id, ok := v.(identity.Identity); ok && id.ID != "" {
			return id, true
		}
	}
	return identity.FromContext(c.Request.Context())
}

// Credential extracts the session token: the bearer header first, then the
// session cookie. Cookies split into name.0, name.1, ... are joined.
func Credential(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	raw := cookieValue(r, cookieName)
	if raw == "" {
		return ""
	}
	return tokenFromCookie(raw)
}

func cookieValue(r *http.Request, name string) string {
	if ck, err := r.Cookie(name); err == nil && ck.Value != "" {
		return ck.Value
	}
	var b strings.Builder
	for i := 0; ; i++ {
		ck, err := r.Cookie(name + "." + strconv.Itoa(i))
		if err != nil {
			break
		}
		b.WriteString(ck.Value)
	}
	return b.String()
}

// tokenFromCookie accepts a bare token, a JSON session object, or either form
// behind a "base64-" prefix.
func tokenFromCookie(v string) string {
	if u, err := url.QueryUnescape(v); err == nil {
		v = u
	}
	if enc, ok := strings.CutPrefix(v, "base64-"); ok {
		dec, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(enc, "="))
		if err != nil {
			dec, err = base64.StdEncoding.DecodeString(enc)
			if err != nil {
				return ""
			}
		}
		v = string(dec)
	}
	v = strings.TrimSpace(v)
	switch {
	case strings.HasPrefix(v, "{"):
		var sess struct {
			AccessToken string `json:"access_token"`
		}
		if json.Unmarshal([]byte(v), &sess) != nil {
			return ""
		}
		return sess.AccessToken
	case strings.HasPrefix(v, "["):
		var parts []*string
		if json.Unmarshal([]byte(v), &parts) != nil || len(parts) == 0 || parts[0] == nil {
			return ""
		}
		return *parts[0]
	}
	return v
}
