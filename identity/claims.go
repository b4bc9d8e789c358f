package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Provider tags which identity provider shaped a claim set.
type Provider string

const (
	ProviderSupabase Provider = "supabase"
	ProviderOIDC     Provider = "oidc"
)

// ParseProvider accepts a configured provider name; empty means supabase.
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderSupabase:
		return ProviderSupabase, nil
	case ProviderOIDC:
		return ProviderOIDC, nil
	}
	return "", fmt.Errorf("identity: unknown provider %q", s)
}

// SupabaseClaims is the session token payload issued by Supabase Auth.
type SupabaseClaims struct {
	jwt.RegisteredClaims
	Email       string         `json:"email,omitempty"`
	Phone       string         `json:"phone,omitempty"`
	Role        string         `json:"role,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
	AAL         string         `json:"aal,omitempty"`
	IsAnonymous bool           `json:"is_anonymous,omitempty"`
	AppMetadata map[string]any `json:"app_metadata,omitempty"`
}

// OIDCClaims is a standard OIDC ID/access token or userinfo payload.
type OIDCClaims struct {
	jwt.RegisteredClaims
	Email             string   `json:"email,omitempty"`
	EmailVerified     FlexBool `json:"email_verified,omitempty"`
	Name              string   `json:"name,omitempty"`
	PreferredUsername string   `json:"preferred_username,omitempty"`
}

// FlexBool decodes booleans some providers send as strings ("true").
type FlexBool struct {
	Set   bool
	Value bool
}

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool{Set: true, Value: t}
	case string:
		if strings.EqualFold(t, "true") {
			*b = FlexBool{Set: true, Value: true}
		} else if strings.EqualFold(t, "false") {
			*b = FlexBool{Set: true, Value: false}
		}
	}
	return nil
}

func (b FlexBool) MarshalJSON() ([]byte, error) {
	if !b.Set {
		return []byte("null"), nil
	}
	return json.Marshal(b.Value)
}

// ClaimSet is a tagged variant: Provider names which field is populated.
type ClaimSet struct {
	Provider Provider
	Supabase *SupabaseClaims
	OIDC     *OIDCClaims
}

// supabaseUser is the /auth/v1/user response.
type supabaseUser struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Phone       string         `json:"phone"`
	Role        string         `json:"role"`
	IsAnonymous bool           `json:"is_anonymous"`
	AppMetadata map[string]any `json:"app_metadata"`
}

var errNoSubject = errors.New("identity: claims carry no subject")

// newClaims returns an empty claims value of the provider's shape.
func (p Provider) newClaims() jwt.Claims {
	if p == ProviderOIDC {
		return &OIDCClaims{}
	}
	return &SupabaseClaims{}
}

// FromClaims maps a verified token's claims to an Identity.
func FromClaims(p Provider, claims jwt.Claims) (Identity, error) {
	switch c := claims.(type) {
	case *SupabaseClaims:
		return mapSupabase(c)
	case *OIDCClaims:
		return mapOIDC(c)
	}
	return Identity{}, fmt.Errorf("identity: no mapping for %s claims %T", p, claims)
}

// DecodeClaims decodes a JSON claim document (from a JWKS-verified token) in
// the provider's shape and maps it.
func DecodeClaims(p Provider, doc []byte) (Identity, error) {
	claims := p.newClaims()
	if err := json.Unmarshal(doc, claims); err != nil {
		return Identity{}, fmt.Errorf("identity: decode claims: %w", err)
	}
	return FromClaims(p, claims)
}

// DecodeUserInfo maps a who-am-I response body.
func DecodeUserInfo(p Provider, body []byte) (Identity, error) {
	if p == ProviderSupabase {
		var u supabaseUser
		if err := json.Unmarshal(body, &u); err != nil {
			return Identity{}, fmt.Errorf("identity: decode user: %w", err)
		}
		return mapSupabase(&SupabaseClaims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: u.ID},
			Email:            u.Email,
			Phone:            u.Phone,
			Role:             u.Role,
			IsAnonymous:      u.IsAnonymous,
			AppMetadata:      u.AppMetadata,
		})
	}
	return DecodeClaims(p, body)
}

func mapSupabase(c *SupabaseClaims) (Identity, error) {
	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, errNoSubject
	}
	// The project's anon/service keys are also signed JWTs; neither is a user.
	if c.Role == "anon" || c.Role == "service_role" {
		return Identity{}, fmt.Errorf("identity: %s key is not a user session", c.Role)
	}
	return Identity{
		ID:     c.Subject,
		Email:  strptr(c.Email),
		Claims: ClaimSet{Provider: ProviderSupabase, Supabase: c},
	}, nil
}

func mapOIDC(c *OIDCClaims) (Identity, error) {
	if strings.TrimSpace(c.Subject) == "" {
		return Identity{}, errNoSubject
	}
	return Identity{
		ID:     c.Subject,
		Email:  strptr(c.Email),
		Claims: ClaimSet{Provider: ProviderOIDC, OIDC: c},
	}, nil
}

func strptr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
