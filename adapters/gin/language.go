package gategin

import (
	"strings"

	"github.com/PaulFidika/contentgate/lang"
	"github.com/gin-gonic/gin"
)

// LanguageConfig controls how the message language of a request is chosen.
// Zero values fall back to the lang catalogs, a "lang" query parameter and a
// "lang" cookie.
type LanguageConfig struct {
	Supported  []string
	Default    string
	QueryParam string
	CookieName string
}

const ctxKeyLanguage = "contentgate.language"

// languagePicker is the resolved, immutable form of a LanguageConfig.
type languagePicker struct {
	allowed map[string]bool
	def     string
	query   string
	cookie  string
}

func newLanguagePicker(cfg *LanguageConfig) languagePicker {
	var c LanguageConfig
	if cfg != nil {
		c = *cfg
	}
	supported := c.Supported
	if len(supported) == 0 {
		supported = lang.Supported()
	}
	p := languagePicker{
		allowed: make(map[string]bool, len(supported)),
		def:     lang.DefaultLanguage,
		query:   firstNonEmpty(c.QueryParam, "lang"),
		cookie:  firstNonEmpty(c.CookieName, "lang"),
	}
	for _, s := range supported {
		if code := languageCode(s); code != "" {
			p.allowed[code] = true
		}
	}
	if d := languageCode(c.Default); d != "" && p.allowed[d] {
		p.def = d
	}
	return p
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

// languageCode accepts a tag like "es-MX" and returns "es", or "" when the
// primary subtag is not two letters.
func languageCode(tag string) string {
	code := lang.Base(tag)
	if len(code) != 2 || code[0] < 'a' || code[0] > 'z' || code[1] < 'a' || code[1] > 'z' {
		return ""
	}
	return code
}

func (p languagePicker) accept(tag string) (string, bool) {
	code := languageCode(tag)
	return code, code != "" && p.allowed[code]
}

// pick resolves the language in order: query parameter, cookie,
// Accept-Language (in header order, q-values ignored), default.
func (p languagePicker) pick(c *gin.Context) string {
	if code, ok := p.accept(c.Query(p.query)); ok {
		return code
	}
	if v, err := c.Cookie(p.cookie); err == nil {
		if code, ok := p.accept(v); ok {
			return code
		}
	}
	for _, part := range strings.Split(c.GetHeader("Accept-Language"), ",") {
		tag, _, _ := strings.Cut(part, ";")
		if code, ok := p.accept(tag); ok {
			return code
		}
	}
	return p.def
}

// LanguageMiddleware stores the chosen language on the gin context and on the
// request context, where lang.MessageFor finds it.
func LanguageMiddleware(cfg *LanguageConfig) gin.HandlerFunc {
	p := newLanguagePicker(cfg)
	return func(c *gin.Context) {
		code := p.pick(c)
		c.Set(ctxKeyLanguage, code)
		c.Request = c.Request.WithContext(lang.WithLanguage(c.Request.Context(), code))
		c.Next()
	}
}
