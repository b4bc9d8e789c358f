// Package lang carries the request language and the user-facing message
// catalogs of the content API and the player.
package lang

import (
	"context"
	"strings"
)

type languageKey struct{}

// Base reduces a language tag such as "es-MX" or "pt_BR" to its primary
// subtag in lower case.
func Base(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i >= 0 {
		tag = tag[:i]
	}
	return tag
}

// WithLanguage records the language resolved for a request. Empty values are
// not stored.
func WithLanguage(ctx context.Context, language string) context.Context {
	if language = Base(language); language == "" {
		return ctx
	}
	return context.WithValue(ctx, languageKey{}, language)
}

// LanguageFromContext returns the language stored by WithLanguage.
func LanguageFromContext(ctx context.Context) (string, bool) {
	language, _ := ctx.Value(languageKey{}).(string)
	return language, language != ""
}
