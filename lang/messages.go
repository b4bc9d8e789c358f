package lang

import "context"

// MessageKey names a user-facing message.
type MessageKey string

const (
	MsgAccessExpired MessageKey = "access_expired"
	MsgUnavailable   MessageKey = "unavailable"
	MsgNotAccessible MessageKey = "not_accessible"
	MsgSubscription  MessageKey = "subscription_inactive"
	MsgRateLimited   MessageKey = "rate_limited"
)

const DefaultLanguage = "en"

var catalog = map[string]map[MessageKey]string{
	"en": {
		MsgAccessExpired: "access expired, please sign in again",
		MsgUnavailable:   "unable to load, try again later",
		MsgNotAccessible: "this content is not available",
		MsgSubscription:  "your subscription is not active",
		MsgRateLimited:   "too many requests, slow down",
	},
	"es": {
		MsgAccessExpired: "el acceso expiró, inicia sesión de nuevo",
		MsgUnavailable:   "no se pudo cargar, inténtalo más tarde",
		MsgNotAccessible: "este contenido no está disponible",
		MsgSubscription:  "tu suscripción no está activa",
		MsgRateLimited:   "demasiadas solicitudes, espera un momento",
	},
}

// Supported lists the languages with a message catalog.
func Supported() []string { return []string{"en", "es"} }

// Message returns the text for key in language, falling back to English.
func Message(language string, key MessageKey) string {
	if m, ok := catalog[Base(language)]; ok {
		if s, ok := m[key]; ok {
			return s
		}
	}
	return catalog[DefaultLanguage][key]
}

// MessageFor uses the language attached to ctx.
func MessageFor(ctx context.Context, key MessageKey) string {
	l, _ := LanguageFromContext(ctx)
	return Message(l, key)
}
