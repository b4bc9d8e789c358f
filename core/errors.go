package core

import (
	"errors"
	"net/http"

	"github.com/PaulFidika/contentgate/assets"
	"github.com/PaulFidika/contentgate/entitlements"
	"github.com/PaulFidika/contentgate/identity"
)

// Error codes returned to clients in {"error": code}.
const (
	CodeUnauthenticated      = "unauthenticated"
	CodeSubscriptionInactive = "subscription_inactive"
	CodeNotAccessible        = "not_accessible"
	CodeUnavailable          = "unavailable"
	CodeInvalidRequest       = "invalid_request"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal_error"
)

// ErrInvalidRequest marks malformed request parameters.
var ErrInvalidRequest = errors.New("invalid request")

// Failure is the client-facing class of a pipeline error.
type Failure struct {
	Status int
	Code   string
}

// Classify maps a pipeline error to its client-facing class. Not-found,
// forged references and missing enrollment share one class so responses do not
// reveal which check failed.
func Classify(err error) Failure {
	var denied *entitlements.DeniedError
	switch {
	case err == nil:
		return Failure{Status: http.StatusOK}
	case errors.Is(err, identity.ErrUnauthenticated):
		return Failure{http.StatusUnauthorized, CodeUnauthenticated}
	case errors.As(err, &denied):
		if denied.Reason == entitlements.ReasonSubscriptionExpired {
			return Failure{http.StatusForbidden, CodeSubscriptionInactive}
		}
		return Failure{http.StatusNotFound, CodeNotAccessible}
	case errors.Is(err, assets.ErrAssetNotFound):
		return Failure{http.StatusNotFound, CodeNotAccessible}
	case errors.Is(err, assets.ErrAssetUnreachable), errors.Is(err, ErrDocumentTooLarge):
		return Failure{http.StatusBadGateway, CodeUnavailable}
	case errors.Is(err, ErrInvalidRequest):
		return Failure{http.StatusBadRequest, CodeInvalidRequest}
	}
	return Failure{http.StatusInternalServerError, CodeInternal}
}
