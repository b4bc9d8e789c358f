package entitlements

import (
	"time"
)

// Reason explains a denial. Allowed decisions carry the zero Reason.
type Reason string

const (
	ReasonSubscriptionExpired Reason = "subscription_expired"
	ReasonNotFound            Reason = "not_found"
	ReasonNotEnrolled         Reason = "not_enrolled"
)

// Subscription is the billing state of one identity.
type Subscription struct {
	IdentityID string     `json:"identity_id"`
	Active     bool       `json:"active"`
	EndDate    *time.Time `json:"end_date,omitempty"`
}

// IsActive reports whether the subscription grants access at now. A
// subscription without an end date is not active.
func (s Subscription) IsActive(now time.Time) bool {
	return s.Active && s.EndDate != nil && now.Before(*s.EndDate)
}

// Decision is the outcome for one (identity, content) pair. It is computed on
// every request and never cached.
type Decision struct {
	IdentityID string `json:"identity_id"`
	ContentID  string `json:"content_id"`
	Allowed    bool   `json:"allowed"`
	Reason     Reason `json:"reason,omitempty"`
}

// Access is one recorded content access.
type Access struct {
	IdentityID string    `json:"identity_id"`
	ContentID  string    `json:"content_id"`
	At         time.Time `json:"at"`
}

// DeniedError carries a denial reason through error returns.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string { return "access denied: " + string(e.Reason) }

// Err returns nil for an allowed decision and a *DeniedError otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}
