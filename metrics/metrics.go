// Package metrics holds the prometheus collectors of the delivery pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decisions counts entitlement outcomes by result ("allowed" or the denial reason).
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgate_entitlement_decisions_total",
		Help: "Entitlement decisions by result",
	}, []string{"result"})

	// GrantsIssued counts access grants handed out.
	GrantsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgate_grants_issued_total",
		Help: "Signed access grants issued by content kind",
	}, []string{"kind"})

	// StorageProbes counts candidate signing calls by outcome (hit, miss, error).
	StorageProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgate_storage_probes_total",
		Help: "Storage sign/existence probes by outcome",
	}, []string{"outcome"})

	// ProbeDuration tracks reachability probe latency including redirect hops.
	ProbeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contentgate_probe_duration_seconds",
		Help:    "Reachability probe duration by result",
		Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
	}, []string{"result"})

	// RedirectsResolved counts redirect hops substituted into grants.
	RedirectsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentgate_redirects_resolved_total",
		Help: "Redirect hops followed while resolving signed URLs",
	})

	// Failures counts failed content requests by response class.
	Failures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentgate_request_failures_total",
		Help: "Failed content requests by error code",
	}, []string{"code"})

	// TrackingDropped and TrackingFailed count lost access records.
	TrackingDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentgate_tracking_dropped_total",
		Help: "Access records dropped because the tracking queue was full",
	})
	TrackingFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentgate_tracking_failed_total",
		Help: "Access records the sink failed to persist",
	})

	// RateLimited counts rejected content requests.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentgate_rate_limited_total",
		Help: "Content requests rejected by the per-identity rate limit",
	})
)

// ObserveProbe records one reachability probe.
func ObserveProbe(ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "unreachable"
	}
	ProbeDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveDecision records an entitlement outcome.
func ObserveDecision(allowed bool, reason string) {
	if allowed {
		Decisions.WithLabelValues("allowed").Inc()
		return
	}
	Decisions.WithLabelValues(reason).Inc()
}
