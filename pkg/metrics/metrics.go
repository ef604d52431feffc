package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for PaymentRequestsTotal.
const (
	OutcomePaymentRequired = "payment_required"
	OutcomeInvalidPayment  = "invalid_payment"
	OutcomeVerifyFailed    = "verify_failed"
	OutcomeSettleFailed    = "settle_failed"
	OutcomeSettled         = "settled"
)

var (
	// PaymentRequestsTotal counts hits on paid routes by outcome.
	PaymentRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_payment_requests_total",
			Help: "Requests to paid routes, partitioned by route and payment outcome.",
		},
		[]string{"route", "outcome"},
	)

	// SettledAmountTotal accumulates settled value in atomic token units.
	SettledAmountTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "x402_settled_amount_atomic_total",
			Help: "Total settled payment value in atomic units, partitioned by network and asset contract.",
		},
		[]string{"network", "asset"},
	)

	// FacilitatorRequestDuration observes facilitator round trips.
	FacilitatorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "x402_facilitator_request_duration_seconds",
			Help:    "Duration of facilitator calls, partitioned by endpoint and result.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "result"},
	)

	// ReplayRejectionsTotal counts payments rejected by the nonce replay guard.
	ReplayRejectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "x402_replay_rejections_total",
			Help: "Payments rejected because their authorization nonce was already seen.",
		},
	)
)

// MustRegisterMetrics registers every collector of this package on the
// default registry. Call it once at startup.
func MustRegisterMetrics() {
	prometheus.MustRegister(
		PaymentRequestsTotal,
		SettledAmountTotal,
		FacilitatorRequestDuration,
		ReplayRejectionsTotal,
	)
}
