package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const OutcomeOK = "ok"

var (
	purchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_purchases_total",
			Help: "Purchase attempts by payment method and outcome",
		},
		[]string{"method", "outcome"},
	)

	redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_redemptions_total",
			Help: "Ticket scans by outcome",
		},
		[]string{"outcome"},
	)

	verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_payment_verifications_total",
			Help: "Payment verifications by payment method and outcome",
		},
		[]string{"method", "outcome"},
	)

	verificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventhub_payment_verification_duration_seconds",
			Help:    "Time spent confirming a payment, processor round trip included",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"method"},
	)

	messages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventhub_messages_handled_total",
			Help: "Event and command deliveries by handler and outcome",
		},
		[]string{"handler", "outcome"},
	)

	reservationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventhub_reservations_expired_total",
			Help: "Pending orders cancelled because their payment never arrived",
		},
	)
)

func TrackPurchase(method, outcome string) {
	purchases.WithLabelValues(method, outcome).Inc()
}

func TrackRedemption(outcome string) {
	redemptions.WithLabelValues(outcome).Inc()
}

func TrackVerification(method, outcome string, took time.Duration) {
	verifications.WithLabelValues(method, outcome).Inc()
	verificationDuration.WithLabelValues(method).Observe(took.Seconds())
}

func TrackMessage(handler, outcome string) {
	messages.WithLabelValues(handler, outcome).Inc()
}

func TrackExpiredReservations(n int) {
	reservationsExpired.Add(float64(n))
}
