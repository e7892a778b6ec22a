package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_payment_transitions_total",
		Help: "Payment status transitions applied.",
	}, []string{"from", "to"})

	AcceptanceOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_acceptance_outcomes_total",
		Help: "Bid acceptance attempts by outcome. Lost races are counted as conflict, not error.",
	}, []string{"outcome"})

	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_webhook_events_total",
		Help: "Processor webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	ProcessorCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "escrow_processor_call_duration_seconds",
		Help:    "Latency of outbound payment processor calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op", "outcome"})

	StaleHolds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "escrow_stale_holds",
		Help: "PENDING payments older than the stale-hold threshold at the last reconciliation pass.",
	})
)

// ObserveProcessorCall records the latency of a processor call started at start.
func ObserveProcessorCall(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	ProcessorCallDuration.WithLabelValues(op, outcome).Observe(time.Since(start).Seconds())
}
