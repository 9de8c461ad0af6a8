package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerificationDecisions counts terminal and escalation outcomes per channel.
	VerificationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerforge_verification_decisions_total",
		Help: "Verification session outcomes by channel and decided status.",
	}, []string{"channel", "status"})

	// FraudScores observes heuristic scores produced by the scorer.
	FraudScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "careerforge_fraud_score",
		Help:    "Distribution of heuristic fraud scores (0-100).",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	// CreditsGranted counts positive ledger deltas by reason.
	CreditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerforge_credits_granted_total",
		Help: "Credits granted, labelled by ledger reason.",
	}, []string{"reason"})

	// CreditsSpent counts the magnitude of negative ledger deltas by reason.
	CreditsSpent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "careerforge_credits_spent_total",
		Help: "Credits spent, labelled by ledger reason.",
	}, []string{"reason"})

	// IdempotentReplays counts priced requests answered from a stored result.
	IdempotentReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "careerforge_idempotent_replays_total",
		Help: "Priced operations replayed from their idempotency binding.",
	})

	// PaymentEventsDeduped counts webhook deliveries dropped by event-id dedup.
	PaymentEventsDeduped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "careerforge_payment_events_deduped_total",
		Help: "Payment provider events ignored as duplicates.",
	})
)

// RecordDelta feeds the granted/spent counters from one ledger append.
func RecordDelta(reason string, delta int64) {
	if delta >= 0 {
		CreditsGranted.WithLabelValues(reason).Add(float64(delta))
		return
	}
	CreditsSpent.WithLabelValues(reason).Add(float64(-delta))
}
