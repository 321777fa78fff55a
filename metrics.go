package sphare

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeApplied     = "applied"
	outcomeInvalid     = "invalid"
	outcomeNotFound    = "not_found"
	outcomeHalfApplied = "half_applied"
	outcomeFailed      = "failed"
)

var (
	followIntentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sphare",
		Name:      "follow_intents_total",
		Help:      "Follow intents by intent and outcome.",
	}, []string{"intent", "outcome"})

	followIntentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sphare",
		Name:      "follow_intent_duration_seconds",
		Help:      "Time spent applying a follow intent to both profiles.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"intent"})

	journalReplaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sphare",
		Name:      "journal_replays_total",
		Help:      "Journal pair repairs by outcome.",
	}, []string{"outcome"})
)

func observeIntent(intent Intent, outcome string) {
	label := string(intent)
	if intent != IntentFollow && intent != IntentUnfollow {
		label = "other"
	}
	followIntentsTotal.WithLabelValues(label, outcome).Inc()
}

func observeIntentDuration(intent Intent, d time.Duration) {
	followIntentDuration.WithLabelValues(string(intent)).Observe(d.Seconds())
}

func observeReplay(outcome string) {
	journalReplaysTotal.WithLabelValues(outcome).Inc()
}
