package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Prometheus Metrics ─────────────────────────────────────────────────────

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firstdate_event_transitions_total",
		Help: "Speed-date event state transitions applied, by target state.",
	}, []string{"to"})

	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firstdate_settlements_total",
		Help: "Credit ledger movements applied, by reason.",
	}, []string{"reason"})

	noShowsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "firstdate_no_show_strikes_total",
		Help: "No-show strikes recorded.",
	})

	sweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "firstdate_sweep_duration_seconds",
		Help:    "Duration of scheduler sweep passes.",
		Buckets: prometheus.DefBuckets,
	})
)
