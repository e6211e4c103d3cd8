package aggregator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedhound_fetch_outcomes_total",
		Help: "Fetch outcomes per status across all cycles.",
	}, []string{"status"})

	itemsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedhound_items_created_total",
		Help: "Items newly stored by reconciliation.",
	})

	itemsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "feedhound_items_updated_total",
		Help: "Existing items refreshed by reconciliation.",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "feedhound_cycle_duration_seconds",
		Help:    "Wall time of complete fetch cycles.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)
