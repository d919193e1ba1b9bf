package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the sync and search paths.
//
// Metrics collected:
//   - spellbook_syncs_total: Counter of reconciliations by status
//   - spellbook_sync_duration_seconds: Histogram of reconciliation duration
//   - spellbook_entries_applied_total: Counter of distinct identities deleted or upserted
//   - spellbook_entry_failures_total: Counter of per-entry failures by op and error code
//   - spellbook_manifests_skipped_total: Counter of manifest files skipped as malformed
//   - spellbook_search_requests_total: Counter of searches by status
//   - spellbook_search_payloads_dropped_total: Counter of hits whose payload did not decode
type Metrics struct {
	syncsTotal      *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	entriesApplied  *prometheus.CounterVec
	entryFailures   *prometheus.CounterVec
	manifestSkipped prometheus.Counter
	searchRequests  *prometheus.CounterVec
	payloadsDropped prometheus.Counter
}

// NewMetrics registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		syncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "syncs_total",
			Help:      "Total number of reconciliations by status",
		}, []string{"status"}),

		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spellbook",
			Name:      "sync_duration_seconds",
			Help:      "Reconciliation duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),

		entriesApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "entries_applied_total",
			Help:      "Distinct entry identities deleted or upserted",
		}, []string{"op"}),

		entryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "entry_failures_total",
			Help:      "Per-entry failures by operation and error code",
		}, []string{"op", "code"}),

		manifestSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "manifests_skipped_total",
			Help:      "Manifest files skipped because they did not parse",
		}),

		searchRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "search_requests_total",
			Help:      "Search requests by status",
		}, []string{"status"}),

		payloadsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spellbook",
			Name:      "search_payloads_dropped_total",
			Help:      "Search hits dropped because their payload did not decode",
		}),
	}
}
