// Package metrics exposes Prometheus collectors for the watcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors recorded by runs and the scheduler.
type Metrics struct {
	Registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	Fetched         *prometheus.CounterVec
	Posted          *prometheus.CounterVec
	Duplicates      *prometheus.CounterVec
	Skipped         *prometheus.CounterVec
	TicksCoalesced  *prometheus.CounterVec
	DispatchLimited *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_runs_total",
			Help: "Query runs by terminal state.",
		}, []string{"query", "state"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "watcher_run_duration_seconds",
			Help:    "Duration of query runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		Fetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_listings_fetched_total",
			Help: "Listings returned by the marketplace.",
		}, []string{"query"}),
		Posted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_listings_posted_total",
			Help: "Listings dispatched and recorded in the ledger.",
		}, []string{"query"}),
		Duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_listings_duplicate_total",
			Help: "Listings skipped because the ledger already had them.",
		}, []string{"query"}),
		Skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_listings_skipped_total",
			Help: "Listings dropped by filters, by reason.",
		}, []string{"query", "reason"}),
		TicksCoalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_ticks_coalesced_total",
			Help: "Ticks that fired while the job was still running.",
		}, []string{"job"}),
		DispatchLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "watcher_dispatch_rate_limited_total",
			Help: "Dispatches rejected by a sink rate limit.",
		}, []string{"query"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Runs, m.RunDuration, m.Fetched, m.Posted, m.Duplicates, m.Skipped,
		m.TicksCoalesced, m.DispatchLimited,
	)
	return m
}
