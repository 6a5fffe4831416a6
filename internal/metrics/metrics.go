// Package metrics exposes Prometheus instrumentation for TideWatch. It is
// ambient plumbing for an external scraper and carries no dashboards or
// alerting logic of its own.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ContainersTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tidewatch_containers_tracked",
		Help: "Number of containers currently tracked.",
	})
	RegistryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_registry_requests_total",
		Help: "Total registry API requests by registry and outcome.",
	}, []string{"registry", "outcome"})
	RegistryCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_registry_cache_hits_total",
		Help: "Tag cache hits vs misses by registry.",
	}, []string{"registry", "result"})
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_updates_total",
		Help: "Total update decisions by status.",
	}, []string{"status"})
	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "tidewatch_apply_duration_seconds",
		Help: "Duration of update-apply state machine runs.",
		Buckets: prometheus.DefBuckets,
	})
	ApplyOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_apply_outcomes_total",
		Help: "Apply outcomes by result (success, retrying, rolled_back, failed).",
	}, []string{"outcome"})
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "tidewatch_scan_duration_seconds",
		Help: "Duration of per-container update-check scans.",
		Buckets: prometheus.DefBuckets,
	})
	RestartAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tidewatch_restart_attempts_total",
		Help: "Restart supervisor attempts by outcome.",
	}, []string{"outcome"})
	PendingScanJobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tidewatch_pending_scan_jobs_active",
		Help: "Number of non-terminal VulnForge reconciliation jobs.",
	})
)
