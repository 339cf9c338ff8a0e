// Package metrics declares the Prometheus collectors for the matching
// service. They register with the default registry and are served by
// Handler at /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerfinder_registrations_total",
		Help: "Registrations by program and result (created, refreshed, duplicate, invalid)",
	}, []string{"program", "result"})

	MatchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerfinder_match_requests_total",
		Help: "Match requests by outcome (matched, already_matched, no_match, error)",
	}, []string{"outcome"})

	MatchConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerfinder_match_conflicts_total",
		Help: "Group assignments retried because a candidate was taken concurrently",
	})

	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "peerfinder_match_latency_seconds",
		Help:    "Time to resolve a match request",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	})

	GroupsFormed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerfinder_groups_formed_total",
		Help: "Groups formed by origin (auto, random, manual, sweep) and size",
	}, []string{"via", "size"})

	GroupsDissolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerfinder_groups_dissolved_total",
		Help: "Groups dissolved by cause (admin, leave, delete)",
	}, []string{"cause"})

	WaitingLearners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "peerfinder_waiting_learners",
		Help: "Unmatched learners per program, refreshed by the auto-match sweep",
	}, []string{"program"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerfinder_notifications_total",
		Help: "Match notification emails by result (sent, failed, dropped, skipped)",
	}, []string{"result"})

	SnapshotExports = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "peerfinder_snapshot_exports_total",
		Help: "S3 snapshot exports by result",
	}, []string{"result"})

	AdminAuthFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "peerfinder_admin_auth_failures_total",
		Help: "Admin requests rejected for a bad password",
	})
)

// ObserveSince records the time elapsed since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
