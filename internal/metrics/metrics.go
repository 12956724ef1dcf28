// Package metrics exposes Prometheus instruments for containment decisions,
// scanners, caches, approvals, audit writes and RPCs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Decisions counts channel evaluations by outcome.
	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_decisions_total",
		Help: "Total number of containment decisions by channel and outcome",
	}, []string{"channel", "outcome"})

	// Violations counts recorded violations by type.
	Violations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_violations_total",
		Help: "Total number of security violations recorded",
	}, []string{"type"})

	// Scans counts content scans by scanner and result (clean, hit, error).
	Scans = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_scans_total",
		Help: "Total number of content scans by scanner and result",
	}, []string{"scanner", "result"})

	// ScanDuration observes how long content scans take.
	ScanDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podguard_scan_duration_seconds",
		Help:    "Duration of content scans",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"scanner"})

	// CacheLookups counts cache hits and misses.
	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_cache_lookups_total",
		Help: "Total number of cache lookups by cache and result",
	}, []string{"cache", "result"})

	// ApprovalTransitions counts file transfer request state changes.
	ApprovalTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_approval_transitions_total",
		Help: "Total number of file transfer request transitions by target status",
	}, []string{"status"})

	// AuditFailures counts failed audit or violation writes.
	AuditFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_audit_write_failures_total",
		Help: "Total number of failed audit, attempt or violation writes",
	}, []string{"sink"})

	// PublishFailures counts failed notification publishes.
	PublishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_publish_failures_total",
		Help: "Total number of failed event publishes by publisher",
	}, []string{"publisher"})

	// RateLimited counts checks denied by a session rate limit.
	RateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_rate_limited_total",
		Help: "Total number of checks denied by per-session rate limits",
	}, []string{"channel"})

	// RPCs counts handled gRPC calls by method and status code.
	RPCs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "podguard_rpc_requests_total",
		Help: "Total number of gRPC requests by method and code",
	}, []string{"method", "code"})

	// RPCDuration observes gRPC handler latency.
	RPCDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "podguard_rpc_duration_seconds",
		Help:    "Duration of gRPC handlers",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})
)

func init() {
	prometheus.MustRegister(Decisions)
	prometheus.MustRegister(Violations)
	prometheus.MustRegister(Scans)
	prometheus.MustRegister(RateLimited)
	prometheus.MustRegister(ScanDuration)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(ApprovalTransitions)
	prometheus.MustRegister(AuditFailures)
	prometheus.MustRegister(PublishFailures)
	prometheus.MustRegister(RPCs)
	prometheus.MustRegister(RPCDuration)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
