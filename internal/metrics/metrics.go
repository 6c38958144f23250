// Package metrics holds the Prometheus instruments for the verification
// engine. All methods are nil-safe so components can run without metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for verification, cache and fetch paths.
type Metrics struct {
	Verifications    *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	CacheWrites      *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	FetchFailures    *prometheus.CounterVec
	ExtractionGaps   *prometheus.CounterVec
	BrowserSessions  prometheus.Gauge
	BatchItems       prometheus.Counter
	CircuitRejected  *prometheus.CounterVec
	EvidenceCaptured prometheus.Counter
}

// New creates a Metrics instance with every instrument registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "license_verify_verifications_total",
			Help: "Verification results by jurisdiction, status and fetch method",
		}, []string{"jurisdiction", "status", "method"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "license_verify_cache_lookups_total",
			Help: "Result cache lookups by outcome (hit, miss, expired, corrupt, error)",
		}, []string{"outcome"}),
		CacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "license_verify_cache_writes_total",
			Help: "Result cache writes by outcome (ok, error)",
		}, []string{"outcome"}),
		FetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "license_verify_fetch_duration_seconds",
			Help:    "Duration of fetch strategy executions",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		}, []string{"method"}),
		FetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "license_verify_fetch_failures_total",
			Help: "Failed fetches by jurisdiction and method",
		}, []string{"jurisdiction", "method"}),
		ExtractionGaps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "license_verify_extraction_gaps_total",
			Help: "Fields left at the Unknown sentinel after extraction",
		}, []string{"field"}),
		BrowserSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "license_verify_browser_sessions",
			Help: "Interactive browser sessions currently open",
		}),
		BatchItems: f.NewCounter(prometheus.CounterOpts{
			Name: "license_verify_batch_items_total",
			Help: "Items processed by batch verification",
		}),
		CircuitRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "license_verify_circuit_rejected_total",
			Help: "Fetches skipped because the jurisdiction circuit was open",
		}, []string{"jurisdiction"}),
		EvidenceCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "license_verify_evidence_captured_total",
			Help: "Screenshots persisted as evidence",
		}),
	}
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns the process-wide instance registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer)
	})
	return defaultM
}

// ObserveVerification records a finished verification.
func (m *Metrics) ObserveVerification(jurisdiction, status, method string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(jurisdiction, status, method).Inc()
}

// ObserveCacheLookup records a cache read outcome.
func (m *Metrics) ObserveCacheLookup(outcome string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// ObserveCacheWrite records a cache write outcome.
func (m *Metrics) ObserveCacheWrite(outcome string) {
	if m == nil {
		return
	}
	m.CacheWrites.WithLabelValues(outcome).Inc()
}

// ObserveFetch records the duration of a fetch. Call with time.Now() at
// the start of the operation.
func (m *Metrics) ObserveFetch(method string, start time.Time) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// IncrementFetchFailure records a failed fetch.
func (m *Metrics) IncrementFetchFailure(jurisdiction, method string) {
	if m == nil {
		return
	}
	m.FetchFailures.WithLabelValues(jurisdiction, method).Inc()
}

// IncrementExtractionGap records a field that could not be extracted.
func (m *Metrics) IncrementExtractionGap(field string) {
	if m == nil {
		return
	}
	m.ExtractionGaps.WithLabelValues(field).Inc()
}

// SessionOpened and SessionClosed track live browser sessions.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.BrowserSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.BrowserSessions.Dec()
}

// IncrementBatchItem records one processed batch item.
func (m *Metrics) IncrementBatchItem() {
	if m == nil {
		return
	}
	m.BatchItems.Inc()
}

// IncrementCircuitRejected records a fetch skipped by an open circuit.
func (m *Metrics) IncrementCircuitRejected(jurisdiction string) {
	if m == nil {
		return
	}
	m.CircuitRejected.WithLabelValues(jurisdiction).Inc()
}

// IncrementEvidence records a persisted screenshot.
func (m *Metrics) IncrementEvidence() {
	if m == nil {
		return
	}
	m.EvidenceCaptured.Inc()
}
