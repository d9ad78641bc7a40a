// Package metrics exposes Prometheus collectors for review runs, deliveries
// and certifications.  All methods are safe on a nil *Metrics.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

// Run outcomes.
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunFailed    = "failed"
)

type Metrics struct {
	runs           *prometheus.CounterVec
	duration       prometheus.Histogram
	due            prometheus.Gauge
	deliveries     *prometheus.CounterVec
	certifications *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// New registers the collectors against registerer.  A nil registerer uses
// the default Prometheus registerer, registering only once per process.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = build(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return build(registerer)
}

// ObserveRun records one trigger run.  due is ignored for skipped runs.
func (m *Metrics) ObserveRun(outcome string, elapsed time.Duration, due int) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if outcome == RunSkipped {
		return
	}
	m.duration.Observe(elapsed.Seconds())
	m.due.Set(float64(due))
}

func (m *Metrics) ObserveDelivery(sender string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.deliveries.WithLabelValues(sender, status).Inc()
}

// ObserveCertification counts decisions.  The vocabulary is open-ended, so
// anything outside the well-known statuses is folded into "other".
func (m *Metrics) ObserveCertification(decision string) {
	if m == nil {
		return
	}
	switch decision {
	case types.StatusApproved, types.StatusRevoked, types.StatusPending:
	default:
		decision = "other"
	}
	m.certifications.WithLabelValues(decision).Inc()
}

func build(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recertify_review_runs_total",
		Help: "Review trigger runs partitioned by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "recertify_review_run_duration_seconds",
		Help:    "Duration in seconds of review trigger runs that executed.",
		Buckets: prometheus.DefBuckets,
	})
	due := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "recertify_due_entitlements",
		Help: "Entitlements found due by the most recent review run.",
	})
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recertify_notification_deliveries_total",
		Help: "Reviewer notification deliveries partitioned by sender and status.",
	}, []string{"sender", "status"})
	certifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "recertify_certifications_total",
		Help: "Certification decisions applied, partitioned by decision.",
	}, []string{"decision"})
	registerer.MustRegister(runs, duration, due, deliveries, certifications)
	return &Metrics{
		runs:           runs,
		duration:       duration,
		due:            due,
		deliveries:     deliveries,
		certifications: certifications,
	}
}
