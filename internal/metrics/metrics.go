// Package metrics exposes Prometheus counters for reconciliation and batch runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "race_sync"

// Item outcomes.
const (
	OutcomeFetched   = "fetched"
	OutcomeAppended  = "appended"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// Recorder records reconciliation and batch metrics. A nil *Recorder is a
// valid no-op.
type Recorder struct {
	items        *prometheus.CounterVec
	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	apiRequests  *prometheus.CounterVec
}

// NewRecorder creates and registers the collectors on reg. A nil reg uses
// a private registry, which keeps tests isolated.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	r := &Recorder{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Reconciled items by table and outcome.",
		}, []string{"table", "outcome"}),
		units: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_units_total",
			Help:      "Batch units by job and status.",
		}, []string{"job", "status"}),
		unitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_unit_duration_seconds",
			Help:      "Wall-clock time spent per batch unit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Backend API requests by operation and result.",
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(r.items, r.units, r.unitDuration, r.apiRequests)
	return r
}

// Items adds n items of a table with the given outcome.
func (r *Recorder) Items(table, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.items.WithLabelValues(table, outcome).Add(float64(n))
}

// Unit records one finished batch unit.
func (r *Recorder) Unit(job, status string, d time.Duration) {
	if r == nil {
		return
	}
	r.units.WithLabelValues(job, status).Inc()
	r.unitDuration.WithLabelValues(job).Observe(d.Seconds())
}

// APIRequest records one backend call.
func (r *Recorder) APIRequest(operation string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.apiRequests.WithLabelValues(operation, result).Inc()
}
