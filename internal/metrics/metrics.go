// Package metrics exports op lifecycle counters for Prometheus.
//
// Recorder is an engine.Observer. It owns its registry so several stores
// (and tests) never collide on global registration.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/rfx/internal/engine"
	"github.com/roach88/rfx/internal/model"
)

const namespace = "rfx"

// Recorder counts dispatched and finished ops, ack latency and ingested
// snapshots.
type Recorder struct {
	engine.NopObserver

	registry *prometheus.Registry

	dispatched *prometheus.CounterVec
	finalized  *prometheus.CounterVec
	active     prometheus.Gauge
	ackLatency *prometheus.HistogramVec
	snapshots  *prometheus.CounterVec
	events     prometheus.Counter
}

// New creates a Recorder with a fresh registry. Go runtime and process
// collectors are registered alongside the rfx metrics.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		dispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_dispatched_total",
			Help:      "Ops dispatched, by kind.",
		}, []string{"kind"}),
		finalized: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ops_finalized_total",
			Help:      "Ops that reached a terminal status, by kind and status.",
		}, []string{"kind", "status"}),
		active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ops_active",
			Help:      "Ops dispatched and not yet terminal.",
		}),
		ackLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "op_ack_latency_seconds",
			Help:      "Time from send to acknowledgement, by kind.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 8},
		}, []string{"kind"}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_ingested_total",
			Help:      "Snapshots ingested, by shape.",
		}, []string{"shape"}),
		events: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_logged_total",
			Help:      "Event log entries written.",
		}),
	}
}

// Registry returns the registry the collectors live in.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// OpDispatched implements engine.Observer.
func (r *Recorder) OpDispatched(op model.PendingOp) {
	r.dispatched.WithLabelValues(string(op.Kind.Canonical())).Inc()
	r.active.Inc()
}

// OpFinished implements engine.Observer.
func (r *Recorder) OpFinished(op model.PendingOp) {
	kind := string(op.Kind.Canonical())
	r.finalized.WithLabelValues(kind, string(op.Status)).Inc()
	r.active.Dec()

	if op.Status == model.StatusAcked && !op.SentAt.IsZero() && !op.FinishedAt.IsZero() {
		r.ackLatency.WithLabelValues(kind).Observe(op.FinishedAt.Sub(op.SentAt).Seconds())
	}
}

// SnapshotIngested implements engine.Observer.
func (r *Recorder) SnapshotIngested(v *model.View, _ []model.Transition) {
	if v == nil {
		return
	}
	shape := string(v.Shape)
	if shape == "" {
		shape = "unknown"
	}
	r.snapshots.WithLabelValues(shape).Inc()
}

// EventLogged implements engine.Observer.
func (r *Recorder) EventLogged(model.Event) {
	r.events.Inc()
}
