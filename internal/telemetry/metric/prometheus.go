package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "memscope"

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsOpen   prometheus.Gauge
	SessionsOpened prometheus.Counter

	// Worker metrics
	WorkerJobs        *prometheus.CounterVec
	WorkerJobDuration *prometheus.HistogramVec

	// Heap index metrics
	IndexBuilds        *prometheus.CounterVec
	IndexBuildDuration prometheus.Histogram
	IndexObjects       prometheus.Gauge
	IndexEdges         prometheus.Gauge

	// Decoder metrics
	DecodeFailures prometheus.Counter
}

// NewRegistry creates a registry with all memscope metrics plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_open",
			Help:      "Number of open snapshot sessions.",
		}),
		SessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "Total number of snapshot sessions opened.",
		}),
		WorkerJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_jobs_total",
			Help:      "Jobs executed by affinity workers.",
		}, []string{"worker", "result"}),
		WorkerJobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "worker_job_duration_seconds",
			Help:      "Time spent executing worker jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"worker"}),
		IndexBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_builds_total",
			Help:      "Heap index builds by outcome.",
		}, []string{"result"}),
		IndexBuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_build_duration_seconds",
			Help:      "Wall time of heap index builds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		IndexObjects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_objects",
			Help:      "Objects recorded by the last completed heap index build.",
		}),
		IndexEdges: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_edges",
			Help:      "Reference edges recorded by the last completed heap index build.",
		}),
		DecodeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Value decodes that failed on inaccessible or malformed memory.",
		}),
	}

	reg.MustRegister(
		r.SessionsOpen,
		r.SessionsOpened,
		r.WorkerJobs,
		r.WorkerJobDuration,
		r.IndexBuilds,
		r.IndexBuildDuration,
		r.IndexObjects,
		r.IndexEdges,
		r.DecodeFailures,
	)
	return r
}

var (
	globalOnce sync.Once
	global     *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		global = NewRegistry()
	})
	return global
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// SessionOpened records a newly opened session.
func (r *Registry) SessionOpened() {
	r.SessionsOpen.Inc()
	r.SessionsOpened.Inc()
}

// SessionClosed records a disposed session.
func (r *Registry) SessionClosed() {
	r.SessionsOpen.Dec()
}

// RecordWorkerJob records one worker job and its duration.
func (r *Registry) RecordWorkerJob(worker string, failed bool, seconds float64) {
	result := "ok"
	if failed {
		result = "error"
	}
	r.WorkerJobs.WithLabelValues(worker, result).Inc()
	r.WorkerJobDuration.WithLabelValues(worker).Observe(seconds)
}

// RecordIndexBuild records a build outcome. Sizes are recorded only for
// builds that produced an index.
func (r *Registry) RecordIndexBuild(result string, seconds float64, objects, edges uint64) {
	r.IndexBuilds.WithLabelValues(result).Inc()
	r.IndexBuildDuration.Observe(seconds)
	if result == "ok" || result == "loaded" {
		r.IndexObjects.Set(float64(objects))
		r.IndexEdges.Set(float64(edges))
	}
}

// IncDecodeFailure records a failed value decode.
func (r *Registry) IncDecodeFailure() {
	r.DecodeFailures.Inc()
}
