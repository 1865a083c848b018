package metric

import "github.com/prometheus/client_golang/prometheus"

// SessionSample is the state of one open session at scrape time.
type SessionSample struct {
	ID         string
	IndexReady bool
	Objects    uint64
}

// Collector reports per-session index state, sampled at scrape time.
type Collector struct {
	sample func() []SessionSample

	ready   *prometheus.Desc
	objects *prometheus.Desc
}

// NewCollector creates a collector that calls sample on every scrape.
func NewCollector(sample func() []SessionSample) *Collector {
	return &Collector{
		sample: sample,
		ready: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "index_ready"),
			"Whether the session's heap index is built (1) or not (0).",
			[]string{"session"}, nil,
		),
		objects: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "session", "index_objects"),
			"Objects in the session's heap index.",
			[]string{"session"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ready
	ch <- c.objects
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.sample() {
		ready := 0.0
		if s.IndexReady {
			ready = 1
		}
		ch <- prometheus.MustNewConstMetric(c.ready, prometheus.GaugeValue, ready, s.ID)
		ch <- prometheus.MustNewConstMetric(c.objects, prometheus.GaugeValue, float64(s.Objects), s.ID)
	}
}
