package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all pipeline counters. Every field is exported as a
// Prometheus gauge read at scrape time.
type Metrics struct {
	// Capture
	FramesCaptured atomic.Uint64
	FramesDropped  atomic.Uint64
	CaptureErrors  atomic.Uint64

	// Detection
	FramesProcessed  atomic.Uint64
	FramesSkipped    atomic.Uint64
	DetectorErrors   atomic.Uint64
	RidersSeen       atomic.Uint64
	RiderFailures    atomic.Uint64
	ProcessLatencyMs atomic.Uint64

	// Violations
	ViolationsEmitted   atomic.Uint64
	ViolationsDuplicate atomic.Uint64
	ViolationsRejected  atomic.Uint64
	DedupHashes         atomic.Uint64

	// Stream and event clients
	StreamClients atomic.Int64
	EventClients  atomic.Int64

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name string
		help string
		v    *atomic.Uint64
	}{
		{"sras_frames_captured_total", "Frames read from the camera", &m.FramesCaptured},
		{"sras_frames_dropped_total", "Frames replaced in the queue before pickup", &m.FramesDropped},
		{"sras_capture_errors_total", "Transient camera read failures", &m.CaptureErrors},
		{"sras_frames_processed_total", "Frames that went through detection", &m.FramesProcessed},
		{"sras_frames_skipped_total", "Frames skipped by the inference skip factor", &m.FramesSkipped},
		{"sras_detector_errors_total", "General detector failures", &m.DetectorErrors},
		{"sras_riders_seen_total", "Paired rider regions", &m.RidersSeen},
		{"sras_rider_failures_total", "Rider evaluations that failed", &m.RiderFailures},
		{"sras_violations_emitted_total", "Violations accepted by the store", &m.ViolationsEmitted},
		{"sras_violations_duplicate_total", "Candidates suppressed as duplicates", &m.ViolationsDuplicate},
		{"sras_violations_rejected_total", "Candidates rejected by the emitter", &m.ViolationsRejected},
	}

	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sras_process_latency_ms",
			Help: "Latency of the last processed frame in milliseconds",
		},
		func() float64 { return float64(m.ProcessLatencyMs.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sras_dedup_hashes",
			Help: "Rider hashes currently held in memory",
		},
		func() float64 { return float64(m.DedupHashes.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sras_stream_clients",
			Help: "Active MJPEG stream clients",
		},
		func() float64 { return float64(m.StreamClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "sras_event_clients",
			Help: "Active violation event subscribers",
		},
		func() float64 { return float64(m.EventClients.Load()) },
	))
}

// UpdateProcessLatency records the duration of the last processed frame.
func (m *Metrics) UpdateProcessLatency(duration time.Duration) {
	m.ProcessLatencyMs.Store(uint64(duration.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
