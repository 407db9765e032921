package report

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "splat_render"

// Metrics collects per-split render figures and writes them in the
// Prometheus text format, for the node_exporter textfile collector.
type Metrics struct {
	reg          *prometheus.Registry
	frames       *prometheus.GaugeVec
	fps          *prometheus.GaugeVec
	writeRetries *prometheus.GaugeVec
	frameSeconds *prometheus.HistogramVec
}

// NewMetrics returns a collector with its own registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		frames: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "frames",
			Help:      "Views rendered in the split",
		}, []string{"split", "iteration"}),
		fps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "fps",
			Help:      "Render throughput excluding the first view",
		}, []string{"split", "iteration"}),
		writeRetries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "write_retries",
			Help:      "Images that needed a second write attempt",
		}, []string{"split", "iteration"}),
		frameSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "frame_duration_seconds",
			Help:      "Per-view render time",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"split"}),
	}
	m.reg.MustRegister(m.frames, m.fps, m.writeRetries, m.frameSeconds)
	return m
}

// SplitMetrics is the outcome of one split as seen by Observe.
type SplitMetrics struct {
	Split      string
	Iteration  int
	Frames     int
	FPS        float64
	FPSValid   bool
	Retries    int
	FrameTimes []time.Duration
}

// Observe records s. The fps gauge is left unset when FPSValid is false.
func (m *Metrics) Observe(s SplitMetrics) {
	iter := fmt.Sprintf("%d", s.Iteration)
	m.frames.WithLabelValues(s.Split, iter).Set(float64(s.Frames))
	m.writeRetries.WithLabelValues(s.Split, iter).Set(float64(s.Retries))
	if s.FPSValid {
		m.fps.WithLabelValues(s.Split, iter).Set(s.FPS)
	}
	h := m.frameSeconds.WithLabelValues(s.Split)
	for _, d := range s.FrameTimes {
		h.Observe(d.Seconds())
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// WriteTextfile atomically writes the collected metrics to path.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
