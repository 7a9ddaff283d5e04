package midisampler

import (
	"github.com/GeoffreyPlitt/debuggo"
	"github.com/prometheus/client_golang/prometheus"
)

var metricsDebug = debuggo.Debug("msampler:metrics")

// SamplerMetrics exports a sampler's counters to Prometheus. Values are read
// from Sampler.Stats at scrape time, so the render path carries no metrics
// code of its own.
type SamplerMetrics struct {
	sampler *Sampler

	framesProcessed *prometheus.Desc
	xruns           *prometheus.Desc
	activeVoices    *prometheus.Desc
	maxVoices       *prometheus.Desc
	droppedEvents   *prometheus.Desc
	pendingEvents   *prometheus.Desc
	instruments     *prometheus.Desc
}

// NewSamplerMetrics creates a collector for s and registers it when registry
// is not nil.
func NewSamplerMetrics(registry prometheus.Registerer, s *Sampler) (*SamplerMetrics, error) {
	m := &SamplerMetrics{
		sampler: s,
		framesProcessed: prometheus.NewDesc(
			"msampler_frames_processed_total",
			"Total number of output frames rendered",
			nil, nil),
		xruns: prometheus.NewDesc(
			"msampler_xruns_total",
			"Total number of buffer underruns reported by the audio host",
			nil, nil),
		activeVoices: prometheus.NewDesc(
			"msampler_active_voices",
			"Voices sounding at the end of the last render block",
			nil, nil),
		maxVoices: prometheus.NewDesc(
			"msampler_max_voices",
			"Size of the voice pool",
			nil, nil),
		droppedEvents: prometheus.NewDesc(
			"msampler_dropped_events_total",
			"Note events dropped because the event queue was full",
			nil, nil),
		pendingEvents: prometheus.NewDesc(
			"msampler_pending_events",
			"Note events waiting for the next render block",
			nil, nil),
		instruments: prometheus.NewDesc(
			"msampler_instruments",
			"Number of live instruments",
			nil, nil),
	}

	if registry != nil {
		if err := registry.Register(m); err != nil {
			return nil, err
		}
		metricsDebug("Sampler metrics registered")
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *SamplerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.framesProcessed
	ch <- m.xruns
	ch <- m.activeVoices
	ch <- m.maxVoices
	ch <- m.droppedEvents
	ch <- m.pendingEvents
	ch <- m.instruments
}

// Collect implements prometheus.Collector
func (m *SamplerMetrics) Collect(ch chan<- prometheus.Metric) {
	stats := m.sampler.Stats()
	ch <- prometheus.MustNewConstMetric(m.framesProcessed, prometheus.CounterValue, float64(stats.FramesProcessed))
	ch <- prometheus.MustNewConstMetric(m.xruns, prometheus.CounterValue, float64(stats.Xruns))
	ch <- prometheus.MustNewConstMetric(m.activeVoices, prometheus.GaugeValue, float64(stats.ActiveVoices))
	ch <- prometheus.MustNewConstMetric(m.maxVoices, prometheus.GaugeValue, float64(m.sampler.config.MaxPolyphony))
	ch <- prometheus.MustNewConstMetric(m.droppedEvents, prometheus.CounterValue, float64(stats.DroppedEvents))
	ch <- prometheus.MustNewConstMetric(m.pendingEvents, prometheus.GaugeValue, float64(stats.PendingEvents))
	ch <- prometheus.MustNewConstMetric(m.instruments, prometheus.GaugeValue, float64(len(m.sampler.Instruments())))
}
