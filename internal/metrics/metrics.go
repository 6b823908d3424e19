// Package metrics exposes CaptureStatus/PlaybackStatus as Prometheus
// gauges/counters, grounded on tphakala-birdnet-go's use of
// prometheus/client_golang for runtime instrumentation. This is additive
// observability beyond spec.md's scope (the external inspection interface
// is itself out of scope, §1); it reads the same shared status records
// that interface would.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rustyguts/camilladsp/internal/message"
)

// Collector samples CaptureStatus/PlaybackStatus on each Prometheus scrape.
type Collector struct {
	capture  *message.CaptureStatus
	playback *message.PlaybackStatus

	measuredSamplerate *prometheus.Desc
	rateAdjust         *prometheus.Desc
	captureState       *prometheus.Desc
	bufferLevel        *prometheus.Desc
	clippedSamples     *prometheus.Desc
}

// NewCollector returns a Collector reading from the given shared status
// records. Register it with a prometheus.Registry to expose it.
func NewCollector(capture *message.CaptureStatus, playback *message.PlaybackStatus) *Collector {
	return &Collector{
		capture:  capture,
		playback: playback,
		measuredSamplerate: prometheus.NewDesc(
			"camilladsp_capture_measured_samplerate_hz",
			"Measured capture device sample rate.", nil, nil),
		rateAdjust: prometheus.NewDesc(
			"camilladsp_capture_rate_adjust_ratio",
			"Current clock-drift rate-adjust ratio applied to capture.", nil, nil),
		captureState: prometheus.NewDesc(
			"camilladsp_capture_state",
			"Capture processing state: 0=Starting 1=Running 2=Paused 3=Inactive.", nil, nil),
		bufferLevel: prometheus.NewDesc(
			"camilladsp_playback_buffer_level_frames",
			"Average playback device buffer delay, in frames.", nil, nil),
		clippedSamples: prometheus.NewDesc(
			"camilladsp_playback_clipped_samples_total",
			"Total samples clipped during format conversion.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.measuredSamplerate
	ch <- c.rateAdjust
	ch <- c.captureState
	ch <- c.bufferLevel
	ch <- c.clippedSamples
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cs := c.capture.Snapshot()
	ps := c.playback.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.measuredSamplerate, prometheus.GaugeValue, cs.MeasuredSamplerate)
	ch <- prometheus.MustNewConstMetric(c.rateAdjust, prometheus.GaugeValue, cs.RateAdjust)
	ch <- prometheus.MustNewConstMetric(c.captureState, prometheus.GaugeValue, float64(cs.State))
	ch <- prometheus.MustNewConstMetric(c.bufferLevel, prometheus.GaugeValue, ps.BufferLevel)
	ch <- prometheus.MustNewConstMetric(c.clippedSamples, prometheus.CounterValue, float64(ps.ClippedSamples))
}
