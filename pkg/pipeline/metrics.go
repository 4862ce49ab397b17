package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/teslashibe/go-ptz/pkg/control"
)

// Metrics exports loop counters. A nil *Metrics records nothing.
type Metrics struct {
	Frames         prometheus.Counter
	Misses         prometheus.Counter
	Acquisitions   prometheus.Counter
	Drops          prometheus.Counter
	DispatchErrors prometheus.Counter
	Tracking       prometheus.Gauge
	Command        *prometheus.GaugeVec
	Saturated      *prometheus.GaugeVec
	FrameSeconds   prometheus.Histogram
}

// NewMetrics creates the loop collectors and registers them on reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptz",
			Name:      "frames_total",
			Help:      "Frames processed by the tracking loop.",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptz",
			Name:      "missed_frames_total",
			Help:      "Frames in which the tracked object was not detected.",
		}),
		Acquisitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptz",
			Name:      "track_acquisitions_total",
			Help:      "Objects selected for tracking.",
		}),
		Drops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptz",
			Name:      "track_drops_total",
			Help:      "Tracks dropped by request or after too many misses.",
		}),
		DispatchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ptz",
			Name:      "dispatch_errors_total",
			Help:      "Actuator commands that failed to send.",
		}),
		Tracking: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ptz",
			Name:      "tracking",
			Help:      "1 while an object is being tracked.",
		}),
		Command: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ptz",
			Name:      "command",
			Help:      "Last normalized command per axis.",
		}, []string{"axis"}),
		Saturated: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ptz",
			Name:      "saturated",
			Help:      "1 when the axis output was clamped on the last cycle.",
		}, []string{"axis"}),
		FrameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ptz",
			Name:      "frame_seconds",
			Help:      "Detection and control time per frame.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Frames, m.Misses, m.Acquisitions, m.Drops, m.DispatchErrors,
			m.Tracking, m.Command, m.Saturated, m.FrameSeconds,
		)
	}
	return m
}

func (m *Metrics) frame(d time.Duration) {
	if m == nil {
		return
	}
	m.Frames.Inc()
	m.FrameSeconds.Observe(d.Seconds())
}

func (m *Metrics) miss() {
	if m != nil {
		m.Misses.Inc()
	}
}

func (m *Metrics) acquired() {
	if m != nil {
		m.Acquisitions.Inc()
		m.Tracking.Set(1)
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.Drops.Inc()
		m.Tracking.Set(0)
	}
}

func (m *Metrics) dispatchError() {
	if m != nil {
		m.DispatchErrors.Inc()
	}
}

func (m *Metrics) command(cmd control.Command) {
	if m == nil {
		return
	}
	m.Command.WithLabelValues(control.AxisPan).Set(cmd.Pan)
	m.Command.WithLabelValues(control.AxisTilt).Set(cmd.Tilt)
	m.Command.WithLabelValues(control.AxisZoom).Set(cmd.Zoom)
	for i, axis := range []string{control.AxisPan, control.AxisTilt, control.AxisZoom} {
		v := 0.0
		if cmd.Saturated[i] {
			v = 1
		}
		m.Saturated.WithLabelValues(axis).Set(v)
	}
}
