// Package metrics holds Prometheus metrics for the detection and publishing
// pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all pipeline metrics.
type Metrics struct {
	SamplesIngested  *prometheus.CounterVec // result: accepted | rejected
	MomentsDetected  prometheus.Counter
	ClipsRequested   prometheus.Counter
	ClipsRendered    *prometheus.CounterVec // result: rendered | failed
	PublishOutcomes  *prometheus.CounterVec // platform, status
	PublishAttempts  *prometheus.CounterVec // platform
	ScheduledFired   prometheus.Counter
	ActivePipelines  prometheus.Gauge
	EventConnections prometheus.Gauge
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SamplesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hypecast_samples_ingested_total",
			Help: "Signal samples received, by validation result",
		}, []string{"result"}),
		MomentsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hypecast_moments_detected_total",
			Help: "Hype moments emitted by the detector",
		}),
		ClipsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hypecast_clips_requested_total",
			Help: "Clip render requests sent to the renderer",
		}),
		ClipsRendered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hypecast_clips_rendered_total",
			Help: "Render completions, by result",
		}, []string{"result"}),
		PublishOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hypecast_publish_outcomes_total",
			Help: "Terminal publish task outcomes, by platform and status",
		}, []string{"platform", "status"}),
		PublishAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hypecast_publish_attempts_total",
			Help: "Individual publish attempts, by platform",
		}, []string{"platform"}),
		ScheduledFired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hypecast_scheduled_dispatches_total",
			Help: "Deferred publish tasks dispatched by the scheduler",
		}),
		ActivePipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hypecast_active_pipelines",
			Help: "Sessions with a running aggregator/detector pair",
		}),
		EventConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hypecast_event_connections",
			Help: "Open WebSocket connections on the detection event stream",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.SamplesIngested, m.MomentsDetected, m.ClipsRequested, m.ClipsRendered,
			m.PublishOutcomes, m.PublishAttempts, m.ScheduledFired,
			m.ActivePipelines, m.EventConnections,
		)
	}
	return m
}

// NewNop returns unregistered metrics for tests and optional wiring.
func NewNop() *Metrics {
	return New(nil)
}
