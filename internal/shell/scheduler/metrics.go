package scheduler

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 900, 1800}

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	queued   prometheus.Gauge
	running  prometheus.Gauge
	outcomes *prometheus.CounterVec
	duration prometheus.Histogram
	wait     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered. Collectors already present in reg are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yundera",
			Subsystem: "compiler",
			Name:      "jobs_queued",
			Help:      "Number of deployment jobs waiting for a slot",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yundera",
			Subsystem: "compiler",
			Name:      "jobs_running",
			Help:      "Number of deployment jobs holding a slot",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yundera",
			Subsystem: "compiler",
			Name:      "jobs_total",
			Help:      "Number of finished deployment jobs by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yundera",
			Subsystem: "compiler",
			Name:      "job_duration_seconds",
			Help:      "Run time of deployment jobs",
			Buckets:   durationBuckets,
		}),
		wait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yundera",
			Subsystem: "compiler",
			Name:      "job_wait_seconds",
			Help:      "Time deployment jobs spent queued",
			Buckets:   durationBuckets,
		}),
	}
	if reg == nil {
		return m
	}

	m.queued = register(reg, m.queued)
	m.running = register(reg, m.running)
	m.outcomes = register(reg, m.outcomes)
	m.duration = register(reg, m.duration)
	m.wait = register(reg, m.wait)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) setDepth(queued, running int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(queued))
	m.running.Set(float64(running))
}

func (m *Metrics) observeStart(wait time.Duration) {
	if m == nil {
		return
	}
	m.wait.Observe(wait.Seconds())
}

func (m *Metrics) observeFinish(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.outcomes.With(prometheus.Labels{"outcome": outcome}).Inc()
	if d > 0 {
		m.duration.Observe(d.Seconds())
	}
}
