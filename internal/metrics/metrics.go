// Package metrics exposes Prometheus instruments for the power pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/power-sensor/internal/logic"
)

const namespace = "power_sensor"

// Metrics holds all Prometheus metrics for the daemon.
type Metrics struct {
	SignalsTotal       *prometheus.CounterVec // kind
	TransitionsTotal   *prometheus.CounterVec // kind
	DuplicatesTotal    prometheus.Counter
	PersistFailures    prometheus.Counter
	NotificationsTotal *prometheus.CounterVec // result: sent, failed, dropped
	OnBattery          prometheus.Gauge
	LogEvents          prometheus.Gauge
}

// New registers the metrics with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SignalsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "signals_total",
			Help:      "Raw power signals received, by kind.",
		}, []string{"kind"}),
		TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "transitions_total",
			Help:      "Genuine power transitions detected, by kind.",
		}, []string{"kind"}),
		DuplicatesTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "duplicates_total",
			Help:      "Signals dropped because they repeated the last recorded kind.",
		}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "persist_failures_total",
			Help:      "Transitions that could not be written to the event log.",
		}),
		NotificationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notification attempts by result.",
		}, []string{"result"}), // result: sent, failed, dropped
		OnBattery: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "on_battery",
			Help:      "1 while the host runs on battery, 0 on mains.",
		}),
		LogEvents: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eventlog",
			Name:      "events",
			Help:      "Events currently held in the log.",
		}),
	}
}

// Signal counts a raw signal.
func (m *Metrics) Signal(k logic.Kind) {
	if m == nil {
		return
	}
	m.SignalsTotal.WithLabelValues(string(k)).Inc()
}

// Transition counts a genuine transition and updates the battery gauge.
func (m *Metrics) Transition(k logic.Kind, recorded bool) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(string(k)).Inc()
	if !recorded {
		m.PersistFailures.Inc()
	}
	m.SetPower(k)
}

// Duplicate counts a dropped repeat.
func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.DuplicatesTotal.Inc()
}

// SetPower sets the battery gauge.
func (m *Metrics) SetPower(k logic.Kind) {
	if m == nil {
		return
	}
	switch k {
	case logic.KindLost:
		m.OnBattery.Set(1)
	case logic.KindRestored:
		m.OnBattery.Set(0)
	}
}

// Notification counts a delivery result.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.NotificationsTotal.WithLabelValues(result).Inc()
}

// SetLogSize records the number of events in the log.
func (m *Metrics) SetLogSize(n int) {
	if m == nil {
		return
	}
	m.LogEvents.Set(float64(n))
}
