// Package metrics exposes Prometheus collectors for bookings, chat traffic
// and background sweeps. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hackgods/hospital-scheduling/internal/apperr"
)

const namespace = "hospital"

type Metrics struct {
	appointmentOps  *prometheus.CounterVec
	sweepRuns       *prometheus.CounterVec
	sweepItems      *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
	chatConnections prometheus.Gauge
	chatMessages    prometheus.Counter
}

// New registers the collectors with reg, or the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		appointmentOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "appointments",
			Name:      "operations_total",
			Help:      "Appointment operations by outcome",
		}, []string{"op", "result"}),
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_runs_total",
			Help:      "Background sweep runs by outcome",
		}, []string{"job", "result"}),
		sweepItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_items_total",
			Help:      "Rows changed by background sweeps",
		}, []string{"job"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of background sweep runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		chatConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "connections",
			Help:      "Open chat websocket connections",
		}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "messages_total",
			Help:      "Chat messages persisted and broadcast",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.appointmentOps, m.sweepRuns, m.sweepItems, m.sweepDuration, m.chatConnections, m.chatMessages)
	return m
}

// ObserveAppointment counts one operation. The result label is "ok", the
// error kind for domain errors, or "error".
func (m *Metrics) ObserveAppointment(op string, err error) {
	if m == nil {
		return
	}
	m.appointmentOps.WithLabelValues(op, Result(err)).Inc()
}

func (m *Metrics) ObserveSweep(job, result string, items int, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(job, result).Inc()
	if items > 0 {
		m.sweepItems.WithLabelValues(job).Add(float64(items))
	}
	m.sweepDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *Metrics) ChatConnected() {
	if m == nil {
		return
	}
	m.chatConnections.Inc()
}

func (m *Metrics) ChatDisconnected() {
	if m == nil {
		return
	}
	m.chatConnections.Dec()
}

func (m *Metrics) ChatMessage() {
	if m == nil {
		return
	}
	m.chatMessages.Inc()
}

func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := apperr.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
