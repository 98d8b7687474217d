// Package metrics exposes hub activity as Prometheus metrics.
//
// Metrics implements automation.Recorder and the ingest pipeline's
// recorder, and serves its own registry through Handler (mounted at
// /metrics by the API server).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

const namespace = "graylogic_hub"

// Metrics holds the hub's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	ValuesAccepted    *prometheus.CounterVec
	ValuesRejected    *prometheus.CounterVec
	AutomationsFired  prometheus.Counter
	Requests          *prometheus.CounterVec
	ActiveAutomations prometheus.Gauge
	IngestMessages    *prometheus.CounterVec
	Sessions          prometheus.Gauge
}

// New creates the metrics and registers them, plus Go runtime and process
// collectors, on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ValuesAccepted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "values",
				Name:      "accepted_total",
				Help:      "Channel values accepted by the automation store",
			},
			[]string{"device"},
		),
		ValuesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "values",
				Name:      "rejected_total",
				Help:      "Channel values rejected because no automation subscribes to them",
			},
			[]string{"device"},
		),
		AutomationsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automations",
			Name:      "fired_total",
			Help:      "Automations whose condition held during evaluation",
		}),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "requests",
				Name:      "dispatched_total",
				Help:      "Outbound connect/update requests by kind and status",
			},
			[]string{"kind", "status"},
		),
		ActiveAutomations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "automations",
			Name:      "active",
			Help:      "Number of active automations",
		}),
		IngestMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "messages_total",
				Help:      "Inbound value messages by source and status",
			},
			[]string{"source", "status"},
		),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "open",
			Help:      "Open channel sessions",
		}),
	}

	m.registry.MustRegister(
		m.ValuesAccepted,
		m.ValuesRejected,
		m.AutomationsFired,
		m.Requests,
		m.ActiveAutomations,
		m.IngestMessages,
		m.Sessions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ─── automation.Recorder ────────────────────────────────────────────

func (m *Metrics) ValueAccepted(ch rule.Channel) {
	m.ValuesAccepted.WithLabelValues(ch.DeviceID).Inc()
}

func (m *Metrics) ValueRejected(ch rule.Channel) {
	m.ValuesRejected.WithLabelValues(ch.DeviceID).Inc()
}

func (m *Metrics) AutomationFired() {
	m.AutomationsFired.Inc()
}

func (m *Metrics) RequestDispatched(kind device.RequestKind, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Requests.WithLabelValues(string(kind), status).Inc()
}

func (m *Metrics) AutomationsActive(n int) {
	m.ActiveAutomations.Set(float64(n))
}

// ─── ingest / sessions ──────────────────────────────────────────────

// IngestMessage counts one inbound value message.
func (m *Metrics) IngestMessage(source string, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "rejected"
	}
	m.IngestMessages.WithLabelValues(source, status).Inc()
}

// IngestError counts an inbound message that could not be decoded.
func (m *Metrics) IngestError(source string) {
	m.IngestMessages.WithLabelValues(source, "invalid").Inc()
}

// SessionOpened and SessionClosed track open channel sessions.
func (m *Metrics) SessionOpened() { m.Sessions.Inc() }

func (m *Metrics) SessionClosed() { m.Sessions.Dec() }
