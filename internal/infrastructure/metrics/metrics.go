// Package metrics exposes labeldash session and print job counters to
// Prometheus.
//
// Metrics uses its own registry rather than the global default, so tests
// and several dashboards in one process never collide.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
)

const namespace = "labeldash"

// Message directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

var (
	_ session.Observer = (*Metrics)(nil)
	_ labels.Recorder  = (*Metrics)(nil)
)

// Metrics holds the Prometheus registry and the dashboard meters.
type Metrics struct {
	Registry          *prometheus.Registry
	Connected         prometheus.Gauge
	ConnectionChanges *prometheus.CounterVec
	SubscribeAttempts *prometheus.CounterVec
	SubscribeFailures *prometheus.CounterVec
	Messages          *prometheus.CounterVec
	ReducerErrors     *prometheus.CounterVec
	PrintJobs         prometheus.Counter
	LabelsRequested   prometheus.Counter
}

// New creates a registry with the labeldash meters plus the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_connected",
			Help:      "1 while the MQTT session is connected.",
		}),
		ConnectionChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_connection_changes_total",
			Help:      "Connection status transitions.",
		}, []string{"status"}),
		SubscribeAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribe_attempts_total",
			Help:      "Subscribe requests issued to the broker.",
		}, []string{"topic"}),
		SubscribeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscribe_failures_total",
			Help:      "Subscribe requests that failed or timed out.",
		}, []string{"topic"}),
		Messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "MQTT messages handed to or received from the transport.",
		}, []string{"direction"}),
		ReducerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reducer_errors_total",
			Help:      "Actions the reducer rejected.",
		}, []string{"action"}),
		PrintJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "print_jobs_total",
			Help:      "Print jobs submitted.",
		}),
		LabelsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "labels_requested_total",
			Help:      "Sum of qty over submitted print jobs.",
		}),
	}

	reg.MustRegister(
		m.Connected,
		m.ConnectionChanges,
		m.SubscribeAttempts,
		m.SubscribeFailures,
		m.Messages,
		m.ReducerErrors,
		m.PrintJobs,
		m.LabelsRequested,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ConnectionChanged(_ string, connected bool) {
	if connected {
		m.Connected.Set(1)
		m.ConnectionChanges.WithLabelValues(string(session.StatusConnected)).Inc()
		return
	}
	m.Connected.Set(0)
	m.ConnectionChanges.WithLabelValues(string(session.StatusDisconnected)).Inc()
}

func (m *Metrics) SubscribeAttempted(topic string) {
	m.SubscribeAttempts.WithLabelValues(topic).Inc()
}

func (m *Metrics) SubscribeFailed(topic string, _ error) {
	m.SubscribeFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) MessagePublished(string) {
	m.Messages.WithLabelValues(DirectionOutbound).Inc()
}

func (m *Metrics) MessageReceived(string) {
	m.Messages.WithLabelValues(DirectionInbound).Inc()
}

func (m *Metrics) ReducerFailed(actionType string, _ error) {
	m.ReducerErrors.WithLabelValues(actionType).Inc()
}

// RecordJob counts a submitted job. It never fails.
func (m *Metrics) RecordJob(_ context.Context, sub labels.Submission) error {
	m.PrintJobs.Inc()
	m.LabelsRequested.Add(float64(sub.Job.Qty))
	return nil
}
