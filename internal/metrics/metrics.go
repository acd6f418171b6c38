// Package metrics
package metrics

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gitdeploy"

var histogramBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}

// Metrics owns its own registry so several instances can coexist in
// tests.
type Metrics struct {
	registry *prometheus.Registry

	actionsTotal    *prometheus.CounterVec
	actionDuration  *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	backupExpired   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Count of dispatched actions",
		}, []string{"action", "source", "success"}),

		actionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Duration of dispatched actions",
			Buckets:   histogramBuckets,
		}, []string{"action"}),

		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Count of external commands run",
		}, []string{"command", "success"}),

		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of external commands",
			Buckets:   histogramBuckets,
		}, []string{"command"}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),

		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),

		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of notification attempts",
		}, []string{"success"}),

		backupExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_expired_total",
			Help:      "Count of backup records removed for age",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.actionsTotal,
		m.actionDuration,
		m.commandsTotal,
		m.commandDuration,
		m.requestsTotal,
		m.requestLatency,
		m.notifications,
		m.backupExpired,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveAction(action, source string, success bool, elapsed time.Duration) {
	m.actionsTotal.With(prometheus.Labels{
		"action":  action,
		"source":  source,
		"success": strconv.FormatBool(success),
	}).Inc()
	m.actionDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveCommand labels by binary base name to keep cardinality low.
func (m *Metrics) ObserveCommand(name string, success bool, elapsed time.Duration) {
	base := filepath.Base(name)
	m.commandsTotal.WithLabelValues(base, strconv.FormatBool(success)).Inc()
	m.commandDuration.WithLabelValues(base).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.requestsTotal.With(labels).Inc()
	m.requestLatency.With(labels).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveNotification(success bool) {
	m.notifications.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *Metrics) ObserveBackupExpired() {
	m.backupExpired.Inc()
}
