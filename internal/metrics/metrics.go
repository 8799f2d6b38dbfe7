// Package metrics exposes Prometheus metrics for mount round trips.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "starbook"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	commands  *prometheus.CounterVec
	failures  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	connected prometheus.Gauge
	slewing   prometheus.Gauge
}

// New registers the collectors plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands sent to the mount by command and reported code.",
		}, []string{"command", "code"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_failures_total",
			Help:      "Commands that failed before a device status was known, by command and error kind.",
		}, []string{"command", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Round-trip time of mount commands.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mount_reachable",
			Help:      "1 if the last mount health check succeeded.",
		}),
		slewing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "mount_slewing",
			Help:      "1 while the last status poll reported a GOTO in progress.",
		}),
	}

	m.registry.MustRegister(
		m.commands,
		m.failures,
		m.latency,
		m.connected,
		m.slewing,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCommand records a round trip that produced a device status.
func (m *Metrics) ObserveCommand(command, code string, d time.Duration) {
	m.commands.WithLabelValues(command, code).Inc()
	m.latency.WithLabelValues(command).Observe(d.Seconds())
}

// ObserveFailure records a round trip that failed with a hard error of kind.
func (m *Metrics) ObserveFailure(command, kind string, d time.Duration) {
	m.failures.WithLabelValues(command, kind).Inc()
	m.latency.WithLabelValues(command).Observe(d.Seconds())
}

// SetReachable updates the reachability gauge.
func (m *Metrics) SetReachable(ok bool) {
	m.connected.Set(boolValue(ok))
}

// SetSlewing updates the slewing gauge.
func (m *Metrics) SetSlewing(ok bool) {
	m.slewing.Set(boolValue(ok))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
