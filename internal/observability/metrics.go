// Package observability holds the Prometheus instruments of the dashboard
// client. Every Metrics value owns its own registry.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the client.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	StreamMessages    *prometheus.CounterVec
	MalformedPayloads prometheus.Counter
	DeviceChanges     *prometheus.CounterVec
	DiscoveryLatency  prometheus.Histogram
	ConnectionState   *prometheus.GaugeVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		StreamMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_messages_total",
			Help:      "Stream messages by direction and type.",
		}, []string{"direction", "type"}),
		MalformedPayloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_malformed_payloads_total",
			Help:      "Inbound stream payloads that failed to decode.",
		}),
		DeviceChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_changes_total",
			Help:      "Device change commands by device type and outcome.",
		}, []string{"device_type", "outcome"}),
		DiscoveryLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "discovery_latency_ms",
			Help:      "Latency of the device discovery request in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		ConnectionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "1 for the current stream connection state, 0 otherwise.",
		}, []string{"state"}),
	}
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveMessage(direction, msgType string) {
	if m == nil {
		return
	}
	if msgType == "" {
		msgType = "unknown"
	}
	m.StreamMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ObserveMalformed() {
	if m == nil {
		return
	}
	m.MalformedPayloads.Inc()
}

func (m *Metrics) ObserveDeviceChange(deviceType, outcome string) {
	if m == nil {
		return
	}
	m.DeviceChanges.WithLabelValues(deviceType, outcome).Inc()
}

func (m *Metrics) ObserveDiscovery(d time.Duration) {
	if m == nil {
		return
	}
	m.DiscoveryLatency.Observe(float64(d.Milliseconds()))
}

// SetConnectionState marks state as current and clears the others.
func (m *Metrics) SetConnectionState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

// Handler serves the private registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
