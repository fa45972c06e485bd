// Package metrics exposes Prometheus collectors for the proxy.
//
// Collectors are registered on an injected registry so tests can use a
// private one. No collector carries a per-key label.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyrelay"

// Metrics records proxy activity.
type Metrics struct {
	requests        *prometheus.CounterVec
	upstreamErrors  prometheus.Counter
	requestDuration *prometheus.HistogramVec
	rotations       *prometheus.CounterVec
	credentials     prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them on reg.
// A nil reg creates a private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of proxied requests by credential placement and response code",
			},
			[]string{"placement", "code"},
		),
		upstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of requests that failed before an upstream response arrived",
		}),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of proxied requests in seconds",
				Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"placement"},
		),
		rotations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rotations_total",
				Help:      "Total number of cursor advances made without forwarding a request",
			},
			[]string{"trigger"},
		),
		credentials: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "credentials_configured",
			Help:      "Number of API keys loaded at startup",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.requests, m.upstreamErrors, m.requestDuration, m.rotations, m.credentials)
	return m
}

// ObserveRequest records one completed request.
func (m *Metrics) ObserveRequest(placement string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(placement, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(placement).Observe(d.Seconds())
}

// UpstreamError records a transport-level failure.
func (m *Metrics) UpstreamError() {
	if m == nil {
		return
	}
	m.upstreamErrors.Inc()
}

// Rotated records a manual cursor advance.
func (m *Metrics) Rotated(trigger string) {
	if m == nil {
		return
	}
	m.rotations.WithLabelValues(trigger).Inc()
}

// SetCredentials records the number of loaded keys.
func (m *Metrics) SetCredentials(n int) {
	if m == nil {
		return
	}
	m.credentials.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
