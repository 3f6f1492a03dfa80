// Package metrics provides Prometheus instrumentation for the proxy. All
// collectors are registered by Init and exposed through Handler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestsTotal counts handled requests by rule, method, and status code.
	// Requests no rule matched are labelled "passthrough".
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devproxy_requests_total",
			Help: "Total HTTP requests handled, by matched rule",
		},
		[]string{"rule", "method", "status"},
	)

	// RequestDuration observes end-to-end latency in seconds by rule.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devproxy_request_duration_seconds",
			Help:    "Request latency in seconds, including the upstream round trip",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rule"},
	)

	// ActiveRequests tracks the number of in-flight requests.
	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "devproxy_active_requests",
			Help: "Number of in-flight requests currently being proxied",
		},
	)

	// UpstreamErrors counts requests the proxy answered itself because the
	// upstream could not be used. kind is one of unreachable, timeout,
	// cancelled, websocket_disabled.
	UpstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devproxy_upstream_errors_total",
			Help: "Total requests that failed before an upstream response was relayed",
		},
		[]string{"rule", "kind"},
	)
)

var registerOnce sync.Once

// Init registers all collectors with the default Prometheus registry. Safe
// to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestsTotal,
			RequestDuration,
			ActiveRequests,
			UpstreamErrors,
		)
	})
}

// Handler returns an http.Handler that serves the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe records one completed request.
func Observe(rule, method string, status int, latency time.Duration) {
	RequestsTotal.WithLabelValues(rule, method, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(rule).Observe(latency.Seconds())
}
