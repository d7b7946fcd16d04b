// Package metrics provides Prometheus instrumentation for the terminal.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// GatewayRequestsTotal counts gateway calls by method, resource and status.
	GatewayRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "econsim_gateway_requests_total",
		Help: "Total requests sent to the game service",
	}, []string{"method", "resource", "status"})

	// GatewayRequestDuration tracks gateway latency.
	GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "econsim_gateway_request_duration_seconds",
		Help:    "Game service request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "resource"})

	// SourceRefreshesTotal counts data source refreshes by outcome
	// (applied, failed, discarded).
	SourceRefreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "econsim_source_refreshes_total",
		Help: "Data source refreshes by outcome",
	}, []string{"source", "outcome"})

	// SourceClearsTotal counts gated sources cleared by a selection change.
	SourceClearsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "econsim_source_clears_total",
		Help: "Data sources cleared on selection change",
	}, []string{"source"})

	// MutationsTotal counts user mutations by action and outcome.
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "econsim_mutations_total",
		Help: "User mutations by action and outcome",
	}, []string{"action", "outcome"})

	// HTTPRequestsTotal counts status server requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "econsim_http_requests_total",
		Help: "Status server requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks status server latency by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "econsim_http_request_duration_seconds",
		Help:    "Status server request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// EventClients tracks connected event stream clients.
	EventClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "econsim_event_clients",
		Help: "Connected event stream clients",
	})

	// TapeTrades tracks the number of trades held by the session tape.
	TapeTrades = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "econsim_tape_trades",
		Help: "Trades accumulated in the session trade tape",
	})
)

// ObserveRequest records one gateway call.
func ObserveRequest(method, resource string, status int, duration time.Duration) {
	GatewayRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	GatewayRequestDuration.WithLabelValues(method, resource).Observe(duration.Seconds())
}

// ObserveHTTP records one status server request.
func ObserveHTTP(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
