// Package metrics provides Prometheus instrumentation for the wager engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// WagersTotal counts recorded wagers, partitioned by prediction.
	WagersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_wagers_total",
		Help: "Total number of wagers recorded",
	}, []string{"prediction"})

	// WagerRejections counts placement attempts that failed a precondition.
	WagerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_rejections_total",
		Help: "Wager placements rejected, by error code",
	}, []string{"code"})

	// WagerLatency tracks end-to-end placement latency.
	WagerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wager_place_latency_seconds",
		Help:    "Wager placement latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// AppliedWagers counts wagers folded into market aggregates.
	AppliedWagers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_applied_total",
		Help: "Wagers applied to market and user aggregates",
	})

	// MarketVolume tracks cumulative staked amount per market and side.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_market_volume_total",
		Help: "Cumulative staked amount",
	}, []string{"market_id", "prediction"})

	// MarketsResolved counts resolutions by outcome.
	MarketsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_markets_resolved_total",
		Help: "Markets resolved, by outcome",
	}, []string{"outcome"})

	// SettledWagers counts wagers settled by resolutions.
	SettledWagers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_settled_wagers_total",
		Help: "Wagers settled",
	})

	// ChartPoints counts appended chart samples.
	ChartPoints = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wager_chart_points_total",
		Help: "Chart points recorded",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wager_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wager_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wager_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps the path label low-cardinality.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
