// Package obs holds Prometheus instrumentation for the gateway.
package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "dirgate_http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dirgate_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	proxyRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirgate_proxy_requests_total",
			Help: "Proxied gateway calls by actor type, method and outcome.",
		},
		[]string{"actor_type", "method", "outcome"},
	)

	tokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirgate_token_refreshes_total",
			Help: "Delegated-credential token exchanges by result.",
		},
		[]string{"result"},
	)

	syncOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dirgate_sync_outcomes_total",
			Help: "Mirror sync attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all collectors with the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestDuration,
		proxyRequestsTotal,
		tokenRefreshesTotal,
		syncOutcomesTotal,
	)
}

// Handler returns the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveProxyCall records one finished gateway call.
func ObserveProxyCall(actorType, method, outcome string) {
	proxyRequestsTotal.WithLabelValues(actorType, method, outcome).Inc()
}

// ObserveTokenRefresh records one token exchange result ("ok" or "failed").
func ObserveTokenRefresh(result string) {
	tokenRefreshesTotal.WithLabelValues(result).Inc()
}

// ObserveSyncOutcome records one interpreter run.
func ObserveSyncOutcome(outcome string) {
	syncOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Instrument wraps a handler with request duration and in-flight tracking.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		httpRequestDuration.WithLabelValues(r.Method, strconv.Itoa(sw.code)).Observe(time.Since(start).Seconds())
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush passes through so proxied responses can stream.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer, which
// the websocket upgrade needs.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
