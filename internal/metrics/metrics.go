// Package metrics exposes Prometheus collectors for the HTTP surface, the
// generation provider, the rate limiter and the job worker.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the registered collectors. All names carry the
// "deckslayer_" prefix.
type Metrics struct {
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	RateLimited      *prometheus.CounterVec
	Jobs             *prometheus.CounterVec
	LedgerDebits     *prometheus.CounterVec
}

// New returns the process-wide collectors, registering them on first use.
func New() *Metrics {
	once.Do(func() {
		global = &Metrics{
			HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deckslayer_http_requests_total",
				Help: "HTTP requests by route pattern, method and status code.",
			}, []string{"route", "method", "code"}),
			HTTPDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "deckslayer_http_request_duration_seconds",
				Help:    "HTTP request latency by route pattern.",
				Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
			}, []string{"route"}),
			ProviderCalls: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deckslayer_provider_calls_total",
				Help: "Generation provider calls by model, operation and outcome.",
			}, []string{"model", "op", "outcome"}),
			ProviderDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "deckslayer_provider_call_duration_seconds",
				Help:    "Generation provider call latency.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			}, []string{"model", "op"}),
			RateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deckslayer_rate_limited_total",
				Help: "Requests rejected by the rate limiter, by policy.",
			}, []string{"policy"}),
			Jobs: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deckslayer_jobs_total",
				Help: "Background jobs processed by type and outcome.",
			}, []string{"type", "outcome"}),
			LedgerDebits: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "deckslayer_ledger_debits_total",
				Help: "Credits consumed by operation.",
			}, []string{"operation"}),
		}
	})
	return global
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency keyed by chi route pattern,
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveProvider matches llm.Observer.
func (m *Metrics) ObserveProvider(model, op string, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderCalls.WithLabelValues(model, op, outcome).Inc()
	m.ProviderDuration.WithLabelValues(model, op).Observe(elapsed.Seconds())
}

// ObserveJob matches the worker's observer callback.
func (m *Metrics) ObserveJob(jobType, outcome string) {
	m.Jobs.WithLabelValues(jobType, outcome).Inc()
}
