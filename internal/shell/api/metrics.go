package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metrics
// =============================================================================

// Metrics holds the Prometheus metrics exported by the API.
type Metrics struct {
	// HTTP metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Planning metrics
	PlansCreated *prometheus.CounterVec
	PlanWaves    prometheus.Histogram
	PlanErrors   *prometheus.CounterVec

	// Execution metrics
	RunsSubmitted prometheus.Counter
}

// NewMetrics creates the API metrics and registers them with registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waveplan_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "waveplan_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PlansCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waveplan_plans_created_total",
				Help: "Total number of deployment plans created",
			},
			[]string{"strategy"},
		),
		PlanWaves: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "waveplan_plan_waves",
				Help:    "Number of waves per created plan",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
			},
		),
		PlanErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "waveplan_plan_errors_total",
				Help: "Total number of rejected planning requests",
			},
			[]string{"code"},
		),
		RunsSubmitted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "waveplan_runs_submitted_total",
				Help: "Total number of plan executions started",
			},
		),
	}
}

// instrument records request counts and latency by route pattern.
func (m *Metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.Requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
