package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass names
const (
	PassDiscovery = "discovery"
	PassDelivery  = "delivery"
)

// Discovery results
const (
	DiscoveryCreated  = "created"
	DiscoveryExisting = "existing"
	DiscoveryError    = "error"
)

// Delivery outcomes
const (
	OutcomeSent     = "sent"
	OutcomeRetrying = "retrying"
	OutcomeFailed   = "failed"
	OutcomeSkipped  = "skipped"
	OutcomeError    = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birthday_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birthday_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	discoveryRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birthday_discovery_records_total",
			Help: "Notification records considered by the discovery pass, by result",
		},
		[]string{"result"},
	)

	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birthday_delivery_attempts_total",
			Help: "Due records handled by the delivery pass, by outcome",
		},
		[]string{"outcome"},
	)

	passDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "birthday_pass_duration_seconds",
			Help:    "Wall time of one discovery or delivery pass",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
		},
		[]string{"pass"},
	)

	passFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "birthday_pass_failures_total",
			Help: "Passes abandoned because the store could not be enumerated",
		},
		[]string{"pass"},
	)

	dueRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "birthday_due_records",
			Help: "PENDING records returned by the last delivery pass",
		},
	)

	claimsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birthday_claims_rejected_total",
			Help: "Delivery attempts skipped because another pass held the claim",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "birthday_rate_limit_rejections_total",
			Help: "API requests rejected by the rate limiter",
		},
	)

	circuitState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "birthday_sender_circuit_state",
			Help: "Circuit breaker state per sender (0=closed, 1=open, 2=half-open)",
		},
		[]string{"sender"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDiscovery counts one CreateIfAbsent result
func RecordDiscovery(result string) {
	discoveryRecords.WithLabelValues(result).Inc()
}

// RecordDelivery counts one due record's outcome
func RecordDelivery(outcome string) {
	deliveryAttempts.WithLabelValues(outcome).Inc()
}

// ObservePass records how long a pass took
func ObservePass(pass string, d time.Duration) {
	passDuration.WithLabelValues(pass).Observe(d.Seconds())
}

// RecordPassFailure counts a pass abandoned before processing any record
func RecordPassFailure(pass string) {
	passFailures.WithLabelValues(pass).Inc()
}

func SetDueRecords(n int) {
	dueRecords.Set(float64(n))
}

func RecordClaimRejected() {
	claimsRejected.Inc()
}

func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

func SetCircuitState(sender string, state int) {
	circuitState.WithLabelValues(sender).Set(float64(state))
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request metrics labelled by chi route pattern,
// keeping ids out of the label set.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		RecordRequest(r.Method, path, wrapped.status, time.Since(start))
	})
}
