package observability

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects request, error and auth counters in Prometheus.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	errors       *prometheus.CounterVec
	rejections   *prometheus.CounterVec
	tokensIssued *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventauth_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "path", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventauth_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventauth_http_errors_total",
			Help: "Error responses by error code.",
		}, []string{"method", "path", "code"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventauth_auth_rejections_total",
			Help: "Requests rejected by the access guard, by failure kind.",
		}, []string{"kind"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eventauth_tokens_issued_total",
			Help: "Bearer tokens issued, by role.",
		}, []string{"role"}),
	}

	reg.MustRegister(m.requests, m.duration, m.errors, m.rejections, m.tokensIssued)
	return m
}

// RecordRequest increments counters for requests. path should be a route
// template. Label values are copied since fiber reuses request buffers.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	path, method = utils.CopyString(path), utils.CopyString(method)
	m.requests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(utils.CopyString(method), utils.CopyString(path), code).Inc()
}

// RecordAuthRejection counts a guard rejection.
func (m *Metrics) RecordAuthRejection(kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}

// RecordTokenIssued counts a token issued for role.
func (m *Metrics) RecordTokenIssued(role string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(role).Inc()
}
