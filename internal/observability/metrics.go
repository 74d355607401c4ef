package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "care_dispatch"

// Metrics stores the Prometheus collectors for access checks, dispatch and HTTP.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	permissionChecksTotal *prometheus.CounterVec
	notificationsSent     *prometheus.CounterVec
	notificationsFailed   *prometheus.CounterVec
	sendDuration          *prometheus.HistogramVec
	sendsInflight         *prometheus.GaugeVec
	retriesTotal          *prometheus.CounterVec
	dispatchTimeoutsTotal prometheus.Counter
	breakerOpen           *prometheus.GaugeVec
	alertsProcessedTotal  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		permissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "permission_checks_total",
				Help:      "Access decisions by data category, decision and reason.",
			},
			[]string{"category", "decision", "reason"},
		),
		notificationsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Notifications accepted by a provider.",
			},
			[]string{"channel"},
		),
		notificationsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Notifications that ended in failed state.",
			},
			[]string{"channel", "reason"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "notification_send_duration_seconds",
				Help:      "Provider send duration in seconds by channel.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		sendsInflight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sends_inflight",
				Help:      "Provider sends currently in progress by channel.",
			},
			[]string{"channel"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notification_retries_total",
				Help:      "Retry sends by channel and outcome status.",
			},
			[]string{"channel", "status"},
		),
		dispatchTimeoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_timeouts_total",
				Help:      "Dispatches abandoned after the aggregate timeout.",
			},
		),
		breakerOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_breaker_open",
				Help:      "1 while a provider circuit breaker is open or half-open.",
			},
			[]string{"provider"},
		),
		alertsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_processed_total",
				Help:      "Queued alerts handled by the worker, by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.permissionChecksTotal,
		m.notificationsSent,
		m.notificationsFailed,
		m.sendDuration,
		m.sendsInflight,
		m.retriesTotal,
		m.dispatchTimeoutsTotal,
		m.breakerOpen,
		m.alertsProcessedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncPermissionCheck(category string, allowed bool, reason string) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.permissionChecksTotal.WithLabelValues(normalizeLabel(category), decision, normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncNotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notificationsSent.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) IncNotificationFailed(channel string, reason string) {
	if m == nil {
		return
	}
	m.notificationsFailed.WithLabelValues(normalizeLabel(channel), normalizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.WithLabelValues(normalizeLabel(channel)).Observe(max(duration.Seconds(), 0))
}

// TrackSend marks a send as in flight and returns the func that ends it.
func (m *Metrics) TrackSend(channel string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.sendsInflight.WithLabelValues(normalizeLabel(channel))
	gauge.Inc()
	return gauge.Dec
}

func (m *Metrics) IncRetry(channel string, status string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(status)).Inc()
}

func (m *Metrics) IncDispatchTimeout() {
	if m == nil {
		return
	}
	m.dispatchTimeoutsTotal.Inc()
}

func (m *Metrics) SetBreakerOpen(provider string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1
	}
	m.breakerOpen.WithLabelValues(normalizeLabel(provider)).Set(value)
}

func (m *Metrics) IncAlertProcessed(outcome string) {
	if m == nil {
		return
	}
	m.alertsProcessedTotal.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		// The error handler runs after this middleware and may already have set the code.
		if status := c.Response().StatusCode(); status >= fiber.StatusBadRequest {
			return status
		}
		return fiber.StatusInternalServerError
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
