package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notification_dispatcher"

// Metrics stores Prometheus collectors used by the API, the dispatcher and its background
// loops. All methods are nil-safe.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal        *prometheus.CounterVec
	httpRequestDuration      *prometheus.HistogramVec
	notificationsSentTotal   *prometheus.CounterVec
	notificationsFailedTotal *prometheus.CounterVec
	sendAttemptDuration      *prometheus.HistogramVec
	retriesTotal             *prometheus.CounterVec
	asyncInflight            prometheus.Gauge
	asyncCallerRunsTotal     prometheus.Counter
	recoveryReplaysTotal     *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		notificationsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_sent_total",
				Help:      "Total number of notification logs finalized as SENT.",
			},
			[]string{"channel", "provider"},
		),
		notificationsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_failed_total",
				Help:      "Total number of notification logs finalized as FAILED.",
			},
			[]string{"channel", "reason"},
		),
		sendAttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_attempt_duration_seconds",
				Help:      "Duration of single provider send attempts grouped by channel and outcome.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel", "outcome"},
		),
		retriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_total",
				Help:      "Total number of retry attempts (attempt number 2 and above).",
			},
			[]string{"channel"},
		),
		asyncInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "async_inflight",
				Help:      "Current number of asynchronous dispatches queued or running.",
			},
		),
		asyncCallerRunsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "async_caller_runs_total",
				Help:      "Asynchronous dispatches executed on the submitting goroutine because the pool was saturated.",
			},
		),
		recoveryReplaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recovery_replays_total",
				Help:      "Failed notifications replayed by the recovery loop grouped by outcome.",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsSentTotal,
		m.notificationsFailedTotal,
		m.sendAttemptDuration,
		m.retriesTotal,
		m.asyncInflight,
		m.asyncCallerRunsTotal,
		m.recoveryReplaysTotal,
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
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationSent(channel domain.Channel, provider string) {
	if m == nil {
		return
	}
	providerLabel := strings.TrimSpace(strings.ToLower(provider))
	if providerLabel == "" {
		providerLabel = "unknown"
	}
	m.notificationsSentTotal.WithLabelValues(normalizeChannel(channel), providerLabel).Inc()
}

func (m *Metrics) IncNotificationFailed(channel domain.Channel, reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.notificationsFailedTotal.WithLabelValues(normalizeChannel(channel), reasonLabel).Inc()
}

func (m *Metrics) ObserveSendAttempt(channel domain.Channel, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	outcome := "error"
	if success {
		outcome = "success"
	}
	m.sendAttemptDuration.WithLabelValues(normalizeChannel(channel), outcome).Observe(seconds)
}

func (m *Metrics) IncRetry(channel domain.Channel) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncAsyncInFlight() {
	if m == nil {
		return
	}
	m.asyncInflight.Inc()
}

func (m *Metrics) DecAsyncInFlight() {
	if m == nil {
		return
	}
	m.asyncInflight.Dec()
}

func (m *Metrics) IncAsyncCallerRuns() {
	if m == nil {
		return
	}
	m.asyncCallerRunsTotal.Inc()
}

func (m *Metrics) IncRecoveryReplay(outcome string) {
	if m == nil {
		return
	}
	m.recoveryReplaysTotal.WithLabelValues(strings.ToLower(strings.TrimSpace(outcome))).Inc()
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
	if c == nil {
		return "unmatched"
	}

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
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeChannel(channel domain.Channel) string {
	normalized := strings.ToLower(strings.TrimSpace(channel.String()))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
