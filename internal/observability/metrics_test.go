package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDispatchCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncNotificationSent(domain.ChannelSMS, "AWS-SNS")
	metrics.IncNotificationFailed(domain.ChannelSMS, "retry_exhausted")
	metrics.ObserveSendAttempt(domain.ChannelSMS, true, 120*time.Millisecond)
	metrics.IncRetry(domain.ChannelSMS)
	metrics.IncAsyncInFlight()
	metrics.DecAsyncInFlight()
	metrics.IncAsyncCallerRuns()
	metrics.IncRecoveryReplay("Replayed")

	if got := testutil.ToFloat64(metrics.notificationsSentTotal.WithLabelValues("sms", "aws-sns")); got != 1 {
		t.Fatalf("notifications_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsFailedTotal.WithLabelValues("sms", "retry_exhausted")); got != 1 {
		t.Fatalf("notifications_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retriesTotal.WithLabelValues("sms")); got != 1 {
		t.Fatalf("retries_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.asyncInflight); got != 0 {
		t.Fatalf("async_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.asyncCallerRunsTotal); got != 1 {
		t.Fatalf("async_caller_runs_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.recoveryReplaysTotal.WithLabelValues("replayed")); got != 1 {
		t.Fatalf("recovery_replays_total = %v, want 1", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncNotificationSent(domain.ChannelEmail, "ses")
	metrics.IncRetry(domain.ChannelEmail)
	metrics.IncAsyncCallerRuns()
	if metrics.Handler() == nil {
		t.Fatal("nil metrics should fall back to the default handler")
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
