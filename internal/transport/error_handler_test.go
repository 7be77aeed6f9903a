package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "field error",
			err:        &domain.FieldError{Field: "recipient", Channel: domain.ChannelSMS, Reason: "bad"},
			wantStatus: 400,
			wantCode:   CodeValidation,
		},
		{
			name:       "wrapped validation",
			err:        fmt.Errorf("%w: page must be >= 1", domain.ErrValidation),
			wantStatus: 400,
			wantCode:   CodeValidation,
		},
		{
			name:       "channel not supported",
			err:        fmt.Errorf("%w: WHATSAPP", domain.ErrChannelNotSupported),
			wantStatus: 400,
			wantCode:   CodeChannelNotSupported,
		},
		{
			name:       "not found",
			err:        domain.ErrNotFound,
			wantStatus: 404,
			wantCode:   CodeNotFound,
		},
		{
			name:       "conflict",
			err:        fmt.Errorf("%w: already sent", domain.ErrConflict),
			wantStatus: 409,
			wantCode:   CodeConflict,
		},
		{
			name:       "retry exhausted",
			err:        &domain.RetryExhaustedError{LogID: "l1", MaxAttempts: 3, Attempts: 3},
			wantStatus: 503,
			wantCode:   CodeRetryExhausted,
		},
		{
			name:       "permanent provider error",
			err:        &provider.ProviderError{Provider: "aws-ses", StatusCode: 400, Message: "rejected"},
			wantStatus: 502,
			wantCode:   CodeSendFailed,
		},
		{
			name:       "fiber error",
			err:        fiber.NewError(fiber.StatusBadRequest, "invalid request body"),
			wantStatus: 400,
			wantCode:   CodeValidation,
		},
		{
			name:       "unknown",
			err:        errors.New("boom"),
			wantStatus: 500,
			wantCode:   CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			status, code, _ := Classify(tt.err)
			if status != tt.wantStatus || code != tt.wantCode {
				t.Fatalf("Classify() = %d/%s, want %d/%s", status, code, tt.wantStatus, tt.wantCode)
			}
		})
	}
}

func TestErrorHandlerWritesStructuredBody(t *testing.T) {
	t.Parallel()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zap.NewNop())})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return &domain.FieldError{Field: "recipient", Channel: domain.ChannelEmail, Reason: "not an email"}
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	raw, _ := io.ReadAll(resp.Body)
	var body ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if body.Code != CodeValidation || body.Path != "/fail" {
		t.Fatalf("body = %+v", body)
	}
	if body.Details["field"] != "recipient" || body.Details["channel"] != "EMAIL" {
		t.Fatalf("details = %v", body.Details)
	}
	if body.Timestamp.IsZero() {
		t.Fatal("timestamp should be set")
	}
}
