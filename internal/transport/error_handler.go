package transport

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"go.uber.org/zap"
)

const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeChannelNotSupported = "CHANNEL_NOT_SUPPORTED"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeRetryExhausted      = "RETRY_EXHAUSTED"
	CodeSendFailed          = "SEND_FAILED"
	CodeInternal            = "INTERNAL_ERROR"
	CodeRequest             = "REQUEST_ERROR"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code      string         `json:"code"`
	Error     string         `json:"error"`
	Path      string         `json:"path"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *fiber.Ctx, err error) error {
		status, code, details := Classify(err)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.String("code", code),
			zap.Error(err),
		}
		if status >= fiber.StatusInternalServerError {
			logger.Error("request error", fields...)
		} else {
			logger.Warn("request rejected", fields...)
		}

		return c.Status(status).JSON(ErrorBody{
			Code:      code,
			Error:     err.Error(),
			Path:      c.Path(),
			Timestamp: time.Now().UTC(),
			Details:   details,
		})
	}
}

// Classify maps an error to its HTTP status, stable error code and optional details.
func Classify(err error) (int, string, map[string]any) {
	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		details := map[string]any{"field": fieldErr.Field}
		if fieldErr.Channel != "" {
			details["channel"] = fieldErr.Channel.String()
		}
		return fiber.StatusBadRequest, CodeValidation, details
	}

	var exhausted *domain.RetryExhaustedError
	if errors.As(err, &exhausted) {
		return fiber.StatusServiceUnavailable, CodeRetryExhausted, map[string]any{
			"notificationId": exhausted.LogID,
			"attempts":       exhausted.Attempts,
			"maxAttempts":    exhausted.MaxAttempts,
		}
	}

	var providerErr *provider.ProviderError
	if errors.As(err, &providerErr) {
		details := map[string]any{"provider": providerErr.Provider}
		if providerErr.StatusCode != 0 {
			details["providerStatus"] = providerErr.StatusCode
		}
		return fiber.StatusBadGateway, CodeSendFailed, details
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, codeForStatus(fiberErr.Code), nil
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest, CodeValidation, nil
	case errors.Is(err, domain.ErrChannelNotSupported):
		return fiber.StatusBadRequest, CodeChannelNotSupported, nil
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound, CodeNotFound, nil
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict, CodeConflict, nil
	case errors.Is(err, domain.ErrRetryExhausted):
		return fiber.StatusServiceUnavailable, CodeRetryExhausted, nil
	case errors.Is(err, domain.ErrSendFailed):
		return fiber.StatusBadGateway, CodeSendFailed, nil
	default:
		return fiber.StatusInternalServerError, CodeInternal, nil
	}
}

func codeForStatus(status int) string {
	switch {
	case status == fiber.StatusBadRequest:
		return CodeValidation
	case status == fiber.StatusNotFound:
		return CodeNotFound
	case status == fiber.StatusConflict:
		return CodeConflict
	case status >= fiber.StatusInternalServerError:
		return CodeInternal
	default:
		return CodeRequest
	}
}
