package handler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/observability"
	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	"github.com/kursadbilgin/notification-dispatcher/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
	maxFailedLimit  = 1000
	maxBatchSize    = 1000
)

type NotificationService interface {
	Dispatch(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error)
	DispatchAsync(ctx context.Context, req domain.NotificationRequest) (<-chan service.DispatchResult, error)
	DispatchBatch(ctx context.Context, reqs []domain.NotificationRequest) (*service.BatchResult, error)
	Resend(ctx context.Context, id string) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.NotificationLog, error)
	Attempts(ctx context.Context, logID string) ([]domain.NotificationAttempt, error)
	History(ctx context.Context, params repository.ListParams) ([]domain.NotificationLog, int64, error)
	FailedNotifications(ctx context.Context, limit int) ([]domain.NotificationLog, error)
}

// RecoveryTrigger runs one recovery scan on demand.
type RecoveryTrigger interface {
	RunOnce(ctx context.Context) (service.RecoveryReport, error)
}

type NotificationHandler struct {
	service  NotificationService
	recovery RecoveryTrigger
}

func NewNotificationHandler(service NotificationService, recovery RecoveryTrigger) (*NotificationHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	if recovery == nil {
		return nil, fmt.Errorf("recovery trigger is required")
	}
	return &NotificationHandler{service: service, recovery: recovery}, nil
}

func RegisterNotificationRoutes(router fiber.Router, service NotificationService, recovery RecoveryTrigger) error {
	h, err := NewNotificationHandler(service, recovery)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1/notifications")
	v1.Post("/send", h.Send)
	v1.Post("/batch", h.SendBatch)
	v1.Get("/history", h.History)
	v1.Get("/failed", h.Failed)
	v1.Post("/retry-failed", h.RetryFailed)
	v1.Get("/:id", h.GetNotification)
	v1.Get("/:id/attempts", h.GetAttempts)
	v1.Post("/:id/resend", h.Resend)

	return nil
}

type sendNotificationRequest struct {
	Channel   string            `json:"channel"`
	Type      string            `json:"type"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Message   string            `json:"message"`
	Priority  string            `json:"priority"`
	Metadata  map[string]string `json:"metadata"`
	Data      map[string]any    `json:"data"`
	Async     bool              `json:"async"`
}

type sendBatchRequest struct {
	Notifications []sendNotificationRequest `json:"notifications"`
}

type sendNotificationResponse struct {
	Success           bool           `json:"success"`
	Message           string         `json:"message,omitempty"`
	NotificationID    string         `json:"notificationId,omitempty"`
	ProviderMessageID string         `json:"providerMessageId,omitempty"`
	Timestamp         time.Time      `json:"timestamp"`
	Details           map[string]any `json:"details,omitempty"`
}

type notificationLogResponse struct {
	ID                string            `json:"id"`
	Channel           string            `json:"channel"`
	Type              string            `json:"type"`
	Recipient         string            `json:"recipient"`
	Subject           string            `json:"subject,omitempty"`
	Message           string            `json:"message"`
	Status            string            `json:"status"`
	Provider          string            `json:"provider,omitempty"`
	ProviderMessageID string            `json:"providerMessageId,omitempty"`
	ErrorMessage      string            `json:"errorMessage,omitempty"`
	Priority          string            `json:"priority"`
	RetryCount        int               `json:"retryCount"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
	SentAt            *time.Time        `json:"sentAt,omitempty"`
}

type attemptResponse struct {
	AttemptNumber     int       `json:"attemptNumber"`
	Provider          string    `json:"provider"`
	ProviderMessageID *string   `json:"providerMessageId,omitempty"`
	Error             *string   `json:"error,omitempty"`
	DurationMillis    int64     `json:"durationMs"`
	CreatedAt         time.Time `json:"createdAt"`
}

type listNotificationsResponse struct {
	Data []notificationLogResponse `json:"data"`
	Meta listMeta                  `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *NotificationHandler) Send(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notification, err := toDomainRequest(req)
	if err != nil {
		return err
	}

	ctx := requestContext(c)
	if notification.Async {
		if _, err := h.service.DispatchAsync(ctx, notification); err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"accepted": true,
			"channel":  notification.Channel.String(),
		})
	}

	resp, err := h.service.Dispatch(ctx, notification)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(sendNotificationResponse{
		Success:           resp.Success,
		Message:           resp.Message,
		NotificationID:    resp.NotificationID,
		ProviderMessageID: resp.ProviderMessageID,
		Timestamp:         resp.Timestamp,
		Details:           resp.Details,
	})
}

func (h *NotificationHandler) SendBatch(c *fiber.Ctx) error {
	var req sendBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Notifications) == 0 {
		return fmt.Errorf("%w: notifications is required", domain.ErrValidation)
	}
	if len(req.Notifications) > maxBatchSize {
		return fmt.Errorf("%w: batch size %d exceeds limit %d", domain.ErrValidation, len(req.Notifications), maxBatchSize)
	}

	notifications := make([]domain.NotificationRequest, 0, len(req.Notifications))
	var rejected []service.BatchRejection
	indexes := make([]int, 0, len(req.Notifications))
	for i, item := range req.Notifications {
		n, err := toDomainRequest(item)
		if err != nil {
			rejected = append(rejected, service.BatchRejection{Index: i, Reason: err.Error()})
			continue
		}
		notifications = append(notifications, n)
		indexes = append(indexes, i)
	}

	result := &service.BatchResult{}
	if len(notifications) > 0 {
		var err error
		result, err = h.service.DispatchBatch(requestContext(c), notifications)
		if err != nil {
			return err
		}
		// Re-index service rejections to positions in the submitted payload.
		for i := range result.Rejections {
			result.Rejections[i].Index = indexes[result.Rejections[i].Index]
		}
	}

	result.Total = len(req.Notifications)
	result.Rejected += len(rejected)
	result.Rejections = append(rejected, result.Rejections...)
	sort.Slice(result.Rejections, func(i, j int) bool {
		return result.Rejections[i].Index < result.Rejections[j].Index
	})

	return c.Status(fiber.StatusAccepted).JSON(result)
}

func (h *NotificationHandler) GetNotification(c *fiber.Ctx) error {
	entry, err := h.service.GetByID(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toLogResponse(entry))
}

func (h *NotificationHandler) GetAttempts(c *fiber.Ctx) error {
	attempts, err := h.service.Attempts(c.Context(), strings.TrimSpace(c.Params("id")))
	if err != nil {
		return err
	}

	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			AttemptNumber:     a.AttemptNumber,
			Provider:          a.Provider,
			ProviderMessageID: a.ProviderMessageID,
			Error:             a.Error,
			DurationMillis:    a.DurationMillis,
			CreatedAt:         a.CreatedAt,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": out})
}

func (h *NotificationHandler) Resend(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	ok, err := h.service.Resend(requestContext(c), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"notificationId": id,
		"success":        ok,
	})
}

func (h *NotificationHandler) History(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	entries, total, err := h.service.History(c.Context(), params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(listNotificationsResponse{
		Data: toLogResponses(entries),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

// Failed lists every row the recovery loop would replay. An optional limit caps the
// answer to the oldest rows.
func (h *NotificationHandler) Failed(c *fiber.Ctx) error {
	limit := 0
	if c.Query("limit") != "" {
		limit = c.QueryInt("limit", 0)
		if limit < 1 || limit > maxFailedLimit {
			return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxFailedLimit)
		}
	}

	entries, err := h.service.FailedNotifications(requestContext(c), limit)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"data":  toLogResponses(entries),
		"total": len(entries),
	})
}

func (h *NotificationHandler) RetryFailed(c *fiber.Ctx) error {
	report, err := h.recovery.RunOnce(requestContext(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(report)
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if recipient := strings.TrimSpace(c.Query("recipient")); recipient != "" {
		params.Recipient = &recipient
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return repository.ListParams{}, fmt.Errorf("%w: to must not be before from", domain.ErrValidation)
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

// toDomainRequest parses enum fields; everything else is validated by the dispatcher.
func toDomainRequest(req sendNotificationRequest) (domain.NotificationRequest, error) {
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return domain.NotificationRequest{}, err
	}

	n := domain.NotificationRequest{
		Channel:   channel,
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Message:   req.Message,
		Metadata:  req.Metadata,
		Data:      req.Data,
		Async:     req.Async,
	}

	if strings.TrimSpace(req.Type) != "" {
		if n.Type, err = domain.ParseTypeFromString(req.Type); err != nil {
			return domain.NotificationRequest{}, err
		}
	}
	if strings.TrimSpace(req.Priority) != "" {
		if n.Priority, err = domain.ParsePriorityFromString(req.Priority); err != nil {
			return domain.NotificationRequest{}, err
		}
	}

	return n, nil
}

// requestContext carries the request correlation id into service calls.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func toLogResponses(entries []domain.NotificationLog) []notificationLogResponse {
	responses := make([]notificationLogResponse, 0, len(entries))
	for i := range entries {
		responses = append(responses, toLogResponse(&entries[i]))
	}
	return responses
}

func toLogResponse(l *domain.NotificationLog) notificationLogResponse {
	if l == nil {
		return notificationLogResponse{}
	}

	return notificationLogResponse{
		ID:                l.ID,
		Channel:           l.Channel.String(),
		Type:              l.Type.String(),
		Recipient:         l.Recipient,
		Subject:           l.Subject,
		Message:           l.Message,
		Status:            l.Status.String(),
		Provider:          l.Provider,
		ProviderMessageID: l.ProviderMessageID,
		ErrorMessage:      l.ErrorMessage,
		Priority:          l.Priority.String(),
		RetryCount:        l.RetryCount,
		Metadata:          l.Metadata,
		CreatedAt:         l.CreatedAt,
		UpdatedAt:         l.UpdatedAt,
		SentAt:            l.SentAt,
	}
}
