package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	NotificationID string            `json:"notificationId,omitempty"`
	To             string            `json:"to"`
	Channel        string            `json:"channel"`
	Type           string            `json:"type"`
	Priority       string            `json:"priority"`
	Subject        string            `json:"subject,omitempty"`
	Content        string            `json:"content"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Data           map[string]any    `json:"data,omitempty"`
}

type webhookResponse struct {
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}

// WebhookSender delivers one channel through an HTTP gateway (push relay, WhatsApp
// business gateway).
type WebhookSender struct {
	name     string
	channel  domain.Channel
	client   *resty.Client
	endpoint string
	now      func() time.Time
}

func NewWebhookSender(name string, channel domain.Channel, endpoint string) (*WebhookSender, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookSenderWithClient(name, channel, endpoint, client)
}

func NewWebhookSenderWithClient(name string, channel domain.Channel, endpoint string, client *resty.Client) (*WebhookSender, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("webhook sender name is required")
	}
	if !channel.IsValid() {
		return nil, fmt.Errorf("invalid webhook channel %q", channel)
	}
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	// Retries belong to the dispatch retry policy, not the HTTP client.
	client.SetRetryCount(0)

	return &WebhookSender{
		name:     name,
		channel:  channel,
		client:   client,
		endpoint: trimmedEndpoint,
		now:      time.Now,
	}, nil
}

func (p *WebhookSender) Name() string { return p.name }

func (p *WebhookSender) Supports(channel domain.Channel) bool { return channel == p.channel }

func (p *WebhookSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if req.Channel != p.channel {
		return nil, &ProviderError{
			Provider: p.name,
			Message:  fmt.Sprintf("%s sender cannot deliver %s", p.channel, req.Channel),
		}
	}

	logID := LogIDFromContext(ctx)
	reqBody := webhookRequest{
		NotificationID: logID,
		To:             req.Recipient,
		Channel:        strings.ToLower(req.Channel.String()),
		Type:           req.Type.String(),
		Priority:       req.Priority.String(),
		Subject:        req.Subject,
		Content:        req.Message,
		Metadata:       req.Metadata,
		Data:           req.Data,
	}

	var parsed webhookResponse
	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&parsed)
	if logID != "" {
		request.SetHeader("Idempotency-Key", logID)
	}

	response, err := request.Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Provider:  p.name,
			Message:   "provider request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &ProviderError{
			Provider:  p.name,
			Message:   "provider returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		messageID := providerMessageID(response, parsed)
		return successResponse(p.name, messageID, fmt.Sprintf("%s notification accepted", strings.ToLower(p.channel.String())), p.now(), map[string]any{
			"statusCode": statusCode,
		}), nil
	}

	return nil, &ProviderError{
		Provider:   p.name,
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		(statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func providerMessageID(response *resty.Response, parsed webhookResponse) string {
	if id := strings.TrimSpace(parsed.MessageID); id != "" {
		return id
	}
	if id := strings.TrimSpace(parsed.ID); id != "" {
		return id
	}
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
