package provider

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
)

const logProviderName = "log"

// LogSender only logs what it would have sent. It backs channels that have no real provider
// configured in development.
type LogSender struct {
	channels []domain.Channel
	logger   *zap.Logger
	now      func() time.Time
}

func NewLogSender(logger *zap.Logger, channels ...domain.Channel) (*LogSender, error) {
	if len(channels) == 0 {
		return nil, fmt.Errorf("log sender needs at least one channel")
	}
	for _, ch := range channels {
		if !ch.IsValid() {
			return nil, fmt.Errorf("invalid channel %q", ch)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LogSender{channels: slices.Clone(channels), logger: logger, now: time.Now}, nil
}

func (s *LogSender) Name() string { return logProviderName }

func (s *LogSender) Supports(channel domain.Channel) bool {
	return slices.Contains(s.channels, channel)
}

func (s *LogSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if !s.Supports(req.Channel) {
		return nil, &ProviderError{Provider: logProviderName, Message: fmt.Sprintf("cannot deliver %s", req.Channel)}
	}

	messageID := uuid.NewString()
	s.logger.Info("notification sent",
		zap.String("logId", LogIDFromContext(ctx)),
		zap.String("channel", req.Channel.String()),
		zap.String("recipient", req.Recipient),
		zap.String("type", req.Type.String()),
		zap.String("messageId", messageID),
	)

	return successResponse(logProviderName, messageID, "notification logged", s.now(), nil), nil
}
