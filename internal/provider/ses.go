package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
)

const sesProviderName = "aws-ses"

// SESAPI is the subset of the SES client the sender needs.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESSender delivers EMAIL through Amazon SES.
type SESSender struct {
	client SESAPI
	from   string
	logger *zap.Logger
	now    func() time.Time
}

func NewSESSender(client SESAPI, fromEmail string, logger *zap.Logger) (*SESSender, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, fmt.Errorf("ses from address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SESSender{
		client: client,
		from:   strings.TrimSpace(fromEmail),
		logger: logger,
		now:    time.Now,
	}, nil
}

func (s *SESSender) Name() string { return sesProviderName }

func (s *SESSender) Supports(channel domain.Channel) bool { return channel == domain.ChannelEmail }

func (s *SESSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if req.Channel != domain.ChannelEmail {
		return nil, &ProviderError{Provider: sesProviderName, Message: fmt.Sprintf("cannot deliver %s", req.Channel)}
	}

	subject := req.Subject
	if subject == "" {
		subject = defaultSubject(req.Type)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{req.Recipient},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(req.Message),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input, func(o *ses.Options) {
		o.RetryMaxAttempts = 1
	})
	if err != nil {
		return nil, classifyAWSError(sesProviderName, err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Debug("email accepted by ses",
		zap.String("logId", LogIDFromContext(ctx)),
		zap.String("messageId", messageID),
	)

	return successResponse(sesProviderName, messageID, "email accepted", s.now(), nil), nil
}

func defaultSubject(t domain.NotificationType) string {
	if t == "" {
		return "Notification"
	}
	name := strings.ToLower(t.String())
	return strings.ToUpper(name[:1]) + name[1:] + " notification"
}
