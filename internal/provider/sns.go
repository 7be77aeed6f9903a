package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
)

const snsProviderName = "aws-sns"

// SNSAPI is the subset of the SNS client the sender needs.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSSender delivers SMS through Amazon SNS direct publish.
type SNSSender struct {
	client SNSAPI
	logger *zap.Logger
	now    func() time.Time
}

func NewSNSSender(client SNSAPI, logger *zap.Logger) (*SNSSender, error) {
	if client == nil {
		return nil, fmt.Errorf("sns client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SNSSender{client: client, logger: logger, now: time.Now}, nil
}

func (s *SNSSender) Name() string { return snsProviderName }

func (s *SNSSender) Supports(channel domain.Channel) bool { return channel == domain.ChannelSMS }

func (s *SNSSender) Send(ctx context.Context, req domain.NotificationRequest) (*domain.NotificationResponse, error) {
	if req.Channel != domain.ChannelSMS {
		return nil, &ProviderError{Provider: snsProviderName, Message: fmt.Sprintf("cannot deliver %s", req.Channel)}
	}

	smsType := "Promotional"
	if req.Type != domain.TypeMarketing && req.Type != domain.TypeBroadcast {
		smsType = "Transactional"
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(req.Recipient),
		Message:     aws.String(req.Message),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {
				DataType:    aws.String("String"),
				StringValue: aws.String(smsType),
			},
		},
	}

	result, err := s.client.Publish(ctx, input, func(o *sns.Options) {
		o.RetryMaxAttempts = 1
	})
	if err != nil {
		return nil, classifyAWSError(snsProviderName, err)
	}

	messageID := aws.ToString(result.MessageId)
	s.logger.Debug("sms accepted by sns",
		zap.String("logId", LogIDFromContext(ctx)),
		zap.String("messageId", messageID),
	)

	return successResponse(snsProviderName, messageID, "sms accepted", s.now(), map[string]any{
		"smsType": smsType,
	}), nil
}
