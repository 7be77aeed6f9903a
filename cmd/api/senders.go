package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/kursadbilgin/notification-dispatcher/internal/config"
	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"github.com/kursadbilgin/notification-dispatcher/internal/provider"
	"go.uber.org/zap"
)

// buildSenders creates one sender per configured channel, each wrapped with its channel
// timeout. Channels left without a provider fall back to the log sender when enabled.
func buildSenders(
	ctx context.Context,
	cfg *config.Config,
	inAppStore provider.InAppStore,
	pusher provider.RealtimePusher,
	logger *zap.Logger,
) ([]provider.Sender, error) {
	var senders []provider.Sender
	bound := make(map[domain.Channel]bool)

	add := func(channel domain.Channel, sender provider.Sender) {
		senders = append(senders, provider.WithTimeout(sender, cfg.SendTimeout(channel)))
		bound[channel] = true
	}

	if cfg.EmailProviderEnabled || cfg.SMSProviderEnabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		endpoint := strings.TrimSpace(cfg.AWSEndpointURL)

		if cfg.EmailProviderEnabled {
			client := ses.NewFromConfig(awsCfg, func(o *ses.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			})
			sender, err := provider.NewSESSender(client, cfg.SESFromEmail, logger)
			if err != nil {
				return nil, err
			}
			add(domain.ChannelEmail, sender)
		}

		if cfg.SMSProviderEnabled {
			client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
				if endpoint != "" {
					o.BaseEndpoint = aws.String(endpoint)
				}
			})
			sender, err := provider.NewSNSSender(client, logger)
			if err != nil {
				return nil, err
			}
			add(domain.ChannelSMS, sender)
		}
	}

	webhooks := []struct {
		name    string
		channel domain.Channel
		url     string
	}{
		{name: "push-webhook", channel: domain.ChannelPush, url: cfg.PushWebhookURL},
		{name: "whatsapp-webhook", channel: domain.ChannelWhatsApp, url: cfg.WhatsAppWebhookURL},
	}
	for _, wh := range webhooks {
		if strings.TrimSpace(wh.url) == "" {
			continue
		}
		sender, err := provider.NewWebhookSender(wh.name, wh.channel, wh.url)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s sender: %w", wh.name, err)
		}
		add(wh.channel, sender)
	}

	inApp, err := provider.NewInAppSender(inAppStore, pusher, logger)
	if err != nil {
		return nil, err
	}
	add(domain.ChannelInApp, inApp)

	var missing []domain.Channel
	for _, ch := range domain.Channels() {
		if !bound[ch] {
			missing = append(missing, ch)
		}
	}
	if len(missing) > 0 {
		if !cfg.LogSenderFallback {
			logger.Warn("channels without a provider will be rejected", zap.Any("channels", missing))
			return senders, nil
		}
		fallback, err := provider.NewLogSender(logger, missing...)
		if err != nil {
			return nil, err
		}
		senders = append(senders, fallback)
		logger.Info("log sender bound to channels without a provider", zap.Any("channels", missing))
	}

	return senders, nil
}
