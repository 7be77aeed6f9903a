package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithTimeout_DeadlineIsTransient(t *testing.T) {
	t.Parallel()

	slow := &fakeSender{
		name:     "slow",
		channels: []domain.Channel{domain.ChannelPush},
		sendFn: func(ctx context.Context, _ domain.NotificationRequest) (*domain.NotificationResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	sender := WithTimeout(slow, 10*time.Millisecond)
	if sender.Name() != "slow" || !sender.Supports(domain.ChannelPush) {
		t.Fatal("timeout wrapper should delegate Name and Supports")
	}

	_, err := sender.Send(context.Background(), domain.NotificationRequest{Channel: domain.ChannelPush})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}

	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Provider != "slow" {
		t.Fatalf("expected ProviderError from slow, got %#v", err)
	}
}

func TestWithTimeout_CallerCancellationPassesThrough(t *testing.T) {
	t.Parallel()

	blocked := &fakeSender{
		name:     "blocked",
		channels: []domain.Channel{domain.ChannelPush},
		sendFn: func(ctx context.Context, _ domain.NotificationRequest) (*domain.NotificationResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WithTimeout(blocked, time.Minute).Send(ctx, domain.NotificationRequest{Channel: domain.ChannelPush})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		t.Fatalf("caller cancellation must not be wrapped, got %#v", perr)
	}
}

func TestWithTimeout_NonPositiveReturnsSender(t *testing.T) {
	t.Parallel()

	base := &fakeSender{name: "base", channels: []domain.Channel{domain.ChannelEmail}}
	if got := WithTimeout(base, 0); got != Sender(base) {
		t.Fatalf("expected unwrapped sender, got %T", got)
	}
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	if _, err := NewLogSender(nil); err == nil {
		t.Fatal("expected error without channels")
	}

	core, recorded := observer.New(zapcore.InfoLevel)
	sender, err := NewLogSender(zap.New(core), domain.ChannelPush, domain.ChannelWhatsApp)
	if err != nil {
		t.Fatalf("NewLogSender() error = %v", err)
	}
	if sender.Supports(domain.ChannelEmail) {
		t.Fatal("log sender should not support EMAIL")
	}

	ctx := ContextWithLogID(context.Background(), "log-1")
	resp, err := sender.Send(ctx, domain.NotificationRequest{
		Channel:   domain.ChannelWhatsApp,
		Type:      domain.TypeAlert,
		Recipient: "+905551112233",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !resp.Success || resp.Provider() != "log" || resp.ProviderMessageID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	entries := recorded.FilterMessage("notification sent").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["logId"]; got != "log-1" {
		t.Fatalf("logId = %v, want log-1", got)
	}

	if _, err := sender.Send(ctx, domain.NotificationRequest{Channel: domain.ChannelEmail}); err == nil {
		t.Fatal("expected error for unsupported channel")
	}
}
