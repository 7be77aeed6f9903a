package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateRecipient(t *testing.T) {
	t.Parallel()

	validToken := strings.Repeat("aB3:_-", 20)

	tests := []struct {
		name      string
		channel   Channel
		recipient string
		wantErr   bool
	}{
		{name: "email ok", channel: ChannelEmail, recipient: "jane.doe+tag@mail.example.com"},
		{name: "email missing tld", channel: ChannelEmail, recipient: "jane@localhost", wantErr: true},
		{name: "email one letter tld", channel: ChannelEmail, recipient: "jane@example.c", wantErr: true},
		{name: "email missing local", channel: ChannelEmail, recipient: "@example.com", wantErr: true},
		{name: "email double dot", channel: ChannelEmail, recipient: "jane..doe@example.com", wantErr: true},
		{name: "email with spaces", channel: ChannelEmail, recipient: "jane doe@example.com", wantErr: true},

		{name: "sms e164", channel: ChannelSMS, recipient: "+905551112233"},
		{name: "sms shortest", channel: ChannelSMS, recipient: "+12"},
		{name: "sms missing plus", channel: ChannelSMS, recipient: "905551112233", wantErr: true},
		{name: "sms leading zero", channel: ChannelSMS, recipient: "+05551112233", wantErr: true},
		{name: "sms too long", channel: ChannelSMS, recipient: "+1234567890123456", wantErr: true},

		{name: "whatsapp phone", channel: ChannelWhatsApp, recipient: "+14155550100"},
		{name: "whatsapp group", channel: ChannelWhatsApp, recipient: "team.ops-1@g.us"},
		{name: "whatsapp bad group host", channel: ChannelWhatsApp, recipient: "team@g.com", wantErr: true},

		{name: "push token", channel: ChannelPush, recipient: validToken},
		{name: "push token too short", channel: ChannelPush, recipient: strings.Repeat("a", 99), wantErr: true},
		{name: "push token too long", channel: ChannelPush, recipient: strings.Repeat("a", 501), wantErr: true},
		{name: "push token bad chars", channel: ChannelPush, recipient: strings.Repeat("a", 99) + "/", wantErr: true},

		{name: "in-app user", channel: ChannelInApp, recipient: "user_42.a-b"},
		{name: "in-app too long", channel: ChannelInApp, recipient: strings.Repeat("u", 101), wantErr: true},
		{name: "in-app bad chars", channel: ChannelInApp, recipient: "user@42", wantErr: true},

		{name: "blank recipient", channel: ChannelEmail, recipient: "   ", wantErr: true},
		{name: "unknown channel", channel: Channel("FAX"), recipient: "x", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateRecipient(tt.channel, tt.recipient)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("ValidateRecipient() unexpected error = %v", err)
				}
				return
			}

			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ValidateRecipient() error = %v, want ErrValidation", err)
			}
			var fieldErr *FieldError
			if !errors.As(err, &fieldErr) {
				t.Fatalf("expected *FieldError, got %T", err)
			}
			if fieldErr.Channel != tt.channel {
				t.Fatalf("FieldError.Channel = %s, want %s", fieldErr.Channel, tt.channel)
			}
		})
	}
}
