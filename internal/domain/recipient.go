package domain

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	emailPattern       = regexp.MustCompile(`^[A-Za-z0-9!#$%&'*+/=?^_{|}~.-]+@(?:[A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?\.)+[A-Za-z]{2,}$`)
	phonePattern       = regexp.MustCompile(`^\+[1-9][0-9]{1,14}$`)
	whatsAppGroup      = regexp.MustCompile(`^[A-Za-z0-9._-]+@g\.us$`)
	pushTokenPattern   = regexp.MustCompile(`^[A-Za-z0-9:_-]{100,500}$`)
	inAppUserIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)
)

const maxEmailLength = 254

// ValidateRecipient checks that recipient has the shape the channel expects. It never
// touches the network; channel-specific formatting beyond shape is the sender's job.
func ValidateRecipient(channel Channel, recipient string) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return &FieldError{Field: "recipient", Channel: channel, Reason: "recipient is required"}
	}

	switch channel {
	case ChannelEmail:
		if !isValidEmail(recipient) {
			return recipientError(channel, fmt.Sprintf("'%s' is not a valid email address", recipient))
		}
	case ChannelSMS:
		if !phonePattern.MatchString(recipient) {
			return recipientError(channel, fmt.Sprintf("'%s' is not a valid E.164 phone number", recipient))
		}
	case ChannelWhatsApp:
		if !phonePattern.MatchString(recipient) && !whatsAppGroup.MatchString(recipient) {
			return recipientError(channel, fmt.Sprintf("'%s' is not a valid WhatsApp recipient (phone number or group ID)", recipient))
		}
	case ChannelPush:
		if !pushTokenPattern.MatchString(recipient) {
			return recipientError(channel, fmt.Sprintf("'%s' is not a valid push notification token", recipient))
		}
	case ChannelInApp:
		if !inAppUserIDPattern.MatchString(recipient) {
			return recipientError(channel, fmt.Sprintf("'%s' is not a valid user identifier", recipient))
		}
	default:
		return &FieldError{Field: "channel", Channel: channel, Reason: fmt.Sprintf("invalid channel %q", channel)}
	}

	return nil
}

func isValidEmail(email string) bool {
	if len(email) > maxEmailLength || strings.Contains(email, "..") {
		return false
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || strings.HasPrefix(email, ".") || email[at-1] == '.' {
		return false
	}
	return emailPattern.MatchString(email)
}

func recipientError(channel Channel, reason string) *FieldError {
	return &FieldError{Field: "recipient", Channel: channel, Reason: reason}
}
