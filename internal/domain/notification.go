package domain

import (
	"fmt"
	"maps"
	"regexp"
	"strings"
	"time"
)

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelPush     Channel = "PUSH"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelInApp    Channel = "IN_APP"
)

var allChannels = []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp, ChannelInApp}

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelWhatsApp, ChannelInApp:
		return true
	}
	return false
}

// Channels returns every known channel in declaration order.
func Channels() []Channel {
	out := make([]Channel, len(allChannels))
	copy(out, allChannels)
	return out
}

func ParseChannelFromString(s string) (Channel, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	ch := Channel(normalized)
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// NotificationType classifies the business purpose of a notification.
type NotificationType string

const (
	TypeTransactional NotificationType = "TRANSACTIONAL"
	TypeMarketing     NotificationType = "MARKETING"
	TypeAlert         NotificationType = "ALERT"
	TypeVerification  NotificationType = "VERIFICATION"
	TypeReminder      NotificationType = "REMINDER"
	TypeSupport       NotificationType = "SUPPORT"
	TypeSystem        NotificationType = "SYSTEM"
	TypeBroadcast     NotificationType = "BROADCAST"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeTransactional, TypeMarketing, TypeAlert, TypeVerification,
		TypeReminder, TypeSupport, TypeSystem, TypeBroadcast:
		return true
	}
	return false
}

func ParseTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// Priority represents the message priority level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	pr := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !pr.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return pr, nil
}

// Request limits.
const (
	MaxMessageLength = 5000
	MaxSubjectLength = 255
)

var metadataKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NotificationRequest is a single dispatch instruction. Callers build it once and the
// dispatcher works on a normalized copy.
type NotificationRequest struct {
	Channel   Channel
	Type      NotificationType
	Recipient string
	Subject   string
	Message   string
	Priority  Priority
	Metadata  map[string]string
	Data      map[string]any
	Async     bool
}

// Normalized returns a trimmed copy with defaults applied and maps cloned, so later
// mutation of the caller's maps cannot leak into an in-flight dispatch.
func (r NotificationRequest) Normalized() NotificationRequest {
	out := r
	out.Recipient = strings.TrimSpace(r.Recipient)
	out.Subject = strings.TrimSpace(r.Subject)
	out.Message = strings.TrimSpace(r.Message)
	if out.Type == "" {
		out.Type = TypeTransactional
	}
	if out.Priority == "" {
		out.Priority = PriorityMedium
	}
	out.Metadata = maps.Clone(r.Metadata)
	out.Data = maps.Clone(r.Data)
	return out
}

// Validate checks every field including the channel-specific recipient shape.
func (r NotificationRequest) Validate() error {
	if !r.Channel.IsValid() {
		return &FieldError{Field: "channel", Channel: r.Channel, Reason: fmt.Sprintf("invalid channel %q", r.Channel)}
	}
	if !r.Type.IsValid() {
		return &FieldError{Field: "type", Channel: r.Channel, Reason: fmt.Sprintf("invalid notification type %q", r.Type)}
	}
	if !r.Priority.IsValid() {
		return &FieldError{Field: "priority", Channel: r.Channel, Reason: fmt.Sprintf("invalid priority %q", r.Priority)}
	}
	if err := ValidateRecipient(r.Channel, r.Recipient); err != nil {
		return err
	}

	messageLen := len([]rune(r.Message))
	if messageLen == 0 {
		return &FieldError{Field: "message", Channel: r.Channel, Reason: "message is required"}
	}
	if messageLen > MaxMessageLength {
		return &FieldError{
			Field:   "message",
			Channel: r.Channel,
			Reason:  fmt.Sprintf("message exceeds %d characters (got %d)", MaxMessageLength, messageLen),
		}
	}
	if subjectLen := len([]rune(r.Subject)); subjectLen > MaxSubjectLength {
		return &FieldError{
			Field:   "subject",
			Channel: r.Channel,
			Reason:  fmt.Sprintf("subject exceeds %d characters (got %d)", MaxSubjectLength, subjectLen),
		}
	}

	for key, value := range r.Metadata {
		if !metadataKeyPattern.MatchString(key) {
			return &FieldError{Field: "metadata", Channel: r.Channel, Reason: fmt.Sprintf("invalid metadata key %q", key)}
		}
		if strings.TrimSpace(value) == "" {
			return &FieldError{Field: "metadata", Channel: r.Channel, Reason: fmt.Sprintf("metadata %q has a blank value", key)}
		}
	}
	for key, value := range r.Data {
		if strings.TrimSpace(key) == "" {
			return &FieldError{Field: "data", Channel: r.Channel, Reason: "data keys must not be blank"}
		}
		if value == nil {
			return &FieldError{Field: "data", Channel: r.Channel, Reason: fmt.Sprintf("data %q has a null value", key)}
		}
	}

	return nil
}

// NotificationResponse is what a channel sender reports back for one attempt.
type NotificationResponse struct {
	Success           bool
	Message           string
	NotificationID    string
	ProviderMessageID string
	Timestamp         time.Time
	Details           map[string]any
}

// DetailProvider is the Details key carrying the name of the sender that handled a send.
const DetailProvider = "provider"

// Provider returns the provider name reported in Details, if any.
func (r *NotificationResponse) Provider() string {
	if r == nil || r.Details == nil {
		return ""
	}
	name, _ := r.Details[DetailProvider].(string)
	return name
}
