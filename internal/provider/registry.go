package provider

import (
	"fmt"

	"github.com/kursadbilgin/notification-dispatcher/internal/domain"
)

// Registry maps each channel to exactly one sender. It is built once at startup and is
// read-only afterwards.
type Registry struct {
	senders map[domain.Channel]Sender
}

func NewRegistry(senders ...Sender) (*Registry, error) {
	r := &Registry{senders: make(map[domain.Channel]Sender, len(domain.Channels()))}

	for _, sender := range senders {
		if sender == nil {
			return nil, fmt.Errorf("sender is required")
		}

		bound := false
		for _, ch := range domain.Channels() {
			if !sender.Supports(ch) {
				continue
			}
			if existing, ok := r.senders[ch]; ok {
				return nil, fmt.Errorf("channel %s already bound to %s, cannot bind %s", ch, existing.Name(), sender.Name())
			}
			r.senders[ch] = sender
			bound = true
		}
		if !bound {
			return nil, fmt.Errorf("sender %s supports no known channel", sender.Name())
		}
	}

	return r, nil
}

// Resolve returns the sender bound to channel. There is no fallback channel.
func (r *Registry) Resolve(channel domain.Channel) (Sender, error) {
	if r != nil {
		if sender, ok := r.senders[channel]; ok {
			return sender, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrChannelNotSupported, channel)
}

// Channels lists the bound channels in declaration order.
func (r *Registry) Channels() []domain.Channel {
	if r == nil {
		return nil
	}

	out := make([]domain.Channel, 0, len(r.senders))
	for _, ch := range domain.Channels() {
		if _, ok := r.senders[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}
