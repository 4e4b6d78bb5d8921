package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/models"
)

// ChannelSender delivers a message to one student over a single channel.
type ChannelSender interface {
	Send(ctx context.Context, student models.Student, message string) error
}

// Registry routes dispatch requests to the sender registered for each
// channel. It is the engine's single NotificationSender.
type Registry struct {
	senders map[models.Channel]ChannelSender
	log     *logrus.Logger
}

// NewRegistry creates an empty sender registry
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{senders: make(map[models.Channel]ChannelSender), log: log}
}

// Register binds a sender to a channel, replacing any previous binding.
func (r *Registry) Register(ch models.Channel, sender ChannelSender) {
	r.senders[ch] = sender
}

// Send delivers one message over one channel.
func (r *Registry) Send(ctx context.Context, student models.Student, ch models.Channel, message string) error {
	sender, ok := r.senders[ch]
	if !ok {
		return fmt.Errorf("no sender registered for channel %q", ch)
	}
	if err := sender.Send(ctx, student, message); err != nil {
		return fmt.Errorf("failed to send via %s: %w", ch, err)
	}
	return nil
}
