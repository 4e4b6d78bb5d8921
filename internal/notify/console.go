package notify

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/models"
)

// ConsoleSender logs messages instead of delivering them. Used for the in_app
// and push channels until their transports are wired, and in development.
type ConsoleSender struct {
	channel models.Channel
	logger  *logrus.Logger
}

// NewConsoleSender creates a console sender for a channel
func NewConsoleSender(ch models.Channel, logger *logrus.Logger) *ConsoleSender {
	return &ConsoleSender{channel: ch, logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, student models.Student, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"channel": s.channel,
		"student": student.ID,
	}).Infof("Reminder: %s", message)
	return nil
}
