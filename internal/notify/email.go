package notify

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/config"
	"github.com/edupay/fee-engine/internal/models"
)

// EmailSender delivers fee reminders to guardian email addresses via SMTP
type EmailSender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewEmailSender creates a new email sender
func NewEmailSender(cfg *config.Config, logger *logrus.Logger) *EmailSender {
	return &EmailSender{cfg: cfg, logger: logger}
}

// Send emails the rendered reminder to the student's guardian contact. The
// SMTP exchange runs under the caller's context so a stuck server cannot
// stall the reminder batch past its timeout.
func (s *EmailSender) Send(ctx context.Context, student models.Student, message string) error {
	if student.GuardianContact == "" {
		return fmt.Errorf("student %s has no guardian contact", student.ID)
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{student.GuardianContact}
	e.Subject = "Fee Payment Reminder"
	e.Text = []byte(message)

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)

	done := make(chan error, 1)
	go func() { done <- e.Send(addr, auth) }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			s.logger.Errorf("Failed to send email to %s: %v", student.GuardianContact, err)
			return fmt.Errorf("failed to send email: %w", err)
		}
	}

	s.logger.Infof("Email sent to %s: %s", student.GuardianContact, e.Subject)
	return nil
}
