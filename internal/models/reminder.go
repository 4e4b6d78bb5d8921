package models

import "time"

// ReminderType positions a rule relative to the due date
type ReminderType string

const (
	ReminderBeforeDue ReminderType = "before_due"
	ReminderOnDue     ReminderType = "on_due"
	ReminderAfterDue  ReminderType = "after_due"
)

// Channel is a notification delivery channel
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// ReminderRule is a timing offset plus message template for notifying
// guardians. OffsetDays is positive for before-due rules, zero for on-due and
// negative for after-due.
type ReminderRule struct {
	ID         string       `json:"id"`
	Type       ReminderType `json:"reminder_type"`
	OffsetDays int          `json:"days_before"`
	Channels   []Channel    `json:"notification_channels"`
	Active     bool         `json:"is_active"`
	Template   string       `json:"custom_message,omitempty"`
}

// ReminderDispatch records one attempted delivery. The five-part natural key
// guarantees at-most-once delivery per trigger per student; uniqueness is
// enforced by the storage layer, not in-process.
type ReminderDispatch struct {
	ScheduleID    string    `json:"schedule_id"`
	InstallmentID string    `json:"installment_id,omitempty"`
	StudentID     string    `json:"student_id"`
	RuleID        string    `json:"rule_id"`
	TriggerDate   time.Time `json:"trigger_date"`
	SentAt        time.Time `json:"sent_at"`
	Delivered     bool      `json:"delivered"`
}

// Key returns the dispatch natural key.
func (d ReminderDispatch) Key() DispatchKey {
	return DispatchKey{d.ScheduleID, d.InstallmentID, d.StudentID, d.RuleID, d.TriggerDate.Format("2006-01-02")}
}

// DispatchKey is the comparable form of a dispatch natural key.
type DispatchKey struct {
	ScheduleID    string
	InstallmentID string
	StudentID     string
	RuleID        string
	TriggerDate   string
}

// DispatchRequest is one rendered reminder awaiting delivery.
type DispatchRequest struct {
	ScheduleID    string    `json:"schedule_id"`
	InstallmentID string    `json:"installment_id,omitempty"`
	StudentID     string    `json:"student_id"`
	RuleID        string    `json:"rule_id"`
	TriggerDate   time.Time `json:"trigger_date"`
	Channels      []Channel `json:"channels"`
	Message       string    `json:"message"`
}

// Key returns the dedup key this request would occupy in the dispatch log.
func (r DispatchRequest) Key() DispatchKey {
	return DispatchKey{r.ScheduleID, r.InstallmentID, r.StudentID, r.RuleID, r.TriggerDate.Format("2006-01-02")}
}

// DispatchReport summarises a reminder run: how many were delivered and which
// students failed. Partial failure is reported, never thrown.
type DispatchReport struct {
	Sent   int      `json:"sent"`
	Failed []string `json:"failed"`
}
