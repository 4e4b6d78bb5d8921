package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is derived from amounts, never stored as source of truth
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
	StatusOverdue PaymentStatus = "overdue"
)

// StudentScheduleStatus is one row of the ledger projection: a student's
// position against one installment (or the whole schedule when not
// installment-based). Rebuilt on demand from payment history.
type StudentScheduleStatus struct {
	StudentID       string          `json:"student_id"`
	StudentName     string          `json:"student_name"`
	Grade           string          `json:"grade"`
	InstallmentID   string          `json:"installment_id,omitempty"`
	InstallmentName string          `json:"installment_name,omitempty"`
	DueDate         time.Time       `json:"due_date"`
	GracePeriodDays int             `json:"grace_period_days"`
	AmountDue       decimal.Decimal `json:"total_amount_due"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	LateFee         decimal.Decimal `json:"late_fees"`
	Balance         decimal.Decimal `json:"balance_amount"`
	Status          PaymentStatus   `json:"payment_status"`
}

// ScheduleRollup is the schedule-level summary used for dashboard figures,
// computed in a single pass over the per-student projection.
type ScheduleRollup struct {
	TotalStudents int             `json:"total_students"`
	Paid          int             `json:"paid_students"`
	Partial       int             `json:"partial_students"`
	Pending       int             `json:"pending_students"`
	Overdue       int             `json:"overdue_students"`
	TotalDue      decimal.Decimal `json:"total_due"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalLateFees decimal.Decimal `json:"total_late_fees"`
	TotalBalance  decimal.Decimal `json:"total_balance"`
	// Unresolved lists students whose grade no fee item covers. Surfaced
	// loudly instead of defaulting their dues to zero.
	Unresolved []string `json:"unresolved,omitempty"`
}

// ScheduleStatusView is the exposed shape of getStatus
type ScheduleStatusView struct {
	Rollup     ScheduleRollup          `json:"rollup"`
	PerStudent []StudentScheduleStatus `json:"per_student"`
}

// RecomputeReport summarises one daily batch run.
type RecomputeReport struct {
	AsOf               time.Time `json:"as_of"`
	SchedulesProcessed int       `json:"schedules_processed"`
	RemindersSent      int       `json:"reminders_sent"`
	Failures           []string  `json:"failures,omitempty"`
}

// BulkStatusResult is one entry of a bulk activate/deactivate outcome.
type BulkStatusResult struct {
	ScheduleID string `json:"schedule_id"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
}
