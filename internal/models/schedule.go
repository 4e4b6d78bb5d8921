package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus is the lifecycle state of a payment schedule
type ScheduleStatus string

const (
	ScheduleDraft    ScheduleStatus = "draft"
	ScheduleActive   ScheduleStatus = "active"
	ScheduleInactive ScheduleStatus = "inactive"
)

// InstallmentFrequency determines how installments are generated
type InstallmentFrequency string

const (
	FrequencyMonthly   InstallmentFrequency = "monthly"
	FrequencyQuarterly InstallmentFrequency = "quarterly"
	FrequencyCustom    InstallmentFrequency = "custom"
)

// FeeItem links a schedule to a fee category, optionally overriding the catalog amount
type FeeItem struct {
	FeeCategoryID  string           `json:"fee_category_id" validate:"required"`
	AmountOverride *decimal.Decimal `json:"amount_override,omitempty"`
}

// PaymentSchedule represents a fee collection schedule for a cohort of students
type PaymentSchedule struct {
	ID              string               `json:"id"`
	SchoolID        string               `json:"school_id" validate:"required"`
	Name            string               `json:"schedule_name" validate:"required"`
	Description     string               `json:"description,omitempty"`
	AcademicYear    string               `json:"academic_year" validate:"required"`
	DueDate         time.Time            `json:"due_date" validate:"required"`
	GracePeriodDays int                  `json:"grace_period_days" validate:"gte=0"`
	Grades          []string             `json:"grades" validate:"min=1,dive,required"`
	FeeItems        []FeeItem            `json:"fee_items" validate:"min=1,dive"`
	IsInstallment   bool                 `json:"is_installment"`
	Frequency       InstallmentFrequency `json:"installment_frequency,omitempty"`
	Installments    []Installment        `json:"installments,omitempty"`
	LateFee         *LateFeePolicy       `json:"late_fee,omitempty"`
	Reminders       []ReminderRule       `json:"reminders,omitempty"`
	Status          ScheduleStatus       `json:"status"`
	Version         int                  `json:"version"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

// InstallmentDueDate returns the due date for a given installment id, falling
// back to the schedule's own due date for non-installment schedules.
func (s *PaymentSchedule) InstallmentDueDate(installmentID string) time.Time {
	for i := range s.Installments {
		if s.Installments[i].ID == installmentID {
			return s.Installments[i].DueDate
		}
	}
	return s.DueDate
}
