package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

var hundred = decimal.NewFromInt(100)

// percentageTolerance allows for rounding drift when checking that installment
// shares cover the whole amount.
var percentageTolerance = decimal.NewFromFloat(0.01)

// GenerateInstallments expands a frequency into dated installments with equal
// percentage shares. Monthly plans produce 3 installments one calendar month
// apart, quarterly plans 4 installments three months apart. The last
// installment absorbs the rounding remainder so shares sum to exactly 100.00.
// Custom plans are caller-supplied; generating them is an error.
func GenerateInstallments(freq models.InstallmentFrequency, baseDue time.Time, graceDays int) ([]models.Installment, error) {
	var count, stepMonths int
	switch freq {
	case models.FrequencyMonthly:
		count, stepMonths = 3, 1
	case models.FrequencyQuarterly:
		count, stepMonths = 4, 3
	case models.FrequencyCustom:
		return nil, models.NewValidationError("custom installment plans must supply explicit installments")
	default:
		return nil, models.NewValidationError(fmt.Sprintf("unknown installment frequency %q", freq))
	}

	equal := hundred.Div(decimal.NewFromInt(int64(count))).Round(2)
	installments := make([]models.Installment, 0, count)
	for i := 0; i < count; i++ {
		share := equal
		if i == count-1 {
			share = hundred.Sub(equal.Mul(decimal.NewFromInt(int64(count - 1))))
		}
		pct := share
		installments = append(installments, models.Installment{
			Sequence:        i + 1,
			Name:            fmt.Sprintf("Installment %d", i+1),
			DueDate:         baseDue.AddDate(0, stepMonths*i, 0),
			Percentage:      &pct,
			GracePeriodDays: graceDays,
		})
	}
	return installments, nil
}

// ValidateSchedule checks the semantic invariants that struct tags cannot
// express. It returns operator warnings (which do not block saving) alongside
// a ValidationError covering every violated rule, or nil when the schedule is
// well formed. Pure; persistence concerns live elsewhere.
func ValidateSchedule(s *models.PaymentSchedule) ([]string, error) {
	var flds []models.FieldError
	var warnings []string

	if len(s.Grades) == 0 {
		flds = append(flds, models.FieldError{Field: "grades", Error: "at least one grade is required"})
	}
	if len(s.FeeItems) == 0 {
		flds = append(flds, models.FieldError{Field: "fee_items", Error: "at least one fee item is required"})
	}
	for i, item := range s.FeeItems {
		if item.AmountOverride != nil && item.AmountOverride.IsNegative() {
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("fee_items[%d].amount_override", i),
				Error: "amount override must not be negative",
			})
		}
	}

	flds = append(flds, validateLateFee(s.LateFee)...)
	flds = append(flds, validateReminders(s.Reminders)...)

	if s.IsInstallment {
		instFlds, instWarnings := validateInstallments(s)
		flds = append(flds, instFlds...)
		warnings = append(warnings, instWarnings...)
	}

	if len(flds) > 0 {
		return warnings, models.NewValidationError("invalid payment schedule", flds...)
	}
	return warnings, nil
}

func validateLateFee(p *models.LateFeePolicy) []models.FieldError {
	if p == nil {
		return nil
	}
	var flds []models.FieldError
	switch p.Type {
	case models.LateFeeFixed, models.LateFeeDaily:
		if p.Amount.IsNegative() {
			flds = append(flds, models.FieldError{Field: "late_fee_amount", Error: "amount must not be negative"})
		}
	case models.LateFeePercentage:
		if p.Rate.IsNegative() || p.Rate.GreaterThan(hundred) {
			flds = append(flds, models.FieldError{Field: "late_fee_percentage", Error: "rate must be between 0 and 100"})
		}
	default:
		flds = append(flds, models.FieldError{Field: "late_fee_type", Error: fmt.Sprintf("unknown late fee type %q", p.Type)})
	}
	if p.MaxAmount != nil && p.MaxAmount.IsNegative() {
		flds = append(flds, models.FieldError{Field: "late_fee_max_amount", Error: "cap must not be negative"})
	}
	return flds
}

func validateReminders(rules []models.ReminderRule) []models.FieldError {
	var flds []models.FieldError
	for i, r := range rules {
		if len(r.Channels) == 0 {
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("reminders[%d].notification_channels", i),
				Error: "at least one channel is required",
			})
		}
		switch r.Type {
		case models.ReminderBeforeDue:
			if r.OffsetDays <= 0 {
				flds = append(flds, models.FieldError{
					Field: fmt.Sprintf("reminders[%d].days_before", i),
					Error: "before_due reminders require a positive offset",
				})
			}
		case models.ReminderOnDue:
			if r.OffsetDays != 0 {
				flds = append(flds, models.FieldError{
					Field: fmt.Sprintf("reminders[%d].days_before", i),
					Error: "on_due reminders require a zero offset",
				})
			}
		case models.ReminderAfterDue:
			if r.OffsetDays >= 0 {
				flds = append(flds, models.FieldError{
					Field: fmt.Sprintf("reminders[%d].days_before", i),
					Error: "after_due reminders require a negative offset",
				})
			}
		default:
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("reminders[%d].reminder_type", i),
				Error: fmt.Sprintf("unknown reminder type %q", r.Type),
			})
		}
	}
	return flds
}

func validateInstallments(s *models.PaymentSchedule) ([]models.FieldError, []string) {
	var flds []models.FieldError
	var warnings []string

	if len(s.Installments) == 0 {
		flds = append(flds, models.FieldError{Field: "installments", Error: "installment plan is enabled but has no installments"})
		return flds, nil
	}

	seen := make(map[int]bool, len(s.Installments))
	pctSum := decimal.Zero
	var pctCount, fixedCount int
	for i, inst := range s.Installments {
		if seen[inst.Sequence] {
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("installments[%d].installment_number", i),
				Error: fmt.Sprintf("duplicate sequence number %d", inst.Sequence),
			})
		}
		seen[inst.Sequence] = true

		if inst.Percentage != nil && inst.FixedAmount != nil {
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("installments[%d]", i),
				Error: "an installment carries either a percentage or a fixed amount, not both",
			})
		}
		switch {
		case inst.Percentage != nil:
			pctCount++
			if inst.Percentage.IsNegative() {
				flds = append(flds, models.FieldError{
					Field: fmt.Sprintf("installments[%d].percentage", i),
					Error: "percentage must not be negative",
				})
			}
			pctSum = pctSum.Add(*inst.Percentage)
		case inst.FixedAmount != nil:
			fixedCount++
			if inst.FixedAmount.IsNegative() {
				flds = append(flds, models.FieldError{
					Field: fmt.Sprintf("installments[%d].fixed_amount", i),
					Error: "fixed amount must not be negative",
				})
			}
		default:
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("installments[%d]", i),
				Error: "an installment requires a percentage or a fixed amount",
			})
		}

		if inst.GracePeriodDays < 0 {
			flds = append(flds, models.FieldError{
				Field: fmt.Sprintf("installments[%d].grace_period_days", i),
				Error: "grace period must not be negative",
			})
		}

		if i > 0 {
			prev := s.Installments[i-1]
			if inst.DueDate.Before(prev.DueDate) {
				flds = append(flds, models.FieldError{
					Field: fmt.Sprintf("installments[%d].due_date", i),
					Error: "installment due dates must not precede earlier installments",
				})
			} else if inst.DueDate.Equal(prev.DueDate) {
				// Same-day split payments are legitimate; flag for the
				// operator instead of rejecting.
				warnings = append(warnings, fmt.Sprintf(
					"installments %d and %d share due date %s", prev.Sequence, inst.Sequence, inst.DueDate.Format("2006-01-02")))
			}
		}
	}

	if pctCount > 0 && fixedCount > 0 {
		flds = append(flds, models.FieldError{
			Field: "installments",
			Error: "percentage and fixed-amount shares cannot be mixed within one schedule",
		})
	}
	if pctCount > 0 && fixedCount == 0 {
		if pctSum.Sub(hundred).Abs().GreaterThan(percentageTolerance) {
			flds = append(flds, models.FieldError{
				Field: "installments",
				Error: fmt.Sprintf("installment percentages sum to %s, expected 100", pctSum.StringFixed(2)),
			})
		}
	}
	return flds, warnings
}
