package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Installment is one dated partial obligation within a schedule. Exactly one of
// Percentage or FixedAmount is set; mixing share kinds within a schedule is
// rejected at validation time.
type Installment struct {
	ID              string           `json:"id"`
	ScheduleID      string           `json:"schedule_id"`
	Sequence        int              `json:"installment_number"`
	Name            string           `json:"installment_name"`
	DueDate         time.Time        `json:"due_date"`
	Percentage      *decimal.Decimal `json:"percentage,omitempty"`
	FixedAmount     *decimal.Decimal `json:"fixed_amount,omitempty"`
	GracePeriodDays int              `json:"grace_period_days"`
}

// Share resolves the amount this installment contributes out of a student's
// total. Percentage shares are rounded to two decimal places.
func (i *Installment) Share(total decimal.Decimal) decimal.Decimal {
	if i.FixedAmount != nil {
		return *i.FixedAmount
	}
	if i.Percentage != nil {
		return total.Mul(*i.Percentage).Div(decimal.NewFromInt(100)).Round(2)
	}
	return total
}
