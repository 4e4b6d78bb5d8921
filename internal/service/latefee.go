package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

// ComputeLateFee returns the penalty accrued on an outstanding balance as of
// the given date. The function is pure and time-parameterized: historical
// recomputation and "what would this be tomorrow" previews both reuse it.
//
// No fee accrues while asOf is within due date + grace period, or when the
// outstanding balance is not positive. The policy's max amount, when set,
// is a hard ceiling.
func ComputeLateFee(policy *models.LateFeePolicy, dueDate time.Time, graceDays int, outstanding decimal.Decimal, asOf time.Time) decimal.Decimal {
	if policy == nil || !outstanding.IsPositive() {
		return decimal.Zero
	}
	deadline := dueDate.AddDate(0, 0, graceDays)
	if !startOfDay(asOf).After(startOfDay(deadline)) {
		return decimal.Zero
	}

	switch policy.Type {
	case models.LateFeeFixed:
		// Flat, one-time charge. Does not grow with further delay.
		return policy.Amount
	case models.LateFeePercentage:
		raw := outstanding.Mul(policy.Rate).Div(hundred).Round(2)
		return policy.Cap(raw)
	case models.LateFeeDaily:
		days := daysPast(deadline, asOf)
		raw := policy.Amount.Mul(decimal.NewFromInt(int64(days)))
		return policy.Cap(raw)
	}
	return decimal.Zero
}

// daysPast counts whole calendar days elapsed past a deadline, floor
// truncated, minimum 0.
func daysPast(deadline, asOf time.Time) int {
	days := int(startOfDay(asOf).Sub(startOfDay(deadline)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// sameDay reports whether two timestamps fall on the same calendar date.
func sameDay(a, b time.Time) bool {
	return startOfDay(a).Equal(startOfDay(b))
}
