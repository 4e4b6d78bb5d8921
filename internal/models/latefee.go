package models

import "github.com/shopspring/decimal"

// LateFeeType selects the penalty strategy
type LateFeeType string

const (
	LateFeeFixed      LateFeeType = "fixed"
	LateFeePercentage LateFeeType = "percentage"
	LateFeeDaily      LateFeeType = "daily"
)

// LateFeePolicy describes the penalty applied to balances still outstanding
// after due date + grace period. A nil policy on the schedule disables late
// fees entirely. MaxAmount, when set, is a hard ceiling on the computed fee.
type LateFeePolicy struct {
	Type      LateFeeType      `json:"late_fee_type"`
	Amount    decimal.Decimal  `json:"late_fee_amount"`     // fixed: one-time; daily: per-day
	Rate      decimal.Decimal  `json:"late_fee_percentage"` // percentage: 0-100
	MaxAmount *decimal.Decimal `json:"late_fee_max_amount,omitempty"`
}

// Cap applies the policy's max-amount ceiling to a raw fee. Any present cap is
// a hard ceiling, including zero.
func (p *LateFeePolicy) Cap(raw decimal.Decimal) decimal.Decimal {
	if p.MaxAmount != nil && raw.GreaterThan(*p.MaxAmount) {
		return *p.MaxAmount
	}
	return raw
}
