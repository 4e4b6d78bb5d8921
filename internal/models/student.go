package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Student is the roster service's view of an enrolled student
type Student struct {
	ID              string `json:"id"`
	FullName        string `json:"full_name"`
	Grade           string `json:"grade"`
	GuardianContact string `json:"guardian_contact"`
}

// Payment is one recorded payment from the ledger, the system of record for
// money actually received. This engine only ever reads payments.
type Payment struct {
	ID            string          `json:"id"`
	ScheduleID    string          `json:"schedule_id"`
	InstallmentID string          `json:"installment_id,omitempty"`
	StudentID     string          `json:"student_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaidAt        time.Time       `json:"paid_at"`
}
