package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

// PaymentsFor reads all recorded payments referencing a schedule's
// installments. The engine treats the ledger as append-only and authoritative;
// nothing here ever writes to it.
func (r *Repository) PaymentsFor(ctx context.Context, scheduleID string) ([]models.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, schedule_id, COALESCE(installment_id, ''), student_id, amount, paid_at
		FROM fees.payments
		WHERE schedule_id = $1
		ORDER BY paid_at, id`, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	defer rows.Close()

	var payments []models.Payment
	for rows.Next() {
		var p models.Payment
		var amount string
		if err := rows.Scan(&p.ID, &p.ScheduleID, &p.InstallmentID, &p.StudentID, &amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse payment amount: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load payments: %w", err)
	}
	return payments, nil
}

// CountForSchedule reports how many payments reference a schedule, used to
// cascade-protect deletes and amount edits.
func (r *Repository) CountForSchedule(ctx context.Context, scheduleID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fees.payments WHERE schedule_id = $1`, scheduleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count payments: %w", err)
	}
	return count, nil
}
