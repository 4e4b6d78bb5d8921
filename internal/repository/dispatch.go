package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/edupay/fee-engine/internal/models"
)

// Record inserts a reminder dispatch row. The unique index on the natural key
// (schedule, installment, student, rule, trigger date) is the sole
// deduplication mechanism, so concurrent job runs across workers cannot
// double-send: the second insert hits ON CONFLICT DO NOTHING and Record
// returns false.
func (r *Repository) Record(ctx context.Context, d models.ReminderDispatch) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO fees.reminder_dispatches
			(schedule_id, installment_id, student_id, rule_id, trigger_date, sent_at, delivered)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (schedule_id, installment_id, student_id, rule_id, trigger_date) DO NOTHING`,
		d.ScheduleID, d.InstallmentID, d.StudentID, d.RuleID, d.TriggerDate, d.SentAt, d.Delivered)
	if err != nil {
		return false, fmt.Errorf("failed to record dispatch: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to record dispatch: %w", err)
	}
	return affected > 0, nil
}

// ListForDate returns the dispatch log entries for one schedule on one
// trigger date, used to skip reminders that already fired.
func (r *Repository) ListForDate(ctx context.Context, scheduleID string, triggerDate time.Time) ([]models.ReminderDispatch, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT schedule_id, installment_id, student_id, rule_id, trigger_date, sent_at, delivered
		FROM fees.reminder_dispatches
		WHERE schedule_id = $1 AND trigger_date = $2`, scheduleID, triggerDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load dispatch log: %w", err)
	}
	defer rows.Close()

	var dispatches []models.ReminderDispatch
	for rows.Next() {
		var d models.ReminderDispatch
		if err := rows.Scan(&d.ScheduleID, &d.InstallmentID, &d.StudentID, &d.RuleID, &d.TriggerDate, &d.SentAt, &d.Delivered); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		dispatches = append(dispatches, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load dispatch log: %w", err)
	}
	return dispatches, nil
}
