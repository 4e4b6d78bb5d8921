package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a schedule with its grades, fee items, installments and
// reminder rules in one transaction.
func (r *Repository) Create(ctx context.Context, s *models.PaymentSchedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO fees.payment_schedules
			(id, school_id, schedule_name, description, academic_year, due_date, grace_period_days,
			 is_installment, installment_frequency,
			 late_fee_type, late_fee_amount, late_fee_percentage, late_fee_max_amount,
			 status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING created_at, updated_at`
	lfType, lfAmount, lfRate, lfMax := lateFeeColumns(s.LateFee)
	err = tx.QueryRowContext(ctx, query,
		s.ID, s.SchoolID, s.Name, s.Description, s.AcademicYear, s.DueDate, s.GracePeriodDays,
		s.IsInstallment, nullString(string(s.Frequency)),
		lfType, lfAmount, lfRate, lfMax,
		s.Status, s.Version,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}

	if err := insertChildren(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule: %w", err)
	}
	return nil
}

// Update rewrites a schedule and its child rows, guarded by an optimistic
// version check. Returns models.ErrNotFound when the stored version differs.
func (r *Repository) Update(ctx context.Context, s *models.PaymentSchedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE fees.payment_schedules
		SET schedule_name = $1, description = $2, academic_year = $3, due_date = $4,
		    grace_period_days = $5, is_installment = $6, installment_frequency = $7,
		    late_fee_type = $8, late_fee_amount = $9, late_fee_percentage = $10, late_fee_max_amount = $11,
		    status = $12, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = $13 AND version = $14`
	lfType, lfAmount, lfRate, lfMax := lateFeeColumns(s.LateFee)
	res, err := tx.ExecContext(ctx, query,
		s.Name, s.Description, s.AcademicYear, s.DueDate,
		s.GracePeriodDays, s.IsInstallment, nullString(string(s.Frequency)),
		lfType, lfAmount, lfRate, lfMax,
		s.Status, s.ID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	s.Version++

	for _, table := range []string{"schedule_grades", "schedule_fee_items", "schedule_installments", "schedule_reminders"} {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM fees.%s WHERE schedule_id = $1", table), s.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := insertChildren(ctx, tx, s); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schedule update: %w", err)
	}
	return nil
}

// Delete removes a schedule; child rows cascade at the schema level.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM fees.payment_schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetStatus updates the lifecycle status only.
func (r *Repository) SetStatus(ctx context.Context, id string, status models.ScheduleStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE fees.payment_schedules SET status = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("failed to set schedule status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set schedule status: %w", err)
	}
	if affected == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindByID retrieves a schedule with all child rows.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.PaymentSchedule, error) {
	s := &models.PaymentSchedule{ID: id}
	var frequency, lfType, lfAmount, lfRate, lfMax sql.NullString
	query := `
		SELECT school_id, schedule_name, description, academic_year, due_date, grace_period_days,
		       is_installment, installment_frequency,
		       late_fee_type, late_fee_amount, late_fee_percentage, late_fee_max_amount,
		       status, version, created_at, updated_at
		FROM fees.payment_schedules
		WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.SchoolID, &s.Name, &s.Description, &s.AcademicYear, &s.DueDate, &s.GracePeriodDays,
		&s.IsInstallment, &frequency,
		&lfType, &lfAmount, &lfRate, &lfMax,
		&s.Status, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find schedule: %w", err)
	}
	s.Frequency = models.InstallmentFrequency(frequency.String)
	if s.LateFee, err = lateFeeFromColumns(lfType, lfAmount, lfRate, lfMax); err != nil {
		return nil, fmt.Errorf("failed to read late fee policy for schedule %s: %w", id, err)
	}

	if err := r.loadChildren(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ListByStatus retrieves all schedules in a lifecycle state.
func (r *Repository) ListByStatus(ctx context.Context, status models.ScheduleStatus) ([]models.PaymentSchedule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM fees.payment_schedules WHERE status = $1 ORDER BY due_date, id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan schedule id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	schedules := make([]models.PaymentSchedule, 0, len(ids))
	for _, id := range ids {
		s, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, nil
}

func (r *Repository) loadChildren(ctx context.Context, s *models.PaymentSchedule) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT grade FROM fees.schedule_grades WHERE schedule_id = $1 ORDER BY grade`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load schedule grades: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var grade string
		if err := rows.Scan(&grade); err != nil {
			return fmt.Errorf("failed to scan grade: %w", err)
		}
		s.Grades = append(s.Grades, grade)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to load schedule grades: %w", err)
	}

	itemRows, err := r.db.QueryContext(ctx,
		`SELECT fee_category_id, amount_override FROM fees.schedule_fee_items WHERE schedule_id = $1 ORDER BY fee_category_id`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load fee items: %w", err)
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var item models.FeeItem
		var override sql.NullString
		if err := itemRows.Scan(&item.FeeCategoryID, &override); err != nil {
			return fmt.Errorf("failed to scan fee item: %w", err)
		}
		if item.AmountOverride, err = nullDecimal(override); err != nil {
			return fmt.Errorf("failed to parse fee item override: %w", err)
		}
		s.FeeItems = append(s.FeeItems, item)
	}
	if err := itemRows.Err(); err != nil {
		return fmt.Errorf("failed to load fee items: %w", err)
	}

	instRows, err := r.db.QueryContext(ctx, `
		SELECT id, installment_number, installment_name, due_date, percentage, fixed_amount, grace_period_days
		FROM fees.schedule_installments
		WHERE schedule_id = $1
		ORDER BY installment_number`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load installments: %w", err)
	}
	defer instRows.Close()
	for instRows.Next() {
		inst := models.Installment{ScheduleID: s.ID}
		var pct, fixed sql.NullString
		if err := instRows.Scan(&inst.ID, &inst.Sequence, &inst.Name, &inst.DueDate, &pct, &fixed, &inst.GracePeriodDays); err != nil {
			return fmt.Errorf("failed to scan installment: %w", err)
		}
		if inst.Percentage, err = nullDecimal(pct); err != nil {
			return fmt.Errorf("failed to parse installment percentage: %w", err)
		}
		if inst.FixedAmount, err = nullDecimal(fixed); err != nil {
			return fmt.Errorf("failed to parse installment amount: %w", err)
		}
		s.Installments = append(s.Installments, inst)
	}
	if err := instRows.Err(); err != nil {
		return fmt.Errorf("failed to load installments: %w", err)
	}

	remRows, err := r.db.QueryContext(ctx, `
		SELECT id, reminder_type, days_before, notification_channels, is_active, COALESCE(custom_message, '')
		FROM fees.schedule_reminders
		WHERE schedule_id = $1
		ORDER BY days_before DESC`, s.ID)
	if err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}
	defer remRows.Close()
	for remRows.Next() {
		var rule models.ReminderRule
		var channels []string
		if err := remRows.Scan(&rule.ID, &rule.Type, &rule.OffsetDays, pq.Array(&channels), &rule.Active, &rule.Template); err != nil {
			return fmt.Errorf("failed to scan reminder rule: %w", err)
		}
		for _, ch := range channels {
			rule.Channels = append(rule.Channels, models.Channel(ch))
		}
		s.Reminders = append(s.Reminders, rule)
	}
	if err := remRows.Err(); err != nil {
		return fmt.Errorf("failed to load reminders: %w", err)
	}
	return nil
}

func insertChildren(ctx context.Context, tx *sql.Tx, s *models.PaymentSchedule) error {
	for _, grade := range s.Grades {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fees.schedule_grades (schedule_id, grade) VALUES ($1, $2)`, s.ID, grade); err != nil {
			return fmt.Errorf("failed to insert schedule grade: %w", err)
		}
	}
	for _, item := range s.FeeItems {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO fees.schedule_fee_items (schedule_id, fee_category_id, amount_override) VALUES ($1, $2, $3)`,
			s.ID, item.FeeCategoryID, decimalColumn(item.AmountOverride)); err != nil {
			return fmt.Errorf("failed to insert fee item: %w", err)
		}
	}
	for _, inst := range s.Installments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fees.schedule_installments
				(id, schedule_id, installment_number, installment_name, due_date, percentage, fixed_amount, grace_period_days)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			inst.ID, s.ID, inst.Sequence, inst.Name, inst.DueDate,
			decimalColumn(inst.Percentage), decimalColumn(inst.FixedAmount), inst.GracePeriodDays); err != nil {
			return fmt.Errorf("failed to insert installment: %w", err)
		}
	}
	for _, rule := range s.Reminders {
		channels := make([]string, 0, len(rule.Channels))
		for _, ch := range rule.Channels {
			channels = append(channels, string(ch))
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO fees.schedule_reminders
				(id, schedule_id, reminder_type, days_before, notification_channels, is_active, custom_message)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rule.ID, s.ID, rule.Type, rule.OffsetDays, pq.Array(channels), rule.Active, rule.Template); err != nil {
			return fmt.Errorf("failed to insert reminder rule: %w", err)
		}
	}
	return nil
}

func lateFeeColumns(p *models.LateFeePolicy) (sql.NullString, sql.NullString, sql.NullString, sql.NullString) {
	if p == nil {
		return sql.NullString{}, sql.NullString{}, sql.NullString{}, sql.NullString{}
	}
	var maxAmount sql.NullString
	if p.MaxAmount != nil {
		maxAmount = sql.NullString{String: p.MaxAmount.String(), Valid: true}
	}
	return sql.NullString{String: string(p.Type), Valid: true},
		sql.NullString{String: p.Amount.String(), Valid: true},
		sql.NullString{String: p.Rate.String(), Valid: true},
		maxAmount
}

func lateFeeFromColumns(lfType, amount, rate, maxAmount sql.NullString) (*models.LateFeePolicy, error) {
	if !lfType.Valid {
		return nil, nil
	}
	p := &models.LateFeePolicy{Type: models.LateFeeType(lfType.String)}
	var err error
	if amount.Valid {
		if p.Amount, err = decimal.NewFromString(amount.String); err != nil {
			return nil, err
		}
	}
	if rate.Valid {
		if p.Rate, err = decimal.NewFromString(rate.String); err != nil {
			return nil, err
		}
	}
	if p.MaxAmount, err = nullDecimal(maxAmount); err != nil {
		return nil, err
	}
	return p, nil
}

func nullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func decimalColumn(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
