package repository

import (
	"context"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

// StudentsInGrades is the roster service adapter: all enrolled students of a
// school in the given grades, with the guardian contact the notification
// transport needs.
func (r *Repository) StudentsInGrades(ctx context.Context, schoolID string, grades []string) ([]models.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, full_name, grade, COALESCE(guardian_contact, '')
		FROM fees.students
		WHERE school_id = $1 AND grade = ANY($2) AND enrolled
		ORDER BY full_name, id`, schoolID, pq.Array(grades))
	if err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var s models.Student
		if err := rows.Scan(&s.ID, &s.FullName, &s.Grade, &s.GuardianContact); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}
	return students, nil
}

// ResolveAmount is the fee category catalog adapter: the amount a category
// charges for a grade. A per-schedule override short-circuits the catalog.
func (r *Repository) ResolveAmount(ctx context.Context, feeCategoryID, grade string, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}
	var amount string
	err := r.db.QueryRowContext(ctx, `
		SELECT amount
		FROM fees.fee_structures
		WHERE fee_category_id = $1 AND grade = $2`, feeCategoryID, grade).Scan(&amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to resolve amount for category %s grade %s: %w", feeCategoryID, grade, err)
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse catalog amount: %w", err)
	}
	return d, nil
}
