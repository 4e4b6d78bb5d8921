package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

// Project builds the ledger projection: one status row per eligible student
// per installment (or per student for full-payment schedules), plus the
// schedule-level rollup accumulated in the same pass.
//
// The projection is idempotent: it reads payments, never mutates them, and
// identical inputs produce identical output. gradeDue maps each covered grade
// to the total resolved amount; students whose grade is absent land in the
// rollup's unresolved bucket instead of silently owing zero.
func Project(sched *models.PaymentSchedule, roster []models.Student, payments []models.Payment, gradeDue map[string]decimal.Decimal, asOf time.Time) ([]models.StudentScheduleStatus, models.ScheduleRollup) {
	students := make([]models.Student, len(roster))
	copy(students, roster)
	sort.Slice(students, func(i, j int) bool {
		if students[i].FullName != students[j].FullName {
			return students[i].FullName < students[j].FullName
		}
		return students[i].ID < students[j].ID
	})

	installments := make([]models.Installment, len(sched.Installments))
	copy(installments, sched.Installments)
	sort.Slice(installments, func(i, j int) bool { return installments[i].Sequence < installments[j].Sequence })

	direct, pooled := indexPayments(payments)

	rollup := models.ScheduleRollup{
		TotalDue:      decimal.Zero,
		TotalPaid:     decimal.Zero,
		TotalLateFees: decimal.Zero,
		TotalBalance:  decimal.Zero,
	}
	var rows []models.StudentScheduleStatus

	for _, student := range students {
		rollup.TotalStudents++
		total, covered := gradeDue[student.Grade]
		if !covered {
			rollup.Unresolved = append(rollup.Unresolved, student.ID)
			continue
		}

		var studentRows []models.StudentScheduleStatus
		if sched.IsInstallment && len(installments) > 0 {
			studentRows = projectInstallments(sched, installments, student, total, direct[student.ID], pooled[student.ID], asOf)
		} else {
			paid := pooled[student.ID]
			for _, amt := range direct[student.ID] {
				paid = paid.Add(amt)
			}
			row := buildRow(sched, student, "", "", sched.DueDate, sched.GracePeriodDays, total, paid, asOf)
			studentRows = []models.StudentScheduleStatus{row}
		}

		var hasOverdue, hasPartial, hasPending, hasPaidRow bool
		for _, row := range studentRows {
			rollup.TotalDue = rollup.TotalDue.Add(row.AmountDue)
			rollup.TotalPaid = rollup.TotalPaid.Add(row.AmountPaid)
			rollup.TotalLateFees = rollup.TotalLateFees.Add(row.LateFee)
			rollup.TotalBalance = rollup.TotalBalance.Add(row.Balance)
			switch row.Status {
			case models.StatusOverdue:
				hasOverdue = true
			case models.StatusPartial:
				hasPartial = true
			case models.StatusPending:
				hasPending = true
			case models.StatusPaid:
				hasPaidRow = true
			}
		}
		// Fold row statuses into one per-student status for the counts:
		// overdue dominates, a mix of settled and open rows is partial.
		switch {
		case hasOverdue:
			rollup.Overdue++
		case !hasPartial && !hasPending:
			rollup.Paid++
		case hasPartial || hasPaidRow:
			rollup.Partial++
		default:
			rollup.Pending++
		}
		rows = append(rows, studentRows...)
	}
	return rows, rollup
}

// projectInstallments splits a student's total across the installment plan and
// settles recorded payments against it. Percentage shares round to two decimal
// places with the last installment absorbing the remainder, so the per-row
// dues always sum to the student's total. Payments recorded without an
// installment reference fill installments oldest-first.
func projectInstallments(sched *models.PaymentSchedule, installments []models.Installment, student models.Student, total decimal.Decimal, direct map[string]decimal.Decimal, pool decimal.Decimal, asOf time.Time) []models.StudentScheduleStatus {
	percentageBased := installments[0].Percentage != nil

	dues := make([]decimal.Decimal, len(installments))
	acc := decimal.Zero
	for i, inst := range installments {
		if percentageBased && i == len(installments)-1 {
			dues[i] = total.Sub(acc)
		} else {
			dues[i] = inst.Share(total)
		}
		acc = acc.Add(dues[i])
	}

	paid := make([]decimal.Decimal, len(installments))
	for i, inst := range installments {
		paid[i] = direct[inst.ID]
	}
	remaining := pool
	for i := range installments {
		if !remaining.IsPositive() {
			break
		}
		gap := dues[i].Sub(paid[i])
		if !gap.IsPositive() {
			continue
		}
		alloc := decimal.Min(gap, remaining)
		paid[i] = paid[i].Add(alloc)
		remaining = remaining.Sub(alloc)
	}
	if remaining.IsPositive() {
		paid[len(paid)-1] = paid[len(paid)-1].Add(remaining)
	}

	rows := make([]models.StudentScheduleStatus, 0, len(installments))
	for i, inst := range installments {
		rows = append(rows, buildRow(sched, student, inst.ID, inst.Name, inst.DueDate, inst.GracePeriodDays, dues[i], paid[i], asOf))
	}
	return rows
}

func buildRow(sched *models.PaymentSchedule, student models.Student, installmentID, installmentName string, dueDate time.Time, graceDays int, due, paid decimal.Decimal, asOf time.Time) models.StudentScheduleStatus {
	lateFee := ComputeLateFee(sched.LateFee, dueDate, graceDays, due.Sub(paid), asOf)
	balance := due.Add(lateFee).Sub(paid)

	var status models.PaymentStatus
	switch {
	case balance.Sign() <= 0:
		status = models.StatusPaid
	case startOfDay(asOf).After(startOfDay(dueDate.AddDate(0, 0, graceDays))):
		status = models.StatusOverdue
	case paid.IsPositive() && paid.LessThan(due):
		status = models.StatusPartial
	default:
		status = models.StatusPending
	}

	return models.StudentScheduleStatus{
		StudentID:       student.ID,
		StudentName:     student.FullName,
		Grade:           student.Grade,
		InstallmentID:   installmentID,
		InstallmentName: installmentName,
		DueDate:         dueDate,
		GracePeriodDays: graceDays,
		AmountDue:       due,
		AmountPaid:      paid,
		LateFee:         lateFee,
		Balance:         balance,
		Status:          status,
	}
}

// indexPayments splits recorded payments into sums keyed by installment and a
// per-student pool of payments carrying no installment reference.
func indexPayments(payments []models.Payment) (map[string]map[string]decimal.Decimal, map[string]decimal.Decimal) {
	direct := make(map[string]map[string]decimal.Decimal)
	pooled := make(map[string]decimal.Decimal)
	for _, p := range payments {
		if p.InstallmentID == "" {
			pooled[p.StudentID] = pooled[p.StudentID].Add(p.Amount)
			continue
		}
		if direct[p.StudentID] == nil {
			direct[p.StudentID] = make(map[string]decimal.Decimal)
		}
		direct[p.StudentID][p.InstallmentID] = direct[p.StudentID][p.InstallmentID].Add(p.Amount)
	}
	return direct, pooled
}

// GetStatus rebuilds the projection for one schedule and returns the rollup
// with the per-student detail rows.
func (s *Service) GetStatus(ctx context.Context, scheduleID string, asOf time.Time) (*models.ScheduleStatusView, error) {
	sched, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}
	rows, rollup, err := s.projectSchedule(ctx, sched, asOf)
	if err != nil {
		return nil, err
	}
	return &models.ScheduleStatusView{Rollup: rollup, PerStudent: rows}, nil
}

// projectSchedule gathers roster, payments and resolved amounts, then runs the
// pure projection.
func (s *Service) projectSchedule(ctx context.Context, sched *models.PaymentSchedule, asOf time.Time) ([]models.StudentScheduleStatus, models.ScheduleRollup, error) {
	roster, err := s.roster.StudentsInGrades(ctx, sched.SchoolID, sched.Grades)
	if err != nil {
		return nil, models.ScheduleRollup{}, fmt.Errorf("failed to load roster for schedule %s: %w", sched.ID, err)
	}
	payments, err := s.payments.PaymentsFor(ctx, sched.ID)
	if err != nil {
		return nil, models.ScheduleRollup{}, fmt.Errorf("failed to load payments for schedule %s: %w", sched.ID, err)
	}
	gradeDue := s.gradeDueTotals(ctx, sched)

	rows, rollup := Project(sched, roster, payments, gradeDue, asOf)
	if len(rollup.Unresolved) > 0 {
		s.log.Errorf("Schedule %s has %d students in grades not covered by any fee item", sched.ID, len(rollup.Unresolved))
	}
	return rows, rollup, nil
}
