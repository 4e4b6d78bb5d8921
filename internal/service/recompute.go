package service

import (
	"context"
	"fmt"
	"time"

	"github.com/edupay/fee-engine/internal/models"
)

// RunDailyRecompute is the scheduled entry point: it rebuilds the projection
// for every active schedule (picking up late fees accrued by the calendar
// advancing) and fires the reminders due on asOf. One schedule's bad data
// never prevents the others from being processed; failures are collected into
// the report. The run stops between schedules when the context is cancelled,
// leaving no dispatch records for messages never attempted.
func (s *Service) RunDailyRecompute(ctx context.Context, asOf time.Time) (*models.RecomputeReport, error) {
	schedules, err := s.schedules.ListByStatus(ctx, models.ScheduleActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schedules: %w", err)
	}

	report := &models.RecomputeReport{AsOf: startOfDay(asOf)}
	for i := range schedules {
		if err := ctx.Err(); err != nil {
			s.log.Infof("Recompute cancelled after %d of %d schedules", report.SchedulesProcessed, len(schedules))
			return report, err
		}
		sched := &schedules[i]
		dispatchReport, _, err := s.remind(ctx, sched, asOf, false)
		if err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("schedule %s: %v", sched.ID, err))
			s.log.Errorf("Recompute failed for schedule %s: %v", sched.ID, err)
			continue
		}
		report.SchedulesProcessed++
		report.RemindersSent += dispatchReport.Sent
		for _, studentID := range dispatchReport.Failed {
			report.Failures = append(report.Failures, fmt.Sprintf("schedule %s student %s: dispatch failed", sched.ID, studentID))
		}
	}
	s.log.Infof("Daily recompute done: schedules=%d reminders=%d failures=%d",
		report.SchedulesProcessed, report.RemindersSent, len(report.Failures))
	return report, nil
}
