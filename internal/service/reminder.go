package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edupay/fee-engine/internal/models"
)

// defaultReminderMessage is used when a rule carries no template.
const defaultReminderMessage = "{schedule_name} for {student_name} is due on {due_date}. Amount: ₹{amount}"

// DueReminders derives the dispatch requests that must fire on asOf. For each
// active rule and each unpaid (student, installment) status row the trigger
// date is dueDate − offsetDays; a request is emitted only on an exact date
// match (the job runs at least once per calendar day, so exact matching never
// double-fires and never skips) and only when the dispatch log does not
// already hold the natural key.
func DueReminders(sched *models.PaymentSchedule, statuses []models.StudentScheduleStatus, dispatched map[models.DispatchKey]bool, asOf time.Time) []models.DispatchRequest {
	var requests []models.DispatchRequest
	for _, rule := range sched.Reminders {
		if !rule.Active {
			continue
		}
		for _, st := range statuses {
			if st.Status == models.StatusPaid {
				continue
			}
			trigger := st.DueDate.AddDate(0, 0, -rule.OffsetDays)
			if !sameDay(trigger, asOf) {
				continue
			}
			req := buildRequest(sched, rule, st, trigger)
			if dispatched[req.Key()] {
				continue
			}
			requests = append(requests, req)
		}
	}
	return requests
}

// dueRemindersNow builds requests for every active rule with asOf itself as
// the trigger date, bypassing the offset gate. Used by the manual send
// operation; the dedup key still applies, so repeating the manual send on the
// same day is a no-op.
func dueRemindersNow(sched *models.PaymentSchedule, statuses []models.StudentScheduleStatus, dispatched map[models.DispatchKey]bool, asOf time.Time) []models.DispatchRequest {
	var requests []models.DispatchRequest
	for _, rule := range sched.Reminders {
		if !rule.Active {
			continue
		}
		for _, st := range statuses {
			if st.Status == models.StatusPaid {
				continue
			}
			req := buildRequest(sched, rule, st, asOf)
			if dispatched[req.Key()] {
				continue
			}
			requests = append(requests, req)
		}
	}
	return requests
}

func buildRequest(sched *models.PaymentSchedule, rule models.ReminderRule, st models.StudentScheduleStatus, trigger time.Time) models.DispatchRequest {
	tmpl := rule.Template
	if tmpl == "" {
		tmpl = defaultReminderMessage
	}
	msg := RenderTemplate(tmpl, map[string]string{
		"student_name":     st.StudentName,
		"schedule_name":    sched.Name,
		"due_date":         st.DueDate.Format("2006-01-02"),
		"amount":           st.Balance.StringFixed(2),
		"installment_name": st.InstallmentName,
	})
	return models.DispatchRequest{
		ScheduleID:    sched.ID,
		InstallmentID: st.InstallmentID,
		StudentID:     st.StudentID,
		RuleID:        rule.ID,
		TriggerDate:   startOfDay(trigger),
		Channels:      rule.Channels,
		Message:       msg,
	}
}

// RenderTemplate substitutes the recognized {placeholder} keys into a message
// template. Unknown placeholders are left verbatim so older templates stay
// forward-compatible with new placeholder additions.
func RenderTemplate(tmpl string, vars map[string]string) string {
	out := tmpl
	for key, val := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", val)
	}
	return out
}

// dispatch fans requests out to the notification transport. Each send gets its
// own timeout so one slow recipient never blocks the rest, and failures are
// collected, never fatal. A dispatch row is recorded once the transport call
// has returned, success or terminal failure both, so a mid-run shutdown leaves
// no record for messages never attempted.
func (s *Service) dispatch(ctx context.Context, requests []models.DispatchRequest, students map[string]models.Student) models.DispatchReport {
	report := models.DispatchReport{Failed: []string{}}
	if len(requests) == 0 {
		return report
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(req models.DispatchRequest) {
			defer wg.Done()
			delivered := s.deliver(ctx, req, students)
			mu.Lock()
			defer mu.Unlock()
			if delivered {
				report.Sent++
			} else {
				report.Failed = append(report.Failed, req.StudentID)
			}
		}(req)
	}
	wg.Wait()
	sort.Strings(report.Failed)
	return report
}

// deliver attempts one request across all its channels and records the
// dispatch row afterwards. The row is written even when the transport rejects
// the recipient, so failed sends are not retried in a storm on the next run.
func (s *Service) deliver(ctx context.Context, req models.DispatchRequest, students map[string]models.Student) bool {
	student, ok := students[req.StudentID]
	if !ok {
		student = models.Student{ID: req.StudentID}
	}

	delivered := false
	attempted := false
	for _, ch := range req.Channels {
		if ctx.Err() != nil {
			break
		}
		sendCtx, cancel := context.WithTimeout(ctx, s.dispatchTimeout)
		err := s.sender.Send(sendCtx, student, ch, req.Message)
		cancel()
		if ctx.Err() != nil {
			// Shut down mid-send: do not treat as a terminal failure.
			break
		}
		attempted = true
		if err != nil {
			terr := &models.TransportError{StudentID: req.StudentID, Channel: ch, Err: err}
			s.log.Errorf("Failed to send reminder: %v", terr)
			continue
		}
		delivered = true
	}
	if !attempted {
		return false
	}

	_, err := s.dispatches.Record(ctx, models.ReminderDispatch{
		ScheduleID:    req.ScheduleID,
		InstallmentID: req.InstallmentID,
		StudentID:     req.StudentID,
		RuleID:        req.RuleID,
		TriggerDate:   req.TriggerDate,
		SentAt:        time.Now().UTC(),
		Delivered:     delivered,
	})
	if err != nil {
		s.log.Errorf("Failed to record dispatch for student %s: %v", req.StudentID, err)
	}
	return delivered
}

// SendReminderNow manually triggers reminders for one schedule, bypassing the
// trigger-date gate but still honouring the dedup key with today as the
// trigger date.
func (s *Service) SendReminderNow(ctx context.Context, scheduleID string, asOf time.Time) (*models.DispatchReport, error) {
	sched, err := s.schedules.FindByID(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedule %s: %w", scheduleID, err)
	}
	report, _, err := s.remind(ctx, sched, asOf, true)
	if err != nil {
		return nil, err
	}
	s.log.Infof("Manual reminder for schedule %s: sent=%d failed=%d", scheduleID, report.Sent, len(report.Failed))
	return report, nil
}

// remind projects the schedule, derives due requests and dispatches them.
func (s *Service) remind(ctx context.Context, sched *models.PaymentSchedule, asOf time.Time, bypassGate bool) (*models.DispatchReport, []models.StudentScheduleStatus, error) {
	roster, err := s.roster.StudentsInGrades(ctx, sched.SchoolID, sched.Grades)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load roster for schedule %s: %w", sched.ID, err)
	}
	payments, err := s.payments.PaymentsFor(ctx, sched.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load payments for schedule %s: %w", sched.ID, err)
	}
	statuses, rollup := Project(sched, roster, payments, s.gradeDueTotals(ctx, sched), asOf)
	if len(rollup.Unresolved) > 0 {
		s.log.Errorf("Schedule %s has %d students in grades not covered by any fee item", sched.ID, len(rollup.Unresolved))
	}

	existing, err := s.dispatches.ListForDate(ctx, sched.ID, startOfDay(asOf))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load dispatch log for schedule %s: %w", sched.ID, err)
	}
	dispatched := make(map[models.DispatchKey]bool, len(existing))
	for _, d := range existing {
		dispatched[d.Key()] = true
	}

	var requests []models.DispatchRequest
	if bypassGate {
		requests = dueRemindersNow(sched, statuses, dispatched, asOf)
	} else {
		requests = DueReminders(sched, statuses, dispatched, asOf)
	}

	students := make(map[string]models.Student, len(roster))
	for _, st := range roster {
		students[st.ID] = st
	}
	report := s.dispatch(ctx, requests, students)
	return &report, statuses, nil
}
