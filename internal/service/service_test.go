package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/models"
)

// Test fixtures: in-memory fakes for the repository and transport interfaces.

type fakeScheduleRepo struct {
	mu        sync.Mutex
	schedules map[string]*models.PaymentSchedule
	deleted   []string
	statuses  map[string]models.ScheduleStatus
	failWith  error
}

func newFakeScheduleRepo(seed ...*models.PaymentSchedule) *fakeScheduleRepo {
	r := &fakeScheduleRepo{
		schedules: make(map[string]*models.PaymentSchedule),
		statuses:  make(map[string]models.ScheduleStatus),
	}
	for _, s := range seed {
		cp := *s
		r.schedules[s.ID] = &cp
	}
	return r
}

func (r *fakeScheduleRepo) Create(_ context.Context, s *models.PaymentSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	cp := *s
	r.schedules[s.ID] = &cp
	return nil
}

func (r *fakeScheduleRepo) Update(_ context.Context, s *models.PaymentSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	stored, ok := r.schedules[s.ID]
	if !ok || stored.Version != s.Version {
		return models.ErrNotFound
	}
	cp := *s
	cp.Version = stored.Version + 1
	r.schedules[s.ID] = &cp
	s.Version = cp.Version
	return nil
}

func (r *fakeScheduleRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schedules[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.schedules, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeScheduleRepo) FindByID(_ context.Context, id string) (*models.PaymentSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeScheduleRepo) ListByStatus(_ context.Context, status models.ScheduleStatus) ([]models.PaymentSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []models.PaymentSchedule
	for _, s := range r.schedules {
		if s.Status == status {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeScheduleRepo) SetStatus(_ context.Context, id string, status models.ScheduleStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schedules[id]
	if !ok {
		return models.ErrNotFound
	}
	s.Status = status
	r.statuses[id] = status
	return nil
}

type fakePaymentRepo struct {
	payments []models.Payment
}

func (r *fakePaymentRepo) PaymentsFor(_ context.Context, scheduleID string) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range r.payments {
		if p.ScheduleID == scheduleID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) CountForSchedule(_ context.Context, scheduleID string) (int, error) {
	n := 0
	for _, p := range r.payments {
		if p.ScheduleID == scheduleID {
			n++
		}
	}
	return n, nil
}

type fakeRoster struct {
	students []models.Student
}

func (r *fakeRoster) StudentsInGrades(_ context.Context, _ string, grades []string) ([]models.Student, error) {
	wanted := make(map[string]bool, len(grades))
	for _, g := range grades {
		wanted[g] = true
	}
	var out []models.Student
	for _, s := range r.students {
		if wanted[s.Grade] {
			out = append(out, s)
		}
	}
	return out, nil
}

// fakeCatalog maps fee category id -> grade -> amount.
type fakeCatalog struct {
	amounts map[string]map[string]decimal.Decimal
}

func (c *fakeCatalog) ResolveAmount(_ context.Context, feeCategoryID, grade string, override *decimal.Decimal) (decimal.Decimal, error) {
	if override != nil {
		return *override, nil
	}
	if grades, ok := c.amounts[feeCategoryID]; ok {
		if amt, ok := grades[grade]; ok {
			return amt, nil
		}
	}
	return decimal.Zero, fmt.Errorf("no fee structure for category %s grade %s", feeCategoryID, grade)
}

type fakeDispatchRepo struct {
	mu   sync.Mutex
	rows map[models.DispatchKey]models.ReminderDispatch
}

func newFakeDispatchRepo() *fakeDispatchRepo {
	return &fakeDispatchRepo{rows: make(map[models.DispatchKey]models.ReminderDispatch)}
}

func (r *fakeDispatchRepo) ListForDate(_ context.Context, scheduleID string, triggerDate time.Time) ([]models.ReminderDispatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	day := triggerDate.Format("2006-01-02")
	var out []models.ReminderDispatch
	for _, d := range r.rows {
		if d.ScheduleID == scheduleID && d.TriggerDate.Format("2006-01-02") == day {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r *fakeDispatchRepo) Record(_ context.Context, d models.ReminderDispatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rows[d.Key()]; exists {
		return false, nil
	}
	r.rows[d.Key()] = d
	return true, nil
}

type sentMessage struct {
	StudentID string
	Channel   models.Channel
	Message   string
}

type fakeSender struct {
	mu           sync.Mutex
	sent         []sentMessage
	failStudents map[string]bool
}

func (s *fakeSender) Send(_ context.Context, student models.Student, ch models.Channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStudents[student.ID] {
		return fmt.Errorf("recipient rejected")
	}
	s.sent = append(s.sent, sentMessage{StudentID: student.ID, Channel: ch, Message: message})
	return nil
}

func (s *fakeSender) messages() []sentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]sentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestService(schedules *fakeScheduleRepo, payments *fakePaymentRepo, roster *fakeRoster, catalog *fakeCatalog, dispatches *fakeDispatchRepo, sender *fakeSender) *Service {
	return NewService(schedules, payments, roster, catalog, dispatches, sender, testLogger(), time.Second)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
