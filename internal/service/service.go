package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/edupay/fee-engine/internal/models"
)

// ScheduleRepo persists payment schedules with their grades, fee items,
// installments and reminder rules.
type ScheduleRepo interface {
	Create(ctx context.Context, s *models.PaymentSchedule) error
	// Update applies an optimistic version check and fails with
	// models.ErrNotFound when the stored version has moved on.
	Update(ctx context.Context, s *models.PaymentSchedule) error
	Delete(ctx context.Context, id string) error
	FindByID(ctx context.Context, id string) (*models.PaymentSchedule, error)
	ListByStatus(ctx context.Context, status models.ScheduleStatus) ([]models.PaymentSchedule, error)
	SetStatus(ctx context.Context, id string, status models.ScheduleStatus) error
}

// PaymentRepo reads the payment ledger. The engine never writes payments.
type PaymentRepo interface {
	PaymentsFor(ctx context.Context, scheduleID string) ([]models.Payment, error)
	CountForSchedule(ctx context.Context, scheduleID string) (int, error)
}

// RosterRepo is the roster/identity service adapter.
type RosterRepo interface {
	StudentsInGrades(ctx context.Context, schoolID string, grades []string) ([]models.Student, error)
}

// FeeCatalog resolves fee category amounts per grade, honouring per-schedule
// overrides.
type FeeCatalog interface {
	ResolveAmount(ctx context.Context, feeCategoryID, grade string, override *decimal.Decimal) (decimal.Decimal, error)
}

// DispatchRepo owns the reminder dispatch log. Record reports whether the row
// was newly inserted; false means the natural key already existed and the
// reminder must not be sent again.
type DispatchRepo interface {
	ListForDate(ctx context.Context, scheduleID string, triggerDate time.Time) ([]models.ReminderDispatch, error)
	Record(ctx context.Context, d models.ReminderDispatch) (bool, error)
}

// NotificationSender delivers one message to one recipient over one channel.
type NotificationSender interface {
	Send(ctx context.Context, student models.Student, ch models.Channel, message string) error
}

// Service handles the fee schedule business logic
type Service struct {
	schedules  ScheduleRepo
	payments   PaymentRepo
	roster     RosterRepo
	catalog    FeeCatalog
	dispatches DispatchRepo
	sender     NotificationSender
	log        *logrus.Logger
	validate   *validator.Validate

	// dispatchTimeout bounds each transport call so one slow recipient
	// cannot stall the rest of the batch.
	dispatchTimeout time.Duration
}

// NewService initializes a new service
func NewService(
	schedules ScheduleRepo,
	payments PaymentRepo,
	roster RosterRepo,
	catalog FeeCatalog,
	dispatches DispatchRepo,
	sender NotificationSender,
	log *logrus.Logger,
	dispatchTimeout time.Duration,
) *Service {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 10 * time.Second
	}
	return &Service{
		schedules:       schedules,
		payments:        payments,
		roster:          roster,
		catalog:         catalog,
		dispatches:      dispatches,
		sender:          sender,
		log:             log,
		validate:        validator.New(),
		dispatchTimeout: dispatchTimeout,
	}
}

// gradeDueTotals resolves the total amount due per grade from the fee
// category catalog, applying per-schedule overrides. A grade where any fee
// item fails to resolve is absent from the map, so its students land in the
// projection's unresolved bucket instead of owing a silently understated
// total.
func (s *Service) gradeDueTotals(ctx context.Context, sched *models.PaymentSchedule) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal, len(sched.Grades))
	for _, grade := range sched.Grades {
		total := decimal.Zero
		resolved := true
		for _, item := range sched.FeeItems {
			amount, err := s.catalog.ResolveAmount(ctx, item.FeeCategoryID, grade, item.AmountOverride)
			if err != nil {
				s.log.Errorf("Failed to resolve fee category %s for grade %s: %v", item.FeeCategoryID, grade, err)
				resolved = false
				break
			}
			total = total.Add(amount)
		}
		if resolved {
			totals[grade] = total
		}
	}
	return totals
}
