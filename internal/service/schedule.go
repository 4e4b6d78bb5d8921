package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edupay/fee-engine/internal/models"
)

// presetReminderRules are applied when a new schedule carries no reminder
// configuration of its own.
func presetReminderRules() []models.ReminderRule {
	return []models.ReminderRule{
		{
			Type:       models.ReminderBeforeDue,
			OffsetDays: 7,
			Channels:   []models.Channel{models.ChannelInApp, models.ChannelPush},
			Active:     true,
			Template:   "Dear Parent, {schedule_name} for {student_name} is due on {due_date}. Amount: ₹{amount}",
		},
		{
			Type:       models.ReminderBeforeDue,
			OffsetDays: 1,
			Channels:   []models.Channel{models.ChannelInApp, models.ChannelPush},
			Active:     true,
			Template:   "Reminder: {schedule_name} for {student_name} is due tomorrow. Amount: ₹{amount}",
		},
		{
			Type:       models.ReminderOnDue,
			OffsetDays: 0,
			Channels:   []models.Channel{models.ChannelInApp, models.ChannelPush},
			Active:     true,
			Template:   "{schedule_name} for {student_name} is due today. Please pay ₹{amount}",
		},
		{
			Type:       models.ReminderAfterDue,
			OffsetDays: -3,
			Channels:   []models.Channel{models.ChannelInApp, models.ChannelPush},
			Active:     true,
			Template:   "Overdue: {schedule_name} for {student_name} was due on {due_date}. Amount: ₹{amount}",
		},
	}
}

// CreateSchedule validates a schedule configuration and persists it. When the
// installment plan is enabled with a monthly or quarterly frequency and no
// explicit installments, the plan is generated from the base due date.
// Warnings (such as same-day installments) are returned alongside the saved
// schedule and never block persistence.
func (s *Service) CreateSchedule(ctx context.Context, cfg *models.PaymentSchedule) (*models.PaymentSchedule, []string, error) {
	if err := s.validate.Struct(cfg); err != nil {
		return nil, nil, asValidationError(err)
	}

	cfg.ID = uuid.NewString()
	if cfg.Status == "" {
		cfg.Status = models.ScheduleDraft
	}
	if len(cfg.Reminders) == 0 {
		cfg.Reminders = presetReminderRules()
	}
	if cfg.IsInstallment && len(cfg.Installments) == 0 && cfg.Frequency != models.FrequencyCustom {
		installments, err := GenerateInstallments(cfg.Frequency, cfg.DueDate, cfg.GracePeriodDays)
		if err != nil {
			return nil, nil, err
		}
		cfg.Installments = installments
	}
	assignIDs(cfg)

	warnings, err := ValidateSchedule(cfg)
	if err != nil {
		return nil, warnings, err
	}

	cfg.Version = 1
	if err := s.schedules.Create(ctx, cfg); err != nil {
		return nil, warnings, fmt.Errorf("failed to create schedule: %w", err)
	}
	s.log.Infof("Payment schedule created: %s (%s)", cfg.Name, cfg.ID)
	return cfg, warnings, nil
}

// UpdateSchedule applies a new configuration to an existing schedule. Edits
// are serialized against recompute through an optimistic version check, and
// once payments reference the schedule any change that would alter amounts
// already charged is refused with a ConflictError.
func (s *Service) UpdateSchedule(ctx context.Context, id string, cfg *models.PaymentSchedule) (*models.PaymentSchedule, []string, error) {
	existing, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schedule %s: %w", id, err)
	}
	if err := s.validate.Struct(cfg); err != nil {
		return nil, nil, asValidationError(err)
	}

	cfg.ID = existing.ID
	if cfg.Status == "" {
		cfg.Status = existing.Status
	}
	if cfg.IsInstallment && len(cfg.Installments) == 0 && cfg.Frequency != models.FrequencyCustom {
		installments, err := GenerateInstallments(cfg.Frequency, cfg.DueDate, cfg.GracePeriodDays)
		if err != nil {
			return nil, nil, err
		}
		cfg.Installments = installments
	}
	assignIDs(cfg)

	warnings, err := ValidateSchedule(cfg)
	if err != nil {
		return nil, warnings, err
	}

	paymentCount, err := s.payments.CountForSchedule(ctx, id)
	if err != nil {
		return nil, warnings, fmt.Errorf("failed to count payments for schedule %s: %w", id, err)
	}
	if paymentCount > 0 && amountConfigChanged(existing, cfg) {
		return nil, warnings, models.NewConflictError(
			"schedule %s has %d recorded payments; amounts, installments and late fee policy can no longer be edited", id, paymentCount)
	}
	if paymentCount > 0 {
		// Installments are immutable once paid against; keep the stored
		// plan and only apply the non-financial edits.
		cfg.Installments = existing.Installments
	}

	cfg.Version = existing.Version
	if err := s.schedules.Update(ctx, cfg); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, warnings, models.NewConflictError("schedule %s was modified concurrently, reload and retry", id)
		}
		return nil, warnings, fmt.Errorf("failed to update schedule %s: %w", id, err)
	}
	s.log.Infof("Payment schedule updated: %s (%s)", cfg.Name, cfg.ID)
	return cfg, warnings, nil
}

// DeleteSchedule removes a schedule. Deletion is refused while any payment
// references the schedule, to prevent orphaning financial history.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	paymentCount, err := s.payments.CountForSchedule(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count payments for schedule %s: %w", id, err)
	}
	if paymentCount > 0 {
		return models.NewConflictError("schedule %s has %d recorded payments and cannot be deleted", id, paymentCount)
	}
	if err := s.schedules.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}
	s.log.Infof("Payment schedule deleted: %s", id)
	return nil
}

// BulkSetStatus activates or deactivates a set of schedules, reporting the
// outcome per schedule instead of failing the whole batch.
func (s *Service) BulkSetStatus(ctx context.Context, ids []string, status models.ScheduleStatus) []models.BulkStatusResult {
	results := make([]models.BulkStatusResult, 0, len(ids))
	for _, id := range ids {
		res := models.BulkStatusResult{ScheduleID: id, OK: true}
		if status != models.ScheduleActive && status != models.ScheduleInactive {
			res.OK = false
			res.Error = fmt.Sprintf("unsupported bulk status %q", status)
		} else if err := s.schedules.SetStatus(ctx, id, status); err != nil {
			res.OK = false
			res.Error = err.Error()
			s.log.Errorf("Failed to set schedule %s status to %s: %v", id, status, err)
		}
		results = append(results, res)
	}
	return results
}

// assignIDs fills in missing installment and reminder rule ids.
func assignIDs(s *models.PaymentSchedule) {
	for i := range s.Installments {
		if s.Installments[i].ID == "" {
			s.Installments[i].ID = uuid.NewString()
		}
		s.Installments[i].ScheduleID = s.ID
	}
	for i := range s.Reminders {
		if s.Reminders[i].ID == "" {
			s.Reminders[i].ID = uuid.NewString()
		}
	}
}

// amountConfigChanged reports whether an edit would change amounts already
// charged: fee items, installment shares and dates, late fee policy, due date,
// grace period or the covered grades.
func amountConfigChanged(a, b *models.PaymentSchedule) bool {
	if !a.DueDate.Equal(b.DueDate) || a.GracePeriodDays != b.GracePeriodDays {
		return true
	}
	if !stringSetEqual(a.Grades, b.Grades) {
		return true
	}
	if len(a.FeeItems) != len(b.FeeItems) {
		return true
	}
	itemOverrides := make(map[string]*decimal.Decimal, len(a.FeeItems))
	for i := range a.FeeItems {
		itemOverrides[a.FeeItems[i].FeeCategoryID] = a.FeeItems[i].AmountOverride
	}
	for i := range b.FeeItems {
		override, ok := itemOverrides[b.FeeItems[i].FeeCategoryID]
		if !ok || !decimalPtrEqual(override, b.FeeItems[i].AmountOverride) {
			return true
		}
	}
	if lateFeeChanged(a.LateFee, b.LateFee) {
		return true
	}
	return installmentsChanged(a.Installments, b.Installments)
}

func lateFeeChanged(a, b *models.LateFeePolicy) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return a.Type != b.Type ||
		!a.Amount.Equal(b.Amount) ||
		!a.Rate.Equal(b.Rate) ||
		!decimalPtrEqual(a.MaxAmount, b.MaxAmount)
}

func installmentsChanged(a, b []models.Installment) bool {
	if len(a) != len(b) {
		return true
	}
	bySeq := make(map[int]models.Installment, len(a))
	for _, inst := range a {
		bySeq[inst.Sequence] = inst
	}
	for _, inst := range b {
		prev, ok := bySeq[inst.Sequence]
		if !ok ||
			!prev.DueDate.Equal(inst.DueDate) ||
			prev.GracePeriodDays != inst.GracePeriodDays ||
			!decimalPtrEqual(prev.Percentage, inst.Percentage) ||
			!decimalPtrEqual(prev.FixedAmount, inst.FixedAmount) {
			return true
		}
	}
	return false
}

func decimalPtrEqual(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return (a == nil) == (b == nil)
	}
	return a.Equal(*b)
}

func stringSetEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		if !set[v] {
			return false
		}
	}
	return true
}

// asValidationError converts validator.v10 struct errors into the domain
// ValidationError shape.
func asValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	flds := make([]models.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		flds = append(flds, models.FieldError{Field: fe.Namespace(), Error: fe.Tag()})
	}
	return models.NewValidationError("invalid schedule configuration", flds...)
}
