package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupay/fee-engine/internal/models"
)

func scheduleFixture(schedules *fakeScheduleRepo, payments *fakePaymentRepo) *Service {
	return newTestService(
		schedules,
		payments,
		&fakeRoster{},
		&fakeCatalog{amounts: map[string]map[string]decimal.Decimal{
			"tuition": {"5": dec("10000"), "6": dec("11000")},
		}},
		newFakeDispatchRepo(),
		&fakeSender{},
	)
}

func TestCreateScheduleDefaults(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduleFixture(repo, &fakePaymentRepo{})

	created, warnings, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)
	assert.Empty(t, warnings)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ScheduleDraft, created.Status)
	assert.Equal(t, 1, created.Version)

	// A schedule with no reminder configuration gets the preset rules.
	require.Len(t, created.Reminders, 4)
	offsets := make(map[int]models.ReminderType)
	for _, rule := range created.Reminders {
		assert.NotEmpty(t, rule.ID)
		assert.True(t, rule.Active)
		offsets[rule.OffsetDays] = rule.Type
	}
	assert.Equal(t, models.ReminderBeforeDue, offsets[7])
	assert.Equal(t, models.ReminderBeforeDue, offsets[1])
	assert.Equal(t, models.ReminderOnDue, offsets[0])
	assert.Equal(t, models.ReminderAfterDue, offsets[-3])

	stored, err := repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, stored.Name)
}

func TestCreateScheduleGeneratesInstallments(t *testing.T) {
	svc := scheduleFixture(newFakeScheduleRepo(), &fakePaymentRepo{})

	cfg := validSchedule()
	cfg.IsInstallment = true
	cfg.Frequency = models.FrequencyMonthly

	created, _, err := svc.CreateSchedule(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, created.Installments, 3)
	for _, inst := range created.Installments {
		assert.NotEmpty(t, inst.ID)
		assert.Equal(t, created.ID, inst.ScheduleID)
	}
}

func TestCreateScheduleCustomRequiresExplicitInstallments(t *testing.T) {
	svc := scheduleFixture(newFakeScheduleRepo(), &fakePaymentRepo{})

	cfg := validSchedule()
	cfg.IsInstallment = true
	cfg.Frequency = models.FrequencyCustom

	_, _, err := svc.CreateSchedule(context.Background(), cfg)
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestCreateScheduleStructValidation(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduleFixture(repo, &fakePaymentRepo{})

	cfg := validSchedule()
	cfg.SchoolID = ""

	_, _, err := svc.CreateSchedule(context.Background(), cfg)
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Empty(t, repo.schedules, "invalid schedules are never partially saved")
}

func TestCreateScheduleReturnsWarnings(t *testing.T) {
	svc := scheduleFixture(newFakeScheduleRepo(), &fakePaymentRepo{})

	cfg := validSchedule()
	cfg.IsInstallment = true
	cfg.Frequency = models.FrequencyCustom
	cfg.Installments = []models.Installment{
		{Sequence: 1, DueDate: cfg.DueDate, Percentage: decPtr("50")},
		{Sequence: 2, DueDate: cfg.DueDate, Percentage: decPtr("50")},
	}

	created, warnings, err := svc.CreateSchedule(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.NotEmpty(t, created.ID, "warnings never block persistence")
}

func TestUpdateScheduleBumpsVersion(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduleFixture(repo, &fakePaymentRepo{})
	created, _, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)

	edit := validSchedule()
	edit.Name = "Term 1 Fees (revised)"
	updated, _, err := svc.UpdateSchedule(context.Background(), created.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "Term 1 Fees (revised)", updated.Name)
}

func TestUpdateScheduleConcurrentModification(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduleFixture(repo, &fakePaymentRepo{})
	created, _, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)

	// Another writer moved the version on after we loaded the schedule.
	repo.failWith = models.ErrNotFound

	edit := validSchedule()
	edit.Name = "Stale edit"
	_, _, err = svc.UpdateSchedule(context.Background(), created.ID, edit)
	var cerr *models.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Msg, "concurrently")
}

func TestUpdateScheduleRefusesAmountChangesAfterPayments(t *testing.T) {
	repo := newFakeScheduleRepo()
	payments := &fakePaymentRepo{}
	svc := scheduleFixture(repo, payments)
	created, _, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)

	payments.payments = []models.Payment{
		{ID: "pay-1", ScheduleID: created.ID, StudentID: "stu-1", Amount: dec("5000")},
	}

	edit := validSchedule()
	edit.DueDate = day(2025, time.April, 1)
	_, _, err = svc.UpdateSchedule(context.Background(), created.ID, edit)
	var cerr *models.ConflictError
	require.True(t, errors.As(err, &cerr))

	edit = validSchedule()
	edit.Grades = []string{"5"}
	_, _, err = svc.UpdateSchedule(context.Background(), created.ID, edit)
	require.True(t, errors.As(err, &cerr))

	edit = validSchedule()
	edit.LateFee = &models.LateFeePolicy{Type: models.LateFeeFixed, Amount: dec("500")}
	_, _, err = svc.UpdateSchedule(context.Background(), created.ID, edit)
	require.True(t, errors.As(err, &cerr))
}

func TestUpdateScheduleAllowsNonFinancialEditsAfterPayments(t *testing.T) {
	repo := newFakeScheduleRepo()
	payments := &fakePaymentRepo{}
	svc := scheduleFixture(repo, payments)

	cfg := validSchedule()
	cfg.IsInstallment = true
	cfg.Frequency = models.FrequencyMonthly
	created, _, err := svc.CreateSchedule(context.Background(), cfg)
	require.NoError(t, err)

	payments.payments = []models.Payment{
		{ID: "pay-1", ScheduleID: created.ID, InstallmentID: created.Installments[0].ID, StudentID: "stu-1", Amount: dec("3333")},
	}

	edit := validSchedule()
	edit.IsInstallment = true
	edit.Frequency = models.FrequencyMonthly
	edit.Installments = created.Installments
	edit.Name = "Renamed"
	edit.Description = "updated description"

	updated, _, err := svc.UpdateSchedule(context.Background(), created.ID, edit)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	// The stored installment plan survives the edit untouched.
	require.Len(t, updated.Installments, 3)
	assert.Equal(t, created.Installments[0].ID, updated.Installments[0].ID)
}

func TestDeleteScheduleRefusedWithPayments(t *testing.T) {
	repo := newFakeScheduleRepo()
	payments := &fakePaymentRepo{}
	svc := scheduleFixture(repo, payments)
	created, _, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)

	payments.payments = []models.Payment{
		{ID: "pay-1", ScheduleID: created.ID, StudentID: "stu-1", Amount: dec("5000")},
	}
	err = svc.DeleteSchedule(context.Background(), created.ID)
	var cerr *models.ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Empty(t, repo.deleted)

	payments.payments = nil
	require.NoError(t, svc.DeleteSchedule(context.Background(), created.ID))
	assert.Equal(t, []string{created.ID}, repo.deleted)
}

func TestBulkSetStatus(t *testing.T) {
	repo := newFakeScheduleRepo()
	svc := scheduleFixture(repo, &fakePaymentRepo{})
	created, _, err := svc.CreateSchedule(context.Background(), validSchedule())
	require.NoError(t, err)

	results := svc.BulkSetStatus(context.Background(), []string{created.ID, "missing"}, models.ScheduleActive)
	require.Len(t, results, 2)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, models.ScheduleActive, repo.statuses[created.ID])

	// Only activation and deactivation are valid bulk transitions.
	results = svc.BulkSetStatus(context.Background(), []string{created.ID}, models.ScheduleDraft)
	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
}

func TestGetStatusProjectsSchedule(t *testing.T) {
	sched := installmentSchedule()
	svc := newTestService(
		newFakeScheduleRepo(sched),
		&fakePaymentRepo{payments: []models.Payment{
			{ID: "pay-1", ScheduleID: "sched-1", InstallmentID: "inst-1", StudentID: "stu-1", Amount: dec("3333")},
		}},
		&fakeRoster{students: []models.Student{{ID: "stu-1", FullName: "Asha Rao", Grade: "5"}}},
		&fakeCatalog{amounts: map[string]map[string]decimal.Decimal{
			"tuition": {"5": dec("10000")},
		}},
		newFakeDispatchRepo(),
		&fakeSender{},
	)

	view, err := svc.GetStatus(context.Background(), "sched-1", day(2025, time.February, 1))
	require.NoError(t, err)
	require.Len(t, view.PerStudent, 3)
	assert.Equal(t, 1, view.Rollup.Partial)
	assert.True(t, view.Rollup.TotalPaid.Equal(dec("3333")))

	_, err = svc.GetStatus(context.Background(), "missing", day(2025, time.February, 1))
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestGetStatusUnresolvedWhenAnyFeeItemFails(t *testing.T) {
	sched := installmentSchedule()
	sched.FeeItems = []models.FeeItem{
		{FeeCategoryID: "tuition"},
		{FeeCategoryID: "transport"},
	}
	svc := newTestService(
		newFakeScheduleRepo(sched),
		&fakePaymentRepo{},
		&fakeRoster{students: []models.Student{{ID: "stu-1", FullName: "Asha Rao", Grade: "5"}}},
		// The transport category resolves for no grade; a partially
		// resolved total must not be presented as the amount due.
		&fakeCatalog{amounts: map[string]map[string]decimal.Decimal{
			"tuition": {"5": dec("10000")},
		}},
		newFakeDispatchRepo(),
		&fakeSender{},
	)

	view, err := svc.GetStatus(context.Background(), "sched-1", day(2025, time.February, 1))
	require.NoError(t, err)
	assert.Empty(t, view.PerStudent)
	assert.Equal(t, 1, view.Rollup.TotalStudents)
	assert.Equal(t, []string{"stu-1"}, view.Rollup.Unresolved)
	assert.True(t, view.Rollup.TotalDue.IsZero())
}
