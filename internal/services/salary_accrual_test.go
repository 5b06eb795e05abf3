package services

import (
	"context"
	"testing"
	"time"

	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEngine_AccrueMonthlySalaries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.employee(t, "E1", "3000", "0")
	f.employee(t, "E2", "4500.50", "0")
	f.employee(t, "E3", "0", "0")
	f.employee(t, "E4", "2000", "0")
	require.NoError(t, f.store.SetEmployeeActive(ctx, "E4", false))

	month := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	run, err := f.engine.AccrueMonthlySalaries(ctx, month)
	require.NoError(t, err)
	assert.Equal(t, "2024-03", run.Month)
	assert.Len(t, run.Accrued, 2)
	assert.Empty(t, run.Skipped)
	assert.Empty(t, run.Failures)

	assertDecimal(t, "3000", f.employeeBalance(t, "E1"))
	assertDecimal(t, "4500.50", f.employeeBalance(t, "E2"))
	assertDecimal(t, "0", f.employeeBalance(t, "E3"))
	assertDecimal(t, "0", f.employeeBalance(t, "E4"))

	for _, entry := range run.Accrued {
		assert.Equal(t, salaryAccrualCategory, entry.Category)
		assert.Equal(t, salaryAccrualActor, entry.CreatedBy)
		assert.Equal(t, f.now, entry.CreatedAt)
	}

	t.Run("rerun is idempotent", func(t *testing.T) {
		run, err := f.engine.AccrueMonthlySalaries(ctx, month.AddDate(0, 0, 20))
		require.NoError(t, err)
		assert.Empty(t, run.Accrued)
		assert.ElementsMatch(t, []string{"E1", "E2"}, run.Skipped)
		assertDecimal(t, "3000", f.employeeBalance(t, "E1"))
	})

	t.Run("past month is dated to its first day", func(t *testing.T) {
		run, err := f.engine.AccrueMonthlySalaries(ctx, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Len(t, run.Accrued, 2)
		assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), run.Accrued[0].CreatedAt)
		assertDecimal(t, "6000", f.employeeBalance(t, "E1"))
	})

	t.Run("month earnings follow the accrual", func(t *testing.T) {
		earnings, err := f.agg.MonthEarnings(ctx, "E2", month)
		require.NoError(t, err)
		assertDecimal(t, "4500.50", earnings)
	})

	assertBalancesMatchLog(t, f)
}

func TestEngine_AccrueMonthlySalaries_ReversedMonthCanBeRebooked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.employee(t, "E1", "3000", "0")

	run, err := f.engine.AccrueMonthlySalaries(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, run.Accrued, 1)

	_, err = f.engine.Reverse(ctx, "admin", run.Accrued[0].ID, "wrong salary amount")
	require.NoError(t, err)
	assertDecimal(t, "0", f.employeeBalance(t, "E1"))

	run, err = f.engine.AccrueMonthlySalaries(ctx, f.now)
	require.NoError(t, err)
	assert.Len(t, run.Accrued, 1)
	assertDecimal(t, "3000", f.employeeBalance(t, "E1"))
	assertBalancesMatchLog(t, f)
}

// staleRoster lists employees with an outdated salary, as a listing read
// before a concurrent salary change would.
type staleRoster struct {
	database.Store
	salary decimal.Decimal
}

func (s staleRoster) ListEmployees(ctx context.Context, activeOnly bool) ([]models.Employee, error) {
	employees, err := s.Store.ListEmployees(ctx, activeOnly)
	for i := range employees {
		employees[i].Salary = s.salary
	}
	return employees, err
}

func TestEngine_AccrueMonthlySalaries_UsesLockedSalary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.employee(t, "E1", "3000", "0")

	engine := NewEngine(staleRoster{Store: f.store, salary: dec("1")}, NewMemoryLockManager(f.cfg.LockWait), f.cfg, zap.NewNop(),
		WithClock(func() time.Time { return f.now }))
	run, err := engine.AccrueMonthlySalaries(ctx, f.now)
	require.NoError(t, err)
	require.Len(t, run.Accrued, 1)

	assertDecimal(t, "3000", run.Accrued[0].Amount)
	assertDecimal(t, "3000", f.employeeBalance(t, "E1"))
	assertBalancesMatchLog(t, f)
}
