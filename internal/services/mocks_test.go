package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ispdesk/backend/internal/config"
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockInvoiceMarker struct {
	mock.Mock
}

func (m *MockInvoiceMarker) MarkInvoicePaid(ctx context.Context, invoiceID string, amount decimal.Decimal) error {
	args := m.Called(ctx, invoiceID, amount)
	return args.Error(0)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	store    *database.MemoryStore
	engine   *Engine
	agg      *AggregationService
	invoices *MockInvoiceMarker
	events   *recordingPublisher
	cfg      *config.LedgerConfig
	now      time.Time
}

func testLedgerConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		LockWait:    200 * time.Millisecond,
		ISPCategory: "isp_cost",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    database.NewMemoryStore(),
		invoices: &MockInvoiceMarker{},
		events:   &recordingPublisher{},
		cfg:      testLedgerConfig(),
		now:      time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(f.store, NewMemoryLockManager(f.cfg.LockWait), f.cfg, zap.NewNop(),
		WithInvoiceMarker(f.invoices),
		WithEventPublisher(f.events),
		WithClock(func() time.Time { return f.now }),
	)
	f.agg = NewAggregationService(f.store)

	ctx := context.Background()
	require.NoError(t, f.store.UpsertExpenseType(ctx, &models.ExpenseType{Name: "rent"}))
	require.NoError(t, f.store.UpsertExpenseType(ctx, &models.ExpenseType{Name: "salary", IsEmployeePayment: true}))
	return f
}

func (f *fixture) account(t *testing.T, id, balance string) {
	t.Helper()
	require.NoError(t, f.store.CreateAccount(context.Background(), &models.BankAccount{
		ID:             id,
		BankName:       "Meezan Bank",
		AccountTitle:   "ISP Desk " + id,
		AccountNumber:  "0101-" + id,
		InitialBalance: dec(balance),
		IsActive:       true,
	}))
}

// employee creates an employee and accrues balance through the ledger so
// the log and the cached balance agree.
func (f *fixture) employee(t *testing.T, id, salary, balance string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.CreateEmployee(ctx, &models.Employee{
		ID:       id,
		Name:     "Employee " + id,
		Salary:   dec(salary),
		IsActive: true,
	}))
	if b := dec(balance); b.IsPositive() {
		_, err := f.engine.AccrueEmployee(ctx, "admin", id, models.AccrualRequest{Amount: b, Category: "opening_balance"})
		require.NoError(t, err)
	}
}

func (f *fixture) balance(t *testing.T, accountID string) decimal.Decimal {
	t.Helper()
	b, err := f.agg.CurrentBalance(context.Background(), accountID)
	require.NoError(t, err)
	return b
}

func (f *fixture) employeeBalance(t *testing.T, employeeID string) decimal.Decimal {
	t.Helper()
	b, err := f.agg.EmployeeCurrentBalance(context.Background(), employeeID)
	require.NoError(t, err)
	return b
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
