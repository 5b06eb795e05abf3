package services

import (
	"context"
	"time"

	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
)

const (
	defaultPerPage  = 20
	maxPerPage      = 100
	portalLedgerLen = 50
)

// AggregationService answers balance and history questions. Point-in-time
// balances read the cached columns; anything over a range is recomputed
// from the entry log.
type AggregationService struct {
	store database.Reader
}

func NewAggregationService(store database.Reader) *AggregationService {
	return &AggregationService{store: store}
}

func (a *AggregationService) CurrentBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, storeErr(err, "bank account "+accountID)
	}
	return account.CurrentBalance, nil
}

func (a *AggregationService) EmployeeCurrentBalance(ctx context.Context, employeeID string) (decimal.Decimal, error) {
	employee, err := a.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return decimal.Zero, storeErr(err, "employee "+employeeID)
	}
	return employee.CurrentBalance, nil
}

// PendingBalance sums the customer payments on the account still awaiting
// verification. None of it is in CurrentBalance yet.
func (a *AggregationService) PendingBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	entries, _, err := a.store.ListEntries(ctx, models.HistoryFilter{
		AccountID: accountID,
		Kinds:     []models.EntryKind{models.KindCustomerPayment},
		Statuses:  []models.EntryStatus{models.StatusPendingVerification},
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return total, nil
}

// AccountSummaries lists bank accounts with their pending balances.
func (a *AggregationService) AccountSummaries(ctx context.Context, activeOnly bool) ([]models.AccountSummary, error) {
	accounts, err := a.store.ListAccounts(ctx, activeOnly)
	if err != nil {
		return nil, err
	}
	out := make([]models.AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		pending, err := a.PendingBalance(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, models.AccountSummary{BankAccount: account, PendingBalance: pending})
	}
	return out, nil
}

// AccountFlow totals settled inflows and outflows on an account over [from, to).
func (a *AggregationService) AccountFlow(ctx context.Context, accountID string, from, to time.Time) (*models.AccountFlow, error) {
	if !from.Before(to) {
		return nil, invalid("to", "must be after from")
	}
	if _, err := a.store.GetAccount(ctx, accountID); err != nil {
		return nil, storeErr(err, "bank account "+accountID)
	}
	entries, _, err := a.store.ListEntries(ctx, models.HistoryFilter{
		AccountID: accountID,
		Statuses:  []models.EntryStatus{models.StatusSettled, models.StatusReversed},
		From:      &from,
		To:        &to,
	})
	if err != nil {
		return nil, err
	}

	flow := &models.AccountFlow{AccountID: accountID, From: from, To: to,
		Inflow: decimal.Zero, Outflow: decimal.Zero}
	for _, e := range entries {
		delta := e.SignedAccountAmount()
		if delta.IsPositive() {
			flow.Inflow = flow.Inflow.Add(delta)
		} else {
			flow.Outflow = flow.Outflow.Add(delta.Neg())
		}
	}
	flow.Net = flow.Inflow.Sub(flow.Outflow)
	return flow, nil
}

// MonthEarnings is the employee's settled accruals minus payouts created in
// the calendar month containing month, net of reversals booked in that month.
func (a *AggregationService) MonthEarnings(ctx context.Context, employeeID string, month time.Time) (decimal.Decimal, error) {
	from, to := monthBounds(month)
	entries, _, err := a.store.ListEntries(ctx, models.HistoryFilter{
		EmployeeID: employeeID,
		Kinds:      []models.EntryKind{models.KindEmployeeAccrual, models.KindEmployeePayout},
		From:       &from,
		To:         &to,
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, e := range entries {
		if e.AffectsBalances() {
			total = total.Add(e.SignedEmployeeAmount())
		}
	}
	return total, nil
}

// BreakdownByType totals an employee's entries per kind, net of reversals.
func (a *AggregationService) BreakdownByType(ctx context.Context, employeeID string) (map[models.EntryKind]decimal.Decimal, error) {
	entries, _, err := a.store.ListEntries(ctx, models.HistoryFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, err
	}
	return breakdown(entries), nil
}

func breakdown(entries []models.LedgerEntry) map[models.EntryKind]decimal.Decimal {
	out := make(map[models.EntryKind]decimal.Decimal)
	for _, e := range entries {
		if !e.AffectsBalances() {
			continue
		}
		amount := e.Amount
		if e.ReversalOf != nil {
			amount = amount.Neg()
		}
		out[e.Kind] = out[e.Kind].Add(amount)
	}
	return out
}

// EmployeeFinancial builds the portal view for an employee.
func (a *AggregationService) EmployeeFinancial(ctx context.Context, employeeID string, month time.Time) (*models.FinancialData, error) {
	employee, err := a.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, storeErr(err, "employee "+employeeID)
	}
	all, _, err := a.store.ListEntries(ctx, models.HistoryFilter{EmployeeID: employeeID})
	if err != nil {
		return nil, err
	}
	earnings, err := a.MonthEarnings(ctx, employeeID, month)
	if err != nil {
		return nil, err
	}

	totals := breakdown(all)
	ledger := all
	if len(ledger) > portalLedgerLen {
		ledger = ledger[:portalLedgerLen]
	}
	return &models.FinancialData{
		EmployeeID:     employee.ID,
		CurrentBalance: employee.CurrentBalance,
		TotalPaid:      totals[models.KindEmployeePayout],
		TotalEarned:    totals[models.KindEmployeeAccrual],
		MonthEarnings:  earnings,
		Salary:         employee.Salary,
		Breakdown:      totals,
		Ledger:         ledger,
	}, nil
}

// History returns one page of entries, newest first.
func (a *AggregationService) History(ctx context.Context, filter models.HistoryFilter) (*models.HistoryPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.PerPage < 1:
		filter.PerPage = defaultPerPage
	case filter.PerPage > maxPerPage:
		filter.PerPage = maxPerPage
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, invalid("to", "must be after from")
	}

	entries, total, err := a.store.ListEntries(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &models.HistoryPage{
		Entries: entries,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

// RecomputeAccountBalance derives the account balance from the log alone.
func (a *AggregationService) RecomputeAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	account, err := a.store.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, storeErr(err, "bank account "+accountID)
	}
	entries, _, err := a.store.ListEntries(ctx, models.HistoryFilter{AccountID: accountID})
	if err != nil {
		return decimal.Zero, err
	}
	balance := account.InitialBalance
	for _, e := range entries {
		if e.AffectsBalances() {
			balance = balance.Add(e.SignedAccountAmount())
		}
	}
	return balance, nil
}

// RecomputeEmployeeBalance derives the employee balance from the log alone.
func (a *AggregationService) RecomputeEmployeeBalance(ctx context.Context, employeeID string) (decimal.Decimal, error) {
	entries, _, err := a.store.ListEntries(ctx, models.HistoryFilter{EmployeeID: employeeID})
	if err != nil {
		return decimal.Zero, err
	}
	balance := decimal.Zero
	for _, e := range entries {
		if e.AffectsBalances() {
			balance = balance.Add(e.SignedEmployeeAmount())
		}
	}
	return balance, nil
}

// monthBounds returns [first instant of month, first instant of next month) in UTC.
func monthBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}
