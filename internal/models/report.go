package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialData is the employee portal view of one employee's money.
type FinancialData struct {
	EmployeeID     string                        `json:"employee_id"`
	CurrentBalance decimal.Decimal               `json:"current_balance"`
	TotalPaid      decimal.Decimal               `json:"total_paid"`
	TotalEarned    decimal.Decimal               `json:"total_earned"`
	MonthEarnings  decimal.Decimal               `json:"month_earnings"`
	Salary         decimal.Decimal               `json:"salary"`
	Breakdown      map[EntryKind]decimal.Decimal `json:"breakdown"`
	Ledger         []LedgerEntry                 `json:"ledger"`
}

// AccountSummary is a bank account with the payments still awaiting review.
type AccountSummary struct {
	BankAccount
	PendingBalance decimal.Decimal `json:"pending_balance"`
}

// AccountFlow totals the settled movements on an account over [From, To).
type AccountFlow struct {
	AccountID string          `json:"account_id"`
	From      time.Time       `json:"from"`
	To        time.Time       `json:"to"`
	Inflow    decimal.Decimal `json:"inflow"`
	Outflow   decimal.Decimal `json:"outflow"`
	Net       decimal.Decimal `json:"net"`
}

// BalanceDrift is a cached balance that disagrees with the ledger.
type BalanceDrift struct {
	Subject  string          `json:"subject"`
	ID       string          `json:"id"`
	Cached   decimal.Decimal `json:"cached"`
	Computed decimal.Decimal `json:"computed"`
	Fixed    bool            `json:"fixed"`
}

// ReconcileReport is the outcome of one reconciliation run.
type ReconcileReport struct {
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
	AccountsChecked  int            `json:"accounts_checked"`
	EmployeesChecked int            `json:"employees_checked"`
	Drift            []BalanceDrift `json:"drift"`
}

// AccrualRun is the outcome of one monthly salary accrual.
type AccrualRun struct {
	Month    string        `json:"month"`
	Accrued  []LedgerEntry `json:"accrued"`
	Skipped  []string      `json:"skipped"`
	Failures []string      `json:"failures,omitempty"`
}
