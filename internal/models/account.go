package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BankAccount is a company bank account. CurrentBalance is a cached
// projection of InitialBalance plus every settled entry on the account.
type BankAccount struct {
	ID             string          `json:"id" db:"id"`
	BankName       string          `json:"bank_name" db:"bank_name"`
	AccountTitle   string          `json:"account_title" db:"account_title"`
	AccountNumber  string          `json:"account_number" db:"account_number"`
	InitialBalance decimal.Decimal `json:"initial_balance" db:"initial_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	Version        int             `json:"-" db:"version"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ExpenseType classifies expenses. IsEmployeePayment is the only signal the
// engine trusts to route an expense to an employee payout.
type ExpenseType struct {
	Name              string `json:"name" db:"name"`
	IsEmployeePayment bool   `json:"is_employee_payment" db:"is_employee_payment"`
}

// CreateAccountRequest is the body of POST /admin/bank-accounts.
type CreateAccountRequest struct {
	BankName       string          `json:"bank_name" validate:"required,max=100"`
	AccountTitle   string          `json:"account_title" validate:"required,max=100"`
	AccountNumber  string          `json:"account_number" validate:"required,max=50"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

// ActivationRequest toggles an account or employee.
type ActivationRequest struct {
	Active *bool `json:"active" validate:"required"`
}
