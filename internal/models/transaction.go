package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerPaymentRequest is the body of POST /payments.
type CustomerPaymentRequest struct {
	InvoiceID      string          `json:"invoice_id" validate:"required"`
	CustomerID     string          `json:"customer_id" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method" validate:"required,oneof=cash bank_transfer online"`
	BankAccountID  string          `json:"bank_account_id,omitempty"`
	PaymentProof   string          `json:"payment_proof,omitempty" validate:"max=255"`
	TransactionRef string          `json:"transaction_id,omitempty" validate:"max=100"`
	Description    string          `json:"description,omitempty" validate:"max=500"`
}

// ExpenseRequest is the body of POST /expenses.
type ExpenseRequest struct {
	ExpenseType   string          `json:"expense_type" validate:"required,max=50"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"required,oneof=cash bank_transfer online"`
	BankAccountID string          `json:"bank_account_id,omitempty"`
	EmployeeID    string          `json:"employee_id,omitempty"`
	AllowAdvance  bool            `json:"allow_advance,omitempty"`
	Description   string          `json:"description,omitempty" validate:"max=500"`
}

// ISPPaymentRequest is the body of POST /isp-payments.
type ISPPaymentRequest struct {
	ISPID           string          `json:"isp_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   PaymentMethod   `json:"payment_method" validate:"required,oneof=cash bank_transfer online"`
	BankAccountID   string          `json:"bank_account_id,omitempty"`
	BillingPeriod   string          `json:"billing_period,omitempty" validate:"max=50"`
	ReferenceNumber string          `json:"reference_number,omitempty" validate:"max=100"`
	Description     string          `json:"description,omitempty" validate:"max=500"`
}

// ExtraIncomeRequest is the body of POST /extra-incomes.
type ExtraIncomeRequest struct {
	IncomeType    string          `json:"income_type" validate:"required,max=50"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod PaymentMethod   `json:"payment_method" validate:"required,oneof=cash bank_transfer online"`
	BankAccountID string          `json:"bank_account_id,omitempty"`
	Description   string          `json:"description,omitempty" validate:"max=500"`
}

// TransferRequest is the body of POST /transfers.
type TransferRequest struct {
	FromAccountID   string          `json:"from_account_id" validate:"required"`
	ToAccountID     string          `json:"to_account_id" validate:"required"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number,omitempty" validate:"max=100"`
	Description     string          `json:"description,omitempty" validate:"max=500"`
}

// VerifyPaymentRequest is the body of POST /payments/verify/{id}.
type VerifyPaymentRequest struct {
	Action string  `json:"action" validate:"required,oneof=approve reject"`
	Notes  *string `json:"notes"`
}

// AccrualRequest is the body of POST /employees/{id}/accruals.
type AccrualRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category" validate:"required,max=50"`
	Description string          `json:"description,omitempty" validate:"max=500"`
}

// ReversalRequest is the body of POST /ledger/{id}/reverse.
type ReversalRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=500"`
}

// HistoryFilter selects a page of ledger entries.
type HistoryFilter struct {
	AccountID  string
	EmployeeID string
	Kinds      []EntryKind
	Statuses   []EntryStatus
	From       *time.Time
	To         *time.Time
	Page       int
	PerPage    int
}

// HistoryPage is one page of ledger history.
type HistoryPage struct {
	Entries []LedgerEntry `json:"entries"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
}
