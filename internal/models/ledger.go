package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind identifies the money movement a ledger entry records.
type EntryKind string

const (
	KindCustomerPayment EntryKind = "customer_payment"
	KindExpense         EntryKind = "expense"
	KindISPPayment      EntryKind = "isp_payment"
	KindExtraIncome     EntryKind = "extra_income"
	KindTransferOut     EntryKind = "internal_transfer_out"
	KindTransferIn      EntryKind = "internal_transfer_in"
	KindEmployeeAccrual EntryKind = "employee_accrual"
	KindEmployeePayout  EntryKind = "employee_payout"
)

// EntryStatus is the settlement state of a ledger entry.
type EntryStatus string

const (
	StatusSettled             EntryStatus = "settled"
	StatusPendingVerification EntryStatus = "pending_verification"
	StatusRejected            EntryStatus = "rejected"
	StatusReversed            EntryStatus = "reversed"
)

// PaymentMethod is how money moved in the real world.
type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodOnline       PaymentMethod = "online"
)

// RequiresBankAccount reports whether the method moves money through a bank account.
func (m PaymentMethod) RequiresBankAccount() bool {
	return m == MethodBankTransfer || m == MethodOnline
}

// Valid reports whether m is one of the known methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodOnline:
		return true
	}
	return false
}

// Valid reports whether k is a known entry kind.
func (k EntryKind) Valid() bool {
	switch k {
	case KindCustomerPayment, KindExpense, KindISPPayment, KindExtraIncome,
		KindTransferOut, KindTransferIn, KindEmployeeAccrual, KindEmployeePayout:
		return true
	}
	return false
}

func (s EntryStatus) Valid() bool {
	switch s {
	case StatusSettled, StatusPendingVerification, StatusRejected, StatusReversed:
		return true
	}
	return false
}

// AccountSign is the direction an entry of this kind moves a bank account balance.
// Kinds that never touch an account return 0.
func (k EntryKind) AccountSign() int {
	switch k {
	case KindCustomerPayment, KindExtraIncome, KindTransferIn:
		return 1
	case KindExpense, KindISPPayment, KindTransferOut:
		return -1
	}
	return 0
}

// EmployeeSign is the direction an entry of this kind moves an employee balance.
func (k EntryKind) EmployeeSign() int {
	switch k {
	case KindEmployeeAccrual:
		return 1
	case KindEmployeePayout:
		return -1
	}
	return 0
}

// LedgerEntry is one immutable money movement. Only Status may change after
// insert, and only along pending_verification -> settled|rejected or
// settled -> reversed.
type LedgerEntry struct {
	ID             string          `json:"id" db:"id"`
	Kind           EntryKind       `json:"transaction_type" db:"kind"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	AccountID      *string         `json:"bank_account_id,omitempty" db:"account_id"`
	EmployeeID     *string         `json:"employee_id,omitempty" db:"employee_id"`
	PaymentMethod  PaymentMethod   `json:"payment_method,omitempty" db:"payment_method"`
	Status         EntryStatus     `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	CreatedBy      string          `json:"created_by" db:"created_by"`
	ProofReference *string         `json:"payment_proof,omitempty" db:"proof_reference"`
	CorrelationID  string          `json:"correlation_id" db:"correlation_id"`
	InvoiceID      *string         `json:"invoice_id,omitempty" db:"invoice_id"`
	CustomerID     *string         `json:"customer_id,omitempty" db:"customer_id"`
	Category       string          `json:"category,omitempty" db:"category"`
	Description    string          `json:"description,omitempty" db:"description"`
	ReversalOf     *string         `json:"reversal_of,omitempty" db:"reversal_of"`
	Metadata       Metadata        `json:"metadata,omitempty" db:"metadata"`
}

// SignedAccountAmount is the entry's effect on its bank account. Reversal
// entries carry the opposite sign of the entry they compensate.
func (e *LedgerEntry) SignedAccountAmount() decimal.Decimal {
	return e.signed(e.Kind.AccountSign())
}

// SignedEmployeeAmount is the entry's effect on its employee balance.
func (e *LedgerEntry) SignedEmployeeAmount() decimal.Decimal {
	return e.signed(e.Kind.EmployeeSign())
}

func (e *LedgerEntry) signed(sign int) decimal.Decimal {
	if e.ReversalOf != nil {
		sign = -sign
	}
	switch sign {
	case 1:
		return e.Amount
	case -1:
		return e.Amount.Neg()
	}
	return decimal.Zero
}

// AffectsBalances reports whether the entry currently counts toward cached balances.
// Reversed originals still count: their compensating entry cancels them.
func (e *LedgerEntry) AffectsBalances() bool {
	return e.Status == StatusSettled || e.Status == StatusReversed
}

// VerificationDecision is the outcome of a proof review.
type VerificationDecision string

const (
	DecisionPending  VerificationDecision = "pending"
	DecisionApproved VerificationDecision = "approved"
	DecisionRejected VerificationDecision = "rejected"
)

// PaymentVerification wraps a customer payment awaiting proof review.
type PaymentVerification struct {
	EntryID        string               `json:"payment_id" db:"entry_id"`
	ProofReference string               `json:"payment_proof" db:"proof_reference"`
	Decision       VerificationDecision `json:"decision" db:"decision"`
	ReviewerID     *string              `json:"reviewer_id,omitempty" db:"reviewer_id"`
	DecisionNotes  *string              `json:"notes,omitempty" db:"decision_notes"`
	DecidedAt      *time.Time           `json:"decided_at,omitempty" db:"decided_at"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
}

// InternalTransfer is the logical view of the two legs sharing a correlation id.
type InternalTransfer struct {
	CorrelationID string          `json:"id"`
	FromAccountID string          `json:"from_account_id"`
	ToAccountID   string          `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
	TransferDate  time.Time       `json:"transfer_date"`
	Out           *LedgerEntry    `json:"-"`
	In            *LedgerEntry    `json:"-"`
}
