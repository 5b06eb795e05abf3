package database

import (
	"context"
	"errors"
	"time"

	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrLockTimeout is returned when a row lock could not be taken in time.
	ErrLockTimeout = errors.New("lock wait timeout")
	// ErrVersionConflict is returned when an optimistic balance update lost a race.
	ErrVersionConflict = errors.New("optimistic lock failed")
	// ErrStatusConflict is returned when a conditional status change found another status.
	ErrStatusConflict = errors.New("entry status changed concurrently")
	// ErrDuplicate is returned when inserting a row whose key already exists.
	ErrDuplicate = errors.New("duplicate record")
)

// Reader is the read side of the ledger store. Reads never take locks.
type Reader interface {
	GetAccount(ctx context.Context, id string) (*models.BankAccount, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]models.BankAccount, error)
	GetEmployee(ctx context.Context, id string) (*models.Employee, error)
	ListEmployees(ctx context.Context, activeOnly bool) ([]models.Employee, error)
	GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error)
	EntriesByCorrelation(ctx context.Context, correlationID string) ([]models.LedgerEntry, error)
	ListEntries(ctx context.Context, filter models.HistoryFilter) ([]models.LedgerEntry, int, error)
	GetVerification(ctx context.Context, entryID string) (*models.PaymentVerification, error)
	ListPendingVerifications(ctx context.Context) ([]models.PaymentVerification, error)
	GetExpenseType(ctx context.Context, name string) (*models.ExpenseType, error)
}

// Admin covers the records owned by account and staff management.
type Admin interface {
	CreateAccount(ctx context.Context, account *models.BankAccount) error
	SetAccountActive(ctx context.Context, id string, active bool) error
	CreateEmployee(ctx context.Context, employee *models.Employee) error
	SetEmployeeActive(ctx context.Context, id string, active bool) error
	UpsertExpenseType(ctx context.Context, expenseType *models.ExpenseType) error
}

// Tx is one unit of work. Row locks taken through it are held until the
// unit commits or rolls back.
type Tx interface {
	LockAccount(ctx context.Context, id string) (*models.BankAccount, error)
	LockEmployee(ctx context.Context, id string) (*models.Employee, error)
	UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, version int) error
	UpdateEmployeeBalance(ctx context.Context, id string, balance decimal.Decimal, version int) error
	InsertEntry(ctx context.Context, entry *models.LedgerEntry) error
	LockEntry(ctx context.Context, id string) (*models.LedgerEntry, error)
	UpdateEntryStatus(ctx context.Context, id string, from, to models.EntryStatus) error
	InsertVerification(ctx context.Context, v *models.PaymentVerification) error
	UpdateVerification(ctx context.Context, v *models.PaymentVerification) error
	HasEmployeeEntry(ctx context.Context, employeeID string, kind models.EntryKind, category string, from, to time.Time) (bool, error)
}

// Store is the full ledger persistence contract.
type Store interface {
	Reader
	Admin
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
