package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ispdesk/backend/internal/database"
)

var (
	ErrValidation                  = errors.New("validation failed")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientEmployeeBalance = errors.New("insufficient employee balance")
	ErrInvalidTransfer             = errors.New("invalid transfer")
	ErrAccountInactive             = errors.New("bank account is inactive")
	ErrEmployeeInactive            = errors.New("employee is inactive")
	ErrConcurrentModification      = errors.New("concurrent modification, please resubmit")
	ErrAlreadyDecided              = errors.New("payment already decided")
	ErrNotReversible               = errors.New("entry cannot be reversed")
	ErrNotSettled                  = errors.New("entry is not settled")
	ErrNotFound                    = errors.New("not found")
	ErrDuplicate                   = errors.New("already exists")
	ErrInvoiceUpdate               = errors.New("invoice service rejected update")
	ErrFatalInconsistency          = errors.New("ledger inconsistency requires operator reconciliation")

	// errContention marks a lock wait that ran out; it never leaves the package.
	errContention = errors.New("lock contention")
)

// ValidationError is a rejected input field. It matches ErrValidation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// errorStatus maps ledger errors to an HTTP status and a stable code the UI can switch on.
var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{ErrValidation, http.StatusBadRequest, "validation_error"},
	{ErrInvalidTransfer, http.StatusBadRequest, "invalid_transfer"},
	{ErrNotFound, http.StatusNotFound, "not_found"},
	{ErrDuplicate, http.StatusConflict, "duplicate"},
	{ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{ErrInsufficientEmployeeBalance, http.StatusUnprocessableEntity, "insufficient_employee_balance"},
	{ErrAccountInactive, http.StatusUnprocessableEntity, "account_inactive"},
	{ErrEmployeeInactive, http.StatusUnprocessableEntity, "employee_inactive"},
	{ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{ErrAlreadyDecided, http.StatusConflict, "already_decided"},
	{ErrNotReversible, http.StatusConflict, "not_reversible"},
	{ErrNotSettled, http.StatusConflict, "not_settled"},
	{ErrInvoiceUpdate, http.StatusBadGateway, "invoice_update_failed"},
	{ErrFatalInconsistency, http.StatusInternalServerError, "fatal_inconsistency"},
}

// ClassifyError returns the HTTP status and code for err. Unknown errors are
// system failures.
func ClassifyError(err error) (int, string) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return http.StatusInternalServerError, "internal_error"
}

// IsBusinessRule reports whether err is a rule rejection rather than a system failure.
func IsBusinessRule(err error) bool {
	status, _ := ClassifyError(err)
	return status < http.StatusInternalServerError && status != http.StatusBadGateway
}

// storeErr translates store sentinels into ledger errors.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%s: %w", what, ErrDuplicate)
	case errors.Is(err, database.ErrLockTimeout), errors.Is(err, database.ErrVersionConflict),
		errors.Is(err, database.ErrStatusConflict):
		return fmt.Errorf("%s: %w", what, errContention)
	}
	return err
}
