package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/ispdesk/backend/internal/database"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{invalid("amount", "must be greater than zero"), http.StatusBadRequest, "validation_error"},
		{fmt.Errorf("account A: %w", ErrInsufficientFunds), http.StatusUnprocessableEntity, "insufficient_funds"},
		{fmt.Errorf("wrapped: %w", ErrConcurrentModification), http.StatusConflict, "concurrent_modification"},
		{ErrAlreadyDecided, http.StatusConflict, "already_decided"},
		{ErrInvalidTransfer, http.StatusBadRequest, "invalid_transfer"},
		{fmt.Errorf("payment x: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{ErrInvoiceUpdate, http.StatusBadGateway, "invoice_update_failed"},
		{ErrFatalInconsistency, http.StatusInternalServerError, "fatal_inconsistency"},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := ClassifyError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}

	assert.True(t, IsBusinessRule(ErrInsufficientFunds))
	assert.False(t, IsBusinessRule(ErrInvoiceUpdate))
	assert.False(t, IsBusinessRule(errors.New("boom")))
}

func TestStoreErr(t *testing.T) {
	assert.NoError(t, storeErr(nil, "x"))
	assert.ErrorIs(t, storeErr(database.ErrNotFound, "bank account A"), ErrNotFound)
	assert.ErrorIs(t, storeErr(database.ErrLockTimeout, "lock"), errContention)
	assert.ErrorIs(t, storeErr(database.ErrVersionConflict, "update"), errContention)
	assert.ErrorIs(t, storeErr(database.ErrStatusConflict, "update"), errContention)

	other := errors.New("disk full")
	assert.Equal(t, other, storeErr(other, "x"))
}

func TestWithRetry(t *testing.T) {
	ctx := t.Context()

	t.Run("retries once on contention", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, func() error {
			calls++
			if calls == 1 {
				return errContention
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after the retry", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, func() error {
			calls++
			return fmt.Errorf("account A: %w", errContention)
		})
		assert.ErrorIs(t, err, ErrConcurrentModification)
		assert.NotErrorIs(t, err, errContention)
		assert.Equal(t, 2, calls)
	})

	t.Run("business errors are not retried", func(t *testing.T) {
		calls := 0
		err := withRetry(ctx, func() error {
			calls++
			return ErrInsufficientFunds
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.Equal(t, 1, calls)
	})
}

func TestValidateAmount(t *testing.T) {
	assert.NoError(t, validateAmount("amount", dec("0.01")))
	assert.NoError(t, validateAmount("amount", dec("9999999999999.99")))
	assert.NoError(t, validateAmount("amount", dec("12.50")))
	assert.ErrorIs(t, validateAmount("amount", dec("10000000000000")), ErrValidation)
	assert.ErrorIs(t, validateAmount("amount", dec("0.001")), ErrValidation)
	assert.ErrorIs(t, validateAmount("amount", dec("-1")), ErrValidation)
}
