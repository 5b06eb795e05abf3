package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountStore_DebitCredit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "A", "1000")
	accounts := f.engine.Accounts()

	require.NoError(t, accounts.Debit(ctx, "A", dec("250.25")))
	assertDecimal(t, "749.75", f.balance(t, "A"))

	require.NoError(t, accounts.Credit(ctx, "A", dec("0.25")))
	assertDecimal(t, "750", f.balance(t, "A"))

	assert.ErrorIs(t, accounts.Debit(ctx, "A", dec("750.01")), ErrInsufficientFunds)
	assert.ErrorIs(t, accounts.Debit(ctx, "A", dec("0")), ErrValidation)
	assert.ErrorIs(t, accounts.Credit(ctx, "missing", dec("1")), ErrNotFound)

	require.NoError(t, f.store.SetAccountActive(ctx, "A", false))
	assert.ErrorIs(t, accounts.Credit(ctx, "A", dec("1")), ErrAccountInactive)
	assertDecimal(t, "750", f.balance(t, "A"))
}

func TestAccountStore_ConcurrentDebits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.account(t, "A", "1000")
	accounts := f.engine.Accounts()

	var wg sync.WaitGroup
	results := make(map[string]error)
	var mu sync.Mutex
	for _, amount := range []string{"600", "700"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := accounts.Debit(ctx, "A", dec(amount))
			mu.Lock()
			results[amount] = err
			mu.Unlock()
		}()
	}
	wg.Wait()

	var failed []string
	for amount, err := range results {
		if err != nil {
			assert.True(t, errors.Is(err, ErrInsufficientFunds), "unexpected error: %v", err)
			failed = append(failed, amount)
		}
	}
	require.Len(t, failed, 1)

	want := map[string]string{"700": "400", "600": "300"}[failed[0]]
	assertDecimal(t, want, f.balance(t, "A"))
}

func TestEmployeeStore_AccrueDeduct(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.employee(t, "E", "3000", "0")
	employees := f.engine.Employees()

	require.NoError(t, employees.Accrue(ctx, "E", dec("5000")))
	require.NoError(t, employees.Deduct(ctx, "E", dec("3000"), false))
	assertDecimal(t, "2000", f.employeeBalance(t, "E"))

	assert.ErrorIs(t, employees.Deduct(ctx, "E", dec("2000.01"), false), ErrInsufficientEmployeeBalance)
	require.NoError(t, employees.Deduct(ctx, "E", dec("2500"), true))
	assertDecimal(t, "-500", f.employeeBalance(t, "E"))

	require.NoError(t, f.store.SetEmployeeActive(ctx, "E", false))
	assert.ErrorIs(t, employees.Accrue(ctx, "E", dec("1")), ErrEmployeeInactive)
	assert.ErrorIs(t, employees.Accrue(ctx, "missing", dec("1")), ErrNotFound)
}
