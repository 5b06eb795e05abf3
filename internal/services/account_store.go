package services

import (
	"context"
	"fmt"

	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
)

// AccountStore owns bank account balances. Every read-modify-write happens
// under the account's lock so a debit's funds check and its update see the
// same balance.
type AccountStore struct {
	store database.Store
	locks LockManager
}

func NewAccountStore(store database.Store, locks LockManager) *AccountStore {
	return &AccountStore{store: store, locks: locks}
}

// Debit removes amount from the account. No ledger entry is written.
func (s *AccountStore) Debit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if err := validateAmount("amount", amount); err != nil {
		return err
	}
	return s.locked(ctx, accountID, func(tx database.Tx) error {
		_, err := s.debit(ctx, tx, accountID, amount)
		return err
	})
}

// Credit adds amount to the account. No ledger entry is written.
func (s *AccountStore) Credit(ctx context.Context, accountID string, amount decimal.Decimal) error {
	if err := validateAmount("amount", amount); err != nil {
		return err
	}
	return s.locked(ctx, accountID, func(tx database.Tx) error {
		_, err := s.credit(ctx, tx, accountID, amount)
		return err
	})
}

func (s *AccountStore) locked(ctx context.Context, accountID string, fn func(tx database.Tx) error) error {
	return withRetry(ctx, func() error {
		release, err := s.locks.Acquire(ctx, accountKey(accountID))
		if err != nil {
			return err
		}
		defer release()
		return s.store.RunInTx(ctx, fn)
	})
}

// debit assumes the caller holds the account lock.
func (s *AccountStore) debit(ctx context.Context, tx database.Tx, accountID string, amount decimal.Decimal) (*models.BankAccount, error) {
	account, err := s.lockActive(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if amount.GreaterThan(account.CurrentBalance) {
		return nil, fmt.Errorf("account %s has %s, needs %s: %w",
			accountID, account.CurrentBalance.StringFixed(2), amount.StringFixed(2), ErrInsufficientFunds)
	}
	balance := account.CurrentBalance.Sub(amount)
	if err := tx.UpdateAccountBalance(ctx, accountID, balance, account.Version); err != nil {
		return nil, storeErr(err, "update account balance")
	}
	account.CurrentBalance = balance
	return account, nil
}

// credit assumes the caller holds the account lock.
func (s *AccountStore) credit(ctx context.Context, tx database.Tx, accountID string, amount decimal.Decimal) (*models.BankAccount, error) {
	account, err := s.lockActive(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	balance := account.CurrentBalance.Add(amount)
	if err := tx.UpdateAccountBalance(ctx, accountID, balance, account.Version); err != nil {
		return nil, storeErr(err, "update account balance")
	}
	account.CurrentBalance = balance
	return account, nil
}

// adjust applies a signed delta without the funds check. Reversals and
// reconciliation use it; they correct history rather than spend money.
func (s *AccountStore) adjust(ctx context.Context, tx database.Tx, accountID string, delta decimal.Decimal) error {
	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return storeErr(err, "bank account "+accountID)
	}
	if err := tx.UpdateAccountBalance(ctx, accountID, account.CurrentBalance.Add(delta), account.Version); err != nil {
		return storeErr(err, "update account balance")
	}
	return nil
}

func (s *AccountStore) lockActive(ctx context.Context, tx database.Tx, accountID string) (*models.BankAccount, error) {
	account, err := tx.LockAccount(ctx, accountID)
	if err != nil {
		return nil, storeErr(err, "bank account "+accountID)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("account %s: %w", accountID, ErrAccountInactive)
	}
	return account, nil
}
