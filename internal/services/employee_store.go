package services

import (
	"context"
	"fmt"

	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
)

// EmployeeStore owns employee running balances with the same per-entity
// serialization as AccountStore.
type EmployeeStore struct {
	store database.Store
	locks LockManager
}

func NewEmployeeStore(store database.Store, locks LockManager) *EmployeeStore {
	return &EmployeeStore{store: store, locks: locks}
}

// Accrue increases what the company owes the employee.
func (s *EmployeeStore) Accrue(ctx context.Context, employeeID string, amount decimal.Decimal) error {
	if err := validateAmount("amount", amount); err != nil {
		return err
	}
	return s.locked(ctx, employeeID, func(tx database.Tx) error {
		_, err := s.accrue(ctx, tx, employeeID, amount)
		return err
	})
}

// Deduct pays down the employee balance. It refuses to go negative unless
// allowAdvance is set.
func (s *EmployeeStore) Deduct(ctx context.Context, employeeID string, amount decimal.Decimal, allowAdvance bool) error {
	if err := validateAmount("amount", amount); err != nil {
		return err
	}
	return s.locked(ctx, employeeID, func(tx database.Tx) error {
		_, err := s.deduct(ctx, tx, employeeID, amount, allowAdvance)
		return err
	})
}

func (s *EmployeeStore) locked(ctx context.Context, employeeID string, fn func(tx database.Tx) error) error {
	return withRetry(ctx, func() error {
		release, err := s.locks.Acquire(ctx, employeeKey(employeeID))
		if err != nil {
			return err
		}
		defer release()
		return s.store.RunInTx(ctx, fn)
	})
}

func (s *EmployeeStore) accrue(ctx context.Context, tx database.Tx, employeeID string, amount decimal.Decimal) (*models.Employee, error) {
	employee, err := s.lockActive(ctx, tx, employeeID)
	if err != nil {
		return nil, err
	}
	balance := employee.CurrentBalance.Add(amount)
	if err := tx.UpdateEmployeeBalance(ctx, employeeID, balance, employee.Version); err != nil {
		return nil, storeErr(err, "update employee balance")
	}
	employee.CurrentBalance = balance
	return employee, nil
}

func (s *EmployeeStore) deduct(ctx context.Context, tx database.Tx, employeeID string, amount decimal.Decimal, allowAdvance bool) (*models.Employee, error) {
	employee, err := s.lockActive(ctx, tx, employeeID)
	if err != nil {
		return nil, err
	}
	balance := employee.CurrentBalance.Sub(amount)
	if balance.IsNegative() && !allowAdvance {
		return nil, fmt.Errorf("employee %s is owed %s, payout %s: %w",
			employeeID, employee.CurrentBalance.StringFixed(2), amount.StringFixed(2), ErrInsufficientEmployeeBalance)
	}
	if err := tx.UpdateEmployeeBalance(ctx, employeeID, balance, employee.Version); err != nil {
		return nil, storeErr(err, "update employee balance")
	}
	employee.CurrentBalance = balance
	return employee, nil
}

func (s *EmployeeStore) adjust(ctx context.Context, tx database.Tx, employeeID string, delta decimal.Decimal) error {
	employee, err := tx.LockEmployee(ctx, employeeID)
	if err != nil {
		return storeErr(err, "employee "+employeeID)
	}
	if err := tx.UpdateEmployeeBalance(ctx, employeeID, employee.CurrentBalance.Add(delta), employee.Version); err != nil {
		return storeErr(err, "update employee balance")
	}
	return nil
}

func (s *EmployeeStore) lockActive(ctx context.Context, tx database.Tx, employeeID string) (*models.Employee, error) {
	employee, err := tx.LockEmployee(ctx, employeeID)
	if err != nil {
		return nil, storeErr(err, "employee "+employeeID)
	}
	if !employee.IsActive {
		return nil, fmt.Errorf("employee %s: %w", employeeID, ErrEmployeeInactive)
	}
	return employee, nil
}
