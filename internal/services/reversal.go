package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
)

// Reverse compensates a settled operation. Every entry sharing the target's
// correlation id gets a compensating entry with the opposite effect, and the
// originals move to reversed; a transfer therefore reverses both legs in one
// unit of work. A marked invoice is not re-opened.
func (e *Engine) Reverse(ctx context.Context, actor, entryID, reason string) ([]models.LedgerEntry, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, invalid("created_by", "is required")
	}
	if len(strings.TrimSpace(reason)) < 3 {
		return nil, invalid("reason", "must be at least 3 characters")
	}

	target, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, storeErr(err, "ledger entry "+entryID)
	}
	group, err := e.store.EntriesByCorrelation(ctx, target.CorrelationID)
	if err != nil {
		return nil, err
	}

	var keys, accountIDs, employeeIDs []string
	for _, leg := range group {
		keys = append(keys, entryKey(leg.ID))
		if leg.AccountID != nil {
			keys = append(keys, accountKey(*leg.AccountID))
			accountIDs = append(accountIDs, *leg.AccountID)
		}
		if leg.EmployeeID != nil {
			keys = append(keys, employeeKey(*leg.EmployeeID))
			employeeIDs = append(employeeIDs, *leg.EmployeeID)
		}
	}
	slices.Sort(accountIDs)
	accountIDs = slices.Compact(accountIDs)
	slices.Sort(employeeIDs)
	employeeIDs = slices.Compact(employeeIDs)

	correlationID := uuid.NewString()
	var compensations []models.LedgerEntry

	err = withRetry(ctx, func() error {
		release, err := e.locks.Acquire(ctx, keys...)
		if err != nil {
			return err
		}
		defer release()

		return e.store.RunInTx(ctx, func(tx database.Tx) error {
			for _, id := range accountIDs {
				if _, err := tx.LockAccount(ctx, id); err != nil {
					return storeErr(err, "bank account "+id)
				}
			}
			for _, id := range employeeIDs {
				if _, err := tx.LockEmployee(ctx, id); err != nil {
					return storeErr(err, "employee "+id)
				}
			}

			compensations = compensations[:0]
			now := e.now().UTC()
			for _, leg := range group {
				current, err := tx.LockEntry(ctx, leg.ID)
				if err != nil {
					return storeErr(err, "ledger entry "+leg.ID)
				}
				if current.ReversalOf != nil {
					return fmt.Errorf("entry %s is itself a reversal: %w", leg.ID, ErrNotReversible)
				}
				if current.Status != models.StatusSettled {
					return fmt.Errorf("entry %s is %s: %w", leg.ID, current.Status, ErrNotReversible)
				}

				comp := e.compensation(current, actor, reason, correlationID, now)
				if err := e.applyCompensation(ctx, tx, &comp); err != nil {
					return err
				}
				if err := tx.UpdateEntryStatus(ctx, leg.ID, models.StatusSettled, models.StatusReversed); err != nil {
					return storeErr(err, "update entry status")
				}
				if err := tx.InsertEntry(ctx, &comp); err != nil {
					return storeErr(err, "insert reversal entry")
				}
				compensations = append(compensations, comp)
			}
			return nil
		})
	})
	if err != nil {
		e.failed(correlationID, actor, err)
		return nil, err
	}

	e.audit.LogReversal(correlationID, target.CorrelationID, actor, reason, target.Amount)
	e.publish(ctx, EventEntriesReversed, correlationID, compensations)
	return compensations, nil
}

func (e *Engine) compensation(original *models.LedgerEntry, actor, reason, correlationID string, now time.Time) models.LedgerEntry {
	comp := *original
	comp.ID = uuid.NewString()
	comp.Status = models.StatusSettled
	comp.CreatedAt = now
	comp.CreatedBy = actor
	comp.CorrelationID = correlationID
	comp.ReversalOf = &original.ID
	comp.Description = "Reversal: " + reason
	comp.Metadata = withMeta(original.Metadata, "reversal_reason", reason)
	return comp
}

// applyCompensation moves balances by the compensating entry's signed
// amount. Undoing a credit must still find the money in the account; an
// employee balance may go negative.
func (e *Engine) applyCompensation(ctx context.Context, tx database.Tx, comp *models.LedgerEntry) error {
	if comp.AccountID != nil {
		delta := comp.SignedAccountAmount()
		switch {
		case delta.IsNegative():
			if _, err := e.accounts.debit(ctx, tx, *comp.AccountID, comp.Amount); err != nil {
				return err
			}
		case delta.IsPositive():
			if _, err := e.accounts.credit(ctx, tx, *comp.AccountID, comp.Amount); err != nil {
				return err
			}
		}
	}
	if comp.EmployeeID != nil {
		if delta := comp.SignedEmployeeAmount(); !delta.IsZero() {
			return e.employees.adjust(ctx, tx, *comp.EmployeeID, delta)
		}
	}
	return nil
}
