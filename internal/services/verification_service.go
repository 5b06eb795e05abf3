package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
)

// VerificationWorkflow decides customer payments held in
// pending_verification. A decision runs under the same account lock the
// engine uses, so an approval serializes with every other movement on the
// account.
type VerificationWorkflow struct {
	engine *Engine
}

func NewVerificationWorkflow(engine *Engine) *VerificationWorkflow {
	return &VerificationWorkflow{engine: engine}
}

// Pending lists the payments awaiting review, oldest first.
func (v *VerificationWorkflow) Pending(ctx context.Context) ([]models.PaymentVerification, error) {
	return v.engine.store.ListPendingVerifications(ctx)
}

// Approve settles a pending payment: credits its account, marks the invoice
// paid and records the decision. On any failure the payment stays pending.
func (v *VerificationWorkflow) Approve(ctx context.Context, entryID, reviewerID string, notes *string) (*models.LedgerEntry, error) {
	return v.decide(ctx, entryID, reviewerID, notes, models.DecisionApproved)
}

// Reject closes a pending payment without touching any balance. A reason is
// required.
func (v *VerificationWorkflow) Reject(ctx context.Context, entryID, reviewerID, reason string) (*models.LedgerEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, invalid("notes", "a rejection reason is required")
	}
	return v.decide(ctx, entryID, reviewerID, &reason, models.DecisionRejected)
}

func (v *VerificationWorkflow) decide(ctx context.Context, entryID, reviewerID string, notes *string, decision models.VerificationDecision) (*models.LedgerEntry, error) {
	e := v.engine
	if strings.TrimSpace(reviewerID) == "" {
		return nil, invalid("reviewer_id", "is required")
	}

	entry, err := e.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, storeErr(err, "payment "+entryID)
	}
	verification, err := e.store.GetVerification(ctx, entryID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("payment %s has no verification: %w", entryID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if entry.Status != models.StatusPendingVerification {
		return nil, fmt.Errorf("payment %s is %s: %w", entryID, entry.Status, ErrAlreadyDecided)
	}

	keys := []string{entryKey(entryID)}
	if entry.AccountID != nil {
		keys = append(keys, accountKey(*entry.AccountID))
	}

	var decided models.LedgerEntry
	err = withRetry(ctx, func() error {
		release, err := e.locks.Acquire(ctx, keys...)
		if err != nil {
			return err
		}
		defer release()

		return e.store.RunInTx(ctx, func(tx database.Tx) error {
			current, err := tx.LockEntry(ctx, entryID)
			if err != nil {
				return storeErr(err, "payment "+entryID)
			}
			if current.Status != models.StatusPendingVerification {
				return fmt.Errorf("payment %s is %s: %w", entryID, current.Status, ErrAlreadyDecided)
			}

			to := models.StatusRejected
			if decision == models.DecisionApproved {
				to = models.StatusSettled
				if current.AccountID != nil {
					if _, err := e.accounts.credit(ctx, tx, *current.AccountID, current.Amount); err != nil {
						return err
					}
				}
			}
			if err := tx.UpdateEntryStatus(ctx, entryID, models.StatusPendingVerification, to); err != nil {
				return storeErr(err, "update payment status")
			}

			decidedAt := e.now().UTC()
			verification.Decision = decision
			verification.ReviewerID = &reviewerID
			verification.DecisionNotes = notes
			verification.DecidedAt = &decidedAt
			if err := tx.UpdateVerification(ctx, verification); err != nil {
				return storeErr(err, "update verification")
			}

			if decision == models.DecisionApproved && current.InvoiceID != nil {
				if err := e.invoices.MarkInvoicePaid(ctx, *current.InvoiceID, current.Amount); err != nil {
					return err
				}
			}

			decided = *current
			decided.Status = to
			return nil
		})
	})
	if err != nil {
		e.failed(entry.CorrelationID, reviewerID, err)
		return nil, err
	}

	e.audit.LogVerification(entryID, reviewerID, string(decision), decided.Amount)
	eventType := EventPaymentRejected
	if decision == models.DecisionApproved {
		eventType = EventPaymentApproved
	}
	e.publish(ctx, eventType, decided.CorrelationID, []models.LedgerEntry{decided})
	return &decided, nil
}
