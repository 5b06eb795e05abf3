// Package audit records one structured event per money movement.
package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AuditEvent struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	CorrelationID string            `json:"correlation_id"`
	EntryID       string            `json:"entry_id,omitempty"`
	Actor         string            `json:"actor,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Status        string            `json:"status"`
	Details       map[string]string `json:"details,omitempty"`
}

type AuditLogger struct {
	logger *zap.Logger
}

func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditLogger{logger: logger.Named("audit")}
}

func (a *AuditLogger) LogTransfer(correlationID, actor, fromAccount, toAccount string, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		EventType:     "TRANSFER",
		CorrelationID: correlationID,
		Actor:         actor,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *AuditLogger) LogSettlement(correlationID, entryID, actor, kind string, amount decimal.Decimal, status string) {
	a.log(AuditEvent{
		EventType:     "SETTLEMENT",
		CorrelationID: correlationID,
		EntryID:       entryID,
		Actor:         actor,
		Amount:        amount,
		Status:        status,
		Details:       map[string]string{"kind": kind},
	})
}

func (a *AuditLogger) LogVerification(entryID, reviewer, decision string, amount decimal.Decimal) {
	a.log(AuditEvent{
		EventType: "VERIFICATION",
		EntryID:   entryID,
		Actor:     reviewer,
		Amount:    amount,
		Status:    decision,
	})
}

func (a *AuditLogger) LogReversal(correlationID, originalCorrelationID, actor, reason string, amount decimal.Decimal) {
	a.log(AuditEvent{
		EventType:     "REVERSAL",
		CorrelationID: correlationID,
		Actor:         actor,
		Amount:        amount,
		Status:        "SUCCESS",
		Details: map[string]string{
			"reverses": originalCorrelationID,
			"reason":   reason,
		},
	})
}

// LogAdjustment records a cached balance rewritten by reconciliation.
func (a *AuditLogger) LogAdjustment(subject, id string, from, to decimal.Decimal) {
	a.log(AuditEvent{
		EventType: "ADJUSTMENT",
		Actor:     "system:reconcile",
		Amount:    to.Sub(from),
		Status:    "SUCCESS",
		Details: map[string]string{
			"subject": subject,
			"id":      id,
			"from":    from.StringFixed(2),
			"to":      to.StringFixed(2),
		},
	})
}

func (a *AuditLogger) LogError(correlationID, subject string, err error) {
	a.log(AuditEvent{
		EventType:     "ERROR",
		CorrelationID: correlationID,
		Status:        "FAILED",
		Details: map[string]string{
			"subject": subject,
			"error":   err.Error(),
		},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	event.Timestamp = time.Now()
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("correlation_id", event.CorrelationID),
		zap.String("amount", event.Amount.StringFixed(2)),
		zap.String("status", event.Status),
	}
	if event.EntryID != "" {
		fields = append(fields, zap.String("entry_id", event.EntryID))
	}
	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	if event.EventType == "ERROR" {
		a.logger.Error("AUDIT", fields...)
		return
	}
	a.logger.Info("AUDIT", fields...)
}
