package audit

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAuditLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewAuditLogger(zap.New(core))

	a.LogTransfer("corr-1", "user-1", "acc-a", "acc-b", decimal.NewFromInt(1000), "SUCCESS")
	a.LogError("corr-2", "acc-a", errors.New("insufficient funds"))

	entries := logs.All()
	require.Len(t, entries, 2)

	transfer := entries[0].ContextMap()
	assert.Equal(t, "TRANSFER", transfer["event_type"])
	assert.Equal(t, "1000.00", transfer["amount"])
	assert.Equal(t, "corr-1", transfer["correlation_id"])
	assert.Equal(t, zap.InfoLevel, entries[0].Level)

	assert.Equal(t, zap.ErrorLevel, entries[1].Level)
	assert.Equal(t, "ERROR", entries[1].ContextMap()["event_type"])
}

func TestNewAuditLogger_NilLogger(t *testing.T) {
	a := NewAuditLogger(nil)
	assert.NotPanics(t, func() {
		a.LogVerification("entry-1", "reviewer", "approved", decimal.NewFromInt(5))
	})
}

func TestAuditLogger_Adjustment(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	a := NewAuditLogger(zap.New(core))

	a.LogAdjustment("bank_account", "acc-a", decimal.NewFromInt(900), decimal.RequireFromString("1000.50"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "ADJUSTMENT", fields["event_type"])
	assert.Equal(t, "100.50", fields["amount"])
	assert.Equal(t, map[string]string{
		"subject": "bank_account",
		"id":      "acc-a",
		"from":    "900.00",
		"to":      "1000.50",
	}, fields["details"])
}
