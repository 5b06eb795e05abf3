package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadLedgerConfig(t *testing.T) {
	t.Cleanup(viper.Reset)

	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		cfg := LoadLedgerConfig()
		assert.Equal(t, "postgres", cfg.Store)
		assert.Equal(t, "memory", cfg.LockBackend)
		assert.Equal(t, 2*time.Second, cfg.LockWait)
		assert.Equal(t, "isp_cost", cfg.ISPCategory)
		assert.False(t, cfg.CashRequiresVerification)
		assert.Equal(t, "0 0 1 * *", cfg.SalaryAccrualSchedule)
	})

	t.Run("environment overrides", func(t *testing.T) {
		viper.Reset()
		t.Setenv("LEDGER_LOCK_BACKEND", "redis")
		t.Setenv("LEDGER_LOCK_WAIT", "750ms")
		t.Setenv("LEDGER_CASH_REQUIRES_VERIFICATION", "true")
		BindEnv()

		cfg := LoadLedgerConfig()
		assert.Equal(t, "redis", cfg.LockBackend)
		assert.Equal(t, 750*time.Millisecond, cfg.LockWait)
		assert.True(t, cfg.CashRequiresVerification)
	})
}
