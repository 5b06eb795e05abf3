package config

import (
	"time"

	"github.com/spf13/viper"
)

type LedgerConfig struct {
	Store                    string
	LockBackend              string
	LockWait                 time.Duration
	LockTTL                  time.Duration
	ISPCategory              string
	CashRequiresVerification bool
	SalaryAccrualSchedule    string
	ReconcileSchedule        string
	ReconcileFix             bool
	EventsQueue              string
	InvoiceBaseURL           string
	InvoiceTimeout           time.Duration
}

func LoadLedgerConfig() *LedgerConfig {
	viper.SetDefault("ledger.store", "postgres")
	viper.SetDefault("ledger.lock_backend", "memory")
	viper.SetDefault("ledger.lock_wait", 2*time.Second)
	viper.SetDefault("ledger.lock_ttl", 30*time.Second)
	viper.SetDefault("ledger.isp_category", "isp_cost")
	viper.SetDefault("ledger.cash_requires_verification", false)
	viper.SetDefault("ledger.salary_accrual_schedule", "0 0 1 * *")
	viper.SetDefault("ledger.reconcile_schedule", "30 2 * * *")
	viper.SetDefault("ledger.reconcile_fix", false)
	viper.SetDefault("ledger.events_queue", "ledger_events")
	viper.SetDefault("invoices.base_url", "")
	viper.SetDefault("invoices.timeout", 5*time.Second)

	return &LedgerConfig{
		Store:                    viper.GetString("ledger.store"),
		LockBackend:              viper.GetString("ledger.lock_backend"),
		LockWait:                 viper.GetDuration("ledger.lock_wait"),
		LockTTL:                  viper.GetDuration("ledger.lock_ttl"),
		ISPCategory:              viper.GetString("ledger.isp_category"),
		CashRequiresVerification: viper.GetBool("ledger.cash_requires_verification"),
		SalaryAccrualSchedule:    viper.GetString("ledger.salary_accrual_schedule"),
		ReconcileSchedule:        viper.GetString("ledger.reconcile_schedule"),
		ReconcileFix:             viper.GetBool("ledger.reconcile_fix"),
		EventsQueue:              viper.GetString("ledger.events_queue"),
		InvoiceBaseURL:           viper.GetString("invoices.base_url"),
		InvoiceTimeout:           viper.GetDuration("invoices.timeout"),
	}
}

// BindEnv maps the flat environment variable names onto viper keys.
func BindEnv() {
	bindings := map[string]string{
		"database.host":                     "DATABASE_HOST",
		"database.port":                     "DATABASE_PORT",
		"database.user":                     "DATABASE_USER",
		"database.password":                 "DATABASE_PASSWORD",
		"database.name":                     "DATABASE_NAME",
		"database.ssl_mode":                 "DATABASE_SSL_MODE",
		"database.lock_timeout":             "DATABASE_LOCK_TIMEOUT",
		"redis.host":                        "REDIS_HOST",
		"redis.port":                        "REDIS_PORT",
		"redis.password":                    "REDIS_PASSWORD",
		"redis.db":                          "REDIS_DB",
		"jwt.secret_key":                    "JWT_SECRET_KEY",
		"log.level":                         "LOG_LEVEL",
		"log.development":                   "LOG_DEVELOPMENT",
		"ledger.store":                      "LEDGER_STORE",
		"ledger.lock_backend":               "LEDGER_LOCK_BACKEND",
		"ledger.lock_wait":                  "LEDGER_LOCK_WAIT",
		"ledger.lock_ttl":                   "LEDGER_LOCK_TTL",
		"ledger.isp_category":               "LEDGER_ISP_CATEGORY",
		"ledger.cash_requires_verification": "LEDGER_CASH_REQUIRES_VERIFICATION",
		"ledger.salary_accrual_schedule":    "LEDGER_SALARY_ACCRUAL_SCHEDULE",
		"ledger.reconcile_schedule":         "LEDGER_RECONCILE_SCHEDULE",
		"ledger.reconcile_fix":              "LEDGER_RECONCILE_FIX",
		"ledger.events_queue":               "LEDGER_EVENTS_QUEUE",
		"invoices.base_url":                 "INVOICES_BASE_URL",
		"invoices.timeout":                  "INVOICES_TIMEOUT",
	}
	for key, env := range bindings {
		viper.BindEnv(key, env)
	}
}
