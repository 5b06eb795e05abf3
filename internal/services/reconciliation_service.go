package services

import (
	"context"
	"sync"

	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReconciliationService checks cached balances against the entry log and
// optionally rewrites the ones that drifted.
type ReconciliationService struct {
	engine      *Engine
	agg         *AggregationService
	concurrency int
}

func NewReconciliationService(engine *Engine, agg *AggregationService) *ReconciliationService {
	return &ReconciliationService{engine: engine, agg: agg, concurrency: 4}
}

// Reconcile recomputes every account and employee balance. Drift is only
// reported once it is confirmed under the entity lock; with fix set the
// confirmed balance is written back in the same unit of work.
func (r *ReconciliationService) Reconcile(ctx context.Context, fix bool) (*models.ReconcileReport, error) {
	e := r.engine
	report := &models.ReconcileReport{StartedAt: e.now().UTC(), Drift: []models.BalanceDrift{}}

	accounts, err := e.store.ListAccounts(ctx, false)
	if err != nil {
		return nil, err
	}
	employees, err := e.store.ListEmployees(ctx, false)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	record := func(d *models.BalanceDrift) {
		if d == nil {
			return
		}
		mu.Lock()
		report.Drift = append(report.Drift, *d)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, account := range accounts {
		g.Go(func() error {
			d, err := r.checkAccount(gctx, account, fix)
			record(d)
			return err
		})
	}
	for _, employee := range employees {
		g.Go(func() error {
			d, err := r.checkEmployee(gctx, employee, fix)
			record(d)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report.AccountsChecked = len(accounts)
	report.EmployeesChecked = len(employees)
	report.FinishedAt = e.now().UTC()
	for _, d := range report.Drift {
		e.logger.Warn("balance drift",
			zap.String("subject", d.Subject), zap.String("id", d.ID),
			zap.String("cached", d.Cached.StringFixed(2)), zap.String("computed", d.Computed.StringFixed(2)),
			zap.Bool("fixed", d.Fixed))
	}
	return report, nil
}

// checkAccount compares without locks first; a mismatch is confirmed under the
// entity lock so a write landing between the two reads is not reported.
func (r *ReconciliationService) checkAccount(ctx context.Context, account models.BankAccount, fix bool) (*models.BalanceDrift, error) {
	computed, err := r.agg.RecomputeAccountBalance(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if computed.Equal(account.CurrentBalance) {
		return nil, nil
	}

	var drift *models.BalanceDrift
	err = r.locked(ctx, accountKey(account.ID), func(tx database.Tx) error {
		drift = nil
		locked, err := tx.LockAccount(ctx, account.ID)
		if err != nil {
			return storeErr(err, "bank account "+account.ID)
		}
		computed, err := r.agg.RecomputeAccountBalance(ctx, account.ID)
		if err != nil {
			return err
		}
		if computed.Equal(locked.CurrentBalance) {
			return nil
		}
		drift = &models.BalanceDrift{Subject: "bank_account", ID: account.ID, Cached: locked.CurrentBalance, Computed: computed}
		if !fix {
			return nil
		}
		return r.write(drift, func(balance decimal.Decimal) error {
			return storeErr(tx.UpdateAccountBalance(ctx, account.ID, balance, locked.Version), "update account balance")
		})
	})
	return drift, err
}

func (r *ReconciliationService) checkEmployee(ctx context.Context, employee models.Employee, fix bool) (*models.BalanceDrift, error) {
	computed, err := r.agg.RecomputeEmployeeBalance(ctx, employee.ID)
	if err != nil {
		return nil, err
	}
	if computed.Equal(employee.CurrentBalance) {
		return nil, nil
	}

	var drift *models.BalanceDrift
	err = r.locked(ctx, employeeKey(employee.ID), func(tx database.Tx) error {
		drift = nil
		locked, err := tx.LockEmployee(ctx, employee.ID)
		if err != nil {
			return storeErr(err, "employee "+employee.ID)
		}
		computed, err := r.agg.RecomputeEmployeeBalance(ctx, employee.ID)
		if err != nil {
			return err
		}
		if computed.Equal(locked.CurrentBalance) {
			return nil
		}
		drift = &models.BalanceDrift{Subject: "employee", ID: employee.ID, Cached: locked.CurrentBalance, Computed: computed}
		if !fix {
			return nil
		}
		return r.write(drift, func(balance decimal.Decimal) error {
			return storeErr(tx.UpdateEmployeeBalance(ctx, employee.ID, balance, locked.Version), "update employee balance")
		})
	})
	return drift, err
}

func (r *ReconciliationService) locked(ctx context.Context, key string, fn func(tx database.Tx) error) error {
	e := r.engine
	return withRetry(ctx, func() error {
		release, err := e.locks.Acquire(ctx, key)
		if err != nil {
			return err
		}
		defer release()
		return e.store.RunInTx(ctx, fn)
	})
}

// write stores the computed balance and audits the adjustment.
func (r *ReconciliationService) write(drift *models.BalanceDrift, update func(decimal.Decimal) error) error {
	if err := update(drift.Computed); err != nil {
		return err
	}
	drift.Fixed = true
	r.engine.audit.LogAdjustment(drift.Subject, drift.ID, drift.Cached, drift.Computed)
	return nil
}
