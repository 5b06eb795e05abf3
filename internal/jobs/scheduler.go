// Package jobs runs the ledger's periodic work: monthly salary accrual and
// balance reconciliation.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/ispdesk/backend/internal/config"
	"github.com/ispdesk/backend/internal/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type SalaryAccruer interface {
	AccrueMonthlySalaries(ctx context.Context, month time.Time) (*models.AccrualRun, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, fix bool) (*models.ReconcileReport, error)
}

type Scheduler struct {
	cron       *cron.Cron
	accruer    SalaryAccruer
	reconciler Reconciler
	fix        bool
	timeout    time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewScheduler(cfg *config.LedgerConfig, accruer SalaryAccruer, reconciler Reconciler, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("jobs")
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		accruer:    accruer,
		reconciler: reconciler,
		fix:        cfg.ReconcileFix,
		timeout:    30 * time.Minute,
		logger:     logger,
		now:        time.Now,
	}

	if cfg.SalaryAccrualSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.SalaryAccrualSchedule, s.runSalaryAccrual); err != nil {
			return nil, fmt.Errorf("salary accrual schedule %q: %w", cfg.SalaryAccrualSchedule, err)
		}
	}
	if cfg.ReconcileSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.ReconcileSchedule, s.runReconcile); err != nil {
			return nil, fmt.Errorf("reconcile schedule %q: %w", cfg.ReconcileSchedule, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduler stopped with jobs still running")
	}
}

func (s *Scheduler) runSalaryAccrual() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	run, err := s.accruer.AccrueMonthlySalaries(ctx, s.now())
	if err != nil {
		s.logger.Error("salary accrual job failed", zap.Error(err))
		return
	}
	if len(run.Failures) > 0 {
		s.logger.Warn("salary accrual job finished with failures",
			zap.String("month", run.Month), zap.Strings("failures", run.Failures))
	}
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	report, err := s.reconciler.Reconcile(ctx, s.fix)
	if err != nil {
		s.logger.Error("reconcile job failed", zap.Error(err))
		return
	}
	s.logger.Info("reconcile job finished",
		zap.Int("accounts", report.AccountsChecked),
		zap.Int("employees", report.EmployeesChecked),
		zap.Int("drift", len(report.Drift)))
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
