package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"go.uber.org/zap"
)

const (
	salaryAccrualCategory = "salary_accrual"
	salaryAccrualActor    = "system:salary_accrual"
)

// AccrueMonthlySalaries books one salary accrual per active, salaried
// employee for the month containing month. Employees already accrued for
// that month are skipped, so a rerun is harmless.
func (e *Engine) AccrueMonthlySalaries(ctx context.Context, month time.Time) (*models.AccrualRun, error) {
	from, to := monthBounds(month)
	employees, err := e.store.ListEmployees(ctx, true)
	if err != nil {
		return nil, err
	}

	run := &models.AccrualRun{Month: from.Format("2006-01")}
	for _, employee := range employees {
		if !employee.Salary.IsPositive() {
			continue
		}
		entry, err := e.accrueSalary(ctx, &employee, from, to)
		switch {
		case err != nil:
			e.logger.Error("salary accrual failed",
				zap.String("employee_id", employee.ID), zap.String("month", run.Month), zap.Error(err))
			run.Failures = append(run.Failures, fmt.Sprintf("%s: %v", employee.ID, err))
		case entry == nil:
			run.Skipped = append(run.Skipped, employee.ID)
		default:
			run.Accrued = append(run.Accrued, *entry)
		}
	}

	e.logger.Info("salary accrual finished",
		zap.String("month", run.Month),
		zap.Int("accrued", len(run.Accrued)),
		zap.Int("skipped", len(run.Skipped)),
		zap.Int("failed", len(run.Failures)))
	return run, nil
}

// accrueSalary returns a nil entry when the month was already accrued.
func (e *Engine) accrueSalary(ctx context.Context, employee *models.Employee, from, to time.Time) (*models.LedgerEntry, error) {
	correlationID := uuid.NewString()
	var booked *models.LedgerEntry

	err := withRetry(ctx, func() error {
		release, err := e.locks.Acquire(ctx, employeeKey(employee.ID))
		if err != nil {
			return err
		}
		defer release()

		return e.store.RunInTx(ctx, func(tx database.Tx) error {
			booked = nil
			done, err := tx.HasEmployeeEntry(ctx, employee.ID, models.KindEmployeeAccrual, salaryAccrualCategory, from, to)
			if err != nil {
				return err
			}
			if done {
				return nil
			}

			locked, err := e.employees.lockActive(ctx, tx, employee.ID)
			if err != nil {
				return err
			}
			salary := locked.Salary
			if !salary.IsPositive() {
				return nil
			}
			if _, err := e.employees.accrue(ctx, tx, employee.ID, salary); err != nil {
				return err
			}

			at := e.now().UTC()
			if at.Before(from) || !at.Before(to) {
				at = from
			}
			entry := models.LedgerEntry{
				ID:            uuid.NewString(),
				Kind:          models.KindEmployeeAccrual,
				Amount:        salary,
				EmployeeID:    ptr(employee.ID),
				Status:        models.StatusSettled,
				CreatedAt:     at,
				CreatedBy:     salaryAccrualActor,
				CorrelationID: correlationID,
				Category:      salaryAccrualCategory,
				Description:   "Monthly salary " + from.Format("January 2006"),
				Metadata:      models.Metadata{"month": from.Format("2006-01")},
			}
			if err := insertEntries(ctx, tx, &entry); err != nil {
				return err
			}
			booked = &entry
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if booked != nil {
		e.audit.LogSettlement(correlationID, booked.ID, salaryAccrualActor, string(booked.Kind), booked.Amount, string(booked.Status))
		e.publish(ctx, EventEntriesSettled, correlationID, []models.LedgerEntry{*booked})
	}
	return booked, nil
}
