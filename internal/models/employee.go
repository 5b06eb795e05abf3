package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Employee is a staff member with a running balance. A positive balance is
// money the company owes the employee.
type Employee struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	Salary         decimal.Decimal `json:"salary" db:"salary"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	IsActive       bool            `json:"is_active" db:"is_active"`
	Version        int             `json:"-" db:"version"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// CreateEmployeeRequest is the body of POST /admin/employees.
type CreateEmployeeRequest struct {
	Name   string          `json:"name" validate:"required,max=100"`
	Salary decimal.Decimal `json:"salary"`
}

// SalaryAccrualRequest is the body of POST /admin/salary-accrual. Month is YYYY-MM.
type SalaryAccrualRequest struct {
	Month string `json:"month" validate:"required,datetime=2006-01"`
}
