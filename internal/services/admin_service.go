package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"go.uber.org/zap"
)

// AdminService manages the reference records the engine posts against.
// Balances are never written here; an account's opening balance is its
// InitialBalance and an employee always starts at zero.
type AdminService struct {
	store  database.Store
	logger *zap.Logger
}

func NewAdminService(store database.Store, logger *zap.Logger) *AdminService {
	return &AdminService{store: store, logger: logger.Named("admin")}
}

func (s *AdminService) CreateAccount(ctx context.Context, req models.CreateAccountRequest) (*models.BankAccount, error) {
	if req.InitialBalance.IsNegative() {
		return nil, invalid("initial_balance", "must not be negative")
	}
	if !req.InitialBalance.Equal(req.InitialBalance.Round(2)) {
		return nil, invalid("initial_balance", "must have at most two decimal places")
	}

	account := &models.BankAccount{
		ID:             uuid.New().String(),
		BankName:       req.BankName,
		AccountTitle:   req.AccountTitle,
		AccountNumber:  req.AccountNumber,
		InitialBalance: req.InitialBalance,
		CurrentBalance: req.InitialBalance,
		IsActive:       true,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, storeErr(err, "bank account "+req.AccountNumber)
	}
	s.logger.Info("bank account created", zap.String("account_id", account.ID), zap.String("bank", account.BankName))
	return s.reloadAccount(ctx, account.ID)
}

func (s *AdminService) SetAccountActive(ctx context.Context, id string, active bool) (*models.BankAccount, error) {
	if err := s.store.SetAccountActive(ctx, id, active); err != nil {
		return nil, storeErr(err, "bank account "+id)
	}
	s.logger.Info("bank account activation changed", zap.String("account_id", id), zap.Bool("active", active))
	return s.reloadAccount(ctx, id)
}

func (s *AdminService) CreateEmployee(ctx context.Context, req models.CreateEmployeeRequest) (*models.Employee, error) {
	if req.Salary.IsNegative() {
		return nil, invalid("salary", "must not be negative")
	}

	employee := &models.Employee{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Salary:   req.Salary,
		IsActive: true,
	}
	if err := s.store.CreateEmployee(ctx, employee); err != nil {
		return nil, storeErr(err, "employee "+req.Name)
	}
	s.logger.Info("employee created", zap.String("employee_id", employee.ID))
	return s.reloadEmployee(ctx, employee.ID)
}

func (s *AdminService) SetEmployeeActive(ctx context.Context, id string, active bool) (*models.Employee, error) {
	if err := s.store.SetEmployeeActive(ctx, id, active); err != nil {
		return nil, storeErr(err, "employee "+id)
	}
	s.logger.Info("employee activation changed", zap.String("employee_id", id), zap.Bool("active", active))
	return s.reloadEmployee(ctx, id)
}

// UpsertExpenseType creates or updates an expense type by name.
func (s *AdminService) UpsertExpenseType(ctx context.Context, expenseType models.ExpenseType) (*models.ExpenseType, error) {
	expenseType.Name = strings.TrimSpace(expenseType.Name)
	if expenseType.Name == "" {
		return nil, invalid("name", "is required")
	}
	if err := s.store.UpsertExpenseType(ctx, &expenseType); err != nil {
		return nil, err
	}
	return &expenseType, nil
}

func (s *AdminService) reloadAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	account, err := s.store.GetAccount(ctx, id)
	return account, storeErr(err, "bank account "+id)
}

func (s *AdminService) reloadEmployee(ctx context.Context, id string) (*models.Employee, error) {
	employee, err := s.store.GetEmployee(ctx, id)
	return employee, storeErr(err, "employee "+id)
}
