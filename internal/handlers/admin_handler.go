package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ispdesk/backend/internal/models"
	"github.com/ispdesk/backend/internal/services"
)

type AdminHandler struct {
	admin      *services.AdminService
	engine     *services.Engine
	reconciler *services.ReconciliationService
	validator  *services.ValidationHelper
}

func NewAdminHandler(admin *services.AdminService, engine *services.Engine, reconciler *services.ReconciliationService) *AdminHandler {
	return &AdminHandler{
		admin:      admin,
		engine:     engine,
		reconciler: reconciler,
		validator:  services.NewValidationHelper(),
	}
}

// CreateAccount opens a company bank account
// @Summary Create bank account
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateAccountRequest true "Account"
// @Success 201 {object} models.BankAccount
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/bank-accounts [post]
func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	account, err := h.admin.CreateAccount(r.Context(), req)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// SetAccountActive activates or deactivates a bank account
// @Summary Toggle bank account
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bank account ID"
// @Param request body models.ActivationRequest true "Active flag"
// @Success 200 {object} models.BankAccount
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/bank-accounts/{id}/active [put]
func (h *AdminHandler) SetAccountActive(w http.ResponseWriter, r *http.Request) {
	var req models.ActivationRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	account, err := h.admin.SetAccountActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// CreateEmployee adds a staff member
// @Summary Create employee
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateEmployeeRequest true "Employee"
// @Success 201 {object} models.Employee
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/employees [post]
func (h *AdminHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEmployeeRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	employee, err := h.admin.CreateEmployee(r.Context(), req)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, employee)
}

// SetEmployeeActive activates or deactivates an employee
// @Summary Toggle employee
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Param request body models.ActivationRequest true "Active flag"
// @Success 200 {object} models.Employee
// @Failure 404 {object} services.ErrorResponse
// @Router /admin/employees/{id}/active [put]
func (h *AdminHandler) SetEmployeeActive(w http.ResponseWriter, r *http.Request) {
	var req models.ActivationRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	employee, err := h.admin.SetEmployeeActive(r.Context(), chi.URLParam(r, "id"), *req.Active)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, employee)
}

// UpsertExpenseType creates or updates an expense type
// @Summary Upsert expense type
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ExpenseType true "Expense type"
// @Success 200 {object} models.ExpenseType
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/expense-types [put]
func (h *AdminHandler) UpsertExpenseType(w http.ResponseWriter, r *http.Request) {
	var req models.ExpenseType
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	expenseType, err := h.admin.UpsertExpenseType(r.Context(), req)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseType)
}

// Reconcile compares cached balances with the entry log
// @Summary Reconcile balances
// @Description With fix=true drifted balances are rewritten from the log
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param fix query bool false "Rewrite drifted balances"
// @Success 200 {object} models.ReconcileReport
// @Router /admin/reconcile [post]
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Reconcile(r.Context(), r.URL.Query().Get("fix") == "true")
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// AccrueSalaries books the monthly salary accrual for every active employee
// @Summary Run salary accrual
// @Description Employees already accrued for the month are skipped
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SalaryAccrualRequest true "Month"
// @Success 200 {object} models.AccrualRun
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/salary-accrual [post]
func (h *AdminHandler) AccrueSalaries(w http.ResponseWriter, r *http.Request) {
	var req models.SalaryAccrualRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	month, err := time.Parse("2006-01", req.Month)
	if err != nil {
		services.SendLedgerError(w, &services.ValidationError{Field: "month", Message: "must be YYYY-MM"})
		return
	}
	run, err := h.engine.AccrueMonthlySalaries(r.Context(), month)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
