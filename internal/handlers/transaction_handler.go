package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ispdesk/backend/internal/models"
	"github.com/ispdesk/backend/internal/services"
)

// TransactionHandler exposes the money movements recorded by back-office staff.
type TransactionHandler struct {
	engine    *services.Engine
	validator *services.ValidationHelper
}

func NewTransactionHandler(engine *services.Engine) *TransactionHandler {
	return &TransactionHandler{
		engine:    engine,
		validator: services.NewValidationHelper(),
	}
}

// CreateExpense records an expense
// @Summary Record expense
// @Description Employee payment expense types also pay down the employee balance
// @Tags expenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ExpenseRequest true "Expense"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /expenses [post]
func (h *TransactionHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.ExpenseRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	h.respond(w, http.StatusCreated)(h.engine.RecordExpense(r.Context(), p.UserID, req))
}

// CreateISPPayment records a payment to an upstream ISP
// @Summary Record ISP payment
// @Tags expenses
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ISPPaymentRequest true "ISP payment"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /isp-payments [post]
func (h *TransactionHandler) CreateISPPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.ISPPaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	h.respond(w, http.StatusCreated)(h.engine.RecordISPPayment(r.Context(), p.UserID, req))
}

// CreateExtraIncome records income that is not a customer payment
// @Summary Record extra income
// @Tags income
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ExtraIncomeRequest true "Extra income"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Router /extra-incomes [post]
func (h *TransactionHandler) CreateExtraIncome(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.ExtraIncomeRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	h.respond(w, http.StatusCreated)(h.engine.RecordExtraIncome(r.Context(), p.UserID, req))
}

// CreateTransfer moves money between two company accounts
// @Summary Internal transfer
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.TransferRequest true "Transfer"
// @Success 201 {object} models.InternalTransfer
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *TransactionHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	transfer, err := h.engine.Transfer(r.Context(), p.UserID, req)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"transfer": transfer,
		"entries":  []*models.LedgerEntry{transfer.Out, transfer.In},
	})
}

// AccrueEmployee books a commission, bonus or other amount owed to an employee
// @Summary Employee accrual
// @Tags employees
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Param request body models.AccrualRequest true "Accrual"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /employees/{id}/accruals [post]
func (h *TransactionHandler) AccrueEmployee(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.AccrualRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}
	h.respond(w, http.StatusCreated)(h.engine.AccrueEmployee(r.Context(), p.UserID, chi.URLParam(r, "id"), req))
}

// Reverse compensates a settled entry and every entry sharing its correlation id
// @Summary Reverse entry
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Param request body models.ReversalRequest true "Reason"
// @Success 201 {array} models.LedgerEntry
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /ledger/{id}/reverse [post]
func (h *TransactionHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req models.ReversalRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	entries, err := h.engine.Reverse(r.Context(), p.UserID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (h *TransactionHandler) respond(w http.ResponseWriter, status int) func(*models.LedgerEntry, error) {
	return func(entry *models.LedgerEntry, err error) {
		if err != nil {
			services.SendLedgerError(w, err)
			return
		}
		writeJSON(w, status, entry)
	}
}
