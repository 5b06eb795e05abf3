package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ispdesk/backend/internal/middleware"
	"github.com/ispdesk/backend/internal/models"
	"github.com/ispdesk/backend/internal/services"
	"github.com/shopspring/decimal"
)

// ReportHandler serves balances, history and the employee portal. It only reads.
type ReportHandler struct {
	agg *services.AggregationService
	now func() time.Time
}

func NewReportHandler(agg *services.AggregationService) *ReportHandler {
	return &ReportHandler{agg: agg, now: time.Now}
}

type balanceResponse struct {
	AccountID      string          `json:"bank_account_id"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	PendingBalance decimal.Decimal `json:"pending_balance"`
}

// ListAccounts lists bank accounts with current and pending balances
// @Summary Bank accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param active query bool false "Only active accounts"
// @Success 200 {array} models.AccountSummary
// @Router /bank-accounts [get]
func (h *ReportHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	summaries, err := h.agg.AccountSummaries(r.Context(), activeOnly)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// AccountBalance returns the balance of one account
// @Summary Account balance
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bank account ID"
// @Success 200 {object} balanceResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /bank-accounts/{id}/balance [get]
func (h *ReportHandler) AccountBalance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	balance, err := h.agg.CurrentBalance(r.Context(), id)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	pending, err := h.agg.PendingBalance(r.Context(), id)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{AccountID: id, CurrentBalance: balance, PendingBalance: pending})
}

// AccountFlow totals inflow and outflow on an account over a range
// @Summary Account cash flow
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Bank account ID"
// @Param from query string true "Start (RFC 3339 or YYYY-MM-DD)"
// @Param to query string true "End, exclusive (RFC 3339 or YYYY-MM-DD)"
// @Success 200 {object} models.AccountFlow
// @Failure 400 {object} services.ErrorResponse
// @Router /bank-accounts/{id}/flow [get]
func (h *ReportHandler) AccountFlow(w http.ResponseWriter, r *http.Request) {
	from, err := queryTime(r, "from")
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	to, err := queryTime(r, "to")
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	if from == nil || to == nil {
		services.SendLedgerError(w, &services.ValidationError{Field: "from", Message: "from and to are required"})
		return
	}

	flow, err := h.agg.AccountFlow(r.Context(), chi.URLParam(r, "id"), *from, *to)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// History pages through ledger entries, newest first
// @Summary Ledger history
// @Tags ledger
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page, from 1"
// @Param per_page query int false "Page size, at most 100"
// @Param from query string false "Start"
// @Param to query string false "End, exclusive"
// @Param type query string false "Comma separated transaction types"
// @Param status query string false "Comma separated statuses"
// @Param bank_account_id query string false "Bank account"
// @Param employee_id query string false "Employee"
// @Success 200 {object} models.HistoryPage
// @Failure 400 {object} services.ErrorResponse
// @Router /ledger [get]
func (h *ReportHandler) History(w http.ResponseWriter, r *http.Request) {
	filter, err := historyFilter(r)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	page, err := h.agg.History(r.Context(), filter)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Portal returns the calling employee's financial view
// @Summary Employee portal
// @Tags employees
// @Produce json
// @Security BearerAuth
// @Param month query string false "Month as YYYY-MM, defaults to the current month"
// @Success 200 {object} models.FinancialData
// @Failure 403 {object} services.ErrorResponse
// @Router /employee-portal/financial [get]
func (h *ReportHandler) Portal(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	if p.EmployeeID == "" {
		services.SendErrorResponse(w, "No employee record is linked to this user", http.StatusForbidden, nil)
		return
	}
	h.financial(w, r, p.EmployeeID)
}

// EmployeeFinancial returns any employee's financial view
// @Summary Employee financials
// @Tags employees
// @Produce json
// @Security BearerAuth
// @Param id path string true "Employee ID"
// @Param month query string false "Month as YYYY-MM"
// @Success 200 {object} models.FinancialData
// @Failure 404 {object} services.ErrorResponse
// @Router /employees/{id}/financial [get]
func (h *ReportHandler) EmployeeFinancial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if p, ok := middleware.PrincipalFrom(r.Context()); ok && p.Role == middleware.RoleEmployee && p.EmployeeID != id {
		services.SendErrorResponse(w, "Forbidden", http.StatusForbidden, nil)
		return
	}
	h.financial(w, r, id)
}

func (h *ReportHandler) financial(w http.ResponseWriter, r *http.Request, employeeID string) {
	month, err := queryMonth(r, h.now())
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	data, err := h.agg.EmployeeFinancial(r.Context(), employeeID, month)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func historyFilter(r *http.Request) (models.HistoryFilter, error) {
	q := r.URL.Query()
	filter := models.HistoryFilter{
		AccountID:  q.Get("bank_account_id"),
		EmployeeID: q.Get("employee_id"),
	}

	var err error
	if filter.Page, err = queryInt(r, "page"); err != nil {
		return filter, err
	}
	if filter.PerPage, err = queryInt(r, "per_page"); err != nil {
		return filter, err
	}
	if filter.From, err = queryTime(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = queryTime(r, "to"); err != nil {
		return filter, err
	}

	for _, k := range splitList(q.Get("type")) {
		kind := models.EntryKind(k)
		if !kind.Valid() {
			return filter, &services.ValidationError{Field: "type", Message: "unknown transaction type " + k}
		}
		filter.Kinds = append(filter.Kinds, kind)
	}
	for _, s := range splitList(q.Get("status")) {
		status := models.EntryStatus(s)
		if !status.Valid() {
			return filter, &services.ValidationError{Field: "status", Message: "unknown status " + s}
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	return filter, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
