package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ispdesk/backend/internal/models"
	"github.com/ispdesk/backend/internal/services"
)

type PaymentHandler struct {
	engine    *services.Engine
	workflow  *services.VerificationWorkflow
	receipts  *services.ReceiptService
	validator *services.ValidationHelper
}

func NewPaymentHandler(engine *services.Engine, workflow *services.VerificationWorkflow, receipts *services.ReceiptService) *PaymentHandler {
	return &PaymentHandler{
		engine:    engine,
		workflow:  workflow,
		receipts:  receipts,
		validator: services.NewValidationHelper(),
	}
}

// CreatePayment records a customer payment against an invoice
// @Summary Record customer payment
// @Description Cash and proof-less bank payments settle immediately; bank_transfer/online payments with a payment proof wait for verification
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CustomerPaymentRequest true "Payment"
// @Success 201 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Router /payments [post]
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.CustomerPaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	entry, err := h.engine.RecordCustomerPayment(r.Context(), p.UserID, req)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	status := http.StatusCreated
	if entry.Status == models.StatusPendingVerification {
		status = http.StatusAccepted
	}
	writeJSON(w, status, entry)
}

// VerifyPayment approves or rejects a payment awaiting verification
// @Summary Verify payment
// @Description Approve credits the bank account and marks the invoice paid; reject requires notes
// @Tags payments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Payment entry ID"
// @Param request body models.VerifyPaymentRequest true "Decision"
// @Success 200 {object} models.LedgerEntry
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /payments/verify/{id} [post]
func (h *PaymentHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	var req models.VerifyPaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	entryID := chi.URLParam(r, "id")
	var (
		entry *models.LedgerEntry
		err   error
	)
	if req.Action == "approve" {
		entry, err = h.workflow.Approve(r.Context(), entryID, p.UserID, req.Notes)
	} else {
		reason := ""
		if req.Notes != nil {
			reason = *req.Notes
		}
		entry, err = h.workflow.Reject(r.Context(), entryID, p.UserID, reason)
	}
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entry)
}

// ListPending lists payments awaiting verification
// @Summary Pending verifications
// @Tags payments
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.PaymentVerification
// @Router /payments/pending [get]
func (h *PaymentHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.workflow.Pending(r.Context())
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	if pending == nil {
		pending = []models.PaymentVerification{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// Receipt renders a QR receipt for a settled entry
// @Summary Entry receipt
// @Tags ledger
// @Produce png
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Param size query int false "Image size in pixels"
// @Success 200 {file} binary
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /ledger/{id}/receipt [get]
func (h *PaymentHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	size, err := queryInt(r, "size")
	if err != nil || size > 1024 {
		services.SendErrorResponse(w, "size must be between 0 and 1024", http.StatusBadRequest, nil)
		return
	}

	png, err := h.receipts.ReceiptQR(r.Context(), chi.URLParam(r, "id"), size)
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

// VerifyReceipt resolves a scanned receipt token
// @Summary Verify receipt
// @Tags ledger
// @Produce json
// @Param token path string true "Receipt token"
// @Success 200 {object} models.LedgerEntry
// @Failure 404 {object} services.ErrorResponse
// @Router /receipts/{token} [get]
func (h *PaymentHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	entry, err := h.receipts.VerifyReceipt(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		services.SendLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
