package handlers

import (
	"github.com/go-chi/chi/v5"
	mW "github.com/ispdesk/backend/internal/middleware"
)

// API groups the ledger handlers behind one route table.
type API struct {
	Payments     *PaymentHandler
	Transactions *TransactionHandler
	Reports      *ReportHandler
	Admin        *AdminHandler
}

// Routes mounts the ledger API on r.
func (a *API) Routes(r chi.Router) {
	// Public endpoints (no auth required)
	r.Get("/receipts/{token}", a.Payments.VerifyReceipt)

	// Protected endpoints (auth required)
	r.Group(func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleCashier))
			r.Post("/payments", a.Payments.CreatePayment)
			r.Post("/expenses", a.Transactions.CreateExpense)
			r.Post("/isp-payments", a.Transactions.CreateISPPayment)
			r.Post("/extra-incomes", a.Transactions.CreateExtraIncome)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleReviewer))
			r.Get("/payments/pending", a.Payments.ListPending)
			r.Post("/payments/verify/{id}", a.Payments.VerifyPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleCashier, mW.RoleReviewer))
			r.Get("/bank-accounts", a.Reports.ListAccounts)
			r.Get("/bank-accounts/{id}/balance", a.Reports.AccountBalance)
			r.Get("/bank-accounts/{id}/flow", a.Reports.AccountFlow)
			r.Get("/ledger", a.Reports.History)
			r.Get("/ledger/{id}/receipt", a.Payments.Receipt)
		})

		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleReviewer, mW.RoleEmployee))
			r.Get("/employee-portal/financial", a.Reports.Portal)
			r.Get("/employees/{id}/financial", a.Reports.EmployeeFinancial)
		})

		// Admin only
		r.Group(func(r chi.Router) {
			r.Use(mW.RequireRole(mW.RoleAdmin))
			r.Post("/transfers", a.Transactions.CreateTransfer)
			r.Post("/employees/{id}/accruals", a.Transactions.AccrueEmployee)
			r.Post("/ledger/{id}/reverse", a.Transactions.Reverse)

			r.Route("/admin", func(r chi.Router) {
				r.Post("/bank-accounts", a.Admin.CreateAccount)
				r.Put("/bank-accounts/{id}/active", a.Admin.SetAccountActive)
				r.Post("/employees", a.Admin.CreateEmployee)
				r.Put("/employees/{id}/active", a.Admin.SetEmployeeActive)
				r.Put("/expense-types", a.Admin.UpsertExpenseType)
				r.Post("/reconcile", a.Admin.Reconcile)
				r.Post("/salary-accrual", a.Admin.AccrueSalaries)
			})
		})
	})
}
