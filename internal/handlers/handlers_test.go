package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ispdesk/backend/internal/config"
	"github.com/ispdesk/backend/internal/database"
	mW "github.com/ispdesk/backend/internal/middleware"
	"github.com/ispdesk/backend/internal/models"
	"github.com/ispdesk/backend/internal/services"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "handler-test-secret"

type apiFixture struct {
	router http.Handler
	redis  *miniredis.Miniredis
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	viper.Set("jwt.secret_key", testSecret)
	t.Cleanup(viper.Reset)

	store := database.NewMemoryStore()
	cfg := &config.LedgerConfig{LockWait: 200 * time.Millisecond, ISPCategory: "isp_cost"}
	engine := services.NewEngine(store, services.NewMemoryLockManager(cfg.LockWait), cfg, zap.NewNop())
	agg := services.NewAggregationService(store)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	api := &API{
		Payments:     NewPaymentHandler(engine, services.NewVerificationWorkflow(engine), services.NewReceiptService(store, rdb)),
		Transactions: NewTransactionHandler(engine),
		Reports:      NewReportHandler(agg),
		Admin:        NewAdminHandler(services.NewAdminService(store, zap.NewNop()), engine, services.NewReconciliationService(engine, agg)),
	}
	r := chi.NewRouter()
	api.Routes(r)
	return &apiFixture{router: r, redis: mr}
}

func token(t *testing.T, userID, role, employeeID string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": userID, "role": role, "exp": time.Now().Add(time.Hour).Unix()}
	if employeeID != "" {
		claims["employee_id"] = employeeID
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends body as JSON. A string body is sent verbatim.
func (f *apiFixture) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (f *apiFixture) createAccount(t *testing.T, admin, balance string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/admin/bank-accounts", admin, map[string]any{
		"bank_name": "HBL", "account_title": "Operations", "account_number": "0042-" + balance, "initial_balance": balance,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[models.BankAccount](t, rec).ID
}

func TestPaymentVerificationFlow(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", mW.RoleAdmin, "")
	cashier := token(t, "cashier-1", mW.RoleCashier, "")
	reviewer := token(t, "reviewer-1", mW.RoleReviewer, "")

	accountID := f.createAccount(t, admin, "1000")

	rec := f.do(t, http.MethodPost, "/payments", cashier, map[string]any{
		"invoice_id": "INV-1", "customer_id": "C-1", "amount": "250.50",
		"payment_method": "bank_transfer", "bank_account_id": accountID, "payment_proof": "proofs/inv-1.jpg",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	payment := decodeAs[models.LedgerEntry](t, rec)
	assert.Equal(t, models.StatusPendingVerification, payment.Status)
	assert.Equal(t, "cashier-1", payment.CreatedBy)

	balance := func() balanceResponse {
		rec := f.do(t, http.MethodGet, "/bank-accounts/"+accountID+"/balance", cashier, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeAs[balanceResponse](t, rec)
	}
	b := balance()
	assert.True(t, decimal.RequireFromString("1000").Equal(b.CurrentBalance), b.CurrentBalance.String())
	assert.True(t, decimal.RequireFromString("250.50").Equal(b.PendingBalance), b.PendingBalance.String())

	rec = f.do(t, http.MethodGet, "/payments/pending", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/payments/pending", reviewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAs[[]models.PaymentVerification](t, rec), 1)

	rec = f.do(t, http.MethodPost, "/payments/verify/"+payment.ID, reviewer, map[string]any{"action": "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusSettled, decodeAs[models.LedgerEntry](t, rec).Status)

	b = balance()
	assert.True(t, decimal.RequireFromString("1250.50").Equal(b.CurrentBalance), b.CurrentBalance.String())
	assert.True(t, b.PendingBalance.IsZero())

	rec = f.do(t, http.MethodPost, "/payments/verify/"+payment.ID, reviewer, map[string]any{"action": "approve"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_decided", decodeAs[services.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodGet, "/ledger/"+payment.ID+"/receipt?size=128", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	keys := f.redis.Keys()
	require.Len(t, keys, 1)
	receiptToken := strings.TrimPrefix(keys[0], "receipt:")

	rec = f.do(t, http.MethodGet, "/receipts/"+receiptToken, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, payment.ID, decodeAs[models.LedgerEntry](t, rec).ID)

	rec = f.do(t, http.MethodGet, "/receipts/not-a-token", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRejectRequiresNotes(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", mW.RoleAdmin, "")
	reviewer := token(t, "reviewer-1", mW.RoleReviewer, "")
	accountID := f.createAccount(t, admin, "0")

	rec := f.do(t, http.MethodPost, "/payments", admin, map[string]any{
		"invoice_id": "INV-2", "customer_id": "C-2", "amount": "90",
		"payment_method": "online", "bank_account_id": accountID, "payment_proof": "proofs/inv-2.png",
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	payment := decodeAs[models.LedgerEntry](t, rec)

	rec = f.do(t, http.MethodPost, "/payments/verify/"+payment.ID, reviewer, map[string]any{"action": "reject"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/payments/verify/"+payment.ID, reviewer, map[string]any{"action": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/payments/verify/"+payment.ID, reviewer, map[string]any{"action": "reject", "notes": "blurry screenshot"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusRejected, decodeAs[models.LedgerEntry](t, rec).Status)

	rec = f.do(t, http.MethodGet, "/ledger/"+payment.ID+"/receipt", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_settled", decodeAs[services.ErrorResponse](t, rec).Code)
}

func TestRequestDecoding(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", mW.RoleAdmin, "")
	cashier := token(t, "cashier-1", mW.RoleCashier, "")
	accountID := f.createAccount(t, admin, "1000")

	rec := f.do(t, http.MethodPut, "/admin/expense-types", admin, map[string]any{"name": "rent"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown field", `{"expense_type":"rent","amount":"10","payment_method":"cash","tip":1}`, http.StatusBadRequest, ""},
		{"two objects", `{"expense_type":"rent","amount":"10","payment_method":"cash"}{}`, http.StatusBadRequest, ""},
		{"malformed", `{"expense_type":`, http.StatusBadRequest, ""},
		{"missing type", map[string]any{"amount": "10", "payment_method": "cash"}, http.StatusBadRequest, ""},
		{"unknown type", map[string]any{"expense_type": "yacht", "amount": "10", "payment_method": "cash"}, http.StatusBadRequest, "validation_error"},
		{"too many decimals", map[string]any{"expense_type": "rent", "amount": "10.001", "payment_method": "cash"}, http.StatusBadRequest, "validation_error"},
		{"insufficient funds", map[string]any{
			"expense_type": "rent", "amount": "5000", "payment_method": "bank_transfer", "bank_account_id": accountID,
		}, http.StatusUnprocessableEntity, "insufficient_funds"},
		{"unknown account", map[string]any{
			"expense_type": "rent", "amount": "5", "payment_method": "bank_transfer", "bank_account_id": "nope",
		}, http.StatusNotFound, "not_found"},
		{"ok", map[string]any{
			"expense_type": "rent", "amount": "400", "payment_method": "bank_transfer", "bank_account_id": accountID,
		}, http.StatusCreated, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/expenses", cashier, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.code != "" {
				assert.Equal(t, tt.code, decodeAs[services.ErrorResponse](t, rec).Code)
			}
		})
	}

	t.Run("validation details name the field", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/expenses", cashier, map[string]any{"amount": "10", "payment_method": "cash"})
		resp := decodeAs[services.ErrorResponse](t, rec)
		assert.Contains(t, resp.Details, "ExpenseType")
	})
}

func TestAuthorization(t *testing.T) {
	f := newAPIFixture(t)
	cashier := token(t, "cashier-1", mW.RoleCashier, "")
	employee := token(t, "emp-user", mW.RoleEmployee, "E-1")

	tests := []struct {
		name   string
		method string
		path   string
		tok    string
		status int
	}{
		{"no token", http.MethodGet, "/ledger", "", http.StatusUnauthorized},
		{"cashier cannot transfer", http.MethodPost, "/transfers", cashier, http.StatusForbidden},
		{"cashier cannot reverse", http.MethodPost, "/ledger/x/reverse", cashier, http.StatusForbidden},
		{"cashier cannot reconcile", http.MethodPost, "/admin/reconcile", cashier, http.StatusForbidden},
		{"employee cannot read the ledger", http.MethodGet, "/ledger", employee, http.StatusForbidden},
		{"employee cannot record payments", http.MethodPost, "/payments", employee, http.StatusForbidden},
		{"employee cannot read colleagues", http.MethodGet, "/employees/E-2/financial", employee, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.tok, "{}")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestTransferAndReverse(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", mW.RoleAdmin, "")
	from := f.createAccount(t, admin, "800")
	to := f.createAccount(t, admin, "100")

	rec := f.do(t, http.MethodPost, "/transfers", admin, map[string]any{"from_account_id": from, "to_account_id": from, "amount": "10"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_transfer", decodeAs[services.ErrorResponse](t, rec).Code)

	rec = f.do(t, http.MethodPost, "/transfers", admin, map[string]any{"from_account_id": from, "to_account_id": to, "amount": "300"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decodeAs[struct {
		Transfer models.InternalTransfer `json:"transfer"`
		Entries  []models.LedgerEntry    `json:"entries"`
	}](t, rec)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, resp.Transfer.CorrelationID, resp.Entries[0].CorrelationID)

	rec = f.do(t, http.MethodPost, "/ledger/"+resp.Entries[0].ID+"/reverse", admin, map[string]any{"reason": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/ledger/"+resp.Entries[0].ID+"/reverse", admin, map[string]any{"reason": "booked twice"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, decodeAs[[]models.LedgerEntry](t, rec), 2)

	rec = f.do(t, http.MethodGet, "/bank-accounts", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, s := range decodeAs[[]models.AccountSummary](t, rec) {
		assert.True(t, s.CurrentBalance.Equal(s.InitialBalance), "%s: %s", s.ID, s.CurrentBalance)
	}

	rec = f.do(t, http.MethodPost, "/admin/reconcile?fix=true", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decodeAs[models.ReconcileReport](t, rec)
	assert.Equal(t, 2, report.AccountsChecked)
	assert.Empty(t, report.Drift)
}

func TestHistoryQuery(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", mW.RoleAdmin, "")
	accountID := f.createAccount(t, admin, "0")

	for range 3 {
		rec := f.do(t, http.MethodPost, "/extra-incomes", admin, map[string]any{
			"income_type": "installation_fee", "amount": "25", "payment_method": "bank_transfer", "bank_account_id": accountID,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := f.do(t, http.MethodGet, "/ledger?type=extra_income&status=settled&per_page=2&bank_account_id="+accountID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	page := decodeAs[models.HistoryPage](t, rec)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Entries, 2)
	assert.Equal(t, 1, page.Page)

	rec = f.do(t, http.MethodGet, "/ledger?per_page=500", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, decodeAs[models.HistoryPage](t, rec).PerPage)

	for _, q := range []string{"type=bogus", "status=lost", "page=-1", "from=yesterday", "from=2024-03-02&to=2024-03-01"} {
		rec = f.do(t, http.MethodGet, "/ledger?"+q, admin, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}

	rec = f.do(t, http.MethodGet, "/bank-accounts/"+accountID+"/flow", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/bank-accounts/"+accountID+"/flow?from=2000-01-01&to=2100-01-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	flow := decodeAs[models.AccountFlow](t, rec)
	assert.True(t, decimal.NewFromInt(75).Equal(flow.Inflow), flow.Inflow.String())
	assert.True(t, flow.Outflow.IsZero())
}

func TestEmployeePortal(t *testing.T) {
	f := newAPIFixture(t)
	admin := token(t, "admin-1", mW.RoleAdmin, "")

	rec := f.do(t, http.MethodPost, "/admin/employees", admin, map[string]any{"name": "Ayesha", "salary": "3000"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	employeeID := decodeAs[models.Employee](t, rec).ID

	rec = f.do(t, http.MethodPost, "/admin/salary-accrual", admin, map[string]any{"month": "March"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/salary-accrual", admin, map[string]any{"month": "2024-03"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeAs[models.AccrualRun](t, rec).Accrued, 1)

	rec = f.do(t, http.MethodPost, "/admin/salary-accrual", admin, map[string]any{"month": "2024-03"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{employeeID}, decodeAs[models.AccrualRun](t, rec).Skipped)

	own := token(t, "emp-user", mW.RoleEmployee, employeeID)
	rec = f.do(t, http.MethodGet, "/employee-portal/financial?month=2024-03", own, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeAs[models.FinancialData](t, rec)
	assert.True(t, decimal.NewFromInt(3000).Equal(data.MonthEarnings), data.MonthEarnings.String())
	assert.True(t, decimal.NewFromInt(3000).Equal(data.CurrentBalance), data.CurrentBalance.String())
	require.Len(t, data.Ledger, 1)

	rec = f.do(t, http.MethodGet, "/employee-portal/financial?month=03-2024", own, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/employee-portal/financial", token(t, "emp-2", mW.RoleEmployee, ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/employees/"+employeeID+"/financial?month=2024-04", token(t, "rev", mW.RoleReviewer, ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeAs[models.FinancialData](t, rec).MonthEarnings.IsZero())

	rec = f.do(t, http.MethodPut, "/admin/employees/"+employeeID+"/active", admin, map[string]any{"active": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeAs[models.Employee](t, rec).IsActive)

	rec = f.do(t, http.MethodPost, "/employees/"+employeeID+"/accruals", admin, map[string]any{"amount": "50", "category": "bonus"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "employee_inactive", decodeAs[services.ErrorResponse](t, rec).Code)
}
