package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ispdesk/backend/internal/audit"
	"github.com/ispdesk/backend/internal/config"
	"github.com/ispdesk/backend/internal/database"
	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// TransactionSpec is the normalized input of every money movement the
// engine records.
type TransactionSpec struct {
	Kind           models.EntryKind
	Amount         decimal.Decimal
	PaymentMethod  models.PaymentMethod
	AccountID      string
	ToAccountID    string
	EmployeeID     string
	AllowAdvance   bool
	InvoiceID      string
	CustomerID     string
	ProofReference string
	ExpenseType    string
	Category       string
	Description    string
	Actor          string
	Metadata       models.Metadata
}

// Engine records ledger entries and applies their balance effects in one
// unit of work under the locks of every entity they touch.
type Engine struct {
	store     database.Store
	accounts  *AccountStore
	employees *EmployeeStore
	locks     LockManager
	invoices  InvoiceMarker
	events    EventPublisher
	audit     *audit.AuditLogger
	logger    *zap.Logger
	cfg       *config.LedgerConfig
	now       func() time.Time
}

type EngineOption func(*Engine)

func WithInvoiceMarker(m InvoiceMarker) EngineOption {
	return func(e *Engine) { e.invoices = m }
}

func WithEventPublisher(p EventPublisher) EngineOption {
	return func(e *Engine) { e.events = p }
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store database.Store, locks LockManager, cfg *config.LedgerConfig, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:     store,
		accounts:  NewAccountStore(store, locks),
		employees: NewEmployeeStore(store, locks),
		locks:     locks,
		invoices:  NoopInvoiceMarker{},
		events:    NoopEventPublisher{},
		audit:     audit.NewAuditLogger(logger),
		logger:    logger.Named("engine"),
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Accounts() *AccountStore   { return e.accounts }
func (e *Engine) Employees() *EmployeeStore { return e.employees }

func (e *Engine) RecordCustomerPayment(ctx context.Context, actor string, req models.CustomerPaymentRequest) (*models.LedgerEntry, error) {
	meta := models.Metadata{}
	if req.TransactionRef != "" {
		meta["transaction_id"] = req.TransactionRef
	}
	return e.Apply(ctx, TransactionSpec{
		Kind:           models.KindCustomerPayment,
		Amount:         req.Amount,
		PaymentMethod:  req.PaymentMethod,
		AccountID:      req.BankAccountID,
		InvoiceID:      req.InvoiceID,
		CustomerID:     req.CustomerID,
		ProofReference: req.PaymentProof,
		Description:    req.Description,
		Actor:          actor,
		Metadata:       meta,
	})
}

func (e *Engine) RecordExpense(ctx context.Context, actor string, req models.ExpenseRequest) (*models.LedgerEntry, error) {
	return e.Apply(ctx, TransactionSpec{
		Kind:          models.KindExpense,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		AccountID:     req.BankAccountID,
		EmployeeID:    req.EmployeeID,
		AllowAdvance:  req.AllowAdvance,
		ExpenseType:   req.ExpenseType,
		Description:   req.Description,
		Actor:         actor,
	})
}

func (e *Engine) RecordISPPayment(ctx context.Context, actor string, req models.ISPPaymentRequest) (*models.LedgerEntry, error) {
	meta := models.Metadata{"isp_id": req.ISPID}
	if req.BillingPeriod != "" {
		meta["billing_period"] = req.BillingPeriod
	}
	if req.ReferenceNumber != "" {
		meta["reference_number"] = req.ReferenceNumber
	}
	return e.Apply(ctx, TransactionSpec{
		Kind:          models.KindISPPayment,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		AccountID:     req.BankAccountID,
		Category:      e.cfg.ISPCategory,
		Description:   req.Description,
		Actor:         actor,
		Metadata:      meta,
	})
}

func (e *Engine) RecordExtraIncome(ctx context.Context, actor string, req models.ExtraIncomeRequest) (*models.LedgerEntry, error) {
	return e.Apply(ctx, TransactionSpec{
		Kind:          models.KindExtraIncome,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		AccountID:     req.BankAccountID,
		Category:      req.IncomeType,
		Description:   req.Description,
		Actor:         actor,
	})
}

// Transfer moves money between two company accounts as a pair of entries
// sharing one correlation id.
func (e *Engine) Transfer(ctx context.Context, actor string, req models.TransferRequest) (*models.InternalTransfer, error) {
	spec := TransactionSpec{
		Kind:          models.KindTransferOut,
		Amount:        req.Amount,
		PaymentMethod: models.MethodBankTransfer,
		AccountID:     req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Description:   req.Description,
		Actor:         actor,
	}
	if req.ReferenceNumber != "" {
		spec.Metadata = models.Metadata{"reference_number": req.ReferenceNumber}
	}
	entries, err := e.apply(ctx, spec)
	if err != nil {
		return nil, err
	}
	out, in := entries[0], entries[1]
	return &models.InternalTransfer{
		CorrelationID: out.CorrelationID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        out.Amount,
		TransferDate:  out.CreatedAt,
		Out:           &out,
		In:            &in,
	}, nil
}

// AccrueEmployee records money the company now owes an employee, such as a
// commission or bonus.
func (e *Engine) AccrueEmployee(ctx context.Context, actor, employeeID string, req models.AccrualRequest) (*models.LedgerEntry, error) {
	return e.Apply(ctx, TransactionSpec{
		Kind:        models.KindEmployeeAccrual,
		Amount:      req.Amount,
		EmployeeID:  employeeID,
		Category:    req.Category,
		Description: req.Description,
		Actor:       actor,
	})
}

// Apply validates spec, then records it. It returns the primary entry; the
// other entries of the same operation share its correlation id.
func (e *Engine) Apply(ctx context.Context, spec TransactionSpec) (*models.LedgerEntry, error) {
	entries, err := e.apply(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &entries[0], nil
}

func (e *Engine) apply(ctx context.Context, spec TransactionSpec) ([]models.LedgerEntry, error) {
	expenseType, err := e.validate(ctx, &spec)
	if err != nil {
		return nil, err
	}

	correlationID := uuid.NewString()
	var entries []models.LedgerEntry

	err = withRetry(ctx, func() error {
		release, err := e.locks.Acquire(ctx, spec.lockKeys()...)
		if err != nil {
			return err
		}
		defer release()

		return e.store.RunInTx(ctx, func(tx database.Tx) error {
			entries, err = e.record(ctx, tx, &spec, expenseType, correlationID)
			return err
		})
	})
	if err != nil {
		e.failed(correlationID, spec.Actor, err)
		return nil, err
	}

	e.committed(ctx, correlationID, spec, entries)
	return entries, nil
}

// validate rejects malformed input before any lock is taken and fills in
// the fields derived from reference data.
func (e *Engine) validate(ctx context.Context, spec *TransactionSpec) (*models.ExpenseType, error) {
	if err := validateAmount("amount", spec.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Actor) == "" {
		return nil, invalid("created_by", "is required")
	}

	switch spec.Kind {
	case models.KindTransferOut:
		if spec.AccountID == "" {
			return nil, invalid("from_account_id", "is required")
		}
		if spec.ToAccountID == "" {
			return nil, invalid("to_account_id", "is required")
		}
		if spec.AccountID == spec.ToAccountID {
			return nil, fmt.Errorf("account %s: source and destination are the same: %w", spec.AccountID, ErrInvalidTransfer)
		}
		return nil, nil
	case models.KindEmployeeAccrual:
		if spec.EmployeeID == "" {
			return nil, invalid("employee_id", "is required")
		}
		if strings.TrimSpace(spec.Category) == "" {
			return nil, invalid("category", "is required")
		}
		return nil, nil
	case models.KindCustomerPayment, models.KindExpense, models.KindISPPayment, models.KindExtraIncome:
	default:
		return nil, invalid("transaction_type", "unsupported kind %q", spec.Kind)
	}

	if !spec.PaymentMethod.Valid() {
		return nil, invalid("payment_method", "must be one of cash, bank_transfer, online")
	}
	if spec.PaymentMethod.RequiresBankAccount() && spec.AccountID == "" {
		return nil, invalid("bank_account_id", "is required for %s payments", spec.PaymentMethod)
	}
	if !spec.PaymentMethod.RequiresBankAccount() && spec.AccountID != "" {
		return nil, invalid("bank_account_id", "must be empty for %s payments", spec.PaymentMethod)
	}

	switch spec.Kind {
	case models.KindCustomerPayment:
		if spec.InvoiceID == "" {
			return nil, invalid("invoice_id", "is required")
		}
		if spec.CustomerID == "" {
			return nil, invalid("customer_id", "is required")
		}
	case models.KindExpense:
		return e.validateExpense(ctx, spec)
	case models.KindISPPayment:
		if spec.Category == "" {
			spec.Category = e.cfg.ISPCategory
		}
	case models.KindExtraIncome:
		if strings.TrimSpace(spec.Category) == "" {
			return nil, invalid("income_type", "is required")
		}
	}
	if spec.EmployeeID != "" {
		return nil, invalid("employee_id", "is only accepted on employee payment expenses")
	}
	return nil, nil
}

func (e *Engine) validateExpense(ctx context.Context, spec *TransactionSpec) (*models.ExpenseType, error) {
	if spec.ExpenseType == "" {
		return nil, invalid("expense_type", "is required")
	}
	expenseType, err := e.store.GetExpenseType(ctx, spec.ExpenseType)
	if errors.Is(err, database.ErrNotFound) {
		return nil, invalid("expense_type", "unknown expense type %q", spec.ExpenseType)
	}
	if err != nil {
		return nil, err
	}
	spec.Category = expenseType.Name

	if expenseType.IsEmployeePayment && spec.EmployeeID == "" {
		return nil, invalid("employee_id", "is required for %s expenses", expenseType.Name)
	}
	if !expenseType.IsEmployeePayment && spec.EmployeeID != "" {
		return nil, invalid("employee_id", "%s is not an employee payment expense", expenseType.Name)
	}
	return expenseType, nil
}

// deferred reports whether a customer payment waits for proof review
// instead of settling now.
func (e *Engine) deferred(spec *TransactionSpec) bool {
	if spec.Kind != models.KindCustomerPayment {
		return false
	}
	if spec.ProofReference == "" {
		return false
	}
	return spec.PaymentMethod.RequiresBankAccount() || e.cfg.CashRequiresVerification
}

func (s *TransactionSpec) lockKeys() []string {
	var keys []string
	if s.AccountID != "" {
		keys = append(keys, accountKey(s.AccountID))
	}
	if s.ToAccountID != "" {
		keys = append(keys, accountKey(s.ToAccountID))
	}
	if s.EmployeeID != "" {
		keys = append(keys, employeeKey(s.EmployeeID))
	}
	return keys
}

func (e *Engine) newEntry(spec *TransactionSpec, kind models.EntryKind, correlationID string, at time.Time) models.LedgerEntry {
	entry := models.LedgerEntry{
		ID:            uuid.NewString(),
		Kind:          kind,
		Amount:        spec.Amount,
		PaymentMethod: spec.PaymentMethod,
		Status:        models.StatusSettled,
		CreatedAt:     at,
		CreatedBy:     spec.Actor,
		CorrelationID: correlationID,
		Category:      spec.Category,
		Description:   spec.Description,
		Metadata:      spec.Metadata,
	}
	if spec.ProofReference != "" {
		entry.ProofReference = ptr(spec.ProofReference)
	}
	if spec.InvoiceID != "" {
		entry.InvoiceID = ptr(spec.InvoiceID)
	}
	if spec.CustomerID != "" {
		entry.CustomerID = ptr(spec.CustomerID)
	}
	return entry
}

// record runs inside one unit of work with every lock of spec held.
func (e *Engine) record(ctx context.Context, tx database.Tx, spec *TransactionSpec, expenseType *models.ExpenseType, correlationID string) ([]models.LedgerEntry, error) {
	now := e.now().UTC()

	switch spec.Kind {
	case models.KindCustomerPayment:
		if e.deferred(spec) {
			return e.recordPending(ctx, tx, spec, correlationID, now)
		}
		entry := e.newEntry(spec, spec.Kind, correlationID, now)
		if spec.AccountID != "" {
			if _, err := e.accounts.credit(ctx, tx, spec.AccountID, spec.Amount); err != nil {
				return nil, err
			}
			entry.AccountID = ptr(spec.AccountID)
		}
		if err := insertEntries(ctx, tx, &entry); err != nil {
			return nil, err
		}
		if err := e.invoices.MarkInvoicePaid(ctx, spec.InvoiceID, spec.Amount); err != nil {
			return nil, err
		}
		return []models.LedgerEntry{entry}, nil

	case models.KindExpense:
		return e.recordExpense(ctx, tx, spec, expenseType, correlationID, now)

	case models.KindISPPayment:
		entry := e.newEntry(spec, spec.Kind, correlationID, now)
		if spec.AccountID != "" {
			if _, err := e.accounts.debit(ctx, tx, spec.AccountID, spec.Amount); err != nil {
				return nil, err
			}
			entry.AccountID = ptr(spec.AccountID)
		}
		return []models.LedgerEntry{entry}, insertEntries(ctx, tx, &entry)

	case models.KindExtraIncome:
		entry := e.newEntry(spec, spec.Kind, correlationID, now)
		if spec.AccountID != "" {
			if _, err := e.accounts.credit(ctx, tx, spec.AccountID, spec.Amount); err != nil {
				return nil, err
			}
			entry.AccountID = ptr(spec.AccountID)
		}
		return []models.LedgerEntry{entry}, insertEntries(ctx, tx, &entry)

	case models.KindTransferOut:
		return e.recordTransfer(ctx, tx, spec, correlationID, now)

	case models.KindEmployeeAccrual:
		if _, err := e.employees.accrue(ctx, tx, spec.EmployeeID, spec.Amount); err != nil {
			return nil, err
		}
		entry := e.newEntry(spec, spec.Kind, correlationID, now)
		entry.PaymentMethod = ""
		entry.EmployeeID = ptr(spec.EmployeeID)
		return []models.LedgerEntry{entry}, insertEntries(ctx, tx, &entry)
	}
	return nil, invalid("transaction_type", "unsupported kind %q", spec.Kind)
}

func (e *Engine) recordPending(ctx context.Context, tx database.Tx, spec *TransactionSpec, correlationID string, now time.Time) ([]models.LedgerEntry, error) {
	if spec.AccountID != "" {
		if _, err := e.accounts.lockActive(ctx, tx, spec.AccountID); err != nil {
			return nil, err
		}
	}
	entry := e.newEntry(spec, spec.Kind, correlationID, now)
	entry.Status = models.StatusPendingVerification
	if spec.AccountID != "" {
		entry.AccountID = ptr(spec.AccountID)
	}
	if err := insertEntries(ctx, tx, &entry); err != nil {
		return nil, err
	}
	verification := &models.PaymentVerification{
		EntryID:        entry.ID,
		ProofReference: spec.ProofReference,
		Decision:       models.DecisionPending,
		CreatedAt:      now,
	}
	if err := tx.InsertVerification(ctx, verification); err != nil {
		return nil, storeErr(err, "insert verification")
	}
	return []models.LedgerEntry{entry}, nil
}

// recordExpense writes the expense and, for employee payment types, the
// payout entry that pays down the employee balance.
func (e *Engine) recordExpense(ctx context.Context, tx database.Tx, spec *TransactionSpec, expenseType *models.ExpenseType, correlationID string, now time.Time) ([]models.LedgerEntry, error) {
	if expenseType.IsEmployeePayment {
		if _, err := e.employees.deduct(ctx, tx, spec.EmployeeID, spec.Amount, spec.AllowAdvance); err != nil {
			return nil, err
		}
	}

	expense := e.newEntry(spec, models.KindExpense, correlationID, now)
	if spec.AccountID != "" {
		if _, err := e.accounts.debit(ctx, tx, spec.AccountID, spec.Amount); err != nil {
			return nil, err
		}
		expense.AccountID = ptr(spec.AccountID)
	}
	if !expenseType.IsEmployeePayment {
		return []models.LedgerEntry{expense}, insertEntries(ctx, tx, &expense)
	}

	payout := e.newEntry(spec, models.KindEmployeePayout, correlationID, now)
	payout.EmployeeID = ptr(spec.EmployeeID)
	if spec.AllowAdvance {
		payout.Metadata = withMeta(spec.Metadata, "advance", true)
	}
	return []models.LedgerEntry{expense, payout}, insertEntries(ctx, tx, &expense, &payout)
}

func (e *Engine) recordTransfer(ctx context.Context, tx database.Tx, spec *TransactionSpec, correlationID string, now time.Time) ([]models.LedgerEntry, error) {
	// Row locks follow the same ascending order as the key locks.
	ids := []string{spec.AccountID, spec.ToAccountID}
	slices.Sort(ids)
	for _, id := range ids {
		if _, err := e.accounts.lockActive(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	if _, err := e.accounts.debit(ctx, tx, spec.AccountID, spec.Amount); err != nil {
		return nil, err
	}
	if _, err := e.accounts.credit(ctx, tx, spec.ToAccountID, spec.Amount); err != nil {
		if cerr := e.accounts.adjust(ctx, tx, spec.AccountID, spec.Amount); cerr != nil {
			return nil, fmt.Errorf("transfer %s: credit failed (%v), restoring source failed (%v): %w",
				correlationID, err, cerr, ErrFatalInconsistency)
		}
		return nil, err
	}

	out := e.newEntry(spec, models.KindTransferOut, correlationID, now)
	out.AccountID = ptr(spec.AccountID)
	in := e.newEntry(spec, models.KindTransferIn, correlationID, now)
	in.AccountID = ptr(spec.ToAccountID)
	return []models.LedgerEntry{out, in}, insertEntries(ctx, tx, &out, &in)
}

func (e *Engine) committed(ctx context.Context, correlationID string, spec TransactionSpec, entries []models.LedgerEntry) {
	if spec.Kind == models.KindTransferOut {
		e.audit.LogTransfer(correlationID, spec.Actor, spec.AccountID, spec.ToAccountID, spec.Amount, string(models.StatusSettled))
	} else {
		for _, entry := range entries {
			e.audit.LogSettlement(correlationID, entry.ID, spec.Actor, string(entry.Kind), entry.Amount, string(entry.Status))
		}
	}

	eventType := EventEntriesSettled
	if entries[0].Status == models.StatusPendingVerification {
		eventType = EventPaymentPending
	}
	e.publish(ctx, eventType, correlationID, entries)
}

func (e *Engine) failed(correlationID, actor string, err error) {
	if IsBusinessRule(err) {
		e.logger.Info("ledger operation rejected", zap.String("correlation_id", correlationID), zap.Error(err))
		return
	}
	e.audit.LogError(correlationID, actor, err)
	e.logger.Error("ledger operation failed", zap.String("correlation_id", correlationID), zap.Error(err))
}

func (e *Engine) publish(ctx context.Context, eventType, correlationID string, entries []models.LedgerEntry) {
	event := LedgerEvent{
		Type:          eventType,
		CorrelationID: correlationID,
		Entries:       entries,
		OccurredAt:    e.now().UTC(),
	}
	if err := e.events.Publish(ctx, event); err != nil {
		e.logger.Warn("failed to publish ledger event",
			zap.String("type", eventType), zap.String("correlation_id", correlationID), zap.Error(err))
	}
}

func insertEntries(ctx context.Context, tx database.Tx, entries ...*models.LedgerEntry) error {
	for _, entry := range entries {
		if err := tx.InsertEntry(ctx, entry); err != nil {
			return storeErr(err, "insert ledger entry")
		}
	}
	return nil
}

func withMeta(m models.Metadata, key string, value any) models.Metadata {
	out := make(models.Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

func ptr[T any](v T) *T { return &v }
