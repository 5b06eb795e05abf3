package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ispdesk/backend/internal/models"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const entryColumns = `id, kind, amount, account_id, employee_id, payment_method, status, created_at, created_by,
		proof_reference, correlation_id, invoice_id, customer_id, category, description, reversal_of, metadata`

// PostgresStore persists the ledger in Postgres. Row locks are taken with
// SELECT ... FOR UPDATE and bounded by lock_timeout.
type PostgresStore struct {
	db          *sql.DB
	lockTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.BankAccount, error) {
	var a models.BankAccount
	err := row.Scan(&a.ID, &a.BankName, &a.AccountTitle, &a.AccountNumber, &a.InitialBalance,
		&a.CurrentBalance, &a.IsActive, &a.Version, &a.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &a, nil
}

func scanEmployee(row rowScanner) (*models.Employee, error) {
	var e models.Employee
	err := row.Scan(&e.ID, &e.Name, &e.Salary, &e.CurrentBalance, &e.IsActive, &e.Version, &e.UpdatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	return &e, nil
}

func scanEntry(row rowScanner) (*models.LedgerEntry, error) {
	var (
		e                                                      models.LedgerEntry
		accountID, employeeID, proof, invoice, customer, revOf sql.NullString
	)
	err := row.Scan(&e.ID, &e.Kind, &e.Amount, &accountID, &employeeID, &e.PaymentMethod, &e.Status,
		&e.CreatedAt, &e.CreatedBy, &proof, &e.CorrelationID, &invoice, &customer, &e.Category,
		&e.Description, &revOf, &e.Metadata)
	if err != nil {
		return nil, translateErr(err)
	}
	e.AccountID = nullable(accountID)
	e.EmployeeID = nullable(employeeID)
	e.ProofReference = nullable(proof)
	e.InvoiceID = nullable(invoice)
	e.CustomerID = nullable(customer)
	e.ReversalOf = nullable(revOf)
	return &e, nil
}

func scanVerification(row rowScanner) (*models.PaymentVerification, error) {
	var (
		v               models.PaymentVerification
		reviewer, notes sql.NullString
		decidedAt       sql.NullTime
	)
	err := row.Scan(&v.EntryID, &v.ProofReference, &v.Decision, &reviewer, &notes, &decidedAt, &v.CreatedAt)
	if err != nil {
		return nil, translateErr(err)
	}
	v.ReviewerID = nullable(reviewer)
	v.DecisionNotes = nullable(notes)
	if decidedAt.Valid {
		v.DecidedAt = &decidedAt.Time
	}
	return &v, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	return scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, bank_name, account_title, account_number, initial_balance, current_balance, is_active, version, updated_at
		FROM bank_accounts WHERE id = $1`, id))
}

func (s *PostgresStore) ListAccounts(ctx context.Context, activeOnly bool) ([]models.BankAccount, error) {
	query := `
		SELECT id, bank_name, account_title, account_number, initial_balance, current_balance, is_active, version, updated_at
		FROM bank_accounts`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.BankAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *PostgresStore) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	return scanEmployee(s.db.QueryRowContext(ctx, `
		SELECT id, name, salary, current_balance, is_active, version, updated_at
		FROM employees WHERE id = $1`, id))
}

func (s *PostgresStore) ListEmployees(ctx context.Context, activeOnly bool) ([]models.Employee, error) {
	query := `SELECT id, name, salary, current_balance, is_active, version, updated_at FROM employees`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	employees := []models.Employee{}
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *e)
	}
	return employees, rows.Err()
}

func (s *PostgresStore) GetEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1`, id))
}

func (s *PostgresStore) EntriesByCorrelation(ctx context.Context, correlationID string) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE correlation_id = $1 ORDER BY seq`, correlationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEntries(rows)
}

// ListEntries returns matching entries newest first with the total match count.
func (s *PostgresStore) ListEntries(ctx context.Context, f models.HistoryFilter) ([]models.LedgerEntry, int, error) {
	var conditions []string
	var args []any
	argIndex := 1

	if f.AccountID != "" {
		conditions = append(conditions, fmt.Sprintf("account_id = $%d", argIndex))
		args = append(args, f.AccountID)
		argIndex++
	}
	if f.EmployeeID != "" {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", argIndex))
		args = append(args, f.EmployeeID)
		argIndex++
	}
	if len(f.Kinds) > 0 {
		kinds := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			kinds[i] = string(k)
		}
		conditions = append(conditions, fmt.Sprintf("kind = ANY($%d)", argIndex))
		args = append(args, pq.Array(kinds))
		argIndex++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIndex))
		args = append(args, pq.Array(statuses))
		argIndex++
	}
	if f.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIndex))
		args = append(args, *f.From)
		argIndex++
	}
	if f.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", argIndex))
		args = append(args, *f.To)
		argIndex++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + entryColumns + " FROM ledger_entries" + where + " ORDER BY seq DESC"
	if f.PerPage > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, f.PerPage, (max(f.Page, 1)-1)*f.PerPage)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := collectEntries(rows)
	return entries, total, err
}

func (s *PostgresStore) GetVerification(ctx context.Context, entryID string) (*models.PaymentVerification, error) {
	return scanVerification(s.db.QueryRowContext(ctx, `
		SELECT entry_id, proof_reference, decision, reviewer_id, decision_notes, decided_at, created_at
		FROM payment_verifications WHERE entry_id = $1`, entryID))
}

func (s *PostgresStore) ListPendingVerifications(ctx context.Context) ([]models.PaymentVerification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_id, proof_reference, decision, reviewer_id, decision_notes, decided_at, created_at
		FROM payment_verifications WHERE decision = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.PaymentVerification{}
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetExpenseType(ctx context.Context, name string) (*models.ExpenseType, error) {
	var t models.ExpenseType
	err := s.db.QueryRowContext(ctx,
		`SELECT name, is_employee_payment FROM expense_types WHERE name = $1`, name).Scan(&t.Name, &t.IsEmployeePayment)
	if err != nil {
		return nil, translateErr(err)
	}
	return &t, nil
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.BankAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bank_accounts (id, bank_name, account_title, account_number, initial_balance, current_balance, is_active, version, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, $6, 1, NOW())`,
		a.ID, a.BankName, a.AccountTitle, a.AccountNumber, a.InitialBalance, a.IsActive)
	return translateErr(err)
}

func (s *PostgresStore) SetAccountActive(ctx context.Context, id string, active bool) error {
	return expectOneRow(s.db.ExecContext(ctx,
		`UPDATE bank_accounts SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id))
}

func (s *PostgresStore) CreateEmployee(ctx context.Context, e *models.Employee) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, salary, current_balance, is_active, version, updated_at)
		VALUES ($1, $2, $3, 0, $4, 1, NOW())`,
		e.ID, e.Name, e.Salary, e.IsActive)
	return translateErr(err)
}

func (s *PostgresStore) SetEmployeeActive(ctx context.Context, id string, active bool) error {
	return expectOneRow(s.db.ExecContext(ctx,
		`UPDATE employees SET is_active = $1, updated_at = NOW() WHERE id = $2`, active, id))
}

func (s *PostgresStore) UpsertExpenseType(ctx context.Context, t *models.ExpenseType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expense_types (name, is_employee_payment) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET is_employee_payment = EXCLUDED.is_employee_payment`,
		t.Name, t.IsEmployeePayment)
	return err
}

// RunInTx runs fn inside a database transaction, committing on success.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
			return err
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return translateErr(tx.Commit())
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `
		SELECT id, bank_name, account_title, account_number, initial_balance, current_balance, is_active, version, updated_at
		FROM bank_accounts WHERE id = $1
		FOR UPDATE`, id))
}

func (t *pgTx) LockEmployee(ctx context.Context, id string) (*models.Employee, error) {
	return scanEmployee(t.tx.QueryRowContext(ctx, `
		SELECT id, name, salary, current_balance, is_active, version, updated_at
		FROM employees WHERE id = $1
		FOR UPDATE`, id))
}

func (t *pgTx) LockEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return scanEntry(t.tx.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) UpdateAccountBalance(ctx context.Context, id string, balance decimal.Decimal, version int) error {
	err := expectOneRow(t.tx.ExecContext(ctx, `
		UPDATE bank_accounts
		SET current_balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		balance, time.Now(), id, version))
	if errors.Is(err, ErrNotFound) {
		return ErrVersionConflict
	}
	return err
}

func (t *pgTx) UpdateEmployeeBalance(ctx context.Context, id string, balance decimal.Decimal, version int) error {
	err := expectOneRow(t.tx.ExecContext(ctx, `
		UPDATE employees
		SET current_balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		balance, time.Now(), id, version))
	if errors.Is(err, ErrNotFound) {
		return ErrVersionConflict
	}
	return err
}

func (t *pgTx) InsertEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.Kind, e.Amount, e.AccountID, e.EmployeeID, e.PaymentMethod, e.Status, e.CreatedAt, e.CreatedBy,
		e.ProofReference, e.CorrelationID, e.InvoiceID, e.CustomerID, e.Category, e.Description, e.ReversalOf, e.Metadata)
	return translateErr(err)
}

func (t *pgTx) UpdateEntryStatus(ctx context.Context, id string, from, to models.EntryStatus) error {
	err := expectOneRow(t.tx.ExecContext(ctx,
		`UPDATE ledger_entries SET status = $1 WHERE id = $2 AND status = $3`, to, id, from))
	if errors.Is(err, ErrNotFound) {
		return ErrStatusConflict
	}
	return err
}

func (t *pgTx) InsertVerification(ctx context.Context, v *models.PaymentVerification) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payment_verifications (entry_id, proof_reference, decision, created_at)
		VALUES ($1, $2, $3, $4)`,
		v.EntryID, v.ProofReference, v.Decision, v.CreatedAt)
	return translateErr(err)
}

func (t *pgTx) UpdateVerification(ctx context.Context, v *models.PaymentVerification) error {
	return expectOneRow(t.tx.ExecContext(ctx, `
		UPDATE payment_verifications
		SET decision = $1, reviewer_id = $2, decision_notes = $3, decided_at = $4
		WHERE entry_id = $5`,
		v.Decision, v.ReviewerID, v.DecisionNotes, v.DecidedAt, v.EntryID))
}

func (t *pgTx) HasEmployeeEntry(ctx context.Context, employeeID string, kind models.EntryKind, category string, from, to time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM ledger_entries
			WHERE employee_id = $1 AND kind = $2 AND category = $3
			  AND created_at >= $4 AND created_at < $5
			  AND reversal_of IS NULL AND status <> 'reversed'
		)`, employeeID, kind, category, from, to).Scan(&exists)
	return exists, err
}

func collectEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	entries := []models.LedgerEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func expectOneRow(result sql.Result, err error) error {
	if err != nil {
		return translateErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translateErr maps driver errors onto the store's sentinel errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "55P03", "40P01":
			return fmt.Errorf("%w: %s", ErrLockTimeout, pqErr.Message)
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Message)
		}
	}
	return err
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
