package database

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ispdesk/backend/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps the ledger in process memory. The mutex only guards map
// access; callers serialize money movements with the lock manager, so a unit
// of work is isolated as long as every writer takes the entity locks first.
type MemoryStore struct {
	mu            sync.RWMutex
	accounts      map[string]*models.BankAccount
	employees     map[string]*models.Employee
	entries       []*models.LedgerEntry
	entryIndex    map[string]int
	verifications map[string]*models.PaymentVerification
	expenseTypes  map[string]*models.ExpenseType
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:      make(map[string]*models.BankAccount),
		employees:     make(map[string]*models.Employee),
		entryIndex:    make(map[string]int),
		verifications: make(map[string]*models.PaymentVerification),
		expenseTypes:  make(map[string]*models.ExpenseType),
	}
}

func (s *MemoryStore) GetAccount(_ context.Context, id string) (*models.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, activeOnly bool) ([]models.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.BankAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b models.BankAccount) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetEmployee(_ context.Context, id string) (*models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.employees[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *MemoryStore) ListEmployees(_ context.Context, activeOnly bool) ([]models.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Employee, 0, len(s.employees))
	for _, e := range s.employees {
		if activeOnly && !e.IsActive {
			continue
		}
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b models.Employee) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetEntry(_ context.Context, id string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.entryIndex[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.entries[i]
	return &cp, nil
}

func (s *MemoryStore) EntriesByCorrelation(_ context.Context, correlationID string) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.LedgerEntry
	for _, e := range s.entries {
		if e.CorrelationID == correlationID {
			out = append(out, *e)
		}
	}
	return out, nil
}

// ListEntries returns matching entries newest first with the total match count.
func (s *MemoryStore) ListEntries(_ context.Context, f models.HistoryFilter) ([]models.LedgerEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		if MatchesFilter(s.entries[i], f) {
			matched = append(matched, *s.entries[i])
		}
	}

	total := len(matched)
	if f.PerPage <= 0 {
		return matched, total, nil
	}
	start := (max(f.Page, 1) - 1) * f.PerPage
	if start >= total {
		return []models.LedgerEntry{}, total, nil
	}
	end := min(start+f.PerPage, total)
	return matched[start:end], total, nil
}

func (s *MemoryStore) GetVerification(_ context.Context, entryID string) (*models.PaymentVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.verifications[entryID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) ListPendingVerifications(_ context.Context) ([]models.PaymentVerification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.PaymentVerification
	for _, v := range s.verifications {
		if v.Decision == models.DecisionPending {
			out = append(out, *v)
		}
	}
	slices.SortFunc(out, func(a, b models.PaymentVerification) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *MemoryStore) GetExpenseType(_ context.Context, name string) (*models.ExpenseType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.expenseTypes[name]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, account *models.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; ok {
		return ErrDuplicate
	}
	cp := *account
	cp.CurrentBalance = cp.InitialBalance
	cp.Version = 1
	cp.UpdatedAt = time.Now()
	s.accounts[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) SetAccountActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.IsActive = active
	a.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreateEmployee(_ context.Context, employee *models.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.employees[employee.ID]; ok {
		return ErrDuplicate
	}
	cp := *employee
	cp.CurrentBalance = decimal.Zero
	cp.Version = 1
	cp.UpdatedAt = time.Now()
	s.employees[cp.ID] = &cp
	return nil
}

func (s *MemoryStore) SetEmployeeActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.employees[id]
	if !ok {
		return ErrNotFound
	}
	e.IsActive = active
	e.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpsertExpenseType(_ context.Context, expenseType *models.ExpenseType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *expenseType
	s.expenseTypes[cp.Name] = &cp
	return nil
}

// RunInTx runs fn and undoes every write it made if fn returns an error.
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memoryTx{store: s}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

type memoryTx struct {
	store *MemoryStore
	undo  []func()
}

func (t *memoryTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) LockAccount(ctx context.Context, id string) (*models.BankAccount, error) {
	return t.store.GetAccount(ctx, id)
}

func (t *memoryTx) LockEmployee(ctx context.Context, id string) (*models.Employee, error) {
	return t.store.GetEmployee(ctx, id)
}

func (t *memoryTx) LockEntry(ctx context.Context, id string) (*models.LedgerEntry, error) {
	return t.store.GetEntry(ctx, id)
}

func (t *memoryTx) UpdateAccountBalance(_ context.Context, id string, balance decimal.Decimal, version int) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.Version != version {
		return ErrVersionConflict
	}
	prevBalance, prevVersion, prevUpdated := a.CurrentBalance, a.Version, a.UpdatedAt
	a.CurrentBalance = balance
	a.Version++
	a.UpdatedAt = time.Now()
	t.undo = append(t.undo, func() {
		a.CurrentBalance, a.Version, a.UpdatedAt = prevBalance, prevVersion, prevUpdated
	})
	return nil
}

func (t *memoryTx) UpdateEmployeeBalance(_ context.Context, id string, balance decimal.Decimal, version int) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.employees[id]
	if !ok {
		return ErrNotFound
	}
	if e.Version != version {
		return ErrVersionConflict
	}
	prevBalance, prevVersion, prevUpdated := e.CurrentBalance, e.Version, e.UpdatedAt
	e.CurrentBalance = balance
	e.Version++
	e.UpdatedAt = time.Now()
	t.undo = append(t.undo, func() {
		e.CurrentBalance, e.Version, e.UpdatedAt = prevBalance, prevVersion, prevUpdated
	})
	return nil
}

func (t *memoryTx) InsertEntry(_ context.Context, entry *models.LedgerEntry) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entryIndex[entry.ID]; ok {
		return ErrDuplicate
	}
	cp := *entry
	s.entries = append(s.entries, &cp)
	s.entryIndex[cp.ID] = len(s.entries) - 1
	t.undo = append(t.undo, func() {
		// Entries inserted by later units of work may follow this one.
		i := s.entryIndex[cp.ID]
		s.entries = slices.Delete(s.entries, i, i+1)
		delete(s.entryIndex, cp.ID)
		for j := i; j < len(s.entries); j++ {
			s.entryIndex[s.entries[j].ID] = j
		}
	})
	return nil
}

func (t *memoryTx) UpdateEntryStatus(_ context.Context, id string, from, to models.EntryStatus) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.entryIndex[id]
	if !ok {
		return ErrNotFound
	}
	e := s.entries[i]
	if e.Status != from {
		return ErrStatusConflict
	}
	e.Status = to
	t.undo = append(t.undo, func() { e.Status = from })
	return nil
}

func (t *memoryTx) InsertVerification(_ context.Context, v *models.PaymentVerification) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.verifications[v.EntryID]; ok {
		return ErrDuplicate
	}
	cp := *v
	s.verifications[cp.EntryID] = &cp
	t.undo = append(t.undo, func() { delete(s.verifications, cp.EntryID) })
	return nil
}

func (t *memoryTx) UpdateVerification(_ context.Context, v *models.PaymentVerification) error {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.verifications[v.EntryID]
	if !ok {
		return ErrNotFound
	}
	cp := *v
	s.verifications[cp.EntryID] = &cp
	t.undo = append(t.undo, func() { s.verifications[cp.EntryID] = prev })
	return nil
}

func (t *memoryTx) HasEmployeeEntry(_ context.Context, employeeID string, kind models.EntryKind, category string, from, to time.Time) (bool, error) {
	s := t.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.EmployeeID == nil || *e.EmployeeID != employeeID || e.Kind != kind || e.Category != category {
			continue
		}
		if e.ReversalOf != nil || e.Status == models.StatusReversed {
			continue
		}
		if !e.CreatedAt.Before(from) && e.CreatedAt.Before(to) {
			return true, nil
		}
	}
	return false, nil
}

// MatchesFilter reports whether entry satisfies every criterion set in f.
// From is inclusive, To is exclusive.
func MatchesFilter(entry *models.LedgerEntry, f models.HistoryFilter) bool {
	if f.AccountID != "" && (entry.AccountID == nil || *entry.AccountID != f.AccountID) {
		return false
	}
	if f.EmployeeID != "" && (entry.EmployeeID == nil || *entry.EmployeeID != f.EmployeeID) {
		return false
	}
	if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, entry.Kind) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, entry.Status) {
		return false
	}
	if f.From != nil && entry.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !entry.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}
