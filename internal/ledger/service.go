package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/cashbook/internal/platform/textx"
)

// Snapshot is a point-in-time copy of the ledger state.
type Snapshot struct {
	Transactions []Transaction
	Accounts     []Account
	Locks        []LockKey
}

// LockChecker returns a guard over the snapshot's lock set.
func (s Snapshot) LockChecker() LockChecker { return NewLockGuard(s.Locks...) }

// Repository persists ledger state. Insert methods return the durable id,
// which replaces the provisional one when non-empty.
type Repository interface {
	Load(ctx context.Context) (Snapshot, error)
	InsertTransactions(ctx context.Context, txns []Transaction) ([]string, error)
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	InsertAccounts(ctx context.Context, accounts []Account) ([]string, error)
	UpdateAccount(ctx context.Context, a Account) error
	DeleteAccount(ctx context.Context, id string) error
	SaveLock(ctx context.Context, key LockKey) error
	DeleteLock(ctx context.Context, key LockKey) error
}

// ChangeKind names a ledger mutation.
type ChangeKind string

const (
	ChangeTransactionAdded   ChangeKind = "transaction.added"
	ChangeTransactionUpdated ChangeKind = "transaction.updated"
	ChangeTransactionRemoved ChangeKind = "transaction.removed"
	ChangeTransactionsImport ChangeKind = "transaction.imported"
	ChangeAccountAdded       ChangeKind = "account.added"
	ChangeAccountUpdated     ChangeKind = "account.updated"
	ChangeAccountRemoved     ChangeKind = "account.removed"
	ChangeAccountsImport     ChangeKind = "account.imported"
	ChangeLocked             ChangeKind = "period.locked"
	ChangeUnlocked           ChangeKind = "period.unlocked"
)

// Change describes a committed mutation.
type Change struct {
	Kind   ChangeKind `json:"kind"`
	ID     string     `json:"id,omitempty"`
	Months []Month    `json:"months,omitempty"`
	Count  int        `json:"count,omitempty"`
	At     time.Time  `json:"at"`
}

// Notifier receives committed changes. Implementations must not block for long.
type Notifier interface {
	LedgerChanged(ctx context.Context, change Change)
}

// Options configures a Service.
type Options struct {
	Repository     Repository
	Notifier       Notifier
	StrictAccounts bool
	Logger         *slog.Logger
}

// Service is the ledger engine: store, lock guard and calculator behind a
// single RWMutex. Guard checks, persistence and in-memory writes happen under
// the write lock; reads copy a snapshot under the read lock.
type Service struct {
	mu       sync.RWMutex
	store    *Store
	locks    *LockGuard
	repo     Repository
	notifier Notifier
	strict   bool
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
}

// NewService constructs an empty ledger service.
func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    NewStore(nil, nil),
		locks:    NewLockGuard(),
		repo:     opts.Repository,
		notifier: opts.Notifier,
		strict:   opts.StrictAccounts,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithIDs overrides id generation for testing.
func (s *Service) WithIDs(next func() string) {
	if next != nil {
		s.newID = next
	}
}

// Load replaces the in-memory state with the repository contents.
func (s *Service) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load: %w", err)
	}
	s.mu.Lock()
	s.store = NewStore(snap.Transactions, snap.Accounts)
	s.locks = NewLockGuard(snap.Locks...)
	s.mu.Unlock()
	s.logger.Info("ledger loaded",
		slog.Int("transactions", len(snap.Transactions)),
		slog.Int("accounts", len(snap.Accounts)),
		slog.Int("locks", len(snap.Locks)))
	return nil
}

// Snapshot returns a consistent copy of the state.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Transactions: s.store.Transactions(),
		Accounts:     s.store.Accounts(),
		Locks:        s.locks.Keys(),
	}
}

// AddTransaction validates, guards and records a new transaction.
func (s *Service) AddTransaction(ctx context.Context, draft Transaction) (Transaction, error) {
	t, err := s.prepareDraft(draft)
	if err != nil {
		return Transaction{}, err
	}

	s.mu.Lock()
	if err := s.locks.Guard(t); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	if err := s.checkAccountRef(t); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	t.ID = s.newID()
	if s.repo != nil {
		ids, err := s.repo.InsertTransactions(ctx, []Transaction{t})
		if err != nil {
			s.mu.Unlock()
			return Transaction{}, fmt.Errorf("ledger: persist transaction: %w", err)
		}
		if len(ids) == 1 && ids[0] != "" {
			t.ID = ids[0]
		}
	}
	s.store.appendTransaction(t)
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeTransactionAdded, ID: t.ID, Months: []Month{t.Month()}})
	return t, nil
}

// UpdateTransaction merges patch into the stored transaction. Both the stored
// record's lock key and the patched one must be open.
func (s *Service) UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) (Transaction, error) {
	if patch.Date != nil {
		normalized, err := NormalizeDate(*patch.Date)
		if err != nil {
			return Transaction{}, err
		}
		patch.Date = &normalized
	}

	s.mu.Lock()
	existing, ok := s.store.Transaction(id)
	if !ok {
		s.mu.Unlock()
		return Transaction{}, &NotFoundError{Entity: "transaction", ID: id}
	}
	if err := s.locks.Guard(existing); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	updated := patch.Apply(existing)
	updated.ID = existing.ID
	if err := validateTransaction(updated); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	if err := s.locks.Guard(updated); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	if err := s.checkAccountRef(updated); err != nil {
		s.mu.Unlock()
		return Transaction{}, err
	}
	if s.repo != nil {
		if err := s.repo.UpdateTransaction(ctx, updated); err != nil {
			s.mu.Unlock()
			return Transaction{}, fmt.Errorf("ledger: persist transaction: %w", err)
		}
	}
	s.store.replaceTransaction(updated)
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeTransactionUpdated, ID: id, Months: uniqueMonths(existing.Month(), updated.Month())})
	return updated, nil
}

// RemoveTransaction deletes a transaction whose lock key is open.
func (s *Service) RemoveTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	existing, ok := s.store.Transaction(id)
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Entity: "transaction", ID: id}
	}
	if err := s.locks.Guard(existing); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.repo != nil {
		if err := s.repo.DeleteTransaction(ctx, id); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("ledger: delete transaction: %w", err)
		}
	}
	s.store.deleteTransaction(id)
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeTransactionRemoved, ID: id, Months: []Month{existing.Month()}})
	return nil
}

// ImportTransactions converts rows into transactions of typ. Invalid and
// locked rows are skipped and counted; only a persistence failure is an error,
// in which case nothing is imported.
func (s *Service) ImportTransactions(ctx context.Context, rows []Row, typ TxType) (ImportResult, error) {
	today := s.now().Format(dateLayout)
	outcomes := ParseTransactionRows(rows, typ, today)

	s.mu.Lock()
	var (
		result ImportResult
		accept []Transaction
	)
	for _, o := range outcomes {
		if !o.OK() {
			result.SkippedInvalid++
			result.Rejections = append(result.Rejections, RowRejection{Row: o.Row, Reason: o.Err.Error()})
			continue
		}
		t := o.Record
		if err := s.locks.Guard(t); err != nil {
			result.SkippedLocked++
			result.Rejections = append(result.Rejections, RowRejection{Row: o.Row, Reason: err.Error()})
			continue
		}
		if err := s.checkAccountRef(t); err != nil {
			result.SkippedInvalid++
			result.Rejections = append(result.Rejections, RowRejection{Row: o.Row, Reason: err.Error()})
			continue
		}
		t.ID = s.newID()
		accept = append(accept, t)
	}
	if len(accept) > 0 && s.repo != nil {
		ids, err := s.repo.InsertTransactions(ctx, accept)
		if err != nil {
			s.mu.Unlock()
			if errors.Is(err, ErrOrphanedDocuments) {
				s.logger.Error("import rollback incomplete", slog.Any("error", err))
			}
			return ImportResult{}, fmt.Errorf("ledger: persist import: %w", err)
		}
		for i := range accept {
			if i < len(ids) && ids[i] != "" {
				accept[i].ID = ids[i]
			}
		}
	}
	months := make([]Month, 0, len(accept))
	for _, t := range accept {
		s.store.appendTransaction(t)
		months = append(months, t.Month())
	}
	result.Imported = len(accept)
	s.mu.Unlock()

	if result.Imported > 0 {
		s.notify(ctx, Change{Kind: ChangeTransactionsImport, Count: result.Imported, Months: uniqueMonths(months...)})
	}
	s.logger.Info("transactions imported",
		slog.String("type", string(typ)),
		slog.Int("imported", result.Imported),
		slog.Int("skipped_invalid", result.SkippedInvalid),
		slog.Int("skipped_locked", result.SkippedLocked))
	return result, nil
}

// AddAccount records a new chart-of-accounts entry.
func (s *Service) AddAccount(ctx context.Context, a Account) (Account, error) {
	if a.Status == "" {
		a.Status = AccountActive
	}
	if err := validateAccount(a); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	if err := s.checkCodeUnique(a); err != nil {
		s.mu.Unlock()
		return Account{}, err
	}
	a.ID = s.newID()
	if s.repo != nil {
		ids, err := s.repo.InsertAccounts(ctx, []Account{a})
		if err != nil {
			s.mu.Unlock()
			return Account{}, fmt.Errorf("ledger: persist account: %w", err)
		}
		if len(ids) == 1 && ids[0] != "" {
			a.ID = ids[0]
		}
	}
	s.store.appendAccount(a)
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeAccountAdded, ID: a.ID})
	return a, nil
}

// UpdateAccount replaces the account stored under id.
func (s *Service) UpdateAccount(ctx context.Context, id string, a Account) (Account, error) {
	a.ID = id
	if a.Status == "" {
		a.Status = AccountActive
	}
	if err := validateAccount(a); err != nil {
		return Account{}, err
	}

	s.mu.Lock()
	if _, ok := s.store.Account(id); !ok {
		s.mu.Unlock()
		return Account{}, &NotFoundError{Entity: "account", ID: id}
	}
	if err := s.checkCodeUnique(a); err != nil {
		s.mu.Unlock()
		return Account{}, err
	}
	if s.repo != nil {
		if err := s.repo.UpdateAccount(ctx, a); err != nil {
			s.mu.Unlock()
			return Account{}, fmt.Errorf("ledger: persist account: %w", err)
		}
	}
	s.store.replaceAccount(a)
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeAccountUpdated, ID: id})
	return a, nil
}

// RemoveAccount deletes an account. In strict mode accounts still referenced
// by transactions cannot be removed.
func (s *Service) RemoveAccount(ctx context.Context, id string) error {
	s.mu.Lock()
	existing, ok := s.store.Account(id)
	if !ok {
		s.mu.Unlock()
		return &NotFoundError{Entity: "account", ID: id}
	}
	if s.strict {
		if n := s.store.ReferencedBy(existing.Code); n > 0 {
			s.mu.Unlock()
			return &ValidationError{Field: "code", Reason: fmt.Sprintf("account %s is referenced by %d transactions", existing.Code, n)}
		}
	}
	if s.repo != nil {
		if err := s.repo.DeleteAccount(ctx, id); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("ledger: delete account: %w", err)
		}
	}
	s.store.deleteAccount(id)
	s.mu.Unlock()

	s.notify(ctx, Change{Kind: ChangeAccountRemoved, ID: id})
	return nil
}

// ImportAccounts bulk-adds accounts; rows missing a code or name are skipped.
func (s *Service) ImportAccounts(ctx context.Context, rows []Row) (ImportResult, error) {
	outcomes := ParseAccountRows(rows)

	s.mu.Lock()
	var (
		result ImportResult
		accept []Account
	)
	for _, o := range outcomes {
		if !o.OK() {
			result.SkippedInvalid++
			result.Rejections = append(result.Rejections, RowRejection{Row: o.Row, Reason: o.Err.Error()})
			continue
		}
		a := o.Record
		a.ID = s.newID()
		accept = append(accept, a)
	}
	if len(accept) > 0 && s.repo != nil {
		ids, err := s.repo.InsertAccounts(ctx, accept)
		if err != nil {
			s.mu.Unlock()
			if errors.Is(err, ErrOrphanedDocuments) {
				s.logger.Error("import rollback incomplete", slog.Any("error", err))
			}
			return ImportResult{}, fmt.Errorf("ledger: persist import: %w", err)
		}
		for i := range accept {
			if i < len(ids) && ids[i] != "" {
				accept[i].ID = ids[i]
			}
		}
	}
	for _, a := range accept {
		s.store.appendAccount(a)
	}
	result.Imported = len(accept)
	s.mu.Unlock()

	if result.Imported > 0 {
		s.notify(ctx, Change{Kind: ChangeAccountsImport, Count: result.Imported})
	}
	return result, nil
}

// Lock closes the (month, account, branch) triple. Locking twice is a no-op.
func (s *Service) Lock(ctx context.Context, key LockKey) error {
	if err := validateLockKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	if s.locks.IsLocked(key.Month, key.AccountCode, key.Branch) {
		s.mu.Unlock()
		return nil
	}
	if s.repo != nil {
		if err := s.repo.SaveLock(ctx, key); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("ledger: persist lock: %w", err)
		}
	}
	s.locks.Lock(key)
	s.mu.Unlock()

	s.logger.Info("period locked", slog.String("key", key.String()))
	s.notify(ctx, Change{Kind: ChangeLocked, Months: []Month{key.Month}})
	return nil
}

// Unlock reopens the triple. Unlocking an open triple is a no-op.
func (s *Service) Unlock(ctx context.Context, key LockKey) error {
	if err := validateLockKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.locks.IsLocked(key.Month, key.AccountCode, key.Branch) {
		s.mu.Unlock()
		return nil
	}
	if s.repo != nil {
		if err := s.repo.DeleteLock(ctx, key); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("ledger: delete lock: %w", err)
		}
	}
	s.locks.Unlock(key)
	s.mu.Unlock()

	s.logger.Info("period unlocked", slog.String("key", key.String()))
	s.notify(ctx, Change{Kind: ChangeUnlocked, Months: []Month{key.Month}})
	return nil
}

// IsLocked reports whether the triple is closed.
func (s *Service) IsLocked(month Month, accountCode string, branch Branch) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locks.IsLocked(month, accountCode, branch)
}

// Locks lists the closed triples in sorted order.
func (s *Service) Locks() []LockKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locks.Keys()
}

// Transaction returns one transaction by id.
func (s *Service) Transaction(id string) (Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.store.Transaction(id)
	if !ok {
		return Transaction{}, &NotFoundError{Entity: "transaction", ID: id}
	}
	return t, nil
}

// TransactionQuery filters ListTransactions. Empty fields match everything.
type TransactionQuery struct {
	Type   TxType
	Branch Branch
	Market Market
	Month  Month
	Search string
}

// ListTransactions returns matching transactions, newest first.
func (s *Service) ListTransactions(q TransactionQuery) []Transaction {
	snap := s.Snapshot()
	tokens := textx.Tokens(q.Search)
	sorted := SortByDate(snap.Transactions)
	out := make([]Transaction, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		t := sorted[i]
		if q.Type != "" && t.Type != q.Type {
			continue
		}
		if q.Branch != "" && t.Branch != q.Branch {
			continue
		}
		if q.Market != "" && t.Market != q.Market {
			continue
		}
		if q.Month != "" && t.Month() != q.Month {
			continue
		}
		if !textx.MatchAll(tokens, t.Description, t.Source, t.AccountCode, string(t.Branch)) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// ListAccounts returns accounts matching the accent-insensitive query.
func (s *Service) ListAccounts(query string) []Account {
	snap := s.Snapshot()
	tokens := textx.Tokens(query)
	out := make([]Account, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		if textx.MatchAll(tokens, a.Code, a.Name, a.Category, string(a.Branch)) {
			out = append(out, a)
		}
	}
	return out
}

// DailyLedger computes the running-balance ledger over a snapshot.
func (s *Service) DailyLedger(filter LedgerFilter) []LedgerRow {
	return DailyLedger(s.Snapshot().Transactions, filter)
}

// MonthlySummary computes the carried-forward stats of month over a snapshot.
func (s *Service) MonthlySummary(month Month) MonthStats {
	return MonthlySummary(s.Snapshot().Transactions, month)
}

// Breakdown computes the per account and branch rows of month over a snapshot.
func (s *Service) Breakdown(month Month) []BreakdownRow {
	snap := s.Snapshot()
	return AccountBranchBreakdown(snap.Transactions, month, snap.LockChecker())
}

func (s *Service) prepareDraft(draft Transaction) (Transaction, error) {
	t := draft
	t.ID = ""
	if t.Date == "" {
		t.Date = s.now().Format(dateLayout)
	} else {
		normalized, err := NormalizeDate(t.Date)
		if err != nil {
			return Transaction{}, err
		}
		t.Date = normalized
	}
	if t.Method == "" {
		t.Method = defaultMethod
	}
	if err := validateTransaction(t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// checkAccountRef enforces referential integrity in strict mode. Caller holds mu.
func (s *Service) checkAccountRef(t Transaction) error {
	if !s.strict {
		return nil
	}
	a, ok := s.store.AccountByCode(t.AccountCode)
	if !ok {
		return &ValidationError{Field: "account_code", Reason: fmt.Sprintf("unknown account %s", t.AccountCode)}
	}
	if a.Status != AccountActive {
		return &ValidationError{Field: "account_code", Reason: fmt.Sprintf("account %s is inactive", t.AccountCode)}
	}
	if a.Type != t.Type {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("account %s is %s", a.Code, a.Type)}
	}
	return nil
}

// checkCodeUnique rejects duplicate active codes in strict mode. Caller holds mu.
func (s *Service) checkCodeUnique(a Account) error {
	if !s.strict || a.Status != AccountActive {
		return nil
	}
	for _, other := range s.store.Accounts() {
		if other.ID != a.ID && other.Code == a.Code && other.Status == AccountActive {
			return &ValidationError{Field: "code", Reason: fmt.Sprintf("code %s already in use", a.Code)}
		}
	}
	return nil
}

func (s *Service) notify(ctx context.Context, change Change) {
	if s.notifier == nil {
		return
	}
	change.At = s.now()
	s.notifier.LedgerChanged(ctx, change)
}

func validateLockKey(key LockKey) error {
	if _, err := ParseMonth(string(key.Month)); err != nil {
		return err
	}
	if key.AccountCode == "" {
		return &ValidationError{Field: "account_code", Reason: "required"}
	}
	if key.Branch == "" {
		return &ValidationError{Field: "branch", Reason: "required"}
	}
	return nil
}

func uniqueMonths(months ...Month) []Month {
	seen := make(map[Month]struct{}, len(months))
	out := make([]Month, 0, len(months))
	for _, m := range months {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// IsUserError reports whether err is one of the recoverable domain errors.
func IsUserError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrLocked)
}
