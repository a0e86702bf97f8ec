package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts Options) *Service {
	t.Helper()
	svc := NewService(opts)
	svc.WithNow(func() time.Time { return time.Date(2025, 12, 31, 9, 0, 0, 0, time.UTC) })
	var (
		mu  sync.Mutex
		seq int
	)
	svc.WithIDs(func() string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("id-%03d", seq)
	})
	return svc
}

func draft(date string, typ TxType, code string, branch Branch, amount int64) Transaction {
	return Transaction{Date: date, Type: typ, AccountCode: code, Branch: branch, Market: MarketUS, Amount: d(amount)}
}

type recordingNotifier struct {
	mu      sync.Mutex
	changes []Change
}

func (n *recordingNotifier) LedgerChanged(_ context.Context, c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
}

func (n *recordingNotifier) kinds() []ChangeKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ChangeKind, len(n.changes))
	for i, c := range n.changes {
		out[i] = c.Kind
	}
	return out
}

func TestAddTransactionValidation(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	_, err := svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "1.1US", BranchHanoi, 0))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "", BranchHanoi, 10))
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.AddTransaction(ctx, draft("01/12/2025", TypeRevenue, "1.1US", BranchHanoi, 10))
	assert.ErrorIs(t, err, ErrValidation)
	tooPrecise := draft("2025-12-01", TypeRevenue, "1.1US", BranchHanoi, 0)
	tooPrecise.Amount = decimal.RequireFromString("10.005")
	_, err = svc.AddTransaction(ctx, tooPrecise)
	var invalid *ValidationError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "amount", invalid.Field)
	assert.Empty(t, svc.Snapshot().Transactions)

	tx, err := svc.AddTransaction(ctx, draft("2025-12-01T10:00:00Z", TypeRevenue, "1.1US", BranchHanoi, 10))
	require.NoError(t, err)
	assert.Equal(t, "id-001", tx.ID)
	assert.Equal(t, "2025-12-01", tx.Date)
	assert.Equal(t, "CK", tx.Method)

	cents := draft("2025-12-01", TypeRevenue, "1.1US", BranchHanoi, 0)
	cents.Amount = decimal.RequireFromString("10.500")
	_, err = svc.AddTransaction(ctx, cents)
	require.NoError(t, err)

	noDate, err := svc.AddTransaction(ctx, draft("", TypeExpense, "6", BranchOther, 5))
	require.NoError(t, err)
	assert.Equal(t, "2025-12-31", noDate.Date)
	assert.Len(t, svc.Snapshot().Transactions, 3)
}

func TestLockGatingScenario(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	key := LockKey{Month: "2025-12", AccountCode: "1.1US", Branch: BranchHanoi}

	existing, err := svc.AddTransaction(ctx, draft("2025-12-05", TypeRevenue, "1.1US", BranchHanoi, 100))
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, key))
	require.NoError(t, svc.Lock(ctx, key))
	assert.True(t, svc.IsLocked(key.Month, key.AccountCode, key.Branch))

	before := svc.Snapshot()

	_, err = svc.AddTransaction(ctx, draft("2025-12-15", TypeRevenue, "1.1US", BranchHanoi, 50))
	var locked *LockedError
	require.True(t, errors.As(err, &locked))
	assert.Equal(t, key, locked.Key)

	newBranch := BranchHCM
	_, err = svc.UpdateTransaction(ctx, existing.ID, TransactionPatch{Branch: &newBranch})
	assert.ErrorIs(t, err, ErrLocked)

	err = svc.RemoveTransaction(ctx, existing.ID)
	assert.ErrorIs(t, err, ErrLocked)

	assert.Equal(t, before, svc.Snapshot())

	nov, err := svc.AddTransaction(ctx, draft("2025-11-15", TypeRevenue, "1.1US", BranchHanoi, 50))
	require.NoError(t, err)

	novDate := "2025-12-20"
	_, err = svc.UpdateTransaction(ctx, nov.ID, TransactionPatch{Date: &novDate})
	assert.ErrorIs(t, err, ErrLocked, "moving into a locked triple is rejected")

	require.NoError(t, svc.Unlock(ctx, key))
	require.NoError(t, svc.Unlock(ctx, key))

	_, err = svc.AddTransaction(ctx, draft("2025-12-15", TypeRevenue, "1.1US", BranchHanoi, 50))
	require.NoError(t, err)
	updated, err := svc.UpdateTransaction(ctx, existing.ID, TransactionPatch{Branch: &newBranch})
	require.NoError(t, err)
	assert.Equal(t, BranchHCM, updated.Branch)
	require.NoError(t, svc.RemoveTransaction(ctx, existing.ID))
}

func TestUpdateTransactionPartialMerge(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	tx, err := svc.AddTransaction(ctx, Transaction{
		Date: "2025-12-01", Type: TypeRevenue, AccountCode: "1.1US", Branch: BranchHanoi,
		Market: MarketUS, Amount: d(10), Description: "Bill", Method: "CK", Source: "src",
	})
	require.NoError(t, err)

	amount := decimal.NewFromInt(25)
	desc := "Bill sửa"
	got, err := svc.UpdateTransaction(ctx, tx.ID, TransactionPatch{Amount: &amount, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, tx.ID, got.ID)
	assert.Equal(t, "25", got.Amount.String())
	assert.Equal(t, "Bill sửa", got.Description)
	assert.Equal(t, "src", got.Source)
	assert.Equal(t, MarketUS, got.Market)

	zero := decimal.Zero
	_, err = svc.UpdateTransaction(ctx, tx.ID, TransactionPatch{Amount: &zero})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.UpdateTransaction(ctx, "missing", TransactionPatch{})
	var nf *NotFoundError
	assert.True(t, errors.As(err, &nf))
	assert.ErrorIs(t, svc.RemoveTransaction(ctx, "missing"), ErrNotFound)
}

func TestImportTransactionsScenario(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	rows := make([]Row, 0, 10)
	for i := 0; i < 7; i++ {
		rows = append(rows, Row{ColDate: "2025-12-0" + fmt.Sprint(i+1), ColAccountCode: "1.1US", ColAmount: "1000"})
	}
	rows = append(rows,
		Row{ColAccountCode: "1.1US", ColAmount: "0"},
		Row{ColAccountCode: "1.1US", ColAmount: "0"},
		Row{ColAccountCode: "", ColAmount: "500"},
	)

	res, err := svc.ImportTransactions(ctx, rows, TypeRevenue)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Imported)
	assert.Equal(t, 3, res.Skipped())
	assert.Equal(t, 3, res.SkippedInvalid)
	assert.Zero(t, res.SkippedLocked)
	require.Len(t, res.Rejections, 3)
	assert.Equal(t, 8, res.Rejections[0].Row)
	assert.Len(t, svc.Snapshot().Transactions, 7)
}

func TestImportTransactionsCountsLockedSeparately(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	require.NoError(t, svc.Lock(ctx, LockKey{Month: "2025-12", AccountCode: "2.1US", Branch: BranchHanoi}))

	res, err := svc.ImportTransactions(ctx, []Row{
		{ColDate: "2025-12-02", ColAccountCode: "2.1US", ColAmount: "10", ColBranch: "Hà Nội"},
		{ColDate: "2025-11-02", ColAccountCode: "2.1US", ColAmount: "10", ColBranch: "Hà Nội"},
		{ColDate: "2025-12-02", ColAccountCode: "2.1US", ColAmount: "-1"},
	}, TypeExpense)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.SkippedLocked)
	assert.Equal(t, 1, res.SkippedInvalid)
}

func TestImportAccounts(t *testing.T) {
	svc := newTestService(t, Options{})
	res, err := svc.ImportAccounts(context.Background(), []Row{
		{ColAccountCode: "1.1US", ColAccountName: "Thu", ColAccountType: "THU"},
		{ColAccountCode: "", ColAccountName: "Thu"},
		{ColAccountCode: "9", ColAccountName: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 2, res.SkippedInvalid)
	accounts := svc.ListAccounts("")
	require.Len(t, accounts, 1)
	assert.Equal(t, TypeRevenue, accounts[0].Type)
}

func TestAccountCRUD(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	a, err := svc.AddAccount(ctx, Account{Code: "6", Name: "Chi Ads", Type: TypeExpense, Branch: BranchOther, Market: MarketNone})
	require.NoError(t, err)
	assert.Equal(t, AccountActive, a.Status)

	a.Name = "Chi quảng cáo"
	updated, err := svc.UpdateAccount(ctx, a.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "Chi quảng cáo", updated.Name)

	_, err = svc.UpdateAccount(ctx, "missing", a)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.AddAccount(ctx, Account{Code: "7", Type: TypeExpense})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddTransaction(ctx, draft("2025-12-01", TypeExpense, "6", BranchOther, 10))
	require.NoError(t, err)
	require.NoError(t, svc.RemoveAccount(ctx, a.ID), "loose mode allows removing referenced accounts")
	assert.ErrorIs(t, svc.RemoveAccount(ctx, a.ID), ErrNotFound)
}

func TestStrictAccountsMode(t *testing.T) {
	svc := newTestService(t, Options{StrictAccounts: true})
	ctx := context.Background()

	_, err := svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "1.1US", BranchHanoi, 10))
	assert.ErrorIs(t, err, ErrValidation, "unknown account")

	acc, err := svc.AddAccount(ctx, Account{Code: "1.1US", Name: "Thu", Type: TypeRevenue, Branch: BranchHanoi, Market: MarketUS})
	require.NoError(t, err)
	_, err = svc.AddAccount(ctx, Account{Code: "1.1US", Name: "Dup", Type: TypeRevenue})
	assert.ErrorIs(t, err, ErrValidation, "duplicate active code")

	_, err = svc.AddTransaction(ctx, draft("2025-12-01", TypeExpense, "1.1US", BranchHanoi, 10))
	assert.ErrorIs(t, err, ErrValidation, "type mismatch")

	_, err = svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "1.1US", BranchHanoi, 10))
	require.NoError(t, err)

	err = svc.RemoveAccount(ctx, acc.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLockValidation(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	assert.ErrorIs(t, svc.Lock(ctx, LockKey{Month: "12-2025", AccountCode: "1", Branch: BranchHCM}), ErrValidation)
	assert.ErrorIs(t, svc.Lock(ctx, LockKey{Month: "2025-12", Branch: BranchHCM}), ErrValidation)
	assert.ErrorIs(t, svc.Unlock(ctx, LockKey{Month: "2025-12", AccountCode: "1"}), ErrValidation)
}

type failingRepo struct {
	Repository
	err error
}

func (r failingRepo) InsertTransactions(context.Context, []Transaction) ([]string, error) {
	return nil, r.err
}

func (r failingRepo) SaveLock(context.Context, LockKey) error { return r.err }

func TestPersistenceFailureLeavesStoreUnchanged(t *testing.T) {
	boom := errors.New("boom")
	notifier := &recordingNotifier{}
	svc := newTestService(t, Options{Repository: failingRepo{err: boom}, Notifier: notifier})
	ctx := context.Background()

	_, err := svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "1", BranchHCM, 10))
	assert.ErrorIs(t, err, boom)
	_, err = svc.ImportTransactions(ctx, []Row{{ColAccountCode: "1", ColAmount: "5"}}, TypeRevenue)
	assert.ErrorIs(t, err, boom)
	err = svc.Lock(ctx, LockKey{Month: "2025-12", AccountCode: "1", Branch: BranchHCM})
	assert.ErrorIs(t, err, boom)

	snap := svc.Snapshot()
	assert.Empty(t, snap.Transactions)
	assert.Empty(t, snap.Locks)
	assert.Empty(t, notifier.kinds())
}

func TestNotifierReceivesChanges(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := newTestService(t, Options{Notifier: notifier})
	ctx := context.Background()

	tx, err := svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "1", BranchHCM, 10))
	require.NoError(t, err)
	require.NoError(t, svc.Lock(ctx, LockKey{Month: "2025-11", AccountCode: "1", Branch: BranchHCM}))
	require.NoError(t, svc.RemoveTransaction(ctx, tx.ID))

	assert.Equal(t, []ChangeKind{ChangeTransactionAdded, ChangeLocked, ChangeTransactionRemoved}, notifier.kinds())
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []Month{"2025-12"}, notifier.changes[0].Months)
	assert.False(t, notifier.changes[0].At.IsZero())
}

func TestListTransactionsSearch(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	for _, tx := range DemoTransactions() {
		_, err := svc.AddTransaction(ctx, tx)
		require.NoError(t, err)
	}

	got := svc.ListTransactions(TransactionQuery{Search: "luong hn"})
	require.Len(t, got, 1)
	assert.Equal(t, "Lương HN T12", got[0].Description)

	dec := svc.ListTransactions(TransactionQuery{Month: "2025-12", Type: TypeRevenue})
	require.Len(t, dec, 5)
	assert.Equal(t, "2025-12-15", dec[0].Date, "newest first")

	hcm := svc.ListTransactions(TransactionQuery{Branch: BranchHCM})
	assert.Len(t, hcm, 3)
}

func TestSeedDemoOnlyWhenEmpty(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()

	seeded, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.True(t, seeded)
	snap := svc.Snapshot()
	assert.Len(t, snap.Accounts, 12)
	assert.Len(t, snap.Transactions, 13)

	seeded, err = svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.False(t, seeded)

	dec := svc.MonthlySummary("2025-12")
	assert.Equal(t, "180000000", dec.Opening.String())
}

func TestConcurrentMutationsAndReads(t *testing.T) {
	svc := newTestService(t, Options{})
	ctx := context.Background()
	key := LockKey{Month: "2025-12", AccountCode: "L", Branch: BranchHCM}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = svc.AddTransaction(ctx, draft("2025-12-01", TypeRevenue, "1", BranchHCM, 1))
		}()
		go func() {
			defer wg.Done()
			_ = svc.DailyLedger(LedgerFilter{})
			_ = svc.Breakdown("2025-12")
		}()
		go func() {
			defer wg.Done()
			_ = svc.Lock(ctx, key)
		}()
	}
	wg.Wait()

	snap := svc.Snapshot()
	assert.Len(t, snap.Transactions, 50)
	rows := svc.DailyLedger(LedgerFilter{})
	assert.Equal(t, "50", rows[len(rows)-1].RunningBalance.String())

	_, err := svc.AddTransaction(ctx, draft("2025-12-02", TypeRevenue, "L", BranchHCM, 1))
	assert.ErrorIs(t, err, ErrLocked)
}
