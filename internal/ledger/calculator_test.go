package ledger

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func txn(id, date string, typ TxType, amount int64) Transaction {
	return Transaction{ID: id, Date: date, Type: typ, Branch: BranchHanoi, Market: MarketUS, AccountCode: "1.1US", Amount: d(amount)}
}

func balances(rows []LedgerRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.RunningBalance.String()
	}
	return out
}

func TestDailyLedgerRunningBalance(t *testing.T) {
	txns := []Transaction{
		txn("a", "2025-12-01", TypeRevenue, 100),
		txn("b", "2025-12-02", TypeExpense, 40),
		txn("c", "2025-12-03", TypeRevenue, 10),
	}
	rows := DailyLedger(txns, LedgerFilter{})
	assert.Equal(t, []string{"100", "60", "70"}, balances(rows))
}

func TestDailyLedgerSortsStablyByDate(t *testing.T) {
	txns := []Transaction{
		txn("late", "2025-12-05", TypeRevenue, 5),
		txn("first", "2025-12-01", TypeRevenue, 1),
		txn("second", "2025-12-01", TypeExpense, 2),
		txn("broken", "not-a-date", TypeRevenue, 7),
	}
	rows := DailyLedger(txns, LedgerFilter{})
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"broken", "first", "second", "late"}, ids)
	assert.Equal(t, []string{"7", "8", "6", "11"}, balances(rows))
}

func TestDailyLedgerFilterDoesNotAlterBalances(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	branches := Branches()
	codes := []string{"1.1US", "2.1US", "6"}
	var txns []Transaction
	for i := 0; i < 200; i++ {
		typ := TypeRevenue
		if rng.Intn(2) == 0 {
			typ = TypeExpense
		}
		txns = append(txns, Transaction{
			ID:          string(rune('A'+i%26)) + decimal.NewFromInt(int64(i)).String(),
			Date:        "2025-" + []string{"10", "11", "12"}[rng.Intn(3)] + "-1" + decimal.NewFromInt(int64(rng.Intn(10))).String(),
			Type:        typ,
			Branch:      branches[rng.Intn(len(branches))],
			AccountCode: codes[rng.Intn(len(codes))],
			Amount:      d(int64(rng.Intn(1000) + 1)),
		})
	}

	full := DailyLedger(txns, LedgerFilter{})
	byID := make(map[string]decimal.Decimal, len(full))
	want := decimal.Zero
	for i, r := range full {
		byID[r.ID] = r.RunningBalance
		prev := decimal.Zero
		if i > 0 {
			prev = full[i-1].RunningBalance
		}
		require.True(t, prev.Add(r.Signed()).Equal(r.RunningBalance), "row %d", i)
		want = want.Add(r.Signed())
	}
	require.True(t, want.Equal(full[len(full)-1].RunningBalance))

	filters := []LedgerFilter{
		{Branch: BranchHCM},
		{AccountCode: "6"},
		{From: "2025-11-01", To: "2025-11-30"},
		{Branch: BranchHanoi, AccountCode: "1.1US", From: "2025-12-01"},
	}
	for _, f := range filters {
		rows := DailyLedger(txns, f)
		for _, r := range rows {
			assert.True(t, f.match(r.Transaction))
			assert.True(t, byID[r.ID].Equal(r.RunningBalance), "filter %+v row %s", f, r.ID)
		}
	}
}

func TestMonthlySummaryCarriesClosingForward(t *testing.T) {
	txns := []Transaction{
		txn("n1", "2025-11-15", TypeRevenue, 600_000_000),
		txn("n2", "2025-11-20", TypeExpense, 270_000_000),
		txn("d1", "2025-12-01", TypeRevenue, 50_000_000),
	}

	nov := MonthlySummary(txns, "2025-11")
	assert.True(t, nov.Opening.IsZero())
	assert.Equal(t, "600000000", nov.Revenue.String())
	assert.Equal(t, "270000000", nov.Expense.String())
	assert.Equal(t, "330000000", nov.Closing.String())

	dec := MonthlySummary(txns, "2025-12")
	assert.Equal(t, "330000000", dec.Opening.String())
	assert.Equal(t, "380000000", dec.Closing.String())
}

func TestMonthlySummaryFoldConsistency(t *testing.T) {
	txns := DemoTransactions()
	series := MonthlySeries(txns, "2026-02")
	require.NotEmpty(t, series)
	assert.True(t, series[0].Opening.IsZero())
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i].Opening.Equal(series[i-1].Closing), series[i].Month)
		got := MonthlySummary(txns, series[i].Month)
		prev := MonthlySummary(txns, series[i].Month.Prev())
		if series[i].Month.Prev() == series[i-1].Month {
			assert.True(t, got.Opening.Equal(prev.Closing))
		}
	}
}

func TestMonthlySummaryEmptyMonthIsZeroed(t *testing.T) {
	txns := []Transaction{txn("a", "2025-11-01", TypeRevenue, 10)}

	future := MonthlySummary(txns, "2026-03")
	assert.Equal(t, Month("2026-03"), future.Month)
	assert.Equal(t, "10", future.Opening.String())
	assert.True(t, future.Revenue.IsZero())
	assert.Equal(t, "10", future.Closing.String())

	empty := MonthlySummary(nil, "2025-01")
	assert.True(t, empty.Opening.IsZero())
	assert.True(t, empty.Closing.IsZero())
}

func TestMonthlySummaryDeterministic(t *testing.T) {
	txns := DemoTransactions()
	assert.Equal(t, MonthlySummary(txns, "2025-12"), MonthlySummary(txns, "2025-12"))
	assert.Equal(t, DailyLedger(txns, LedgerFilter{}), DailyLedger(txns, LedgerFilter{}))
}

func TestBreakdownOpeningClosingIdentity(t *testing.T) {
	txns := DemoTransactions()
	guard := NewLockGuard(LockKey{Month: "2025-12", AccountCode: "1.1US", Branch: BranchHanoi})

	rows := AccountBranchBreakdown(txns, "2025-12", guard)
	require.NotEmpty(t, rows)
	for _, r := range rows {
		assert.True(t, r.Opening.Add(r.Revenue).Sub(r.Expense).Equal(r.Closing), "%s/%s", r.AccountCode, r.Branch)
	}
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		assert.True(t, prev.AccountCode < cur.AccountCode || (prev.AccountCode == cur.AccountCode && prev.Branch < cur.Branch))
	}

	byKey := map[string]BreakdownRow{}
	for _, r := range rows {
		byKey[r.AccountCode+"|"+string(r.Branch)] = r
	}
	us := byKey["1.1US|"+string(BranchHanoi)]
	assert.True(t, us.Locked)
	assert.Equal(t, "450000000", us.Opening.String())
	assert.Equal(t, "320000000", us.Revenue.String())
	assert.Equal(t, "770000000", us.Closing.String())

	ads := byKey["6|"+string(BranchOther)]
	assert.False(t, ads.Locked)
	assert.Equal(t, "-120000000", ads.Opening.String())
}

func TestBreakdownCurrentMonthOnlyExpense(t *testing.T) {
	txns := []Transaction{
		{ID: "x", Date: "2025-12-02", Type: TypeExpense, Branch: BranchOther, AccountCode: "6", Amount: d(68_000_000)},
	}
	rows := AccountBranchBreakdown(txns, "2025-12", nil)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Opening.IsZero())
	assert.Equal(t, "68000000", rows[0].Expense.String())
	assert.Equal(t, "-68000000", rows[0].Closing.String())
}

func TestBreakdownDropsIdleAndFuturePairs(t *testing.T) {
	txns := []Transaction{
		{ID: "a", Date: "2025-10-01", Type: TypeRevenue, Branch: BranchHCM, AccountCode: "1.2US", Amount: d(5)},
		{ID: "b", Date: "2025-10-02", Type: TypeExpense, Branch: BranchHCM, AccountCode: "1.2US", Amount: d(5)},
		{ID: "c", Date: "2026-01-01", Type: TypeRevenue, Branch: BranchHCM, AccountCode: "9.9", Amount: d(5)},
	}
	assert.Empty(t, AccountBranchBreakdown(txns, "2025-12", nil))
}
