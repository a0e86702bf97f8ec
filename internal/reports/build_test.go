package reports

import (
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildBranchReportDemo(t *testing.T) {
	r := BuildBranchReport(ledger.DemoTransactions(), Query{Month: "2025-12"})

	require.Len(t, r.Rows, 3)
	assert.Equal(t, ledger.BranchHanoi, r.Rows[0].Branch)
	assert.Equal(t, "405000000", r.Rows[0].Revenue.String())
	assert.Equal(t, "270000000", r.Rows[0].Expense.String())
	assert.Equal(t, "135000000", r.Rows[0].Profit.String())
	assert.Equal(t, ledger.BranchHCM, r.Rows[1].Branch)
	assert.Equal(t, ledger.BranchOther, r.Rows[2].Branch)

	assert.Equal(t, "568000000", r.Total.Revenue.String())
	assert.Equal(t, "403000000", r.Total.Expense.String())
	want := dec("165000000").Div(dec("568000000")).Mul(hundred).Round(4)
	assert.True(t, want.Equal(r.Total.Margin), "total margin is profit/revenue, got %s", r.Total.Margin)
}

func TestBuildBranchReportMarketFilter(t *testing.T) {
	r := BuildBranchReport(ledger.DemoTransactions(), Query{Month: "2025-12", Market: ledger.MarketCanada})
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "85000000", r.Rows[0].Revenue.String())
	assert.Equal(t, "80000000", r.Rows[0].Expense.String())
}

func TestMarginNoteBuckets(t *testing.T) {
	cases := map[string]string{
		"20.0001": NoteHighEfficiency,
		"20":      NoteGood,
		"10":      NoteGood,
		"9.99":    NoteNormal,
		"0":       NoteNormal,
		"-0.01":   NoteNeedsReview,
	}
	for in, want := range cases {
		assert.Equal(t, want, MarginNote(dec(in)), in)
	}
}

func TestBuildMarketReportExcludesNone(t *testing.T) {
	r := BuildMarketReport(ledger.DemoTransactions(), Query{Month: "2025-12"})
	markets := make([]ledger.Market, 0, len(r.Rows))
	for _, row := range r.Rows {
		markets = append(markets, row.Market)
		assert.NotEmpty(t, row.Note)
	}
	assert.Equal(t, []ledger.Market{ledger.MarketUS, ledger.MarketCanada, ledger.MarketAustralia}, markets)

	us := r.Rows[0]
	assert.Equal(t, "418000000", us.Revenue.String())
	assert.Equal(t, "100000000", us.Expense.String())
	assert.Equal(t, NoteHighEfficiency, us.Note)

	hcm := BuildMarketReport(ledger.DemoTransactions(), Query{Month: "2025-12", Branch: ledger.BranchHCM})
	require.Len(t, hcm.Rows, 2)
}

func TestBuildCashFlowReportWindow(t *testing.T) {
	r := BuildCashFlowReport(ledger.DemoTransactions(), Query{Month: "2026-01"})
	require.Len(t, r.Rows, 3)
	assert.Equal(t, []ledger.Month{"2025-11", "2025-12", "2026-01"}, []ledger.Month{r.Rows[0].Month, r.Rows[1].Month, r.Rows[2].Month})

	assert.True(t, r.Rows[0].Opening.IsZero())
	assert.Equal(t, "180000000", r.Rows[0].Closing.String())
	for i := 1; i < len(r.Rows); i++ {
		assert.True(t, r.Rows[i].Opening.Equal(r.Rows[i-1].Closing))
	}
	assert.Equal(t, StatusClosed, r.Rows[0].Status)
	assert.Equal(t, StatusClosed, r.Rows[1].Status)
	assert.Equal(t, StatusOpen, r.Rows[2].Status)
}

func TestBuildCashFlowReportCarriesHistoryBeforeWindow(t *testing.T) {
	r := BuildCashFlowReport(ledger.DemoTransactions(), Query{Month: "2026-02"})
	require.Len(t, r.Rows, 3)
	assert.Equal(t, ledger.Month("2025-12"), r.Rows[0].Month)
	assert.Equal(t, "180000000", r.Rows[0].Opening.String())

	hn := BuildCashFlowReport(ledger.DemoTransactions(), Query{Month: "2026-01", Branch: ledger.BranchOther})
	assert.Equal(t, "-120000000", hn.Rows[0].Closing.String())
	assert.Equal(t, "-188000000", hn.Rows[2].Closing.String())
}

func TestBuildProductReport(t *testing.T) {
	txns := append(ledger.DemoTransactions(), ledger.Transaction{
		Date: "2025-12-10", Type: ledger.TypeExpense, Branch: ledger.BranchHanoi, Market: ledger.MarketUS,
		AccountCode: "1.1US", Amount: dec("10000000"),
	})
	r := BuildProductReport(txns, Query{Month: "2025-12"})

	require.Len(t, r.Rows, 4)
	first := r.Rows[0]
	assert.Equal(t, "1.1CA", first.Product)
	assert.True(t, sort.SliceIsSorted(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.Branch < b.Branch
	}), "rows ordered by product, market, branch")

	var us ProductRow
	for _, row := range r.Rows {
		if row.Product == "1.1US" {
			us = row
		}
		assert.True(t, row.Revenue.IsPositive())
	}
	assert.Equal(t, "320000000", us.Revenue.String())
	assert.True(t, dec("6000000").Equal(us.COGS))
	assert.True(t, dec("4000000").Equal(us.OPEX))
	assert.True(t, dec("310000000").Equal(us.Profit))
	assert.Equal(t, int64(1280), us.Quantity)

	weight := decimal.Zero
	for _, row := range r.Rows {
		weight = weight.Add(row.RevenueWeight)
	}
	assert.True(t, weight.Sub(hundred).Abs().LessThan(dec("0.001")), "weights sum to 100, got %s", weight)
	assert.Contains(t, r.Products, "6")
}

func TestBuildProductReportFilters(t *testing.T) {
	r := BuildProductReport(ledger.DemoTransactions(), Query{Month: "2025-12", AccountCode: "1.2UC"})
	require.Len(t, r.Rows, 1)
	assert.Equal(t, int64(260), r.Rows[0].Quantity)
	assert.True(t, r.Rows[0].RevenueWeight.Equal(hundred))

	none := BuildProductReport(ledger.DemoTransactions(), Query{Month: "2025-12", Branch: ledger.BranchOther})
	assert.Empty(t, none.Rows)
}
