package reports

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

const cashFlowWindow = 3

var (
	hundred      = decimal.NewFromInt(100)
	cogsShare    = decimal.RequireFromString("0.6")
	opexShare    = decimal.RequireFromString("0.4")
	unitPrice    = decimal.NewFromInt(250000)
	highMargin   = decimal.NewFromInt(20)
	goodMargin   = decimal.NewFromInt(10)
	marginPlaces = int32(4)
)

func figures(revenue, expense decimal.Decimal) Figures {
	f := Figures{Revenue: revenue, Expense: expense, Profit: revenue.Sub(expense), Margin: decimal.Zero}
	if revenue.IsPositive() {
		f.Margin = f.Profit.Div(revenue).Mul(hundred).Round(marginPlaces)
	}
	return f
}

func sums(txns []ledger.Transaction, keep func(ledger.Transaction) bool) (rev, exp decimal.Decimal) {
	for _, t := range txns {
		if !keep(t) {
			continue
		}
		if t.Type == ledger.TypeRevenue {
			rev = rev.Add(t.Amount)
		} else {
			exp = exp.Add(t.Amount)
		}
	}
	return rev, exp
}

// BuildBranchReport aggregates q.Month per branch, optionally restricted to
// q.Market. Branches without activity are omitted. The total margin is
// computed from the summed figures.
func BuildBranchReport(txns []ledger.Transaction, q Query) BranchReport {
	report := BranchReport{Month: q.Month, Rows: []BranchRow{}}
	var totalRev, totalExp decimal.Decimal
	for _, b := range ledger.Branches() {
		rev, exp := sums(txns, func(t ledger.Transaction) bool {
			return t.Month() == q.Month && t.Branch == b && (q.Market == "" || t.Market == q.Market)
		})
		if rev.IsZero() && exp.IsZero() {
			continue
		}
		report.Rows = append(report.Rows, BranchRow{Branch: b, Figures: figures(rev, exp)})
		totalRev = totalRev.Add(rev)
		totalExp = totalExp.Add(exp)
	}
	report.Total = figures(totalRev, totalExp)
	return report
}

// MarginNote classifies a margin percent. Lower bounds are inclusive except
// for the top bucket, which needs strictly more than 20.
func MarginNote(margin decimal.Decimal) string {
	switch {
	case margin.GreaterThan(highMargin):
		return NoteHighEfficiency
	case margin.GreaterThanOrEqual(goodMargin):
		return NoteGood
	case margin.GreaterThanOrEqual(decimal.Zero):
		return NoteNormal
	default:
		return NoteNeedsReview
	}
}

// BuildMarketReport aggregates q.Month per market, optionally restricted to
// q.Branch. Transactions without a market are excluded.
func BuildMarketReport(txns []ledger.Transaction, q Query) MarketReport {
	report := MarketReport{Month: q.Month, Rows: []MarketRow{}}
	var totalRev, totalExp decimal.Decimal
	for _, m := range ledger.Markets() {
		if m == ledger.MarketNone {
			continue
		}
		rev, exp := sums(txns, func(t ledger.Transaction) bool {
			return t.Month() == q.Month && t.Market == m && (q.Branch == "" || t.Branch == q.Branch)
		})
		if rev.IsZero() && exp.IsZero() {
			continue
		}
		f := figures(rev, exp)
		report.Rows = append(report.Rows, MarketRow{Market: m, Figures: f, Note: MarginNote(f.Margin)})
		totalRev = totalRev.Add(rev)
		totalExp = totalExp.Add(exp)
	}
	report.Total = figures(totalRev, totalExp)
	return report
}

// BuildCashFlowReport folds the three months ending at q.Month. The first
// month opens with the filtered history before the window.
func BuildCashFlowReport(txns []ledger.Transaction, q Query) CashFlowReport {
	keep := func(t ledger.Transaction) bool {
		return (q.Branch == "" || t.Branch == q.Branch) && (q.Market == "" || t.Market == q.Market)
	}
	first := q.Month.AddMonths(-(cashFlowWindow - 1))

	opening := decimal.Zero
	for _, t := range txns {
		if keep(t) && t.Month() < first {
			opening = opening.Add(t.Signed())
		}
	}

	report := CashFlowReport{Month: q.Month, Rows: make([]CashFlowRow, 0, cashFlowWindow)}
	for i := 0; i < cashFlowWindow; i++ {
		m := first.AddMonths(i)
		rev, exp := sums(txns, func(t ledger.Transaction) bool { return keep(t) && t.Month() == m })
		row := CashFlowRow{Month: m, Opening: opening, Revenue: rev, Expense: exp, Status: StatusOpen}
		row.Closing = opening.Add(rev).Sub(exp)
		if m < q.Month {
			row.Status = StatusClosed
		}
		report.Rows = append(report.Rows, row)
		opening = row.Closing
	}
	return report
}

type productKey struct {
	code   string
	market ledger.Market
	branch ledger.Branch
}

// BuildProductReport groups q.Month by account code, market and branch.
// Expenses are split 60/40 into COGS and OPEX; quantity is estimated from
// revenue at 250,000 per unit. Rows without revenue are dropped.
func BuildProductReport(txns []ledger.Transaction, q Query) ProductReport {
	groups := make(map[productKey]*ProductRow)
	for _, t := range txns {
		if t.Month() != q.Month {
			continue
		}
		if (q.Branch != "" && t.Branch != q.Branch) || (q.Market != "" && t.Market != q.Market) {
			continue
		}
		if q.AccountCode != "" && t.AccountCode != q.AccountCode {
			continue
		}
		k := productKey{code: t.AccountCode, market: t.Market, branch: t.Branch}
		row, ok := groups[k]
		if !ok {
			row = &ProductRow{Product: t.AccountCode, Market: t.Market, Branch: t.Branch}
			groups[k] = row
		}
		if t.Type == ledger.TypeRevenue {
			row.Revenue = row.Revenue.Add(t.Amount)
		} else {
			row.COGS = row.COGS.Add(t.Amount.Mul(cogsShare))
			row.OPEX = row.OPEX.Add(t.Amount.Mul(opexShare))
		}
	}

	total := decimal.Zero
	for _, row := range groups {
		total = total.Add(row.Revenue)
	}

	report := ProductReport{Month: q.Month, Rows: []ProductRow{}, Products: Products(txns)}
	for _, row := range groups {
		if !row.Revenue.IsPositive() {
			continue
		}
		row.Profit = row.Revenue.Sub(row.COGS).Sub(row.OPEX)
		row.RevenueWeight = row.Revenue.Div(total).Mul(hundred).Round(marginPlaces)
		row.Quantity = row.Revenue.Div(unitPrice).Floor().IntPart()
		report.Rows = append(report.Rows, *row)
	}
	sort.Slice(report.Rows, func(i, j int) bool {
		a, b := report.Rows[i], report.Rows[j]
		if a.Product != b.Product {
			return a.Product < b.Product
		}
		if a.Market != b.Market {
			return a.Market < b.Market
		}
		return a.Branch < b.Branch
	})
	return report
}

// Products lists the distinct account codes used by transactions, sorted.
func Products(txns []ledger.Transaction) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, t := range txns {
		if t.AccountCode == "" {
			continue
		}
		if _, ok := seen[t.AccountCode]; ok {
			continue
		}
		seen[t.AccountCode] = struct{}{}
		out = append(out, t.AccountCode)
	}
	sort.Strings(out)
	return out
}
