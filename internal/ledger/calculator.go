package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// LedgerFilter narrows the rows returned by DailyLedger. Empty fields match everything.
// From and To are inclusive YYYY-MM-DD bounds.
type LedgerFilter struct {
	Branch      Branch
	AccountCode string
	From        string
	To          string
}

func (f LedgerFilter) match(t Transaction) bool {
	if f.Branch != "" && t.Branch != f.Branch {
		return false
	}
	if f.AccountCode != "" && t.AccountCode != f.AccountCode {
		return false
	}
	if f.From != "" && t.Date < f.From {
		return false
	}
	if f.To != "" && t.Date > f.To {
		return false
	}
	return true
}

// LedgerRow is a transaction annotated with the balance after it.
type LedgerRow struct {
	Transaction
	RunningBalance decimal.Decimal `json:"running_balance"`
}

// MonthStats aggregates one calendar month.
type MonthStats struct {
	Month   Month           `json:"month"`
	Opening decimal.Decimal `json:"opening"`
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
	Closing decimal.Decimal `json:"closing"`
}

// BreakdownRow aggregates one (account, branch) pair within a month.
type BreakdownRow struct {
	AccountCode string          `json:"account_code"`
	Branch      Branch          `json:"branch"`
	Opening     decimal.Decimal `json:"opening"`
	Revenue     decimal.Decimal `json:"revenue"`
	Expense     decimal.Decimal `json:"expense"`
	Closing     decimal.Decimal `json:"closing"`
	Locked      bool            `json:"locked"`
}

// SortByDate returns the transactions ordered by date. Ties keep input order and
// unparseable dates sort as the zero time.
func SortByDate(txns []Transaction) []Transaction {
	sorted := make([]Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return parseDate(sorted[i].Date).Before(parseDate(sorted[j].Date))
	})
	return sorted
}

// DailyLedger computes running balances over the full history and only then
// applies the filter, so retained rows keep their global balance.
func DailyLedger(txns []Transaction, filter LedgerFilter) []LedgerRow {
	sorted := SortByDate(txns)
	rows := make([]LedgerRow, 0, len(sorted))
	balance := decimal.Zero
	for _, t := range sorted {
		balance = balance.Add(t.Signed())
		rows = append(rows, LedgerRow{Transaction: t, RunningBalance: balance})
	}

	out := rows[:0:0]
	for _, r := range rows {
		if filter.match(r.Transaction) {
			out = append(out, r)
		}
	}
	return out
}

// MonthlySeries folds every month present in txns, plus through, in
// chronological order. Each opening is the previous closing.
func MonthlySeries(txns []Transaction, through Month) []MonthStats {
	revenue := make(map[Month]decimal.Decimal)
	expense := make(map[Month]decimal.Decimal)
	months := map[Month]struct{}{through: {}}
	for _, t := range txns {
		m := t.Month()
		months[m] = struct{}{}
		switch t.Type {
		case TypeRevenue:
			revenue[m] = revenue[m].Add(t.Amount)
		case TypeExpense:
			expense[m] = expense[m].Add(t.Amount)
		}
	}

	keys := make([]Month, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	series := make([]MonthStats, 0, len(keys))
	opening := decimal.Zero
	for _, m := range keys {
		stats := MonthStats{
			Month:   m,
			Opening: opening,
			Revenue: revenue[m],
			Expense: expense[m],
		}
		stats.Closing = opening.Add(stats.Revenue).Sub(stats.Expense)
		series = append(series, stats)
		opening = stats.Closing
	}
	return series
}

// MonthlySummary returns the stats of target with the opening carried from all earlier months.
func MonthlySummary(txns []Transaction, target Month) MonthStats {
	for _, s := range MonthlySeries(txns, target) {
		if s.Month == target {
			return s
		}
	}
	return MonthStats{Month: target}
}

type pairKey struct {
	code   string
	branch Branch
}

// AccountBranchBreakdown reports per (account, branch) opening, movements and
// closing for target. Opening is the signed total of every earlier
// transaction for the pair. Rows with no activity are dropped; the rest are
// ordered by account code then branch.
func AccountBranchBreakdown(txns []Transaction, target Month, locks LockChecker) []BreakdownRow {
	acc := make(map[pairKey]*BreakdownRow)
	get := func(t Transaction) *BreakdownRow {
		k := pairKey{code: t.AccountCode, branch: t.Branch}
		row, ok := acc[k]
		if !ok {
			row = &BreakdownRow{AccountCode: t.AccountCode, Branch: t.Branch}
			acc[k] = row
		}
		return row
	}

	for _, t := range txns {
		m := t.Month()
		switch {
		case m < target:
			row := get(t)
			row.Opening = row.Opening.Add(t.Signed())
		case m == target:
			row := get(t)
			if t.Type == TypeRevenue {
				row.Revenue = row.Revenue.Add(t.Amount)
			} else {
				row.Expense = row.Expense.Add(t.Amount)
			}
		}
	}

	out := make([]BreakdownRow, 0, len(acc))
	for _, row := range acc {
		if row.Opening.IsZero() && row.Revenue.IsZero() && row.Expense.IsZero() {
			continue
		}
		row.Closing = row.Opening.Add(row.Revenue).Sub(row.Expense)
		if locks != nil {
			row.Locked = locks.IsLocked(target, row.AccountCode, row.Branch)
		}
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AccountCode != out[j].AccountCode {
			return out[i].AccountCode < out[j].AccountCode
		}
		return out[i].Branch < out[j].Branch
	})
	return out
}
