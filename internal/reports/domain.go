package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

// Margin note buckets for the market report.
const (
	NoteHighEfficiency = "Hiệu quả cao"
	NoteGood           = "Tốt"
	NoteNormal         = "Bình thường"
	NoteNeedsReview    = "Cần tối ưu hoặc bỏ"
)

// Cash-flow month status labels.
const (
	StatusClosed = "Đã khóa"
	StatusOpen   = "Đang mở"
)

// TotalLabel names the totals row.
const TotalLabel = "Tổng"

// Query selects the month and optional dimensions of a report. Empty
// dimensions mean all.
type Query struct {
	Month       ledger.Month  `json:"month"`
	Branch      ledger.Branch `json:"branch,omitempty"`
	Market      ledger.Market `json:"market,omitempty"`
	AccountCode string        `json:"account_code,omitempty"`
}

// Figures holds revenue, expense, profit and margin percent.
type Figures struct {
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
	Profit  decimal.Decimal `json:"profit"`
	Margin  decimal.Decimal `json:"margin"`
}

// BranchRow is one line of the branch report.
type BranchRow struct {
	Branch ledger.Branch `json:"branch"`
	Figures
}

// BranchReport summarises a month per branch.
type BranchReport struct {
	Month ledger.Month `json:"month"`
	Rows  []BranchRow  `json:"rows"`
	Total Figures      `json:"total"`
}

// MarketRow is one line of the market report.
type MarketRow struct {
	Market ledger.Market `json:"market"`
	Figures
	Note string `json:"note"`
}

// MarketReport summarises a month per market.
type MarketReport struct {
	Month ledger.Month `json:"month"`
	Rows  []MarketRow  `json:"rows"`
	Total Figures      `json:"total"`
}

// CashFlowRow is one month of the rolling cash-flow window.
type CashFlowRow struct {
	Month   ledger.Month    `json:"month"`
	Opening decimal.Decimal `json:"opening"`
	Revenue decimal.Decimal `json:"revenue"`
	Expense decimal.Decimal `json:"expense"`
	Closing decimal.Decimal `json:"closing"`
	Status  string          `json:"status"`
}

// CashFlowReport covers the selected month and the two before it.
type CashFlowReport struct {
	Month ledger.Month  `json:"month"`
	Rows  []CashFlowRow `json:"rows"`
}

// ProductRow is a business-result line keyed by account code, market and branch.
type ProductRow struct {
	Product       string          `json:"product"`
	Market        ledger.Market   `json:"market"`
	Branch        ledger.Branch   `json:"branch"`
	Quantity      int64           `json:"quantity"`
	Revenue       decimal.Decimal `json:"revenue"`
	RevenueWeight decimal.Decimal `json:"revenue_weight"`
	COGS          decimal.Decimal `json:"cogs"`
	OPEX          decimal.Decimal `json:"opex"`
	Profit        decimal.Decimal `json:"profit"`
}

// ProductReport lists business results for a month.
type ProductReport struct {
	Month    ledger.Month `json:"month"`
	Rows     []ProductRow `json:"rows"`
	Products []string     `json:"products"`
}
