package datasheet

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbook/internal/platform/textx"
)

// PageSize is the number of orders per page.
const PageSize = 50

// Filter narrows the order list. From and To are inclusive YYYY-MM-DD days.
type Filter struct {
	From    string
	To      string
	Market  string
	Product string
	Team    string
	Search  string
	Page    int
}

// Page is one slice of a filtered order list.
type Page struct {
	Items []Order `json:"items"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Pages int     `json:"pages"`
}

// Totals are exchange-rate adjusted sums over a set of orders.
type Totals struct {
	Orders        int             `json:"orders"`
	GoodsVND      decimal.Decimal `json:"goods_vnd"`
	TotalVND      decimal.Decimal `json:"total_vnd"`
	ReconciledVND decimal.Decimal `json:"reconciled_vnd"`
}

type stamped struct {
	order Order
	at    time.Time
}

// Select applies the filter and returns matches newest first.
func Select(orders []Order, f Filter) []Order {
	var from, to time.Time
	if f.From != "" {
		from, _ = time.Parse("2006-01-02", f.From)
	}
	if f.To != "" {
		if t, err := time.Parse("2006-01-02", f.To); err == nil {
			to = t.AddDate(0, 0, 1)
		}
	}
	tokens := textx.Tokens(f.Search)

	matched := make([]stamped, 0, len(orders))
	for _, o := range orders {
		at := ParseOrderDate(o.OrderDate)
		if !from.IsZero() && at.Before(from) {
			continue
		}
		if !to.IsZero() && !at.Before(to) {
			continue
		}
		if f.Market != "" && o.Market != f.Market {
			continue
		}
		if f.Product != "" && o.Product != f.Product {
			continue
		}
		if f.Team != "" && o.Team != f.Team {
			continue
		}
		if !textx.MatchAll(tokens, o.OrderCode, o.City, o.State, o.Product) {
			continue
		}
		matched = append(matched, stamped{order: o, at: at})
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].at.After(matched[j].at) })

	out := make([]Order, len(matched))
	for i, m := range matched {
		out[i] = m.order
	}
	return out
}

// Paginate cuts one page out of orders. Page numbers start at 1 and are clamped.
func Paginate(orders []Order, page int) Page {
	pages := (len(orders) + PageSize - 1) / PageSize
	if page < 1 {
		page = 1
	}
	if pages > 0 && page > pages {
		page = pages
	}
	start := (page - 1) * PageSize
	end := start + PageSize
	if start > len(orders) {
		start = len(orders)
	}
	if end > len(orders) {
		end = len(orders)
	}
	items := make([]Order, end-start)
	copy(items, orders[start:end])
	return Page{Items: items, Total: len(orders), Page: page, Pages: pages}
}

// ComputeTotals converts goods value to VND with the order market's rate.
// Tổng_tiền_VNĐ and reconciled amounts are already in VND.
func ComputeTotals(orders []Order, rates Rates) Totals {
	t := Totals{Orders: len(orders)}
	for _, o := range orders {
		t.GoodsVND = t.GoodsVND.Add(o.GoodsValue.Mul(rates.RateFor(o.Market)))
		t.TotalVND = t.TotalVND.Add(o.TotalVND.Decimal)
		t.ReconciledVND = t.ReconciledVND.Add(o.ReconciledVND.Decimal)
	}
	return t
}

// Options lists distinct markets, products and teams for filter pickers.
type Options struct {
	Markets  []string `json:"markets"`
	Products []string `json:"products"`
	Teams    []string `json:"teams"`
}

// CollectOptions gathers sorted distinct non-empty values.
func CollectOptions(orders []Order) Options {
	collect := func(get func(Order) string) []string {
		seen := map[string]struct{}{}
		out := []string{}
		for _, o := range orders {
			v := get(o)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
		sort.Strings(out)
		return out
	}
	return Options{
		Markets:  collect(func(o Order) string { return o.Market }),
		Products: collect(func(o Order) string { return o.Product }),
		Teams:    collect(func(o Order) string { return o.Team }),
	}
}
