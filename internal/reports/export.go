package reports

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// FormatVND renders an amount as Vietnamese đồng, rounded to whole units.
func FormatVND(amount decimal.Decimal) string {
	cur := money.GetCurrency(money.VND)
	return cur.Formatter().Format(amount.Round(0).IntPart())
}

func formatPercent(v decimal.Decimal) string {
	return v.StringFixed(2) + "%"
}

func writeAll(w io.Writer, header []string, records [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func figureCells(f Figures) []string {
	return []string{FormatVND(f.Revenue), FormatVND(f.Expense), FormatVND(f.Profit), formatPercent(f.Margin)}
}

// WriteBranchCSV serialises the branch report including its totals row.
func WriteBranchCSV(w io.Writer, r BranchReport) error {
	records := make([][]string, 0, len(r.Rows)+1)
	for _, row := range r.Rows {
		records = append(records, append([]string{string(row.Branch)}, figureCells(row.Figures)...))
	}
	records = append(records, append([]string{TotalLabel}, figureCells(r.Total)...))
	return writeAll(w, []string{"Chi nhánh", "Doanh thu", "Chi phí", "Lợi nhuận", "Biên LN"}, records)
}

// WriteMarketCSV serialises the market report including its totals row.
func WriteMarketCSV(w io.Writer, r MarketReport) error {
	records := make([][]string, 0, len(r.Rows)+1)
	for _, row := range r.Rows {
		cells := append([]string{string(row.Market)}, figureCells(row.Figures)...)
		records = append(records, append(cells, row.Note))
	}
	records = append(records, append(append([]string{TotalLabel}, figureCells(r.Total)...), ""))
	return writeAll(w, []string{"Thị trường", "Doanh thu", "Chi phí", "Lợi nhuận", "Biên LN", "Ghi chú"}, records)
}

// WriteCashFlowCSV serialises the cash-flow window.
func WriteCashFlowCSV(w io.Writer, r CashFlowReport) error {
	records := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		records = append(records, []string{
			string(row.Month),
			FormatVND(row.Opening),
			FormatVND(row.Revenue),
			FormatVND(row.Expense),
			FormatVND(row.Closing),
			row.Status,
		})
	}
	return writeAll(w, []string{"Tháng", "Tồn đầu", "Thu", "Chi", "Tồn cuối", "Trạng thái"}, records)
}

// WriteProductCSV serialises business results.
func WriteProductCSV(w io.Writer, r ProductReport) error {
	records := make([][]string, 0, len(r.Rows))
	for _, row := range r.Rows {
		records = append(records, []string{
			row.Product,
			string(row.Market),
			string(row.Branch),
			strconv.FormatInt(row.Quantity, 10),
			FormatVND(row.Revenue),
			formatPercent(row.RevenueWeight),
			FormatVND(row.COGS),
			FormatVND(row.OPEX),
			FormatVND(row.Profit),
		})
	}
	return writeAll(w, []string{"Sản phẩm", "Thị trường", "Chi nhánh", "Số lượng", "Doanh thu", "Tỷ trọng DT", "Giá vốn", "Chi phí vận hành", "Lợi nhuận"}, records)
}
