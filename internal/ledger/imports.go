package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Row is one loosely-typed spreadsheet record keyed by column header.
type Row map[string]string

func (r Row) get(keys ...string) string {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// Spreadsheet column headers.
const (
	ColDate          = "Ngay"
	ColRevenueSource = "Nguon_Thu"
	ColExpenseSource = "Nguon_Chi"
	ColBranch        = "Chi_Nhanh"
	ColMarket        = "Thi_Truong"
	ColAccountCode   = "Ma_TK"
	ColDescription   = "Noi_Dung"
	ColAmount        = "So_Tien"
	ColMethod        = "Hinh_Thuc"

	ColCategory    = "Loai_Danh_Muc"
	ColAccountName = "Ten_Khoan_Muc"
	ColAccountType = "Loai_Thu_Chi"
	ColNote        = "Ghi_Chu"
)

const defaultMethod = "CK"

// RowRejection explains why an import row was skipped. Row is 1-based.
type RowRejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportResult reports the outcome of a bulk import.
type ImportResult struct {
	Imported       int            `json:"imported"`
	SkippedInvalid int            `json:"skipped_invalid"`
	SkippedLocked  int            `json:"skipped_locked"`
	Rejections     []RowRejection `json:"rejections,omitempty"`
}

// Skipped is the total number of dropped rows.
func (r ImportResult) Skipped() int { return r.SkippedInvalid + r.SkippedLocked }

// RowOutcome is the tagged result of converting one row. Exactly one of
// Err or the record is meaningful.
type RowOutcome[T any] struct {
	Row    int
	Record T
	Err    error
}

// OK reports whether the row converted cleanly.
func (o RowOutcome[T]) OK() bool { return o.Err == nil }

// ParseTransactionRow converts a row into a transaction draft of the given
// type. An empty date becomes today.
func ParseTransactionRow(row Row, typ TxType, today string) (Transaction, error) {
	if !typ.Valid() {
		return Transaction{}, &ValidationError{Field: "type", Reason: "must be THU or CHI"}
	}
	date := today
	if raw := row.get(ColDate); raw != "" {
		normalized, err := NormalizeDate(raw)
		if err != nil {
			return Transaction{}, err
		}
		date = normalized
	}

	amount := decimal.Zero
	if raw := row.get(ColAmount); raw != "" {
		parsed, err := decimal.NewFromString(strings.ReplaceAll(raw, " ", ""))
		if err != nil {
			return Transaction{}, &ValidationError{Field: "amount", Reason: "not a number: " + raw}
		}
		amount = parsed
	}

	source := row.get(ColRevenueSource)
	if typ == TypeExpense {
		source = row.get(ColExpenseSource)
	}
	t := Transaction{
		Date:        date,
		Type:        typ,
		Source:      source,
		Branch:      Branch(orDefault(row.get(ColBranch), string(BranchHanoi))),
		Market:      Market(orDefault(row.get(ColMarket), string(MarketUS))),
		AccountCode: row.get(ColAccountCode),
		Description: row.get(ColDescription),
		Amount:      amount,
		Method:      orDefault(row.get(ColMethod), defaultMethod),
	}
	if err := validateTransaction(t); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// ParseTransactionRows converts every row, tagging each with its outcome.
func ParseTransactionRows(rows []Row, typ TxType, today string) []RowOutcome[Transaction] {
	out := make([]RowOutcome[Transaction], 0, len(rows))
	for i, row := range rows {
		t, err := ParseTransactionRow(row, typ, today)
		out = append(out, RowOutcome[Transaction]{Row: i + 1, Record: t, Err: err})
	}
	return out
}

// ParseAccountRow converts a row into an active account. Code and name are required.
func ParseAccountRow(row Row) (Account, error) {
	typ := TypeExpense
	if strings.EqualFold(row.get(ColAccountType), string(TypeRevenue)) {
		typ = TypeRevenue
	}
	a := Account{
		Code:     row.get(ColAccountCode),
		Name:     row.get(ColAccountName),
		Category: row.get(ColCategory),
		Type:     typ,
		Branch:   Branch(orDefault(row.get(ColBranch), string(BranchHanoi))),
		Market:   Market(orDefault(row.get(ColMarket), string(MarketUS))),
		Status:   AccountActive,
		Note:     row.get(ColNote),
	}
	if err := validateAccount(a); err != nil {
		return Account{}, err
	}
	return a, nil
}

// ParseAccountRows converts every row, tagging each with its outcome.
func ParseAccountRows(rows []Row) []RowOutcome[Account] {
	out := make([]RowOutcome[Account], 0, len(rows))
	for i, row := range rows {
		a, err := ParseAccountRow(row)
		out = append(out, RowOutcome[Account]{Row: i + 1, Record: a, Err: err})
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
