package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TxType distinguishes revenue from expense movements.
type TxType string

const (
	TypeRevenue TxType = "THU"
	TypeExpense TxType = "CHI"
)

// Valid reports whether the type is one of the known values.
func (t TxType) Valid() bool {
	return t == TypeRevenue || t == TypeExpense
}

// Branch enumerates the organisational units a record belongs to.
type Branch string

const (
	BranchHanoi   Branch = "Hà Nội"
	BranchHCM     Branch = "HCM"
	BranchCompany Branch = "Toàn Công Ty"
	BranchOther   Branch = "Khác"
)

// Branches lists branches in report order.
func Branches() []Branch {
	return []Branch{BranchHanoi, BranchHCM, BranchCompany, BranchOther}
}

// Market enumerates sales geographies.
type Market string

const (
	MarketUS        Market = "US"
	MarketCanada    Market = "CAN"
	MarketAustralia Market = "ÚC"
	MarketKorea     Market = "KR"
	MarketJapan     Market = "JP"
	MarketNone      Market = "-"
)

// Markets lists markets in report order, including MarketNone.
func Markets() []Market {
	return []Market{MarketUS, MarketCanada, MarketAustralia, MarketKorea, MarketJapan, MarketNone}
}

// AccountStatus marks whether an account is still in use.
type AccountStatus string

const (
	AccountActive   AccountStatus = "Active"
	AccountInactive AccountStatus = "Inactive"
)

// Account is a chart-of-accounts entry.
type Account struct {
	ID       string        `json:"id"`
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Category string        `json:"category"`
	Type     TxType        `json:"type"`
	Branch   Branch        `json:"branch"`
	Market   Market        `json:"market"`
	Status   AccountStatus `json:"status"`
	Note     string        `json:"note,omitempty"`
}

// Transaction is a single recorded cash movement. Date is stored as YYYY-MM-DD.
type Transaction struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Type        TxType          `json:"type"`
	Source      string          `json:"source"`
	Branch      Branch          `json:"branch"`
	Market      Market          `json:"market"`
	AccountCode string          `json:"account_code"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	ProofURL    string          `json:"proof_url,omitempty"`
}

// Signed returns the amount with the sign implied by the transaction type.
func (t Transaction) Signed() decimal.Decimal {
	if t.Type == TypeExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Month returns the YYYY-MM bucket of the transaction date.
func (t Transaction) Month() Month {
	return MonthOf(t.Date)
}

// LockKey returns the period lock key the transaction falls under.
func (t Transaction) LockKey() LockKey {
	return LockKey{Month: t.Month(), AccountCode: t.AccountCode, Branch: t.Branch}
}

// TransactionPatch carries a partial update; nil fields are left untouched.
type TransactionPatch struct {
	Date        *string
	Type        *TxType
	Source      *string
	Branch      *Branch
	Market      *Market
	AccountCode *string
	Description *string
	Amount      *decimal.Decimal
	Method      *string
	ProofURL    *string
}

// Apply returns a copy of t with the patch fields merged in.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Source != nil {
		t.Source = *p.Source
	}
	if p.Branch != nil {
		t.Branch = *p.Branch
	}
	if p.Market != nil {
		t.Market = *p.Market
	}
	if p.AccountCode != nil {
		t.AccountCode = *p.AccountCode
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Method != nil {
		t.Method = *p.Method
	}
	if p.ProofURL != nil {
		t.ProofURL = *p.ProofURL
	}
	return t
}

// Month is a calendar month key in YYYY-MM form. Lexical order equals chronological order.
type Month string

const monthLayout = "2006-01"

// MonthOf extracts the month key from a YYYY-MM-DD date.
func MonthOf(date string) Month {
	if len(date) < 7 {
		return Month(date)
	}
	return Month(date[:7])
}

// ParseMonth validates a YYYY-MM string.
func ParseMonth(raw string) (Month, error) {
	raw = strings.TrimSpace(raw)
	if _, err := time.Parse(monthLayout, raw); err != nil {
		return "", &ValidationError{Field: "month", Reason: fmt.Sprintf("%q is not a YYYY-MM month", raw)}
	}
	return Month(raw), nil
}

// MonthFromTime returns the month containing t.
func MonthFromTime(t time.Time) Month {
	return Month(t.Format(monthLayout))
}

// Start returns the first day of the month, or the zero time if the key is malformed.
func (m Month) Start() time.Time {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddMonths shifts the month by n (negative for the past).
func (m Month) AddMonths(n int) Month {
	start := m.Start()
	if start.IsZero() {
		return m
	}
	return MonthFromTime(start.AddDate(0, n, 0))
}

// Prev returns the chronological predecessor.
func (m Month) Prev() Month { return m.AddMonths(-1) }

// Next returns the chronological successor.
func (m Month) Next() Month { return m.AddMonths(1) }

// LockKey identifies one closed book-keeping unit.
type LockKey struct {
	Month       Month  `json:"month"`
	AccountCode string `json:"account_code"`
	Branch      Branch `json:"branch"`
}

func (k LockKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Month, k.AccountCode, k.Branch)
}

var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("ledger: validation failed")
	// ErrNotFound is matched by every *NotFoundError.
	ErrNotFound = errors.New("ledger: not found")
	// ErrLocked is matched by every *LockedError.
	ErrLocked = errors.New("ledger: period locked")
)

// ValidationError reports malformed input to a mutator.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "ledger: " + e.Reason
	}
	return fmt.Sprintf("ledger: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports a reference to a missing entity.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("ledger: %s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// LockedError reports a mutation blocked by a period lock.
type LockedError struct {
	Key LockKey
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("ledger: account %s at branch %s is locked for %s", e.Key.AccountCode, e.Key.Branch, e.Key.Month)
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }
