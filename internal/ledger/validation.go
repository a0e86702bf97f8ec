package ledger

import (
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	// amountPlaces matches the scale of the persisted amount column.
	amountPlaces = 2
)

// NormalizeDate converts an input date to the canonical YYYY-MM-DD form. Only
// unambiguous layouts are accepted; day/month orderings like 03/04/2025 are rejected.
func NormalizeDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &ValidationError{Field: "date", Reason: "required"}
	}
	for _, layout := range []string{dateLayout, time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05", "2006/01/02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout), nil
		}
	}
	return "", &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD, got " + raw}
}

// parseDate returns the zero time for anything that is not a canonical date.
func parseDate(date string) time.Time {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}
	}
	return t
}

func validateTransaction(t Transaction) error {
	if !t.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if !t.Amount.Equal(t.Amount.Round(amountPlaces)) {
		return &ValidationError{Field: "amount", Reason: "at most 2 decimal places"}
	}
	if strings.TrimSpace(t.AccountCode) == "" {
		return &ValidationError{Field: "account_code", Reason: "required"}
	}
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be THU or CHI"}
	}
	if _, err := time.Parse(dateLayout, t.Date); err != nil {
		return &ValidationError{Field: "date", Reason: "expected YYYY-MM-DD, got " + t.Date}
	}
	return nil
}

func validateAccount(a Account) error {
	if strings.TrimSpace(a.Code) == "" {
		return &ValidationError{Field: "code", Reason: "required"}
	}
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if !a.Type.Valid() {
		return &ValidationError{Field: "type", Reason: "must be THU or CHI"}
	}
	if a.Status != AccountActive && a.Status != AccountInactive {
		return &ValidationError{Field: "status", Reason: "must be Active or Inactive"}
	}
	return nil
}
