package datasheet

import (
	"strings"
	"time"
)

var orderDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	// Slash dates are month first, matching system exports.
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2-1-2006",
}

// ParseOrderDate reads the loosely formatted order date. Unparseable input
// yields the zero time, which sorts last and falls outside any date range.
func ParseOrderDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
