package datasheet

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rates maps a currency code to its VND rate.
type Rates map[string]Amount

// Currency codes used in the rates settings.
const (
	CurrencyUSD = "US"
	CurrencyCAD = "CAD"
	CurrencyAUD = "AUD"
	CurrencyJPY = "JPY"
	CurrencyKRW = "KRW"
)

// DefaultRates are used until the settings store answers.
func DefaultRates() Rates {
	return Rates{
		CurrencyUSD: NewAmount(decimal.NewFromInt(26077)),
		CurrencyCAD: NewAmount(decimal.NewFromInt(18884)),
		CurrencyAUD: NewAmount(decimal.NewFromInt(17315)),
		CurrencyJPY: NewAmount(decimal.NewFromInt(168)),
		CurrencyKRW: NewAmount(decimal.RequireFromString("17.9")),
	}
}

var marketCurrency = map[string]string{
	"us":        CurrencyUSD,
	"usa":       CurrencyUSD,
	"my":        CurrencyUSD,
	"can":       CurrencyCAD,
	"ca":        CurrencyCAD,
	"canada":    CurrencyCAD,
	"uc":        CurrencyAUD,
	"úc":        CurrencyAUD,
	"aus":       CurrencyAUD,
	"au":        CurrencyAUD,
	"australia": CurrencyAUD,
	"jp":        CurrencyJPY,
	"japan":     CurrencyJPY,
	"nhật":      CurrencyJPY,
	"kr":        CurrencyKRW,
	"korea":     CurrencyKRW,
	"hàn":       CurrencyKRW,
}

// CurrencyForMarket maps an order's Khu_vực to a currency code. ok is false
// for markets already priced in VND or unknown.
func CurrencyForMarket(market string) (string, bool) {
	c, ok := marketCurrency[strings.ToLower(strings.TrimSpace(market))]
	return c, ok
}

// RateFor returns the VND multiplier for market, 1 when none applies.
func (r Rates) RateFor(market string) decimal.Decimal {
	c, ok := CurrencyForMarket(market)
	if !ok {
		return decimal.NewFromInt(1)
	}
	rate, ok := r[c]
	if !ok || !rate.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return rate.Decimal
}

// Validate rejects negative or zero rates.
func (r Rates) Validate() error {
	for code, rate := range r {
		if !rate.IsPositive() {
			return &RateError{Currency: code}
		}
	}
	return nil
}

// RateError reports an invalid exchange rate.
type RateError struct {
	Currency string
}

func (e *RateError) Error() string {
	return "datasheet: rate for " + e.Currency + " must be positive"
}
