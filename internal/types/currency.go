package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DEFAULT_CURRENCY_PRECISION is the number of minor-unit digits used for
// currencies not listed in CURRENCY_PRECISION.
const DEFAULT_CURRENCY_PRECISION int32 = 2

// CURRENCY_PRECISION lists ISO currencies whose minor unit is not cents.
var CURRENCY_PRECISION = map[string]int32{
	"jpy": 0,
	"krw": 0,
	"vnd": 0,
	"clp": 0,
	"isk": 0,
	"bhd": 3,
	"kwd": 3,
	"omr": 3,
	"tnd": 3,
	"jod": 3,
}

// GetCurrencyPrecision returns the number of minor-unit digits of the currency.
func GetCurrencyPrecision(code string) int32 {
	if p, ok := CURRENCY_PRECISION[strings.ToLower(code)]; ok {
		return p
	}
	return DEFAULT_CURRENCY_PRECISION
}

// RoundToCurrencyPrecision rounds half-up to the currency's minor unit.
func RoundToCurrencyPrecision(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(GetCurrencyPrecision(currency))
}

// IsMatchingCurrency compares currency codes case-insensitively.
func IsMatchingCurrency(a, b string) bool {
	return strings.EqualFold(a, b)
}
