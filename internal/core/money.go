// Package core provides money parsing and handling utilities.
//
// Amounts travel as decimal strings ("50.00") in the salon API and are kept
// as exact decimals; no float conversions happen on the way to a total.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Negative amounts are allowed since refunds are recorded as encaissements too.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("abc")   -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals ("80.00").
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatEuros renders an amount for display ("€80,00").
func FormatEuros(d decimal.Decimal) string {
	s := strings.Replace(d.Abs().StringFixed(2), ".", ",", 1)
	if d.IsNegative() {
		return "-€" + s
	}
	return "€" + s
}
