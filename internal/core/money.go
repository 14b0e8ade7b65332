// Package core provides money parsing and formatting utilities.
//
// Amounts are carried as shopspring decimals end to end so that sums of
// cents never drift the way binary floats do.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user supplied amount to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. Empty or malformed input yields ErrInvalidAmount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("-12,5")  -> -12.5, nil
//	ParseAmount("1.2.3")  -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 || strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatDollars renders an amount as "$1234.56" with two decimals, rounding
// half away from zero. Negative values keep their sign in front of the symbol.
func FormatDollars(d decimal.Decimal) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}
