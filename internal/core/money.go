// Package core provides amount and date handling for statement rows.
//
// Bank exports write amounts with a decimal comma ("-15,30") while records
// travel as non-negative decimal strings ("15.3").
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a signed statement amount. A decimal comma is
// normalized to a dot before parsing.
//
// Examples:
//
//	ParseAmount("-15,30")  -> -15.3
//	ParseAmount("1500.00") -> 1500
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}

// FormatMagnitude renders the absolute value of d with at least one
// fractional digit and no trailing zeros beyond it.
func FormatMagnitude(d decimal.Decimal) string {
	s := d.Abs().String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
