// Package core holds the domain types shared by every stage of the forecast pipeline.
//
// This file contains helpers for parsing and rendering monetary amounts.
// Amounts are exact decimals; floats only appear at the model boundary.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional sign. Thousands separators are not supported.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("-99.5")  -> -99.5, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// DebitAmount normalises a signed upstream amount to the positive spend value.
// Returns ErrInvalidAmount when the result is zero.
func DebitAmount(d decimal.Decimal) (decimal.Decimal, error) {
	abs := d.Abs()
	if abs.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return abs, nil
}

// Round2 rounds to cents, the precision used in reports.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
