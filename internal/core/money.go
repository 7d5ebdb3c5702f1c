// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal end to end and serialized as plain
// JSON numbers.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

func init() {
	// Clients read amounts as numbers, not strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// ParseAmount converts a user-supplied decimal string into a positive amount
// rounded half-up to two places.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = RoundAmount(d)
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// AmountPlaces is the precision every stored amount is kept at.
const AmountPlaces = 2

// RoundAmount rounds d half-up to AmountPlaces. Backends persist exactly this
// value, so anything that rounds to zero is not a valid amount.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}
