// Package types holds the numeric value types shared by the ledger and the
// workflow documents.
package types

import "github.com/shopspring/decimal"

// Money is an exact decimal amount: unit prices and order totals.
type Money = decimal.Decimal

// MustMoney parses a literal amount and panics on malformed input.
func MustMoney(s string) Money {
	return decimal.RequireFromString(s)
}

// Zero returns a zero amount.
func Zero() Money {
	return decimal.Zero
}
