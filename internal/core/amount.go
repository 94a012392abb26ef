// Package core defines the finance domain: transactions, budgets,
// savings goals and the parsing helpers the chat flow relies on.
package core

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseBudgetLimit extracts a whole-number monthly limit from a chat
// reply. Users answer the wizard with things like "1,500", "800 eur"
// or "$200", so every non-digit rune is stripped before parsing.
// Zero is a valid answer (leave the category unmonitored); a reply
// with no digits at all is rejected.
func ParseBudgetLimit(s string) (int64, bool) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(b.String(), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseAmount parses a positive decimal amount, accepting both dot and
// comma as the decimal separator.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}
