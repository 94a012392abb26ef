// Package stats computes spending aggregates over transaction slices.
// Everything here is pure: callers load the window they care about
// from storage and hand it in.
package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"bought/internal/core"
)

// Totals is the income/expense/net breakdown of a window.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Net     decimal.Decimal
	Count   int
}

// CategoryTotal is one category's spend within a window.
type CategoryTotal struct {
	Category core.Category
	Amount   decimal.Decimal
	Count    int
}

// Comparison relates the current period's spend to the previous one.
type Comparison struct {
	Current  decimal.Decimal
	Previous decimal.Decimal
	// DeltaPercent is the signed change relative to the previous
	// period, rounded to a whole percent. Zero when the previous
	// period had no spending.
	DeltaPercent int64
}

// Sum computes the income/expense totals of txs.
func Sum(txs []core.Transaction) Totals {
	t := Totals{
		Income:  decimal.Zero,
		Expense: decimal.Zero,
		Count:   len(txs),
	}
	for _, tx := range txs {
		switch tx.Type {
		case core.Income:
			t.Income = t.Income.Add(tx.Amount)
		case core.Expense:
			t.Expense = t.Expense.Add(tx.Amount)
		}
	}
	t.Net = t.Income.Sub(t.Expense)
	return t
}

// SumExpenses totals only the expense transactions in txs.
func SumExpenses(txs []core.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == core.Expense {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// ByCategory groups expense spend per category, largest first.
func ByCategory(txs []core.Transaction) []CategoryTotal {
	acc := make(map[core.Category]*CategoryTotal)
	for _, tx := range txs {
		if tx.Type != core.Expense {
			continue
		}
		ct, ok := acc[tx.Category]
		if !ok {
			ct = &CategoryTotal{Category: tx.Category, Amount: decimal.Zero}
			acc[tx.Category] = ct
		}
		ct.Amount = ct.Amount.Add(tx.Amount)
		ct.Count++
	}

	out := make([]CategoryTotal, 0, len(acc))
	for _, ct := range acc {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Equal(out[j].Amount) {
			return out[i].Category < out[j].Category
		}
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}

// CategorySpend returns the expense total for a single category.
func CategorySpend(txs []core.Transaction, cat core.Category) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		if tx.Type == core.Expense && tx.Category == cat {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// Compare relates current spend to previous spend.
func Compare(current, previous decimal.Decimal) Comparison {
	c := Comparison{Current: current, Previous: previous}
	if previous.IsPositive() {
		c.DeltaPercent = current.Sub(previous).
			Mul(decimal.NewFromInt(100)).Div(previous).Round(0).IntPart()
	}
	return c
}

// DayWindow is [midnight today, midnight tomorrow) in now's location.
func DayWindow(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, 1)
}

// WeekWindow is the Monday-anchored week containing now. On Sundays
// the window reaches back to the previous Monday.
func WeekWindow(now time.Time) (time.Time, time.Time) {
	offset := int(now.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -offset)
	return from, from.AddDate(0, 0, 7)
}

// MonthWindow is [first of this month, first of next month).
func MonthWindow(now time.Time) (time.Time, time.Time) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 1, 0)
}

// PrevMonthWindow is the calendar month before now's.
func PrevMonthWindow(now time.Time) (time.Time, time.Time) {
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return to.AddDate(0, -1, 0), to
}
