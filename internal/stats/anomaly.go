package stats

import (
	"github.com/shopspring/decimal"

	"bought/internal/core"
)

// Anomaly flags a category whose current-month spend deviates sharply
// from its recent average.
type Anomaly struct {
	Category core.Category
	Current  decimal.Decimal
	Average  decimal.Decimal
	// DeltaPercent is the signed deviation from the average.
	DeltaPercent int64
}

var (
	hundred          = decimal.NewFromInt(100)
	anomalyThreshold = decimal.NewFromInt(50)
)

// CategoryAverages computes the per-category mean monthly expense
// across months of history. months must be positive.
func CategoryAverages(history []core.Transaction, months int) map[core.Category]decimal.Decimal {
	if months < 1 {
		months = 1
	}
	div := decimal.NewFromInt(int64(months))
	out := make(map[core.Category]decimal.Decimal)
	for _, ct := range ByCategory(history) {
		out[ct.Category] = ct.Amount.Div(div)
	}
	return out
}

// DetectAnomalies reports categories where this month's spend differs
// from the historical average by at least 50%, ignoring categories
// with trivial spend (under 100).
func DetectAnomalies(current []core.Transaction, averages map[core.Category]decimal.Decimal) []Anomaly {
	var out []Anomaly
	for _, ct := range ByCategory(current) {
		avg, ok := averages[ct.Category]
		if !ok || !avg.IsPositive() {
			continue
		}
		if ct.Amount.LessThan(hundred) {
			continue
		}
		deviation := ct.Amount.Sub(avg).Mul(hundred).Div(avg).Round(0)
		if deviation.Abs().GreaterThanOrEqual(anomalyThreshold) {
			out = append(out, Anomaly{
				Category:     ct.Category,
				Current:      ct.Amount,
				Average:      avg,
				DeltaPercent: deviation.IntPart(),
			})
		}
	}
	return out
}
