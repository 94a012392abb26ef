package stats

import (
	"github.com/shopspring/decimal"

	"bought/internal/core"
)

// BudgetLine compares one monitored category's spend to its limit.
type BudgetLine struct {
	Category   core.Category   `json:"category"`
	Limit      int64           `json:"limit"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percent    int64           `json:"percent"`
	OverBudget bool            `json:"overBudget"`
}

// BudgetComparison is the full budget-vs-actual view for one owner's
// current month.
type BudgetComparison struct {
	Categories   []BudgetLine    `json:"categories"`
	TotalBudget  int64           `json:"totalBudget"`
	TotalSpent   decimal.Decimal `json:"totalSpent"`
	TotalPercent int64           `json:"totalPercent"`
	SavedMoney   bool            `json:"savedMoney"`
}

// CompareBudget derives per-category and overall budget usage from the
// current month's transactions. Categories without a limit are skipped.
func CompareBudget(budget *core.Budget, monthTxs []core.Transaction) BudgetComparison {
	cmp := BudgetComparison{TotalSpent: decimal.Zero}
	for _, cat := range core.BudgetCategories {
		limit := budget.LimitFor(cat)
		if limit <= 0 {
			continue
		}
		spent := CategorySpend(monthTxs, cat)
		limitDec := decimal.NewFromInt(limit)
		line := BudgetLine{
			Category:   cat,
			Limit:      limit,
			Spent:      spent,
			Remaining:  limitDec.Sub(spent),
			Percent:    spent.Mul(hundred).Div(limitDec).Round(0).IntPart(),
			OverBudget: spent.GreaterThan(limitDec),
		}
		cmp.Categories = append(cmp.Categories, line)
		cmp.TotalBudget += limit
		cmp.TotalSpent = cmp.TotalSpent.Add(spent)
	}
	if cmp.TotalBudget > 0 {
		cmp.TotalPercent = cmp.TotalSpent.Mul(hundred).
			Div(decimal.NewFromInt(cmp.TotalBudget)).Round(0).IntPart()
	}
	cmp.SavedMoney = decimal.NewFromInt(cmp.TotalBudget).Sub(cmp.TotalSpent).IsPositive()
	return cmp
}
