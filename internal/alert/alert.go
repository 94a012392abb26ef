// Package alert watches spending against budget limits, both inline
// after each recorded expense and in a nightly sweep across all owners.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bought/internal/core"
	"bought/internal/stats"
	"bought/internal/transport"
)

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
	LevelOver     Level = "over"
)

type (
	// Level classifies how far into a budget the spending has gone.
	Level string

	// Alert is one category crossing a budget threshold.
	Alert struct {
		Level    Level
		Category core.Category
		Spent    decimal.Decimal
		Limit    int64
		Percent  int64
	}

	// Store is the storage surface the engine reads from.
	Store interface {
		GetBudget(ctx context.Context, userID string) (*core.Budget, error)
		TransactionsInRange(ctx context.Context, userID string, from, to time.Time) ([]core.Transaction, error)
		CompletedBudgets(ctx context.Context) ([]*core.Budget, error)
	}
)

type Engine struct {
	store  Store
	sender transport.Sender
	// concurrency bounds the sweep fan-out.
	concurrency int
	now         func() time.Time
}

func NewEngine(store Store, sender transport.Sender, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 4
	}
	return &Engine{
		store:       store,
		sender:      sender,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// classify maps a spend percentage to an alert level. Below 75 there
// is no alert.
func classify(percent int64) (Level, bool) {
	switch {
	case percent >= 100:
		return LevelOver, true
	case percent >= 90:
		return LevelCritical, true
	case percent >= 75:
		return LevelWarning, true
	}
	return "", false
}

func percentOf(spent decimal.Decimal, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return spent.Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(limit)).Round(0).IntPart()
}

// Evaluate checks one category right after an expense was recorded.
// Returns nil when the category is unmonitored or under every
// threshold.
func (e *Engine) Evaluate(ctx context.Context, userID string, category core.Category) (*Alert, error) {
	budget, err := e.store.GetBudget(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load budget: %w", err)
	}
	limit := budget.LimitFor(category)
	if limit <= 0 {
		return nil, nil
	}

	from, to := stats.MonthWindow(e.now())
	txs, err := e.store.TransactionsInRange(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load month transactions: %w", err)
	}

	spent := stats.CategorySpend(txs, category)
	percent := percentOf(spent, limit)
	level, ok := classify(percent)
	if !ok {
		return nil, nil
	}
	return &Alert{
		Level:    level,
		Category: category,
		Spent:    spent,
		Limit:    limit,
		Percent:  percent,
	}, nil
}

// Format renders an alert as a chat line. Overshoot alerts carry the
// amount over the limit, the rest carry the amount still left.
func (a *Alert) Format() string {
	limit := decimal.NewFromInt(a.Limit)
	switch a.Level {
	case LevelOver:
		return fmt.Sprintf("🚨 You are over your %s budget: %s of %d (%d%%), %s over the limit.",
			a.Category, a.Spent.StringFixed(0), a.Limit, a.Percent, a.Spent.Sub(limit).StringFixed(0))
	case LevelCritical:
		return fmt.Sprintf("⚠️ Almost there: %s spending is at %d%% of its %d budget, %s left.",
			a.Category, a.Percent, a.Limit, limit.Sub(a.Spent).StringFixed(0))
	default:
		return fmt.Sprintf("📊 Heads up: %s spending reached %d%% of its %d budget, %s left.",
			a.Category, a.Percent, a.Limit, limit.Sub(a.Spent).StringFixed(0))
	}
}

// Sweep evaluates every completed budget and sends one combined
// message per owner who has categories over or near their limit.
// Categories count as near-limit from 85%.
func (e *Engine) Sweep(ctx context.Context) error {
	budgets, err := e.store.CompletedBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, budget := range budgets {
		g.Go(func() error {
			if err := e.sweepOwner(ctx, budget); err != nil {
				// One owner failing must not starve the rest.
				slog.ErrorContext(ctx, "Sweep failed for owner",
					"user_id", budget.UserID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Engine) sweepOwner(ctx context.Context, budget *core.Budget) error {
	from, to := stats.MonthWindow(e.now())
	txs, err := e.store.TransactionsInRange(ctx, budget.UserID, from, to)
	if err != nil {
		return fmt.Errorf("load month transactions: %w", err)
	}

	var over, near []string
	for _, cat := range core.BudgetCategories {
		limit := budget.LimitFor(cat)
		if limit <= 0 {
			continue
		}
		spent := stats.CategorySpend(txs, cat)
		percent := percentOf(spent, limit)
		switch {
		case percent >= 100:
			over = append(over, fmt.Sprintf("%s: %s of %d (%d%%)",
				cat, spent.StringFixed(0), limit, percent))
		case percent >= 85:
			near = append(near, fmt.Sprintf("%s: %d%% used", cat, percent))
		}
	}
	if len(over) == 0 && len(near) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("📋 Daily budget check\n")
	if len(over) > 0 {
		b.WriteString("\n🚨 Over budget:\n")
		for _, line := range over {
			b.WriteString("• " + line + "\n")
		}
	}
	if len(near) > 0 {
		b.WriteString("\n⚠️ Close to the limit:\n")
		for _, line := range near {
			b.WriteString("• " + line + "\n")
		}
	}

	if err := e.sender.SendText(ctx, budget.UserID, strings.TrimRight(b.String(), "\n")); err != nil {
		return fmt.Errorf("send sweep message: %w", err)
	}
	return nil
}
