package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"bought/internal/core"
	"bought/internal/oracle"
	"bought/internal/stats"
)

const welcomeMessage = `👋 Welcome! I'm your personal finance assistant.

Text me what you spend ("coffee 4.50"), send receipt photos, and I'll
keep track. First, let's set up your monthly budget — one category at
a time. Send a whole number for each, or 0 to skip a category.`

const helpMessage = `Here's what I understand:

💬 Just describe spending: "lunch 12" or "got paid 3000"
📸 Send a photo of a receipt
📊 "today", "this week", "this month" — spending stats
📂 "categories" — breakdown by category
🎯 "new goal" — set a savings goal, "my goals" — list them
💡 "can I afford ..." — ask for advice
🔄 "new budget" — redo your budget setup`

const goalPromptMessage = `🎯 Tell me about your goal in one message — what you're saving for,
how much, and by when. For example: "5000 for a trip to Japan by next
summer". Send "cancel" to stop.`

func wizardPrompt(category core.Category) string {
	return fmt.Sprintf("What's your monthly budget for *%s*? (whole number, 0 to skip)", category)
}

func budgetSummary(b *core.Budget) string {
	var sb strings.Builder
	sb.WriteString("✅ Budget setup complete!\n\n")
	for _, cat := range core.BudgetCategories {
		sb.WriteString(fmt.Sprintf("• %s: %d\n", cat, b.LimitFor(cat)))
	}
	sb.WriteString(fmt.Sprintf("\nTotal monthly budget: %d", b.TotalLimit()))
	return sb.String()
}

func transactionAck(tx core.Transaction) string {
	icon := "💸"
	if tx.Type == core.Income {
		icon = "💰"
	}
	return fmt.Sprintf("%s Recorded: %s\n📂 %s • %s", icon, tx.Description, tx.Category, tx.Amount.StringFixed(2))
}

func formatReceiptNote(ex *oracle.Extraction) string {
	var parts []string
	if ex.Merchant != "" {
		parts = append(parts, "🏪 "+ex.Merchant)
	}
	if len(ex.Items) > 0 {
		parts = append(parts, "🧾 "+strings.Join(ex.Items, ", "))
	}
	return strings.Join(parts, "\n")
}

func goalConfirmation(g *core.Goal) string {
	if g.Deadline == nil {
		return fmt.Sprintf("🎯 Goal created: %s\nTarget: %s", g.Name, g.Target.StringFixed(0))
	}
	return fmt.Sprintf(
		"🎯 Goal created: %s\nTarget: %s by %s\nTo stay on track, put aside about %s a week.",
		g.Name, g.Target.StringFixed(0), g.Deadline.Format("Jan 2, 2006"), g.WeeklyTarget.StringFixed(0))
}

// progressBar renders a ten-segment bar for a 0-100 percentage.
func progressBar(percent int64) string {
	filled := percent / 10
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("▓", int(filled)) + strings.Repeat("░", int(10-filled))
}

func (c *Controller) sendStats(ctx context.Context, userID, title string, from, to time.Time) error {
	txs, err := c.store.TransactionsInRange(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	totals := stats.Sum(txs)
	if totals.Count == 0 {
		return c.sender.SendText(ctx, userID, fmt.Sprintf("📊 %s: no transactions yet.", title))
	}
	reply := fmt.Sprintf("📊 %s\n💰 Income: %s\n💸 Expenses: %s\n🧮 Net: %s\n(%d transactions)",
		title, totals.Income.StringFixed(2), totals.Expense.StringFixed(2),
		totals.Net.StringFixed(2), totals.Count)
	return c.sender.SendText(ctx, userID, reply)
}

// sendMonthlyStats adds the budget comparison to the plain totals.
func (c *Controller) sendMonthlyStats(ctx context.Context, userID string, budget *core.Budget) error {
	from, to := stats.MonthWindow(c.now())
	txs, err := c.store.TransactionsInRange(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	totals := stats.Sum(txs)
	cmp := stats.CompareBudget(budget, txs)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 This month\n💰 Income: %s\n💸 Expenses: %s\n🧮 Net: %s\n",
		totals.Income.StringFixed(2), totals.Expense.StringFixed(2), totals.Net.StringFixed(2)))
	if cmp.TotalBudget > 0 {
		sb.WriteString(fmt.Sprintf("\n🎯 Budget: %s of %d used (%d%%)\n",
			cmp.TotalSpent.StringFixed(0), cmp.TotalBudget, cmp.TotalPercent))
		for _, line := range cmp.Categories {
			marker := ""
			if line.OverBudget {
				marker = " 🚨"
			}
			sb.WriteString(fmt.Sprintf("• %s: %s/%d (%d%%)%s\n",
				line.Category, line.Spent.StringFixed(0), line.Limit, line.Percent, marker))
		}
	}
	return c.sender.SendText(ctx, userID, strings.TrimRight(sb.String(), "\n"))
}

func (c *Controller) sendCategoryBreakdown(ctx context.Context, userID string) error {
	from, to := stats.MonthWindow(c.now())
	txs, err := c.store.TransactionsInRange(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	byCat := stats.ByCategory(txs)
	if len(byCat) == 0 {
		return c.sender.SendText(ctx, userID, "📂 No expenses recorded this month yet.")
	}

	var sb strings.Builder
	sb.WriteString("📂 This month by category\n")
	for _, ct := range byCat {
		sb.WriteString(fmt.Sprintf("• %s: %s (%d)\n", ct.Category, ct.Amount.StringFixed(2), ct.Count))
	}
	return c.sender.SendText(ctx, userID, strings.TrimRight(sb.String(), "\n"))
}

func (c *Controller) sendGoalList(ctx context.Context, userID string) error {
	goals, err := c.store.GoalsByUser(ctx, userID, "")
	if err != nil {
		return fmt.Errorf("load goals: %w", err)
	}
	if len(goals) == 0 {
		return c.sender.SendText(ctx, userID, `🎯 No goals yet. Send "new goal" to create one.`)
	}

	var sb strings.Builder
	sb.WriteString("🎯 Your goals\n")
	for _, g := range goals {
		g.Recompute(c.now())
		status := ""
		switch g.Status {
		case core.GoalCompleted:
			status = " ✅"
		case core.GoalCancelled:
			status = " ✖️"
		}
		sb.WriteString(fmt.Sprintf("\n%s%s\n%s %d%% (%s of %s)\n",
			g.Name, status, progressBar(g.Percent), g.Percent,
			g.Current.StringFixed(0), g.Target.StringFixed(0)))
	}
	return c.sender.SendText(ctx, userID, strings.TrimRight(sb.String(), "\n"))
}

func (c *Controller) sendGoalProgress(ctx context.Context, userID string) error {
	goals, err := c.store.GoalsByUser(ctx, userID, core.GoalActive)
	if err != nil {
		return fmt.Errorf("load goals: %w", err)
	}
	if len(goals) == 0 {
		return c.sender.SendText(ctx, userID, "🎯 No active goals right now.")
	}

	var sb strings.Builder
	sb.WriteString("🎯 Goal progress\n")
	for _, g := range goals {
		g.Recompute(c.now())
		sb.WriteString(fmt.Sprintf("\n%s — %d%% there\n%s\n",
			g.Name, g.Percent, progressBar(g.Percent)))
		if g.Deadline != nil {
			days := int(g.Deadline.Sub(c.now()).Hours() / 24)
			sb.WriteString(fmt.Sprintf("⏳ %d days left • save %s/week or %s/month\n",
				days, g.WeeklyTarget.StringFixed(0), g.MonthlyTarget.StringFixed(0)))
		}
	}
	return c.sender.SendText(ctx, userID, strings.TrimRight(sb.String(), "\n"))
}

// ReportSweep sends the monthly report to every owner with a
// completed budget. A failing owner is logged and skipped.
func (c *Controller) ReportSweep(ctx context.Context) error {
	budgets, err := c.store.CompletedBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}
	for _, b := range budgets {
		if err := c.MonthlyReport(ctx, b.UserID); err != nil {
			slog.ErrorContext(ctx, "Monthly report failed for owner",
				"user_id", b.UserID, "error", err)
		}
	}
	return nil
}

// buildSnapshot summarizes the owner's current month for the advisory
// oracle call.
func (c *Controller) buildSnapshot(ctx context.Context, userID string, budget *core.Budget) (string, error) {
	from, to := stats.MonthWindow(c.now())
	txs, err := c.store.TransactionsInRange(ctx, userID, from, to)
	if err != nil {
		return "", fmt.Errorf("load transactions: %w", err)
	}
	totals := stats.Sum(txs)
	cmp := stats.CompareBudget(budget, txs)
	goals, err := c.store.GoalsByUser(ctx, userID, core.GoalActive)
	if err != nil {
		return "", fmt.Errorf("load goals: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Month so far: income %s, expenses %s, net %s.\n",
		totals.Income.StringFixed(2), totals.Expense.StringFixed(2), totals.Net.StringFixed(2)))
	sb.WriteString(fmt.Sprintf("Budget: %s of %d used (%d%%).\n",
		cmp.TotalSpent.StringFixed(0), cmp.TotalBudget, cmp.TotalPercent))
	for _, line := range cmp.Categories {
		sb.WriteString(fmt.Sprintf("- %s: %s of %d\n", line.Category, line.Spent.StringFixed(0), line.Limit))
	}
	for _, g := range goals {
		g.Recompute(c.now())
		deadline := "none"
		if g.Deadline != nil {
			deadline = g.Deadline.Format("2006-01-02")
		}
		sb.WriteString(fmt.Sprintf("Goal %q: %s of %s saved, deadline %s.\n",
			g.Name, g.Current.StringFixed(0), g.Target.StringFixed(0), deadline))
	}
	return sb.String(), nil
}

// MonthlyReport builds and sends the end-of-month report for one
// owner: totals, top categories, month-over-month comparison, anomaly
// notes, and a narrative summary from the oracle. A failed summary
// fails the whole report; ReportSweep logs it and moves on.
func (c *Controller) MonthlyReport(ctx context.Context, userID string) error {
	now := c.now()
	from, to := stats.MonthWindow(now)
	current, err := c.store.TransactionsInRange(ctx, userID, from, to)
	if err != nil {
		return fmt.Errorf("load month: %w", err)
	}
	if len(current) == 0 {
		return nil
	}
	pfrom, pto := stats.PrevMonthWindow(now)
	previous, err := c.store.TransactionsInRange(ctx, userID, pfrom, pto)
	if err != nil {
		return fmt.Errorf("load previous month: %w", err)
	}

	totals := stats.Sum(current)
	comparison := stats.Compare(stats.SumExpenses(current), stats.SumExpenses(previous))

	// Three months of history before this one anchor the anomaly
	// check. With fewer than 20 historical expenses the averages are
	// noise, so the check is skipped.
	hfrom := from.AddDate(0, -3, 0)
	history, err := c.store.TransactionsInRange(ctx, userID, hfrom, from)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	var anomalies []stats.Anomaly
	if countExpenses(history) >= 20 {
		anomalies = stats.DetectAnomalies(current, stats.CategoryAverages(history, 3))
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 %s report\n", now.Format("January")))
	sb.WriteString(fmt.Sprintf("💰 Income: %s\n💸 Expenses: %s\n🧮 Net: %s\n",
		totals.Income.StringFixed(2), totals.Expense.StringFixed(2), totals.Net.StringFixed(2)))
	if comparison.Previous.IsPositive() {
		direction := "more"
		delta := comparison.DeltaPercent
		if delta < 0 {
			direction = "less"
			delta = -delta
		}
		sb.WriteString(fmt.Sprintf("📈 You spent %d%% %s than last month.\n", delta, direction))
	}
	for i, ct := range stats.ByCategory(current) {
		if i == 3 {
			break
		}
		sb.WriteString(fmt.Sprintf("• %s: %s\n", ct.Category, ct.Amount.StringFixed(0)))
	}
	for _, a := range anomalies {
		sb.WriteString(fmt.Sprintf("⚠️ %s is %+d%% vs your 3-month average.\n", a.Category, a.DeltaPercent))
	}

	report := strings.TrimRight(sb.String(), "\n")
	summary, err := c.oracle.Summarize(ctx, report)
	if err != nil {
		return fmt.Errorf("summarize report: %w", err)
	}
	return c.sender.SendText(ctx, userID, summary+"\n\n"+report)
}

func countExpenses(txs []core.Transaction) int {
	n := 0
	for _, tx := range txs {
		if tx.Type == core.Expense {
			n++
		}
	}
	return n
}
