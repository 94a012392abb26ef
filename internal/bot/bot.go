// Package bot implements the per-user conversational flow: onboarding
// wizard, goal capture, keyword commands, and free-form transaction
// extraction, in a fixed priority order.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bought/internal/alert"
	"bought/internal/core"
	"bought/internal/oracle"
	"bought/internal/stats"
	"bought/internal/storage"
	"bought/internal/transport"
)

// Store is the persistence surface the controller needs. A missing
// budget is reported with storage.ErrNotFound.
type Store interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) error
	TransactionsInRange(ctx context.Context, userID string, from, to time.Time) ([]core.Transaction, error)
	GetBudget(ctx context.Context, userID string) (*core.Budget, error)
	SaveBudget(ctx context.Context, b *core.Budget) error
	CompletedBudgets(ctx context.Context) ([]*core.Budget, error)
	CreateGoal(ctx context.Context, g *core.Goal) error
	GoalsByUser(ctx context.Context, userID string, status core.GoalStatus) ([]*core.Goal, error)
}

// AlertEvaluator checks one category's budget right after an expense.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, userID string, category core.Category) (*alert.Alert, error)
}

// Controller drives the conversation. The media downloader is
// optional; without one receipt images are logged and skipped.
type Controller struct {
	store  Store
	oracle oracle.Service
	alerts AlertEvaluator
	sender transport.Sender
	media  transport.MediaDownloader

	// pendingGoal tracks owners mid-way through goal capture. Process
	// local; losing it on restart only drops an in-flight dialogue.
	mu          sync.Mutex
	pendingGoal map[string]struct{}

	now func() time.Time
}

const apologyReply = "Sorry, I could not process that right now. Please try again in a moment."

func NewController(store Store, orc oracle.Service, alerts AlertEvaluator, sender transport.Sender, media transport.MediaDownloader) *Controller {
	return &Controller{
		store:       store,
		oracle:      orc,
		alerts:      alerts,
		sender:      sender,
		media:       media,
		pendingGoal: make(map[string]struct{}),
		now:         time.Now,
	}
}

// HandleMessage runs one inbound message through the dispatch order:
// new-user onboarding, goal capture, budget wizard, keyword commands,
// free-form extraction. Errors are fully handled here; the caller only
// logs what bubbles up.
func (c *Controller) HandleMessage(ctx context.Context, msg transport.InboundMessage) error {
	budget, err := c.store.GetBudget(ctx, msg.From)
	if errors.Is(err, storage.ErrNotFound) {
		// First contact: greet and open the wizard. The triggering
		// message itself is not treated as wizard input.
		return c.startOnboarding(ctx, msg.From)
	}
	if err != nil {
		return fmt.Errorf("load budget: %w", err)
	}

	if msg.Kind == transport.KindImage {
		return c.handleImage(ctx, msg, budget)
	}

	if c.awaitingGoal(msg.From) {
		return c.handleGoalInput(ctx, msg)
	}
	if !budget.SetupCompleted {
		return c.handleWizardInput(ctx, msg, budget)
	}
	if cmd := matchCommand(msg.Text); cmd != cmdNone {
		return c.handleCommand(ctx, cmd, msg, budget)
	}
	// Too short to carry a transaction; stray taps and reactions land
	// here.
	if len([]rune(strings.TrimSpace(msg.Text))) < 2 {
		return nil
	}
	return c.handleExtraction(ctx, msg)
}

func (c *Controller) awaitingGoal(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pendingGoal[userID]
	return ok
}

func (c *Controller) setAwaitingGoal(userID string, pending bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pending {
		c.pendingGoal[userID] = struct{}{}
	} else {
		delete(c.pendingGoal, userID)
	}
}

func (c *Controller) startOnboarding(ctx context.Context, userID string) error {
	budget := core.NewBudget(userID, c.now())
	if err := c.store.SaveBudget(ctx, budget); err != nil {
		return fmt.Errorf("create budget: %w", err)
	}
	msg := welcomeMessage + "\n\n" + wizardPrompt(core.BudgetCategories[0])
	return c.sender.SendText(ctx, userID, msg)
}

func (c *Controller) handleWizardInput(ctx context.Context, msg transport.InboundMessage, budget *core.Budget) error {
	step := budget.SetupStep
	if step >= len(core.BudgetCategories) {
		// Cursor past the end with the flag unset should not happen;
		// recover by finishing setup.
		step = len(core.BudgetCategories) - 1
	}
	category := core.BudgetCategories[step]

	limit, ok := core.ParseBudgetLimit(msg.Text)
	if !ok {
		reply := fmt.Sprintf("That doesn't look like a number. %s", wizardPrompt(category))
		return c.sender.SendText(ctx, msg.From, reply)
	}

	budget.Limits[category] = limit
	budget.SetupStep++
	budget.UpdatedAt = c.now()

	if budget.SetupStep >= len(core.BudgetCategories) {
		budget.SetupCompleted = true
		if err := c.store.SaveBudget(ctx, budget); err != nil {
			return fmt.Errorf("save budget: %w", err)
		}
		return c.sender.SendText(ctx, msg.From, budgetSummary(budget))
	}

	if err := c.store.SaveBudget(ctx, budget); err != nil {
		return fmt.Errorf("save budget: %w", err)
	}
	next := core.BudgetCategories[budget.SetupStep]
	return c.sender.SendText(ctx, msg.From, wizardPrompt(next))
}

func (c *Controller) handleCommand(ctx context.Context, cmd command, msg transport.InboundMessage, budget *core.Budget) error {
	switch cmd {
	case cmdHelp:
		return c.sender.SendText(ctx, msg.From, helpMessage)
	case cmdBudgetReset:
		budget.Reset(c.now())
		if err := c.store.SaveBudget(ctx, budget); err != nil {
			return fmt.Errorf("reset budget: %w", err)
		}
		reply := "Budget cleared. Let's set it up again.\n\n" + wizardPrompt(core.BudgetCategories[0])
		return c.sender.SendText(ctx, msg.From, reply)
	case cmdGoalCreate:
		c.setAwaitingGoal(msg.From, true)
		return c.sender.SendText(ctx, msg.From, goalPromptMessage)
	case cmdGoalList:
		return c.sendGoalList(ctx, msg.From)
	case cmdGoalProgress:
		return c.sendGoalProgress(ctx, msg.From)
	case cmdAdvice:
		return c.handleAdvice(ctx, msg, budget)
	case cmdStatsDaily:
		from, to := stats.DayWindow(c.now())
		return c.sendStats(ctx, msg.From, "Today", from, to)
	case cmdStatsWeekly:
		from, to := stats.WeekWindow(c.now())
		return c.sendStats(ctx, msg.From, "This week", from, to)
	case cmdStatsMonthly:
		return c.sendMonthlyStats(ctx, msg.From, budget)
	case cmdStatsCategories:
		return c.sendCategoryBreakdown(ctx, msg.From)
	}
	return nil
}

func (c *Controller) handleGoalInput(ctx context.Context, msg transport.InboundMessage) error {
	if isCancel(msg.Text) {
		c.setAwaitingGoal(msg.From, false)
		return c.sender.SendText(ctx, msg.From, "Goal creation cancelled.")
	}

	parsed, err := c.oracle.ExtractGoal(ctx, msg.Text, c.now())
	if err != nil {
		slog.ErrorContext(ctx, "Goal extraction failed", "error", err, "user_id", msg.From)
		return c.sender.SendText(ctx, msg.From, apologyReply)
	}
	if parsed == nil {
		reply := "I couldn't work out a goal from that. Tell me what you're saving for, how much, and by when — or send \"cancel\"."
		return c.sender.SendText(ctx, msg.From, reply)
	}

	goal := &core.Goal{
		ID:        uuid.NewString(),
		UserID:    msg.From,
		Name:      parsed.Name,
		Target:    parsed.Target,
		Current:   decimal.Zero,
		Deadline:  parsed.Deadline,
		Category:  parsed.Category,
		Status:    core.GoalActive,
		CreatedAt: c.now(),
	}
	goal.Recompute(c.now())
	if err := goal.Validate(c.now()); err != nil {
		slog.WarnContext(ctx, "Extracted goal failed validation", "error", err, "user_id", msg.From)
		return c.sender.SendText(ctx, msg.From, "That goal didn't add up. Try again or send \"cancel\".")
	}
	if err := c.store.CreateGoal(ctx, goal); err != nil {
		return fmt.Errorf("create goal: %w", err)
	}

	c.setAwaitingGoal(msg.From, false)
	return c.sender.SendText(ctx, msg.From, goalConfirmation(goal))
}

func (c *Controller) handleExtraction(ctx context.Context, msg transport.InboundMessage) error {
	parsed, err := c.oracle.ExtractTransaction(ctx, msg.Text)
	if err != nil {
		slog.ErrorContext(ctx, "Transaction extraction failed", "error", err, "user_id", msg.From)
		return c.sender.SendText(ctx, msg.From, apologyReply)
	}
	if parsed == nil {
		// No financial content; stay quiet.
		return nil
	}
	return c.recordExtraction(ctx, msg.From, parsed, core.SourceWhatsApp, "")
}

func (c *Controller) handleImage(ctx context.Context, msg transport.InboundMessage, budget *core.Budget) error {
	if !budget.SetupCompleted {
		slog.InfoContext(ctx, "Receipt skipped, budget setup incomplete", "user_id", msg.From)
		return nil
	}
	if c.media == nil {
		slog.WarnContext(ctx, "Receipt received but no media downloader configured", "user_id", msg.From)
		return nil
	}

	data, mimeType, err := c.media.DownloadMedia(ctx, msg.MediaID)
	if err != nil {
		slog.ErrorContext(ctx, "Media download failed", "error", err, "user_id", msg.From)
		return c.sender.SendText(ctx, msg.From, apologyReply)
	}

	parsed, err := c.oracle.ExtractReceipt(ctx, data, mimeType)
	if err != nil {
		slog.ErrorContext(ctx, "Receipt extraction failed", "error", err, "user_id", msg.From)
		return c.sender.SendText(ctx, msg.From, apologyReply)
	}
	if parsed == nil {
		return c.sender.SendText(ctx, msg.From, "I couldn't read that receipt. You can type the amount instead.")
	}

	receiptNote := formatReceiptNote(parsed)
	return c.recordExtraction(ctx, msg.From, parsed, core.SourceReceipt, receiptNote)
}

// recordExtraction persists an extracted transaction, replies with an
// acknowledgement, and fires the budget check for expenses. A trailing
// note (receipt enrichment) is appended to the reply when present.
func (c *Controller) recordExtraction(ctx context.Context, userID string, parsed *oracle.Extraction, source core.Source, note string) error {
	tx := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Date:        c.now(),
		Amount:      parsed.Amount,
		Type:        parsed.Type,
		Category:    parsed.Category,
		Description: parsed.Description,
		Source:      source,
	}
	if err := tx.Validate(); err != nil {
		// The oracle claimed a transaction but the result does not
		// hold up; treat like a null extraction.
		slog.WarnContext(ctx, "Extraction failed validation", "error", err, "user_id", userID)
		return nil
	}
	if err := c.store.CreateTransaction(ctx, tx); err != nil {
		slog.ErrorContext(ctx, "Transaction persist failed", "error", err, "user_id", userID)
		return c.sender.SendText(ctx, userID, "Something went wrong saving that. Please try again.")
	}

	reply := transactionAck(tx)
	if note != "" {
		reply += "\n" + note
	}

	if tx.Type == core.Expense && c.alerts != nil {
		a, err := c.alerts.Evaluate(ctx, userID, tx.Category)
		if err != nil {
			slog.ErrorContext(ctx, "Alert evaluation failed", "error", err, "user_id", userID)
		} else if a != nil {
			reply += "\n\n" + a.Format()
		}
	}
	return c.sender.SendText(ctx, userID, reply)
}

func (c *Controller) handleAdvice(ctx context.Context, msg transport.InboundMessage, budget *core.Budget) error {
	snapshot, err := c.buildSnapshot(ctx, msg.From, budget)
	if err != nil {
		return fmt.Errorf("build snapshot: %w", err)
	}
	answer, err := c.oracle.Advise(ctx, msg.Text, snapshot)
	if err != nil {
		slog.ErrorContext(ctx, "Advice call failed", "error", err, "user_id", msg.From)
		return c.sender.SendText(ctx, msg.From, apologyReply)
	}
	return c.sender.SendText(ctx, msg.From, answer)
}
