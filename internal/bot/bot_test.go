package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bought/internal/alert"
	"bought/internal/core"
	"bought/internal/oracle"
	"bought/internal/storage"
	"bought/internal/transport"
)

type fakeStore struct {
	budgets map[string]*core.Budget
	txs     []core.Transaction
	goals   []*core.Goal
}

func newFakeStore() *fakeStore {
	return &fakeStore{budgets: make(map[string]*core.Budget)}
}

func (s *fakeStore) CreateTransaction(_ context.Context, tx core.Transaction) error {
	s.txs = append(s.txs, tx)
	return nil
}

func (s *fakeStore) TransactionsInRange(_ context.Context, userID string, from, to time.Time) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, tx := range s.txs {
		if tx.UserID == userID && !tx.Date.Before(from) && tx.Date.Before(to) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *fakeStore) GetBudget(_ context.Context, userID string) (*core.Budget, error) {
	b, ok := s.budgets[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return b, nil
}

func (s *fakeStore) SaveBudget(_ context.Context, b *core.Budget) error {
	s.budgets[b.UserID] = b
	return nil
}

func (s *fakeStore) CompletedBudgets(_ context.Context) ([]*core.Budget, error) {
	var out []*core.Budget
	for _, b := range s.budgets {
		if b.SetupCompleted {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateGoal(_ context.Context, g *core.Goal) error {
	s.goals = append(s.goals, g)
	return nil
}

func (s *fakeStore) GoalsByUser(_ context.Context, userID string, status core.GoalStatus) ([]*core.Goal, error) {
	var out []*core.Goal
	for _, g := range s.goals {
		if g.UserID == userID && (status == "" || g.Status == status) {
			out = append(out, g)
		}
	}
	return out, nil
}

type fakeOracle struct {
	extraction   *oracle.Extraction
	extractErr   error
	extractCalls int

	goal      *oracle.GoalExtraction
	goalErr   error
	goalCalls int

	advice      string
	summary     string
	receiptCall int
}

func (o *fakeOracle) ExtractTransaction(context.Context, string) (*oracle.Extraction, error) {
	o.extractCalls++
	return o.extraction, o.extractErr
}

func (o *fakeOracle) ExtractReceipt(context.Context, []byte, string) (*oracle.Extraction, error) {
	o.receiptCall++
	return o.extraction, o.extractErr
}

func (o *fakeOracle) ExtractGoal(context.Context, string, time.Time) (*oracle.GoalExtraction, error) {
	o.goalCalls++
	return o.goal, o.goalErr
}

func (o *fakeOracle) Advise(context.Context, string, string) (string, error) {
	if o.advice == "" {
		return "", errors.New("no advice configured")
	}
	return o.advice, nil
}

func (o *fakeOracle) Summarize(context.Context, string) (string, error) {
	if o.summary == "" {
		return "", errors.New("no summary configured")
	}
	return o.summary, nil
}

type fakeSender struct {
	sent []string
}

func (s *fakeSender) SendText(_ context.Context, _, body string) error {
	s.sent = append(s.sent, body)
	return nil
}

func (s *fakeSender) last() string {
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

type fakeAlerts struct {
	alert *alert.Alert
}

func (a *fakeAlerts) Evaluate(context.Context, string, core.Category) (*alert.Alert, error) {
	return a.alert, nil
}

type fakeMedia struct{}

func (fakeMedia) DownloadMedia(context.Context, string) ([]byte, string, error) {
	return []byte{0xff}, "image/jpeg", nil
}

func newTestController(store *fakeStore, orc *fakeOracle) (*Controller, *fakeSender) {
	sender := &fakeSender{}
	c := NewController(store, orc, &fakeAlerts{}, sender, fakeMedia{})
	c.now = func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) }
	return c, sender
}

func completedBudget(userID string) *core.Budget {
	b := core.NewBudget(userID, time.Now())
	b.SetupCompleted = true
	b.SetupStep = len(core.BudgetCategories)
	return b
}

func text(from, body string) transport.InboundMessage {
	return transport.InboundMessage{From: from, Kind: transport.KindText, Text: body}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestNewUserGetsWelcomeWithoutConsumingMessage(t *testing.T) {
	store := newFakeStore()
	orc := &fakeOracle{}
	c, sender := newTestController(store, orc)

	if err := c.HandleMessage(context.Background(), text("u1", "hello")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "Welcome") || !strings.Contains(sender.sent[0], string(core.BudgetCategories[0])) {
		t.Errorf("welcome = %q", sender.sent[0])
	}
	b := store.budgets["u1"]
	if b == nil || b.SetupStep != 0 || b.SetupCompleted {
		t.Errorf("budget after first contact = %+v", b)
	}
	if orc.extractCalls != 0 {
		t.Error("first message must not reach extraction")
	}
}

func TestWizardInvalidInputDoesNotAdvance(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = core.NewBudget("u1", time.Now())
	c, sender := newTestController(store, &fakeOracle{})

	if err := c.HandleMessage(context.Background(), text("u1", "no idea")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if store.budgets["u1"].SetupStep != 0 {
		t.Errorf("step advanced on invalid input: %d", store.budgets["u1"].SetupStep)
	}
	if !strings.Contains(sender.last(), string(core.BudgetCategories[0])) {
		t.Errorf("re-prompt = %q", sender.last())
	}
}

func TestWizardPreemptsCommands(t *testing.T) {
	// "help" during setup is wizard input, not a command. It has no
	// digits, so it re-prompts.
	store := newFakeStore()
	store.budgets["u1"] = core.NewBudget("u1", time.Now())
	c, sender := newTestController(store, &fakeOracle{})

	if err := c.HandleMessage(context.Background(), text("u1", "help")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if strings.Contains(sender.last(), "describe spending") {
		t.Error("help command recognized during setup")
	}
	if store.budgets["u1"].SetupStep != 0 {
		t.Error("step advanced")
	}
}

func TestWizardCompletesAfterAllCategories(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = core.NewBudget("u1", time.Now())
	c, sender := newTestController(store, &fakeOracle{})
	ctx := context.Background()

	inputs := []string{"500", "1,200", "$300", "250", "100", "80", "0"}
	for _, in := range inputs {
		if err := c.HandleMessage(ctx, text("u1", in)); err != nil {
			t.Fatalf("HandleMessage(%q): %v", in, err)
		}
	}

	b := store.budgets["u1"]
	if !b.SetupCompleted {
		t.Fatal("setup not completed after all categories")
	}
	if b.LimitFor(core.CategoryFood) != 500 || b.LimitFor(core.CategoryTransport) != 1200 {
		t.Errorf("limits = %+v", b.Limits)
	}
	if !strings.Contains(sender.last(), "complete") || !strings.Contains(sender.last(), "2430") {
		t.Errorf("summary = %q", sender.last())
	}
}

func TestCommandRoutingSkipsOracle(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{}
	c, sender := newTestController(store, orc)

	if err := c.HandleMessage(context.Background(), text("u1", "how much did I spend")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if orc.extractCalls != 0 {
		t.Error("stats command reached extraction")
	}
	if !strings.Contains(sender.last(), "This month") {
		t.Errorf("reply = %q", sender.last())
	}
}

func TestFreeTextRoutesToExtraction(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{extraction: &oracle.Extraction{
		Amount:      decimal.NewFromInt(18),
		Type:        core.Expense,
		Category:    core.CategoryFood,
		Description: "coffee",
	}}
	c, sender := newTestController(store, orc)

	if err := c.HandleMessage(context.Background(), text("u1", "bought coffee for 18")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if orc.extractCalls != 1 {
		t.Fatalf("extraction calls = %d, want 1", orc.extractCalls)
	}
	if len(store.txs) != 1 || store.txs[0].Source != core.SourceWhatsApp {
		t.Errorf("stored txs = %+v", store.txs)
	}
	if !strings.Contains(sender.last(), "coffee") {
		t.Errorf("ack = %q", sender.last())
	}
}

func TestNullExtractionIsSilent(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	c, sender := newTestController(store, &fakeOracle{})

	if err := c.HandleMessage(context.Background(), text("u1", "good morning")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("null extraction produced reply: %q", sender.sent)
	}
	if len(store.txs) != 0 {
		t.Error("null extraction persisted a transaction")
	}
}

func TestOracleFailureSendsApology(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	c, sender := newTestController(store, &fakeOracle{extractErr: errors.New("quota exceeded")})

	if err := c.HandleMessage(context.Background(), text("u1", "spent 20 on gas")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if sender.last() != apologyReply {
		t.Errorf("reply = %q, want apology", sender.last())
	}
}

func TestExpenseAckIncludesAlert(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{extraction: &oracle.Extraction{
		Amount:      decimal.NewFromInt(160),
		Type:        core.Expense,
		Category:    core.CategoryFood,
		Description: "groceries",
	}}
	sender := &fakeSender{}
	alerts := &fakeAlerts{alert: &alert.Alert{
		Level:    alert.LevelCritical,
		Category: core.CategoryFood,
		Spent:    decimal.NewFromInt(920),
		Limit:    1000,
		Percent:  92,
	}}
	c := NewController(store, orc, alerts, sender, nil)
	c.now = func() time.Time { return time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC) }

	if err := c.HandleMessage(context.Background(), text("u1", "groceries 160")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1 combined", len(sender.sent))
	}
	if !strings.Contains(sender.last(), "groceries") || !strings.Contains(sender.last(), "92%") {
		t.Errorf("reply = %q", sender.last())
	}
}

func TestGoalFlow(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{goal: &oracle.GoalExtraction{
		Name:     "trip to japan",
		Target:   decimal.NewFromInt(5000),
		Deadline: timePtr(time.Date(2025, 5, 21, 0, 0, 0, 0, time.UTC)), // 10 weeks from test now
		Category: core.GoalTrip,
	}}
	c, sender := newTestController(store, orc)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, text("u1", "new goal")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !c.awaitingGoal("u1") {
		t.Fatal("goal capture not pending after create command")
	}

	if err := c.HandleMessage(ctx, text("u1", "5000 for japan by may")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if c.awaitingGoal("u1") {
		t.Error("still pending after successful capture")
	}
	if len(store.goals) != 1 || store.goals[0].Status != core.GoalActive {
		t.Fatalf("goals = %+v", store.goals)
	}
	if !strings.Contains(sender.last(), "500") {
		t.Errorf("confirmation should mention weekly target: %q", sender.last())
	}
}

func TestGoalFlowWithoutDeadline(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{goal: &oracle.GoalExtraction{
		Name:     "emergency fund",
		Target:   decimal.NewFromInt(3000),
		Category: core.GoalEmergency,
	}}
	c, sender := newTestController(store, orc)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, text("u1", "new goal")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if err := c.HandleMessage(ctx, text("u1", "build a 3000 emergency fund")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(store.goals) != 1 || store.goals[0].Deadline != nil {
		t.Fatalf("goals = %+v", store.goals)
	}
	if !strings.Contains(sender.last(), "Goal created") {
		t.Errorf("confirmation = %q", sender.last())
	}
	if strings.Contains(sender.last(), "a week") {
		t.Errorf("confirmation should not suggest a weekly pace: %q", sender.last())
	}
}

func TestGoalCancelSkipsOracle(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{}
	c, sender := newTestController(store, orc)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, text("u1", "new goal")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if err := c.HandleMessage(ctx, text("u1", "cancel")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if c.awaitingGoal("u1") {
		t.Error("still pending after cancel")
	}
	if orc.goalCalls != 0 {
		t.Error("cancel reached the goal parser")
	}
	if !strings.Contains(sender.last(), "cancelled") {
		t.Errorf("reply = %q", sender.last())
	}
}

func TestGoalCapturePrecedesKeywords(t *testing.T) {
	// Mid-capture, a message matching a stats keyword still goes to
	// the goal parser.
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{} // nil goal -> retry prompt
	c, sender := newTestController(store, orc)
	ctx := context.Background()

	if err := c.HandleMessage(ctx, text("u1", "new goal")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if err := c.HandleMessage(ctx, text("u1", "summary")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if orc.goalCalls != 1 {
		t.Errorf("goal parser calls = %d, want 1", orc.goalCalls)
	}
	if !c.awaitingGoal("u1") {
		t.Error("unparseable goal text dropped the pending state")
	}
	if strings.Contains(sender.last(), "This month") {
		t.Error("stats keyword won over goal capture")
	}
}

func TestBudgetResetRestartsWizard(t *testing.T) {
	store := newFakeStore()
	b := completedBudget("u1")
	b.Limits[core.CategoryFood] = 500
	store.budgets["u1"] = b
	c, sender := newTestController(store, &fakeOracle{})

	if err := c.HandleMessage(context.Background(), text("u1", "new budget")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if b.SetupCompleted || b.SetupStep != 0 || b.LimitFor(core.CategoryFood) != 0 {
		t.Errorf("budget after reset = %+v", b)
	}
	if !strings.Contains(sender.last(), string(core.BudgetCategories[0])) {
		t.Errorf("reply = %q", sender.last())
	}
}

func TestReceiptSkippedDuringSetup(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = core.NewBudget("u1", time.Now())
	orc := &fakeOracle{}
	c, sender := newTestController(store, orc)

	msg := transport.InboundMessage{From: "u1", Kind: transport.KindImage, MediaID: "m1"}
	if err := c.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if orc.receiptCall != 0 {
		t.Error("receipt parsed before setup completed")
	}
	if len(sender.sent) != 0 {
		t.Errorf("unexpected reply: %q", sender.sent)
	}
}

func TestReceiptRecordedWithMerchantNote(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{extraction: &oracle.Extraction{
		Amount:      decimal.NewFromInt(84),
		Type:        core.Expense,
		Category:    core.CategoryShopping,
		Description: "supermarket receipt",
		Merchant:    "Tesco",
		Items:       []string{"milk", "bread"},
	}}
	c, sender := newTestController(store, orc)

	msg := transport.InboundMessage{From: "u1", Kind: transport.KindImage, MediaID: "m1"}
	if err := c.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(store.txs) != 1 || store.txs[0].Source != core.SourceReceipt {
		t.Fatalf("stored txs = %+v", store.txs)
	}
	if !strings.Contains(sender.last(), "Tesco") || !strings.Contains(sender.last(), "milk") {
		t.Errorf("reply = %q", sender.last())
	}
}

func TestAdviceUsesSnapshot(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{advice: "Yes, you have room for that."}
	c, sender := newTestController(store, orc)

	if err := c.HandleMessage(context.Background(), text("u1", "can I afford a new phone")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if sender.last() != "Yes, you have room for that." {
		t.Errorf("reply = %q", sender.last())
	}
	if orc.extractCalls != 0 {
		t.Error("advice question reached transaction extraction")
	}
}

func TestMatchCommand(t *testing.T) {
	tests := []struct {
		in   string
		want command
	}{
		{"help", cmdHelp},
		{"?", cmdHelp},
		{"new budget", cmdBudgetReset},
		{"what does help mean", cmdNone}, // help matches exactly, not by substring
		{"today", cmdStatsDaily},
		{"what did I spend today", cmdStatsDaily},
		{"this week", cmdStatsWeekly},
		{"summary", cmdStatsMonthly},
		{"expense summary", cmdStatsCategories},
		{"goal status", cmdGoalProgress},
		{"my goals", cmdGoalList},
		{"can i afford a vacation", cmdAdvice},
		{"bought coffee for 18", cmdNone},
	}
	for _, tt := range tests {
		if got := matchCommand(tt.in); got != tt.want {
			t.Errorf("matchCommand(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestShortMessageIgnored(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{}
	c, sender := newTestController(store, orc)

	if err := c.HandleMessage(context.Background(), text("u1", "k")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if orc.extractCalls != 0 {
		t.Error("single-character message must not reach extraction")
	}
	if len(sender.sent) != 0 {
		t.Errorf("expected silence, got %q", sender.sent)
	}

	// "?" is a help command and must still work at one character.
	if err := c.HandleMessage(context.Background(), text("u1", "?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if !strings.Contains(sender.last(), "describe spending") {
		t.Errorf("help reply = %q", sender.last())
	}
}

func TestMonthlyReport(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{summary: "Solid month overall."}
	c, sender := newTestController(store, orc)

	now := c.now()
	store.txs = append(store.txs,
		core.Transaction{UserID: "u1", Date: now.AddDate(0, 0, -2), Amount: decimal.RequireFromString("300"), Type: core.Expense, Category: core.CategoryFood},
		core.Transaction{UserID: "u1", Date: now.AddDate(0, 0, -1), Amount: decimal.RequireFromString("1000"), Type: core.Income, Category: core.CategorySalary},
		core.Transaction{UserID: "u1", Date: now.AddDate(0, -1, 0), Amount: decimal.RequireFromString("150"), Type: core.Expense, Category: core.CategoryFood},
	)

	if err := c.MonthlyReport(context.Background(), "u1"); err != nil {
		t.Fatalf("MonthlyReport: %v", err)
	}
	got := sender.last()
	if !strings.HasPrefix(got, "Solid month overall.") {
		t.Errorf("report should open with the narrative summary, got %q", got)
	}
	if !strings.Contains(got, "Income: 1000.00") || !strings.Contains(got, "Expenses: 300.00") {
		t.Errorf("report totals missing: %q", got)
	}
	if !strings.Contains(got, "100% more") {
		t.Errorf("report should compare against last month: %q", got)
	}
	if strings.Contains(got, "⚠️") {
		t.Errorf("anomalies need at least 20 historical expenses: %q", got)
	}
}

func TestMonthlyReportSkipsOwnerOnOracleFailure(t *testing.T) {
	store := newFakeStore()
	store.budgets["u1"] = completedBudget("u1")
	orc := &fakeOracle{} // no summary configured, Summarize fails
	c, sender := newTestController(store, orc)

	store.txs = append(store.txs, core.Transaction{
		UserID: "u1", Date: c.now().AddDate(0, 0, -1),
		Amount: decimal.RequireFromString("50"), Type: core.Expense, Category: core.CategoryFood,
	})

	if err := c.MonthlyReport(context.Background(), "u1"); err == nil {
		t.Fatal("expected error when the summary call fails")
	}
	if len(sender.sent) != 0 {
		t.Errorf("no report should be sent on summary failure, got %q", sender.sent)
	}
}
