package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bought/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bought.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestTransaction(userID string, amount int64, cat core.Category, date time.Time) core.Transaction {
	return core.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Date:        date,
		Amount:      decimal.NewFromInt(amount),
		Type:        core.Expense,
		Category:    cat,
		Description: "test expense",
		Source:      core.SourceWhatsApp,
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := newTestTransaction("u1", 42, core.CategoryFood, time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
	if err := repo.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.UserID != tx.UserID || !got.Amount.Equal(tx.Amount) || got.Category != tx.Category {
		t.Errorf("got %+v, want %+v", got, tx)
	}
	if !got.Date.Equal(tx.Date) {
		t.Errorf("date = %v, want %v", got.Date, tx.Date)
	}
}

func TestTransactionsInRange(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, day := range []int{1, 5, 15, 31} {
		tx := newTestTransaction("u1", int64(10+i), core.CategoryFood, base.AddDate(0, 0, day-1))
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	// Another user's row must not leak in.
	other := newTestTransaction("u2", 99, core.CategoryFood, base.AddDate(0, 0, 4))
	if err := repo.CreateTransaction(ctx, other); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := repo.TransactionsInRange(ctx, "u1", base, base.AddDate(0, 0, 14))
	if err != nil {
		t.Fatalf("TransactionsInRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions, want 2", len(got))
	}
	if !got[0].Date.After(got[1].Date) {
		t.Error("expected newest-first ordering")
	}
}

func TestListTransactionsFilter(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tx := newTestTransaction("u1", int64(i+1), core.CategoryFood, base.AddDate(0, 0, i))
		if err := repo.CreateTransaction(ctx, tx); err != nil {
			t.Fatalf("CreateTransaction: %v", err)
		}
	}
	income := newTestTransaction("u1", 1000, core.CategorySalary, base)
	income.Type = core.Income
	if err := repo.CreateTransaction(ctx, income); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	got, err := repo.ListTransactions(ctx, TransactionFilter{UserID: "u1", Type: core.Expense, Limit: 2, Skip: 1})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d, want 2", len(got))
	}
	// Newest expense is day 5; skip 1 lands on day 4.
	if got[0].Date.Day() != 4 {
		t.Errorf("got[0] day = %d, want 4", got[0].Date.Day())
	}

	byCat, err := repo.ListTransactions(ctx, TransactionFilter{UserID: "u1", Category: core.CategorySalary})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(byCat) != 1 || byCat[0].Type != core.Income {
		t.Errorf("category filter = %+v", byCat)
	}
}

func TestUpdateDeleteTransaction(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tx := newTestTransaction("u1", 10, core.CategoryBills, time.Now().UTC().Truncate(time.Second))
	if err := repo.CreateTransaction(ctx, tx); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	tx.Amount = decimal.NewFromInt(25)
	tx.Category = core.CategoryHealth
	if err := repo.UpdateTransaction(ctx, tx); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	got, err := repo.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if !got.Amount.Equal(decimal.NewFromInt(25)) || got.Category != core.CategoryHealth {
		t.Errorf("update not applied: %+v", got)
	}

	if err := repo.DeleteTransaction(ctx, tx.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, tx.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTransaction after delete = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteTransaction(ctx, tx.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestBudgetUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := repo.GetBudget(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetBudget on empty db = %v, want ErrNotFound", err)
	}

	b := core.NewBudget("u1", now)
	b.Limits[core.CategoryFood] = 500
	b.SetupStep = 1
	if err := repo.SaveBudget(ctx, b); err != nil {
		t.Fatalf("SaveBudget: %v", err)
	}

	b.Limits[core.CategoryTransport] = 200
	b.SetupStep = 2
	b.SetupCompleted = true
	if err := repo.SaveBudget(ctx, b); err != nil {
		t.Fatalf("SaveBudget (update): %v", err)
	}

	got, err := repo.GetBudget(ctx, "u1")
	if err != nil {
		t.Fatalf("GetBudget: %v", err)
	}
	if !got.SetupCompleted || got.SetupStep != 2 {
		t.Errorf("wizard state = completed=%v step=%d", got.SetupCompleted, got.SetupStep)
	}
	if got.LimitFor(core.CategoryFood) != 500 || got.LimitFor(core.CategoryTransport) != 200 {
		t.Errorf("limits = %+v", got.Limits)
	}
}

func TestCompletedBudgets(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	done := core.NewBudget("done", now)
	done.SetupCompleted = true
	pending := core.NewBudget("pending", now)
	for _, b := range []*core.Budget{done, pending} {
		if err := repo.SaveBudget(ctx, b); err != nil {
			t.Fatalf("SaveBudget: %v", err)
		}
	}

	got, err := repo.CompletedBudgets(ctx)
	if err != nil {
		t.Fatalf("CompletedBudgets: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "done" {
		t.Errorf("CompletedBudgets = %+v, want only 'done'", got)
	}
}

func TestGoalRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	deadline := now.AddDate(0, 6, 0)
	g := &core.Goal{
		ID:        uuid.NewString(),
		UserID:    "u1",
		Name:      "emergency fund",
		Target:    decimal.NewFromInt(3000),
		Current:   decimal.NewFromInt(150),
		Deadline:  &deadline,
		Category:  core.GoalEmergency,
		Status:    core.GoalActive,
		CreatedAt: now,
	}
	if err := repo.CreateGoal(ctx, g); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	got, err := repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.Name != g.Name || !got.Target.Equal(g.Target) || got.Status != core.GoalActive {
		t.Errorf("got %+v", got)
	}
	if got.CompletedAt != nil {
		t.Errorf("CompletedAt = %v, want nil", got.CompletedAt)
	}

	done := now.Add(time.Hour)
	got.Status = core.GoalCompleted
	got.CompletedAt = &done
	got.Current = got.Target
	if err := repo.UpdateGoal(ctx, got); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}

	active, err := repo.GoalsByUser(ctx, "u1", core.GoalActive)
	if err != nil {
		t.Fatalf("GoalsByUser: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active goals = %d, want 0", len(active))
	}
	all, err := repo.GoalsByUser(ctx, "u1", "")
	if err != nil {
		t.Fatalf("GoalsByUser: %v", err)
	}
	if len(all) != 1 || all[0].CompletedAt == nil {
		t.Errorf("all goals = %+v", all)
	}
}

func TestGoalWithoutDeadlineRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	g := &core.Goal{
		ID:        uuid.NewString(),
		UserID:    "u1",
		Name:      "rainy day",
		Target:    decimal.NewFromInt(1000),
		Current:   decimal.Zero,
		Category:  core.GoalGeneral,
		Status:    core.GoalActive,
		CreatedAt: now,
	}
	if err := repo.CreateGoal(ctx, g); err != nil {
		t.Fatalf("CreateGoal: %v", err)
	}

	got, err := repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.Deadline != nil {
		t.Errorf("Deadline = %v, want nil", got.Deadline)
	}

	got.Current = decimal.NewFromInt(200)
	if err := repo.UpdateGoal(ctx, got); err != nil {
		t.Fatalf("UpdateGoal: %v", err)
	}
	got, err = repo.GetGoal(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGoal: %v", err)
	}
	if got.Deadline != nil || !got.Current.Equal(decimal.NewFromInt(200)) {
		t.Errorf("got %+v", got)
	}
}
