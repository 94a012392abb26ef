package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func activeGoal(now time.Time) *Goal {
	deadline := now.AddDate(0, 0, 70) // 10 weeks out
	return &Goal{
		ID:        "g-1",
		UserID:    "15551234567",
		Name:      "trip to japan",
		Target:    decimal.NewFromInt(5000),
		Current:   decimal.Zero,
		Deadline:  &deadline,
		Category:  GoalTrip,
		Status:    GoalActive,
		CreatedAt: now,
	}
}

func TestGoalRecomputeTargets(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)

	g.Recompute(now)

	// 5000 remaining over ceil(70/7)=10 weeks and ceil(70/30)=3 months.
	if !g.WeeklyTarget.Equal(decimal.NewFromInt(500)) {
		t.Errorf("WeeklyTarget = %s, want 500", g.WeeklyTarget)
	}
	if !g.MonthlyTarget.Equal(decimal.NewFromInt(1667)) {
		t.Errorf("MonthlyTarget = %s, want 1667", g.MonthlyTarget)
	}
	if g.Percent != 0 {
		t.Errorf("Percent = %d, want 0", g.Percent)
	}
}

func TestGoalPercentRounding(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)
	g.Current = decimal.NewFromInt(1234)

	g.Recompute(now)

	// 1234/5000 = 24.68% rounds to 25.
	if g.Percent != 25 {
		t.Errorf("Percent = %d, want 25", g.Percent)
	}
}

func TestGoalAutoCompletes(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)

	if err := g.AddProgress(decimal.NewFromInt(5000), now); err != nil {
		t.Fatalf("AddProgress: %v", err)
	}
	if g.Status != GoalCompleted {
		t.Fatalf("Status = %s, want completed", g.Status)
	}
	if g.CompletedAt == nil || !g.CompletedAt.Equal(now) {
		t.Errorf("CompletedAt = %v, want %v", g.CompletedAt, now)
	}
	if g.Percent != 100 {
		t.Errorf("Percent = %d, want 100", g.Percent)
	}
}

func TestGoalCompletedNeverReverts(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)
	g.Current = decimal.NewFromInt(6000)
	g.Status = GoalCompleted
	done := now.Add(-time.Hour)
	g.CompletedAt = &done

	g.Recompute(now)

	if g.Status != GoalCompleted {
		t.Errorf("Status = %s, want completed", g.Status)
	}
	if !g.CompletedAt.Equal(done) {
		t.Errorf("CompletedAt rewritten to %v", g.CompletedAt)
	}
}

func TestGoalProgressRejectedWhenNotActive(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)
	g.Status = GoalCancelled

	err := g.AddProgress(decimal.NewFromInt(10), now)
	if !errors.Is(err, ErrGoalNotActive) {
		t.Fatalf("AddProgress = %v, want ErrGoalNotActive", err)
	}
}

func TestGoalProgressIsCumulative(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)

	for i := 0; i < 2; i++ {
		if err := g.AddProgress(decimal.NewFromInt(300), now); err != nil {
			t.Fatalf("AddProgress: %v", err)
		}
	}
	if !g.Current.Equal(decimal.NewFromInt(600)) {
		t.Errorf("Current = %s, want 600", g.Current)
	}
}

func TestGoalValidate(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		mutate  func(*Goal)
		wantErr error
	}{
		{"valid", func(g *Goal) {}, nil},
		{"empty name", func(g *Goal) { g.Name = "" }, ErrEmptyGoalName},
		{"zero target", func(g *Goal) { g.Target = decimal.Zero }, ErrInvalidTarget},
		{"past deadline", func(g *Goal) { past := now.AddDate(0, 0, -1); g.Deadline = &past }, ErrDeadlineInPast},
		{"no deadline", func(g *Goal) { g.Deadline = nil }, nil},
		{"bad status", func(g *Goal) { g.Status = "paused" }, ErrInvalidGoalStatus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := activeGoal(now)
			tt.mutate(g)
			err := g.Validate(now)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoalWithoutDeadline(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	g := activeGoal(now)
	g.Deadline = nil
	g.Current = decimal.NewFromInt(1000)

	if err := g.Validate(now); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	g.Recompute(now)

	if g.Percent != 20 {
		t.Errorf("Percent = %d, want 20", g.Percent)
	}
	if !g.WeeklyTarget.IsZero() || !g.MonthlyTarget.IsZero() {
		t.Errorf("pace targets = %s/%s, want zero without a deadline",
			g.WeeklyTarget, g.MonthlyTarget)
	}
}
