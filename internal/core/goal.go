package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	GoalActive    GoalStatus = "active"
	GoalCompleted GoalStatus = "completed"
	GoalCancelled GoalStatus = "cancelled"
)

const (
	GoalTrip       GoalCategory = "trip"
	GoalPurchase   GoalCategory = "purchase"
	GoalEmergency  GoalCategory = "emergency"
	GoalInvestment GoalCategory = "investment"
	GoalGeneral    GoalCategory = "general"
)

type (
	GoalStatus   string
	GoalCategory string

	// Goal is a savings goal with a target amount and an optional
	// deadline. The
	// Percent, WeeklyTarget and MonthlyTarget fields are derived and
	// recomputed on every mutation rather than stored authoritatively.
	Goal struct {
		ID            string          `json:"id"`
		UserID        string          `json:"userId"`
		Name          string          `json:"name"`
		Description   string          `json:"description,omitempty"`
		Target        decimal.Decimal `json:"targetAmount"`
		Current       decimal.Decimal `json:"currentAmount"`
		Deadline      *time.Time      `json:"deadline,omitempty"`
		Category      GoalCategory    `json:"category"`
		Status        GoalStatus      `json:"status"`
		Percent       int64           `json:"percent"`
		WeeklyTarget  decimal.Decimal `json:"weeklyTarget"`
		MonthlyTarget decimal.Decimal `json:"monthlyTarget"`
		CreatedAt     time.Time       `json:"createdAt"`
		CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	}
)

var (
	ErrEmptyGoalName     = errors.New("goal name is required")
	ErrInvalidTarget     = errors.New("target amount must be positive")
	ErrDeadlineInPast    = errors.New("deadline must be in the future")
	ErrInvalidGoalStatus = errors.New("unknown goal status")
	ErrGoalNotActive     = errors.New("goal is not active")
)

func (s GoalStatus) Valid() bool {
	switch s {
	case GoalActive, GoalCompleted, GoalCancelled:
		return true
	}
	return false
}

func (c GoalCategory) Valid() bool {
	switch c {
	case GoalTrip, GoalPurchase, GoalEmergency, GoalInvestment, GoalGeneral:
		return true
	}
	return false
}

// ParseGoalCategory maps a free-form string to a goal category,
// defaulting to general.
func ParseGoalCategory(s string) GoalCategory {
	c := GoalCategory(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return GoalGeneral
}

func (g Goal) Validate(now time.Time) error {
	if strings.TrimSpace(g.UserID) == "" {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyGoalName
	}
	if !g.Target.IsPositive() {
		return ErrInvalidTarget
	}
	if g.Deadline != nil && !g.Deadline.After(now) {
		return ErrDeadlineInPast
	}
	if !g.Category.Valid() {
		return errors.New("unknown goal category")
	}
	if !g.Status.Valid() {
		return ErrInvalidGoalStatus
	}
	return nil
}

// Recompute refreshes the derived progress fields and flips an active
// goal to completed once the saved amount reaches the target. It never
// reverts a completed goal: excess contributions leave the status alone.
func (g *Goal) Recompute(now time.Time) {
	if g.Target.IsPositive() {
		g.Percent = g.Current.Mul(decimal.NewFromInt(100)).
			Div(g.Target).Round(0).IntPart()
	} else {
		g.Percent = 0
	}

	remaining := g.Target.Sub(g.Current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	// Pace targets need a deadline; without one they stay at zero.
	if g.Deadline != nil {
		days := int64(g.Deadline.Sub(now).Hours() / 24)
		if days < 1 {
			days = 1
		}
		weeks := (days + 6) / 7
		months := (days + 29) / 30
		g.WeeklyTarget = remaining.Div(decimal.NewFromInt(weeks)).Ceil()
		g.MonthlyTarget = remaining.Div(decimal.NewFromInt(months)).Ceil()
	} else {
		g.WeeklyTarget = decimal.Zero
		g.MonthlyTarget = decimal.Zero
	}

	if g.Status == GoalActive && g.Current.GreaterThanOrEqual(g.Target) {
		g.Status = GoalCompleted
		t := now
		g.CompletedAt = &t
	}
}

// AddProgress adds amount to the goal's saved total. Contributions are
// cumulative; posting the same amount twice counts it twice.
func (g *Goal) AddProgress(amount decimal.Decimal, now time.Time) error {
	if g.Status != GoalActive {
		return ErrGoalNotActive
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	g.Current = g.Current.Add(amount)
	g.Recompute(now)
	return nil
}
