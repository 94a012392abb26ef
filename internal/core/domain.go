package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TxType = "income"
	Expense TxType = "expense"
)

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryShopping      Category = "shopping"
	CategoryBills         Category = "bills"
	CategoryEntertainment Category = "entertainment"
	CategoryHealth        Category = "health"
	CategoryGeneral       Category = "general"
	// CategorySalary is income-only: valid on transactions, never budgeted.
	CategorySalary Category = "salary"
)

const (
	SourceWhatsApp Source = "whatsapp"
	SourceReceipt  Source = "whatsapp-receipt"
	SourceAPI      Source = "api"
	SourceManual   Source = "manual"
)

type (
	// TxType is the transaction polarity.
	TxType string

	// Category is the closed set of transaction categories.
	Category string

	// Source records which channel produced a transaction.
	Source string

	// Transaction is a single income or expense record. The chat flow
	// only ever appends; edits and deletes come through the REST API.
	Transaction struct {
		ID          string          `json:"id"`
		UserID      string          `json:"userId"`
		Date        time.Time       `json:"date"`
		Amount      decimal.Decimal `json:"amount"`
		Type        TxType          `json:"type"`
		Category    Category        `json:"category"`
		Description string          `json:"description"`
		Source      Source          `json:"source"`
	}

	// Budget holds one owner's monthly limits per expense category.
	// SetupStep is only meaningful while SetupCompleted is false.
	Budget struct {
		UserID         string             `json:"userId"`
		Limits         map[Category]int64 `json:"limits"`
		SetupCompleted bool               `json:"setupCompleted"`
		SetupStep      int                `json:"setupStep"`
		CreatedAt      time.Time          `json:"createdAt"`
		UpdatedAt      time.Time          `json:"updatedAt"`
	}
)

// BudgetCategories is the fixed onboarding order. Salary is excluded
// because budgets only cover expenses.
var BudgetCategories = []Category{
	CategoryFood,
	CategoryTransport,
	CategoryShopping,
	CategoryBills,
	CategoryEntertainment,
	CategoryHealth,
	CategoryGeneral,
}

var (
	ErrEmptyUserID      = errors.New("user id is required")
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidType      = errors.New("type must be income or expense")
	ErrInvalidCategory  = errors.New("unknown category")
	ErrEmptyDescription = errors.New("empty description")
)

// Valid reports whether c is a member of the closed category set.
func (c Category) Valid() bool {
	switch c {
	case CategoryFood, CategoryTransport, CategoryShopping, CategoryBills,
		CategoryEntertainment, CategoryHealth, CategoryGeneral, CategorySalary:
		return true
	}
	return false
}

// Budgetable reports whether a monthly limit may be set for c.
func (c Category) Budgetable() bool {
	return c.Valid() && c != CategorySalary
}

// ParseCategory maps a free-form string to a category, defaulting to general.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c.Valid() {
		return c
	}
	return CategoryGeneral
}

func (t TxType) Valid() bool {
	return t == Income || t == Expense
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUserID
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if !t.Category.Valid() {
		return ErrInvalidCategory
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}

// NewBudget returns an empty, not-yet-configured budget for userID.
func NewBudget(userID string, now time.Time) *Budget {
	limits := make(map[Category]int64, len(BudgetCategories))
	for _, c := range BudgetCategories {
		limits[c] = 0
	}
	return &Budget{
		UserID:    userID,
		Limits:    limits,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// LimitFor returns the monthly limit for c, 0 when unmonitored.
func (b *Budget) LimitFor(c Category) int64 {
	if b == nil || b.Limits == nil {
		return 0
	}
	return b.Limits[c]
}

// TotalLimit sums the limits across all budgeted categories.
func (b *Budget) TotalLimit() int64 {
	var total int64
	for _, c := range BudgetCategories {
		total += b.LimitFor(c)
	}
	return total
}

// Reset clears all limits and restarts the onboarding wizard.
func (b *Budget) Reset(now time.Time) {
	for _, c := range BudgetCategories {
		b.Limits[c] = 0
	}
	b.SetupCompleted = false
	b.SetupStep = 0
	b.UpdatedAt = now
}
