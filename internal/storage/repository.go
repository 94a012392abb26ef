package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"bought/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// --- transactions ---

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, tx core.Transaction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, user_id, date, amount, type, category, description, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.UserID, tx.Date.UTC().Format(time.RFC3339), tx.Amount.String(),
		string(tx.Type), string(tx.Category), tx.Description, string(tx.Source))
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", tx.ID,
		"user_id", tx.UserID,
		"type", tx.Type,
		"category", tx.Category,
		"amount", tx.Amount.String())

	return nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, date, amount, type, category, description, source
		FROM transactions WHERE id = ?`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET date = ?, amount = ?, type = ?, category = ?, description = ?
		WHERE id = ?`,
		tx.Date.UTC().Format(time.RFC3339), tx.Amount.String(),
		string(tx.Type), string(tx.Category), tx.Description, tx.ID)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TransactionsInRange returns a user's transactions with from <= date < to,
// newest first.
func (r *SQLiteRepository) TransactionsInRange(ctx context.Context, userID string, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, date, amount, type, category, description, source
		FROM transactions
		WHERE user_id = ? AND date >= ? AND date < ?
		ORDER BY date DESC`,
		userID, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// TransactionFilter narrows ListTransactions. Zero values mean "any".
type TransactionFilter struct {
	UserID   string
	Type     core.TxType
	Category core.Category
	Limit    int
	Skip     int
}

// ListTransactions returns the most recent transactions matching the
// filter, newest first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context, f TransactionFilter) ([]core.Transaction, error) {
	query := `
		SELECT id, user_id, date, amount, type, category, description, source
		FROM transactions WHERE 1=1`
	var args []any
	if f.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, f.UserID)
	}
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, string(f.Category))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += ` ORDER BY date DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Skip)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	return collectTransactions(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		tx            core.Transaction
		date, amount  string
		typ, cat, src string
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &date, &amount, &typ, &cat, &tx.Description, &src); err != nil {
		return core.Transaction{}, err
	}
	d, err := time.Parse(time.RFC3339, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse amount: %w", err)
	}
	tx.Date = d
	tx.Amount = a
	tx.Type = core.TxType(typ)
	tx.Category = core.Category(cat)
	tx.Source = core.Source(src)
	return tx, nil
}

func collectTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// --- budgets ---

func (r *SQLiteRepository) GetBudget(ctx context.Context, userID string) (*core.Budget, error) {
	b := &core.Budget{UserID: userID, Limits: make(map[core.Category]int64)}

	var created, updated string
	err := r.db.QueryRowContext(ctx, `
		SELECT setup_completed, setup_step, created_at, updated_at
		FROM budgets WHERE user_id = ?`, userID).
		Scan(&b.SetupCompleted, &b.SetupStep, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get budget: %w", err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT category, limit_amount FROM budget_limits WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("get budget limits: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var limit int64
		if err := rows.Scan(&cat, &limit); err != nil {
			return nil, fmt.Errorf("scan budget limit: %w", err)
		}
		b.Limits[core.Category(cat)] = limit
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budget limits: %w", err)
	}
	return b, nil
}

// SaveBudget upserts a budget and replaces its per-category limits in
// a single transaction.
func (r *SQLiteRepository) SaveBudget(ctx context.Context, b *core.Budget) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO budgets (user_id, setup_completed, setup_step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			setup_completed = excluded.setup_completed,
			setup_step = excluded.setup_step,
			updated_at = excluded.updated_at`,
		b.UserID, b.SetupCompleted, b.SetupStep,
		b.CreatedAt.UTC().Format(time.RFC3339), b.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save budget: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM budget_limits WHERE user_id = ?`, b.UserID); err != nil {
		return fmt.Errorf("clear budget limits: %w", err)
	}
	for cat, limit := range b.Limits {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO budget_limits (user_id, category, limit_amount) VALUES (?, ?, ?)`,
			b.UserID, string(cat), limit)
		if err != nil {
			return fmt.Errorf("save budget limit %s: %w", cat, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit budget: %w", err)
	}
	return nil
}

// CompletedBudgets returns every budget whose setup wizard finished.
// The nightly sweep iterates these owners.
func (r *SQLiteRepository) CompletedBudgets(ctx context.Context) ([]*core.Budget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM budgets WHERE setup_completed = 1`)
	if err != nil {
		return nil, fmt.Errorf("list completed budgets: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan budget user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}

	budgets := make([]*core.Budget, 0, len(ids))
	for _, id := range ids {
		b, err := r.GetBudget(ctx, id)
		if err != nil {
			return nil, err
		}
		budgets = append(budgets, b)
	}
	return budgets, nil
}

// --- goals ---

func (r *SQLiteRepository) CreateGoal(ctx context.Context, g *core.Goal) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO goals (id, user_id, name, description, target_amount, current_amount, deadline, category, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.UserID, g.Name, g.Description, g.Target.String(), g.Current.String(),
		optTime(g.Deadline), string(g.Category), string(g.Status),
		g.CreatedAt.UTC().Format(time.RFC3339), optTime(g.CompletedAt))
	if err != nil {
		return fmt.Errorf("create goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal created",
		"id", g.ID,
		"user_id", g.UserID,
		"name", g.Name,
		"target", g.Target.String())

	return nil
}

func (r *SQLiteRepository) GetGoal(ctx context.Context, id string) (*core.Goal, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, target_amount, current_amount, deadline, category, status, created_at, completed_at
		FROM goals WHERE id = ?`, id)
	g, err := scanGoal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (r *SQLiteRepository) UpdateGoal(ctx context.Context, g *core.Goal) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE goals
		SET name = ?, description = ?, target_amount = ?, current_amount = ?, deadline = ?, category = ?, status = ?, completed_at = ?
		WHERE id = ?`,
		g.Name, g.Description, g.Target.String(), g.Current.String(),
		optTime(g.Deadline), string(g.Category), string(g.Status),
		optTime(g.CompletedAt), g.ID)
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) DeleteGoal(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GoalsByUser returns a user's goals, optionally filtered by status.
func (r *SQLiteRepository) GoalsByUser(ctx context.Context, userID string, status core.GoalStatus) ([]*core.Goal, error) {
	query := `
		SELECT id, user_id, name, description, target_amount, current_amount, deadline, category, status, created_at, completed_at
		FROM goals WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []*core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate goals: %w", err)
	}
	return out, nil
}

func scanGoal(row rowScanner) (*core.Goal, error) {
	var (
		g                        core.Goal
		target, current, created string
		cat, status              string
		deadline, completed      sql.NullString
	)
	err := row.Scan(&g.ID, &g.UserID, &g.Name, &g.Description, &target, &current, &deadline, &cat, &status, &created, &completed)
	if err != nil {
		return nil, err
	}
	if g.Target, err = decimal.NewFromString(target); err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	if g.Current, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("parse current: %w", err)
	}
	if deadline.Valid {
		t, err := time.Parse(time.RFC3339, deadline.String)
		if err != nil {
			return nil, fmt.Errorf("parse deadline: %w", err)
		}
		g.Deadline = &t
	}
	if g.CreatedAt, err = time.Parse(time.RFC3339, created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(time.RFC3339, completed.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		g.CompletedAt = &t
	}
	g.Category = core.GoalCategory(cat)
	g.Status = core.GoalStatus(status)
	return &g, nil
}

// optTime formats an optional timestamp for storage, mapping nil to
// SQL NULL.
func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
