package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"bought/internal/core"
	"bought/internal/stats"
	"bought/internal/storage"
)

// --- transactions ---

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.TransactionFilter{
		UserID:   q.Get("userId"),
		Type:     core.TxType(q.Get("type")),
		Category: core.Category(q.Get("category")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Skip = n
		}
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	txs, err := s.repo.ListTransactions(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, "list transactions", err)
		return
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	respondData(w, http.StatusOK, transactionList{
		Transactions: txs,
		Pagination: pagination{
			Limit: filter.Limit,
			Skip:  filter.Skip,
			Count: len(txs),
		},
	})
}

type pagination struct {
	Limit int `json:"limit"`
	Skip  int `json:"skip"`
	Count int `json:"count"`
}

type transactionList struct {
	Transactions []core.Transaction `json:"transactions"`
	Pagination   pagination         `json:"pagination"`
}

type transactionRequest struct {
	UserID      string          `json:"userId"`
	Date        *time.Time      `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Type        core.TxType     `json:"type"`
	Category    core.Category   `json:"category"`
	Description string          `json:"description"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date := s.now()
	if req.Date != nil {
		date = *req.Date
	}
	tx := core.Transaction{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Date:        date,
		Amount:      req.Amount,
		Type:        req.Type,
		Category:    req.Category,
		Description: req.Description,
		Source:      core.SourceAPI,
	}
	if err := tx.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.CreateTransaction(r.Context(), tx); err != nil {
		s.internalError(w, r, "create transaction", err)
		return
	}
	s.invalidateStats(tx.UserID)
	respondData(w, http.StatusCreated, tx)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.repo.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get transaction", err)
		return
	}
	respondData(w, http.StatusOK, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existing, err := s.repo.GetTransaction(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get transaction", err)
		return
	}

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Date != nil {
		existing.Date = *req.Date
	}
	if !req.Amount.IsZero() {
		existing.Amount = req.Amount
	}
	if req.Type != "" {
		existing.Type = req.Type
	}
	if req.Category != "" {
		existing.Category = req.Category
	}
	if req.Description != "" {
		existing.Description = req.Description
	}
	if err := existing.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.UpdateTransaction(r.Context(), existing); err != nil {
		s.internalError(w, r, "update transaction", err)
		return
	}
	s.invalidateStats(existing.UserID)
	respondData(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	tx, err := s.repo.GetTransaction(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get transaction", err)
		return
	}
	if err := s.repo.DeleteTransaction(r.Context(), id); err != nil {
		s.internalError(w, r, "delete transaction", err)
		return
	}
	s.invalidateStats(tx.UserID)
	respondData(w, http.StatusOK, map[string]string{"deleted": id})
}

// --- stats ---

type statsWindow int

const (
	statsDaily statsWindow = iota
	statsWeekly
	statsMonthly
)

type statsResponse struct {
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Balance decimal.Decimal `json:"balance"`
	Count   int             `json:"count"`
}

func (s *Server) handleStats(window statsWindow) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "userId is required")
			return
		}

		var from, to time.Time
		var view string
		switch window {
		case statsDaily:
			from, to = stats.DayWindow(s.now())
			view = "daily"
		case statsWeekly:
			from, to = stats.WeekWindow(s.now())
			view = "weekly"
		default:
			from, to = stats.MonthWindow(s.now())
			view = "monthly"
		}

		if cached, ok := s.statsCache.Get(statsCacheKey(userID, view)); ok {
			respondData(w, http.StatusOK, cached)
			return
		}

		txs, err := s.repo.TransactionsInRange(r.Context(), userID, from, to)
		if err != nil {
			s.internalError(w, r, "load transactions", err)
			return
		}
		totals := stats.Sum(txs)
		resp := statsResponse{
			From:    from,
			To:      to,
			Income:  totals.Income,
			Expense: totals.Expense,
			Balance: totals.Net,
			Count:   totals.Count,
		}
		s.statsCache.Set(statsCacheKey(userID, view), resp)
		respondData(w, http.StatusOK, resp)
	}
}

func (s *Server) handleStatsCategories(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if cached, ok := s.statsCache.Get(statsCacheKey(userID, "categories")); ok {
		respondData(w, http.StatusOK, cached)
		return
	}
	from, to := stats.MonthWindow(s.now())
	txs, err := s.repo.TransactionsInRange(r.Context(), userID, from, to)
	if err != nil {
		s.internalError(w, r, "load transactions", err)
		return
	}
	byCat := stats.ByCategory(txs)
	if byCat == nil {
		byCat = []stats.CategoryTotal{}
	}
	s.statsCache.Set(statsCacheKey(userID, "categories"), byCat)
	respondData(w, http.StatusOK, byCat)
}

// --- budget ---

func (s *Server) handleGetBudget(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	budget, err := s.repo.GetBudget(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "budget not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get budget", err)
		return
	}
	respondData(w, http.StatusOK, budget)
}

func (s *Server) handleCompareBudget(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	budget, err := s.repo.GetBudget(r.Context(), userID)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "budget not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get budget", err)
		return
	}
	from, to := stats.MonthWindow(s.now())
	txs, err := s.repo.TransactionsInRange(r.Context(), userID, from, to)
	if err != nil {
		s.internalError(w, r, "load transactions", err)
		return
	}
	respondData(w, http.StatusOK, stats.CompareBudget(budget, txs))
}

// --- goals ---

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	status := core.GoalStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown goal status")
		return
	}
	goals, err := s.repo.GoalsByUser(r.Context(), userID, status)
	if err != nil {
		s.internalError(w, r, "list goals", err)
		return
	}
	if goals == nil {
		goals = []*core.Goal{}
	}
	for _, g := range goals {
		g.Recompute(s.now())
	}
	respondData(w, http.StatusOK, goals)
}

type goalRequest struct {
	UserID      string            `json:"userId"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Target      decimal.Decimal   `json:"targetAmount"`
	Deadline    *time.Time        `json:"deadline"`
	Category    core.GoalCategory `json:"category"`
	Status      core.GoalStatus   `json:"status"`
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Category == "" {
		req.Category = core.GoalGeneral
	}
	goal := &core.Goal{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Name:        req.Name,
		Description: req.Description,
		Target:      req.Target,
		Current:     decimal.Zero,
		Deadline:    req.Deadline,
		Category:    req.Category,
		Status:      core.GoalActive,
		CreatedAt:   s.now(),
	}
	goal.Recompute(s.now())
	if err := goal.Validate(s.now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.CreateGoal(r.Context(), goal); err != nil {
		s.internalError(w, r, "create goal", err)
		return
	}
	respondData(w, http.StatusCreated, goal)
}

func (s *Server) handleGetGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.repo.GetGoal(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get goal", err)
		return
	}
	goal.Recompute(s.now())
	respondData(w, http.StatusOK, goal)
}

func (s *Server) handleUpdateGoal(w http.ResponseWriter, r *http.Request) {
	goal, err := s.repo.GetGoal(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get goal", err)
		return
	}

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name != "" {
		goal.Name = req.Name
	}
	if req.Description != "" {
		goal.Description = req.Description
	}
	if !req.Target.IsZero() {
		goal.Target = req.Target
	}
	if req.Deadline != nil {
		goal.Deadline = req.Deadline
	}
	if req.Category != "" {
		goal.Category = req.Category
	}
	if req.Status != "" {
		goal.Status = req.Status
	}
	goal.Recompute(s.now())
	if err := goal.Validate(s.now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.UpdateGoal(r.Context(), goal); err != nil {
		s.internalError(w, r, "update goal", err)
		return
	}
	respondData(w, http.StatusOK, goal)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	err := s.repo.DeleteGoal(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "delete goal", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"deleted": mux.Vars(r)["id"]})
}

// handleGoalProgress adds to the saved amount. Deliberately additive:
// posting the same amount twice counts it twice.
func (s *Server) handleGoalProgress(w http.ResponseWriter, r *http.Request) {
	goal, err := s.repo.GetGoal(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get goal", err)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := goal.AddProgress(req.Amount, s.now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.repo.UpdateGoal(r.Context(), goal); err != nil {
		s.internalError(w, r, "update goal", err)
		return
	}
	respondData(w, http.StatusOK, goal)
}

type goalSummary struct {
	Goal          *core.Goal      `json:"goal"`
	Remaining     decimal.Decimal `json:"remaining"`
	DaysLeft      *int            `json:"daysLeft,omitempty"`
	WeeklyTarget  decimal.Decimal `json:"weeklyTarget"`
	MonthlyTarget decimal.Decimal `json:"monthlyTarget"`
}

func (s *Server) handleGoalSummary(w http.ResponseWriter, r *http.Request) {
	goal, err := s.repo.GetGoal(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "goal not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "get goal", err)
		return
	}
	goal.Recompute(s.now())

	remaining := goal.Target.Sub(goal.Current)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	var daysLeft *int
	if goal.Deadline != nil {
		days := int(goal.Deadline.Sub(s.now()).Hours() / 24)
		if days < 0 {
			days = 0
		}
		daysLeft = &days
	}
	respondData(w, http.StatusOK, goalSummary{
		Goal:          goal,
		Remaining:     remaining,
		DaysLeft:      daysLeft,
		WeeklyTarget:  goal.WeeklyTarget,
		MonthlyTarget: goal.MonthlyTarget,
	})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	slog.ErrorContext(r.Context(), "Request failed", "op", op, "error", err, "url", r.URL.Path)
	respondError(w, http.StatusInternalServerError, "internal error")
}
