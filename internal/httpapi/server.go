// Package httpapi serves the dashboard REST surface and the chat
// webhook.
package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"bought/internal/cache"
	"bought/internal/storage"
	"bought/internal/transport"
)

const (
	statsCacheSize = 1024
	statsCacheTTL  = 30 * time.Second
)

// WebhookVerifier handles the provider's subscription handshake.
type WebhookVerifier interface {
	VerifyWebhook(mode, token, challenge string) (string, bool)
}

// Dispatcher receives inbound chat messages after the webhook has
// already been acknowledged. Implementations must not block the
// webhook response path.
type Dispatcher func(ctx context.Context, msg transport.InboundMessage)

type Server struct {
	http.Server
	repo        *storage.SQLiteRepository
	verifier    WebhookVerifier
	dispatch    Dispatcher
	rateLimiter *rateLimiter
	// statsCache shields the database from dashboard polling. Entries
	// are keyed "stats:<userID>:<view>" so a write can invalidate one
	// owner's views with a prefix delete.
	statsCache *cache.LRU[any]
	cacheStop  chan struct{}
	// allowedSender, when set, drops messages from anyone else before
	// they reach the chat flow.
	allowedSender string
	shutdownOnce  sync.Once
	now           func() time.Time
}

// NewServer wires routes and middleware, returning a ready-to-run
// server. verifier and dispatch may be nil when the webhook surface is
// not used (API-only deployments).
func NewServer(addr string, repo *storage.SQLiteRepository, verifier WebhookVerifier, dispatch Dispatcher, allowedSender string) *Server {
	s := &Server{
		repo:          repo,
		verifier:      verifier,
		dispatch:      dispatch,
		rateLimiter:   newRateLimiter(),
		statsCache:    cache.New[any](statsCacheSize, statsCacheTTL),
		cacheStop:     make(chan struct{}),
		allowedSender: allowedSender,
		now:           time.Now,
	}
	go s.cacheCleanupLoop()

	r := mux.NewRouter()
	r.Use(s.withSecurityHeaders)
	r.Use(s.withRequestLogging)

	r.HandleFunc("/webhook", s.handleWebhookVerify).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.handleWebhookDelivery).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/transactions", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleGetTransaction).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	api.HandleFunc("/stats/daily", s.handleStats(statsDaily)).Methods(http.MethodGet)
	api.HandleFunc("/stats/weekly", s.handleStats(statsWeekly)).Methods(http.MethodGet)
	api.HandleFunc("/stats/monthly", s.handleStats(statsMonthly)).Methods(http.MethodGet)
	api.HandleFunc("/stats/categories", s.handleStatsCategories).Methods(http.MethodGet)

	api.HandleFunc("/budget", s.handleGetBudget).Methods(http.MethodGet)
	api.HandleFunc("/budget/compare", s.handleCompareBudget).Methods(http.MethodGet)

	api.HandleFunc("/goals", s.handleListGoals).Methods(http.MethodGet)
	api.HandleFunc("/goals", s.handleCreateGoal).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}", s.handleGetGoal).Methods(http.MethodGet)
	api.HandleFunc("/goals/{id}", s.handleUpdateGoal).Methods(http.MethodPut)
	api.HandleFunc("/goals/{id}", s.handleDeleteGoal).Methods(http.MethodDelete)
	api.HandleFunc("/goals/{id}/progress", s.handleGoalProgress).Methods(http.MethodPost)
	api.HandleFunc("/goals/{id}/summary", s.handleGoalSummary).Methods(http.MethodGet)

	s.Server = http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

// Shutdown stops the listener and the rate limiter's cleanup loop.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		close(s.cacheStop)
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) cacheCleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.statsCache.CleanExpired()
		case <-s.cacheStop:
			return
		}
	}
}

func statsCacheKey(userID, view string) string {
	return "stats:" + userID + ":" + view
}

// invalidateStats drops an owner's cached dashboard views after a write.
func (s *Server) invalidateStats(userID string) {
	s.statsCache.DeletePrefix("stats:" + userID + ":")
}

func (s *Server) withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Resource-Policy", "same-origin")
		if r.TLS != nil {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withRequestLogging logs each request, tags it with an id, and rate
// limits mutating methods per client IP.
func (s *Server) withRequestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := r.Context()
		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// The webhook is exempt: the provider retries on anything but
		// a prompt 200.
		if r.Method != http.MethodGet && r.URL.Path != "/webhook" && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
