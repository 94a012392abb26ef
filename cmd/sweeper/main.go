package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"bought/internal/alert"
	"bought/internal/bot"
	"bought/internal/config"
	"bought/internal/oracle"
	"bought/internal/storage"
	"bought/internal/transport"
)

// The sweeper runs the scheduled jobs: the daily budget check and the
// end-of-month spending report. It shares the database with the main
// server but keeps its own process so a slow sweep never blocks the
// webhook.
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting sweeper")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	orc, err := oracle.NewGemini(ctx, cfg.GeminiModel)
	if err != nil {
		logger.Error("Failed to initialize Gemini client", "error", err, "model", cfg.GeminiModel)
		os.Exit(1)
	}

	var sender transport.Sender
	if cfg.Transport == "cloud" {
		sender = transport.NewCloudClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID, cfg.WhatsAppVerifyToken)
	} else {
		sender = transport.NewConsoleSender(os.Stdout)
	}

	alerts := alert.NewEngine(repo, sender, cfg.SweepConcurrency)
	controller := bot.NewController(repo, orc, alerts, sender, nil)

	c := cron.New()

	if _, err := c.AddFunc(cfg.SweepSchedule, func() {
		jobCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		logger.Info("Running budget sweep")
		if err := alerts.Sweep(jobCtx); err != nil {
			logger.Error("Budget sweep failed", "error", err)
		}
	}); err != nil {
		logger.Error("Invalid sweep schedule", "error", err, "schedule", cfg.SweepSchedule)
		os.Exit(1)
	}

	if _, err := c.AddFunc(cfg.ReportSchedule, func() {
		// Monthly reports only fire on the last day of the month.
		now := time.Now()
		if now.AddDate(0, 0, 1).Day() != 1 {
			return
		}
		jobCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		logger.Info("Running monthly report sweep")
		if err := controller.ReportSweep(jobCtx); err != nil {
			logger.Error("Monthly report sweep failed", "error", err)
		}
	}); err != nil {
		logger.Error("Invalid report schedule", "error", err, "schedule", cfg.ReportSchedule)
		os.Exit(1)
	}

	c.Start()
	logger.Info("Sweeper scheduled", "sweep", cfg.SweepSchedule, "report", cfg.ReportSchedule)

	<-ctx.Done()
	cronCtx := c.Stop()
	<-cronCtx.Done()
	logger.Info("Sweeper stopped gracefully")
}
