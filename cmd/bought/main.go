package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bought/internal/alert"
	"bought/internal/bot"
	"bought/internal/config"
	"bought/internal/httpapi"
	"bought/internal/oracle"
	"bought/internal/queue"
	"bought/internal/storage"
	"bought/internal/transport"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("Starting bought")

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

	var (
		sender   transport.Sender
		media    transport.MediaDownloader
		verifier httpapi.WebhookVerifier
	)
	switch cfg.Transport {
	case "cloud":
		cloud := transport.NewCloudClient(cfg.WhatsAppToken, cfg.WhatsAppPhoneID, cfg.WhatsAppVerifyToken)
		sender, media, verifier = cloud, cloud, cloud
		logger.Info("Initialized WhatsApp Cloud transport", "phone_id", cfg.WhatsAppPhoneID)
	default:
		sender = transport.NewConsoleSender(os.Stdout)
		logger.Info("Initialized console transport")
	}

	alerts := alert.NewEngine(repo, sender, cfg.SweepConcurrency)
	controller := bot.NewController(repo, orc, alerts, sender, media)

	// With a queue configured the webhook only publishes; a consumer
	// goroutine feeds the controller. Without one the webhook
	// dispatches straight into the controller.
	var dispatch httpapi.Dispatcher
	var producer *queue.Client
	if cfg.AMQPURL != "" {
		producer, err = queue.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to connect to AMQP", "error", err, "url", cfg.AMQPURL)
			os.Exit(1)
		}
		defer producer.Close()
		dispatch = func(ctx context.Context, msg transport.InboundMessage) {
			if err := producer.PublishInbound(ctx, queue.NewInboundEvent(msg)); err != nil {
				slog.ErrorContext(ctx, "Failed to publish inbound message", "error", err, "from", msg.From)
			}
		}
		logger.Info("AMQP queue enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		dispatch = func(ctx context.Context, msg transport.InboundMessage) {
			if err := controller.HandleMessage(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message", "error", err, "from", msg.From)
			}
		}
	}

	srv := httpapi.NewServer(":"+cfg.Port, repo, verifier, dispatch, cfg.AllowedSender)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.AMQPURL != "" {
		g.Go(func() error {
			return queue.ConsumeWithReconnect(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, func(event *queue.InboundEvent) error {
				return controller.HandleMessage(gctx, event.Message())
			})
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
