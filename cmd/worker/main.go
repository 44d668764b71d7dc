package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
)

// The worker drains the email queues filled by the api.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
	slog.Info("starting gigmarket worker", "environment", cfg.Environment, "redis", cfg.RedisAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	mailer := alerts.NewMailer(cfg.PlunkAPIKey, cfg.PlunkFrom, cfg.PlunkAPIURL)
	if _, ok := mailer.(alerts.LogMailer); ok {
		slog.Warn("PLUNK_API_KEY not set, emails are only logged")
	}
	processor := alerts.NewProcessor(alerts.NewPgDirectory(pool), mailer)

	srv := alerts.NewServer(cfg.RedisAddr)
	if err := srv.Start(processor.Mux()); err != nil {
		slog.Error("asynq server failed to start", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down worker")
	srv.Shutdown()
	slog.Info("worker stopped")
}
