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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/inbox"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
	mware "github.com/sudo-init-do/gigmarket/internal/middleware"
	"github.com/sudo-init-do/gigmarket/internal/negotiation"
	"github.com/sudo-init-do/gigmarket/internal/user"
	"github.com/sudo-init-do/gigmarket/internal/utils"
	"github.com/sudo-init-do/gigmarket/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		slog.Error("invalid server configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)
	slog.Info("starting gigmarket api", "environment", cfg.Environment, "port", cfg.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.DatabaseURL())
	if err != nil {
		slog.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", "error", err)
		os.Exit(1)
	}

	ledger, closeLedger, err := openLedger(ctx, cfg, pool)
	if err != nil {
		slog.Error("ledger unavailable", "backend", cfg.LedgerBackend, "error", err)
		os.Exit(1)
	}
	defer closeLedger()

	queue := alerts.NewClient(cfg.RedisAddr)
	defer queue.Close()

	hub := messaging.NewHub()
	notifier := alerts.NewNotifier(alerts.NewPgStore(pool), queue, hub)

	jobs := marketplace.NewPgStore(pool)
	market := marketplace.NewService(jobs, negotiation.New(), notifier)
	reviews := marketplace.NewReviewService(jobs, marketplace.NewPgReviewStore(pool))
	chat := messaging.NewService(messaging.NewPgStore(pool), jobs, hub, notifier)

	provider := wallet.NewProviderClient(cfg.PaymentAPIURL, cfg.PaymentKeyID, cfg.PaymentKeySecret, nil)
	gate := wallet.NewGate(wallet.GateConfig{Secret: cfg.PaymentWebhookSecret, Events: cfg.PaymentEvents}, provider, ledger, notifier)
	payments := wallet.NewHandlers(gate, ledger, provider)

	inboxOpts := inbox.Options{
		Debounce:         cfg.InboxReloadDebounce,
		PrefetchCount:    cfg.InboxPrefetchCount,
		PrefetchInterval: cfg.InboxPrefetchInterval,
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = utils.NewValidator()
	e.Use(middleware.Recover())
	e.Use(mware.RequestLogger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// The provider retries on non-2xx, so the limiter only sheds floods.
	hooks := e.Group("/webhooks")
	hooks.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	hooks.POST("/payments", payments.Webhook)

	api := e.Group("")
	api.Use(mware.JWT([]byte(cfg.JWTSecret)))
	marketplace.NewHandlers(market).Register(api)
	marketplace.NewReviewHandlers(reviews).Register(api)
	user.NewHandlers(user.NewPgStore(pool)).Register(api)
	messaging.NewHandlers(chat, hub, jobs, notifier, inboxOpts).AllowOrigins(cfg.AllowedOrigins).Register(api)
	alerts.NewHandlers(notifier).Register(api)
	payments.Register(api)

	e.Server.ReadHeaderTimeout = 15 * time.Second
	e.Server.IdleTimeout = 60 * time.Second
	go func() {
		slog.Info("http server listening", "port", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// openLedger picks the idempotency ledger backend. The returned func
// releases backend resources.
func openLedger(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (wallet.Ledger, func(), error) {
	if cfg.LedgerBackend != config.LedgerMongo {
		return wallet.NewPgLedger(pool), func() {}, nil
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}
	ledger := wallet.NewMongoLedger(client, cfg.MongoDB)
	if err := ledger.EnsureIndexes(ctx); err != nil {
		slog.Warn("failed to create ledger indexes", "error", err)
	}
	slog.Info("using mongodb ledger", "db", cfg.MongoDB)
	return ledger, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			slog.Error("failed to disconnect mongodb", "error", err)
		}
	}, nil
}
