package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sundin/kvitto/internal"
	"github.com/sundin/kvitto/internal/billing"
	"github.com/sundin/kvitto/internal/cooldown"
	"github.com/sundin/kvitto/internal/email"
	"github.com/sundin/kvitto/internal/events"
	"github.com/sundin/kvitto/internal/inventory"
	"github.com/sundin/kvitto/internal/postgres"
	"github.com/sundin/kvitto/internal/redisstore"
	"github.com/sundin/kvitto/internal/scheduler"
	"github.com/sundin/kvitto/internal/service"
	"github.com/sundin/kvitto/internal/telemetry"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Redis holds the per-user notification blobs
	redisClient, err := redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	defer redisClient.Close()
	logger.Info("Redis connection established")

	// Stores
	invoiceStore := postgres.NewInvoiceStore(pool)
	blacklistStore := postgres.NewBlacklistStore(pool)
	notificationStore := redisstore.New(redisClient)

	// External providers
	stripeProvider, err := billing.NewStripeProvider(billing.StripeConfig{
		SecretKey: cfg.Stripe.SecretKey,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize stripe provider: %w", err)
	}

	emailClient, err := email.NewClient(email.ClientConfig{
		BaseURL:  cfg.Email.BaseURL,
		APIToken: cfg.Email.APIToken,
		FromAddr: cfg.Email.From,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize email client: %w", err)
	}

	inventoryClient, err := inventory.NewClient(inventory.ClientConfig{
		BaseURL:  cfg.Inventory.BaseURL,
		APIToken: cfg.Inventory.APIToken,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize inventory client: %w", err)
	}

	// Status-change events are optional; without NATS the engine runs
	// standalone and clients poll.
	var publisher events.Publisher
	if cfg.Nats.Enabled {
		natsPublisher, err := events.NewNATSPublisher(events.NATSConfig{
			URL:    cfg.Nats.URL,
			Name:   "kvitto-server",
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer natsPublisher.Close()
		publisher = natsPublisher
		logger.Info("NATS publisher connected", "url", cfg.Nats.URL)
	}

	// Services
	metrics := telemetry.NewMetrics("kvitto")
	notifier := service.NewNotificationService(notificationStore, metrics, logger)

	invoiceService, err := service.NewInvoiceService(service.InvoiceServiceConfig{
		Invoices:        invoiceStore,
		Blacklist:       blacklistStore,
		Notifier:        notifier,
		BillingProvider: stripeProvider,
		EmailSender:     emailClient,
		Stock:           inventoryClient,
		Publisher:       publisher,
		Cooldowns:       cooldown.NewTracker(),
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize invoice service: %w", err)
	}

	digestService := service.NewDigestService(invoiceStore, notificationStore, notifier, metrics, logger)

	// Daily digest scheduler
	loc := time.Local
	if cfg.Digest.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Digest.Timezone)
		if err != nil {
			return fmt.Errorf("invalid digest timezone: %w", err)
		}
	}
	sched, err := scheduler.New(scheduler.Config{
		Invoices:   invoiceService,
		Digest:     digestService,
		DigestHour: cfg.Digest.Hour,
		Location:   loc,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scheduler: %w", err)
	}
	sched.Start()
	defer func() {
		if err := sched.Stop(); err != nil {
			logger.Error("scheduler shutdown failed", "error", err)
		}
	}()

	// Metrics and health endpoints
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	go func() {
		logger.Info("Starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
