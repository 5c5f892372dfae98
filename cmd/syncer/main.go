package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"discussion_syncer/internal/config"
	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/publisher"
	"discussion_syncer/internal/resolve"
	"discussion_syncer/internal/scheduler"
	"discussion_syncer/internal/service"
	"discussion_syncer/internal/source/ok"
	"discussion_syncer/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// A nil interface disables publishing; a typed nil pointer would not.
	var pub service.Publisher
	if cfg.RabbitMQ.IsEnabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitMQ.Close()
		pub = rabbitMQ
	} else {
		logger.Info("publishing disabled")
	}

	// Initialize stores
	stores := service.Stores{
		Actors:      postgres.NewActorStore(db),
		Discussions: postgres.NewDiscussionStore(db),
		Comments:    postgres.NewCommentStore(db),
		Polls:       postgres.NewPollStore(db),
		Likes:       postgres.NewLikeStore(db),
		SyncState:   postgres.NewSyncStateStore(db),
	}
	txManager := postgres.NewTransactionManager(db)

	client := ok.New(ok.Config{
		BaseURL:           cfg.API.BaseURL,
		ApplicationKey:    cfg.API.ApplicationKey,
		ApplicationSecret: cfg.API.ApplicationSecret,
		AccessToken:       cfg.API.AccessToken,
		Timeout:           cfg.API.Timeout,
		MaxAttempts:       cfg.API.Retry.MaxAttempts,
		InitialBackoff:    cfg.API.Retry.InitialBackoff,
		MaxBackoff:        cfg.API.Retry.MaxBackoff,
	}, logger)

	resolver := resolve.New(stores.Actors, resolve.Registry{
		domain.KindUser:  ok.NewUserFetcher(client),
		domain.KindGroup: ok.NewGroupFetcher(client),
	}, logger)

	syncService := service.NewSyncService(
		client,
		stores,
		resolver,
		txManager,
		pub,
		logger,
		cfg.Sync,
	)

	sched := scheduler.NewScheduler(syncService, cfg.Sync.Interval, cfg.Sync.RunTimeout, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	logger.Info("starting discussion syncer",
		"owners", len(cfg.Sync.Owners),
		"interval", cfg.Sync.Interval,
		"max_pages", cfg.Sync.MaxPagesPerSync,
		"metrics_addr", cfg.Metrics.Addr,
	)

	err = sched.Start(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		os.Exit(1)
	}
}

func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
