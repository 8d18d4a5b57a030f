package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/sheikh-saqib/bank-ledger-engine/internal/accounts"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/auth"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/config"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/events"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/events/kafka"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/interfaces"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/ledger"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/server"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/storage/memory"
	"github.com/sheikh-saqib/bank-ledger-engine/internal/storage/postgres"
	"github.com/sheikh-saqib/bank-ledger-engine/pkg/metrics"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	publisher, closePublisher := openPublisher(cfg, logger)

	guard := auth.NewGuard(store)
	engine := ledger.NewLedger(store, guard, publisher, logger, cfg.LockWait)
	accountService := accounts.NewService(store, logger)
	collector := metrics.NewCollector(logger)

	srv := server.New(engine, accountService, store, collector, logger)
	metricsServer := collector.StartServer(cfg.MetricsAddr)

	go func() {
		logger.Info("starting server",
			slog.String("port", cfg.Port),
			slog.String("env", cfg.Env))
		if err := srv.Listen(":" + cfg.Port); err != nil {
			logger.Error("server stopped", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if err := metricsServer.Shutdown(ctx); err != nil {
		logger.Error("metrics server shutdown failed", slog.String("error", err.Error()))
	}
	closePublisher()
	closeStore()
	logger.Info("shutdown complete")
}

// openStore picks postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise.
func openStore(cfg *config.Config, logger *slog.Logger) (interfaces.LedgerStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.Info("using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, nil, err
	}

	store := postgres.NewStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, nil, err
	}

	logger.Info("using postgres store")
	return store, func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", slog.String("error", err.Error()))
		}
	}, nil
}

func openPublisher(cfg *config.Config, logger *slog.Logger) (interfaces.EventPublisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("no kafka brokers configured, events disabled")
		return events.NopPublisher{}, func() {}
	}

	publisher := kafka.NewPublisher(cfg.KafkaBrokers)
	logger.Info("publishing events to kafka", slog.Any("brokers", cfg.KafkaBrokers))
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			logger.Error("failed to close kafka writer", slog.String("error", err.Error()))
		}
	}
}
