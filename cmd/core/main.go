package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arcade-core/config"
	"arcade-core/internal/adapter/bus"
	httpHandler "arcade-core/internal/adapter/http/handler"
	pgStorage "arcade-core/internal/adapter/storage/postgres"
	redisStorage "arcade-core/internal/adapter/storage/redis"
	"arcade-core/internal/coordinator"
	"arcade-core/internal/core/ports"
	"arcade-core/internal/service"
	"arcade-core/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("client_id", cfg.MQTT.ClientID).
		Int("port", cfg.Server.Port).
		Msg("Starting Arcade Core")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	if err := pgStorage.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("PostgreSQL connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	payoutRepo := pgStorage.NewPayoutRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	voteRepo := pgStorage.NewVoteRepo(pool)
	kvRepo := pgStorage.NewKVRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Optional Redis-backed request dedup
	var dedup ports.RequestDedup
	healthCheckers := []ports.HealthChecker{pgStorage.NewHealthCheck(pool)}
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		dedup = redisStorage.NewDedupStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.NewHealthCheck(rdb))
		log.Info().Msg("Redis connected, request dedup enabled")
	}

	// Ledger service
	ledger := service.NewLedgerService(
		walletRepo, payoutRepo, auditRepo, voteRepo, kvRepo,
		transactor, log,
	)

	// Message bus
	busClient := bus.NewClient(cfg.MQTT, log)
	if err := busClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to message bus")
	}
	defer busClient.Close()

	// Coordinator: subscriptions, mode restore, initial broadcasts
	coord := coordinator.NewCoordinator(ledger, busClient, busClient, dedup, coordinator.Config{
		ExpectedVotes: cfg.Night.ExpectedVotes,
		SinkDevice:    cfg.Payout.SinkDevice,
		DedupTTL:      cfg.Redis.DedupTTL,
	}, log)

	if err := coord.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to request topics")
	}
	if _, err := coord.RestoreMode(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore mode")
	}
	if err := busClient.AnnounceOnline(); err != nil {
		log.Error().Err(err).Msg("Failed to announce presence")
	}
	if err := coord.PushPayouts(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to push initial payout list")
	}

	// Setup Gin router with the admin routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Controller:     coord,
		Ledger:         ledger,
		HealthCheckers: healthCheckers,
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("Admin HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
