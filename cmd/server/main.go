package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/config"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/infra"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/middleware"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/repository"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/router"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: dev pretty, prod JSON
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.ServiceName).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetry, err := infra.NewTelemetry(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start telemetry")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	rdb, err := infra.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}

	// Background jobs are wired here (composition root) so the pool has
	// full access to the infrastructure.
	mailer := infra.NewMailer(cfg)
	smtpCB := infra.NewCircuitBreaker(infra.DefaultCBConfig("smtp"))
	workerHandlers := &worker.WorkerHandlers{
		StockAlert: worker.NewStockAlertWorker(mailer, smtpCB, cfg.AlertEmailTo),
	}
	worker.StartWorkerPool(ctx, rdb, workerHandlers, cfg.WorkerPoolSize)
	worker.StartStockAudit(ctx, worker.StockAuditConfig{
		Products: repository.NewProductRepository(db),
		Interval: cfg.StockAuditInterval,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	go limiter.RunPurge(ctx, 5*time.Minute)

	r := router.New(cfg, db, rdb, limiter)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("sales engine listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("telemetry flush failed")
	}
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}
	log.Info().Msg("server exited")
}
