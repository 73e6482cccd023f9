package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cardamage/internal/cache"
	"cardamage/internal/config"
	"cardamage/internal/database"
	"cardamage/internal/handlers"
	"cardamage/internal/jobs"
	"cardamage/internal/log"
	"cardamage/internal/repository"
	"cardamage/internal/server"
	"cardamage/internal/service"
	"cardamage/internal/storage"
	"cardamage/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel, "api")
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	if err := database.EnsureSchema(ctx, dbPool); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure schema")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logger.Info().Msg("redis not configured")
	case err != nil:
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	notifier := newNotifier(cfg, redisClient, logger)

	assessments := repository.NewAssessmentRepository(dbPool)
	intake := service.NewIntakeService(objectStore, assessments, notifier, cfg.Intake.MaxUploadBytes, logger)
	assessmentService := service.NewAssessmentService(assessments)

	handlerSet := handlers.NewHandlerSet(logger, cfg, handlers.Dependencies{
		Intake:      intake,
		Assessments: assessmentService,
		Database:    assessments,
		Cache:       cache.Probe{Client: redisClient},
		Storage:     objectStore,
	})
	httpServer, err := server.NewHTTPServer(cfg, logger, handlerSet)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build http server")
	}

	var stream string
	if cfg.Webhook.Delivery == config.DeliveryStream {
		stream = cfg.Webhook.Stream
	}
	scheduler := jobs.NewScheduler(cfg.Jobs, assessments, redisClient, stream, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, notifier, dbPool, redisClient)
}

func newNotifier(cfg *config.AppConfig, redisClient *redis.Client, logger zerolog.Logger) webhook.Notifier {
	client := webhook.NewClient(cfg.Webhook)
	if !client.Enabled() {
		logger.Warn().Msg("webhook url not configured, notifications disabled")
		return webhook.NewDisabledNotifier(logger)
	}

	if cfg.Webhook.Delivery == config.DeliveryStream {
		if redisClient == nil {
			logger.Fatal().Msg("webhook.delivery=stream requires redis")
		}
		logger.Info().Str("stream", cfg.Webhook.Stream).Msg("notifications queued for worker")
		return webhook.NewStreamNotifier(redisClient, cfg.Webhook.Stream, cfg.Webhook.StreamMaxLen)
	}

	return webhook.NewAsyncNotifier(client, cfg.Webhook.Timeout, logger)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, notifier webhook.Notifier, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop(shutdownCtx)
	notifier.Wait()

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
