package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"cardamage/internal/cache"
	"cardamage/internal/config"
	"cardamage/internal/log"
	"cardamage/internal/queue"
	"cardamage/internal/tasks"
	"cardamage/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.LogLevel, "worker")

	client, err := cache.NewRedisClient(context.Background(), cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	sender := webhook.NewClient(cfg.Webhook)
	if !sender.Enabled() {
		logger.Fatal().Msg("webhook.url is required for the delivery worker")
	}

	processor := tasks.NewDeliveryProcessor(sender, logger)
	consumer := queue.NewConsumer(client, queue.Options{
		Stream:        cfg.Webhook.Stream,
		Group:         cfg.Worker.Group,
		Consumer:      cfg.Worker.Consumer,
		ClaimInterval: cfg.Worker.ClaimInterval,
		MaxDeliveries: cfg.Worker.MaxDeliveries,
	}, logger, processor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("stream", cfg.Webhook.Stream).
		Str("group", cfg.Worker.Group).
		Msg("delivery worker started")

	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
	}
	logger.Info().Msg("worker exited cleanly")
}
