package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/dharsanguruparan/InvoiceDrop/internal/app"
	"github.com/dharsanguruparan/InvoiceDrop/internal/config"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/queue"
	"github.com/dharsanguruparan/InvoiceDrop/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logger.Setup(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("setup logger")
	}
	if !cfg.Distributed() || cfg.DatabaseURL == "" || cfg.S3Endpoint == "" {
		log.Fatal().Msg("the worker needs REDIS_ADDR, DATABASE_URL and S3_ENDPOINT; without them the API server parses in-process")
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	defer a.Close()

	redis := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	// The worker only runs RunParse; the dispatcher is there to satisfy the
	// orchestrator.
	client := asynq.NewClient(redis)
	defer client.Close()
	orch := a.Orchestrator(queue.NewDispatcher(client), nil)

	server := asynq.NewServer(redis, asynq.Config{
		Concurrency: cfg.ParseWorkers,
	})
	processor := worker.NewProcessor(orch)

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	log.Info().Int("concurrency", cfg.ParseWorkers).Msg("worker started")
	if err := server.Run(processor.Handler()); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
