// Package main is the entry point of the InvoiceDrop API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/dharsanguruparan/InvoiceDrop/internal/app"
	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/config"
	"github.com/dharsanguruparan/InvoiceDrop/internal/events"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/processing"
	"github.com/dharsanguruparan/InvoiceDrop/internal/queue"
	"github.com/dharsanguruparan/InvoiceDrop/internal/server"
	"github.com/dharsanguruparan/InvoiceDrop/internal/signing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := logger.Setup(cfg.Log); err != nil {
		log.Fatal().Err(err).Msg("setup logger")
	}

	// Cancelled on SIGINT/SIGTERM; every background goroutine watches it.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build pipeline")
	}
	defer a.Close()

	hub := events.NewHub()
	var (
		dispatcher batch.Dispatcher
		pool       *processing.Processor
	)
	if cfg.Distributed() {
		client := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		dispatcher = queue.NewDispatcher(client)
		log.Info().Str("redis", cfg.RedisAddr).Msg("parse jobs go to the asynq worker")
	} else {
		pool = processing.New(cfg.ParseWorkers)
		dispatcher = pool
	}

	orch := a.Orchestrator(dispatcher, hub)
	if pool != nil {
		pool.Start(ctx, orch.RunParse)
	}

	srv := server.New(cfg, server.Deps{
		Batches: orch,
		Files:   a.Files,
		Hub:     hub,
		Signer:  signing.NewSigner(cfg.SigningSecret),
	})
	if err := srv.Serve(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
	if pool != nil {
		pool.Wait()
	}
}
