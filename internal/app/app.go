// Package app assembles the pipeline from configuration. The API server and
// the worker share it so both processes see the same storage and rules.
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/InvoiceDrop/internal/adjustment"
	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/config"
	"github.com/dharsanguruparan/InvoiceDrop/internal/database"
	"github.com/dharsanguruparan/InvoiceDrop/internal/duplicate"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/parser"
	"github.com/dharsanguruparan/InvoiceDrop/internal/pdfsplit"
	"github.com/dharsanguruparan/InvoiceDrop/internal/repository"
	"github.com/dharsanguruparan/InvoiceDrop/internal/s3storage"
	"github.com/dharsanguruparan/InvoiceDrop/internal/storage"
)

// App holds the backends selected by the configuration.
type App struct {
	cfg      *config.Config
	Repo     batch.Repository
	Files    batch.FileStore
	Parser   parser.Parser
	Splitter *pdfsplit.Splitter
	Engine   *adjustment.Engine
	Detector *duplicate.Detector

	closers []func()
	log     zerolog.Logger
}

// Build connects to Postgres, MinIO and Document AI when configured and
// falls back to in-memory implementations otherwise.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg, log: logger.WithComponent("app")}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.cfg
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		if err := database.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		a.Repo = repository.NewBatchRepository(pool)
		a.log.Info().Msg("using postgres repository")
	} else {
		a.Repo = storage.NewMemoryRepository()
		a.log.Warn().Msg("DATABASE_URL not set, batches are kept in memory")
	}

	if cfg.S3Endpoint != "" {
		store, err := s3storage.New(cfg)
		if err != nil {
			return err
		}
		if err := store.EnsureBuckets(ctx); err != nil {
			return fmt.Errorf("ensure buckets: %w", err)
		}
		a.Files = store
		a.log.Info().Str("endpoint", cfg.S3Endpoint).Msg("using object storage")
	} else {
		a.Files = storage.NewMemoryFileStore()
		a.log.Warn().Msg("S3_ENDPOINT not set, documents are kept in memory")
	}

	switch cfg.Parser {
	case "documentai":
		p, err := parser.NewDocumentAI(ctx, parser.DocumentAIConfig{
			ProjectID:   cfg.DocumentAIProject,
			Location:    cfg.DocumentAILocation,
			ProcessorID: cfg.DocumentAIProcessor,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = p.Close() })
		a.Parser = p
	default:
		a.Parser = parser.NewTextParser()
	}

	engine, err := adjustment.New(adjustment.Options{
		StandardRate:       cfg.StandardVatRate,
		MarketplacePattern: cfg.MarketplacePattern,
		ForeignCurrency:    cfg.ForeignCurrency,
	})
	if err != nil {
		return err
	}
	a.Engine = engine
	a.Detector = duplicate.New(a.Repo, duplicate.Config{
		WindowDays: cfg.DuplicateWindowDays,
		Tolerance:  cfg.DuplicateTolerance,
	})
	a.Splitter = pdfsplit.New(cfg.ParseWorkers)
	return nil
}

// Orchestrator builds the batch orchestrator on top of the selected backends.
func (a *App) Orchestrator(dispatcher batch.Dispatcher, notifier batch.Notifier) *batch.Orchestrator {
	return batch.New(batch.Deps{
		Repo:       a.Repo,
		Files:      a.Files,
		Dispatcher: dispatcher,
		Parser:     a.Parser,
		Splitter:   a.Splitter,
		Detector:   a.Detector,
		Engine:     a.Engine,
		Notifier:   notifier,
	}, a.Options())
}

// Options maps the configuration onto orchestrator options.
func (a *App) Options() batch.Options {
	return batch.Options{
		MaxFileSize:         a.cfg.MaxFileSize,
		MaxBatchFiles:       a.cfg.MaxBatchFiles,
		AllowedExtensions:   a.cfg.AllowedExtensions,
		ConfidenceThreshold: a.cfg.ConfidenceThreshold,
		AllowOverlap:        a.cfg.SplitOverlap != config.OverlapReject,
	}
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
