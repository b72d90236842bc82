// Package batch owns the upload batch and file state machine: intake, parse
// dispatch and write-back, splitting, cancellation and materialization of
// ledger invoices.
//
// Every mutation goes through Repository.Update, so all changes to one batch
// are serialized and the aggregate counters are recomputed from the file rows
// in the same commit.
package batch

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/InvoiceDrop/internal/adjustment"
	"github.com/dharsanguruparan/InvoiceDrop/internal/duplicate"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/parser"
)

// Options are the intake limits and review thresholds.
type Options struct {
	MaxFileSize         int64
	MaxBatchFiles       int
	AllowedExtensions   []string
	ConfidenceThreshold float64
	AllowOverlap        bool
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		MaxFileSize:         20 << 20,
		MaxBatchFiles:       50,
		AllowedExtensions:   []string{"pdf", "jpg", "jpeg", "png"},
		ConfidenceThreshold: 0.8,
		AllowOverlap:        true,
	}
}

// Deps are the collaborators of an Orchestrator. Notifier may be nil.
type Deps struct {
	Repo       Repository
	Files      FileStore
	Dispatcher Dispatcher
	Parser     parser.Parser
	Splitter   Splitter
	Detector   *duplicate.Detector
	Engine     *adjustment.Engine
	Notifier   Notifier
}

// Orchestrator coordinates the ingestion pipeline.
type Orchestrator struct {
	repo       Repository
	files      FileStore
	dispatcher Dispatcher
	parser     parser.Parser
	splitter   Splitter
	detector   *duplicate.Detector
	engine     *adjustment.Engine
	notifier   Notifier
	opts       Options
	allowed    map[string]bool
	now        func() time.Time
	log        zerolog.Logger
}

// New builds an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[normalizeExt(ext)] = true
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Orchestrator{
		repo:       deps.Repo,
		files:      deps.Files,
		dispatcher: deps.Dispatcher,
		parser:     deps.Parser,
		splitter:   deps.Splitter,
		detector:   deps.Detector,
		engine:     deps.Engine,
		notifier:   notifier,
		opts:       opts,
		allowed:    allowed,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.WithComponent("orchestrator"),
	}
}

// Status returns the current batch with all of its files.
func (o *Orchestrator) Status(ctx context.Context, batchID string) (*model.BatchState, error) {
	return o.repo.Load(ctx, batchID)
}

// update wraps Repository.Update, refreshing the aggregates inside the commit
// and publishing the committed state.
func (o *Orchestrator) update(ctx context.Context, batchID string, fn func(*model.BatchState) error) (*model.BatchState, error) {
	state, err := o.repo.Update(ctx, batchID, func(s *model.BatchState) error {
		if err := fn(s); err != nil {
			return err
		}
		s.Refresh(o.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.notifier.Publish(state)
	return state, nil
}
