// Package processing runs parse jobs on a bounded in-process goroutine pool.
// It is used when no Redis is configured, so the API server parses files
// itself.
package processing

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
)

// ErrNotStarted is returned by Dispatch before Start or after shutdown.
var ErrNotStarted = errors.New("processor not running")

// Handler runs one parse job.
type Handler func(ctx context.Context, job batch.ParseJob) error

// Processor accepts jobs without blocking and runs at most `workers` of them
// at a time. Jobs beyond that wait for a slot instead of being dropped.
type Processor struct {
	sem     *semaphore.Weighted
	workers int

	mu      sync.RWMutex
	ctx     context.Context
	handler Handler
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// New builds a Processor with the given concurrency.
func New(workers int) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		log:     logger.WithComponent("processor"),
	}
}

// Start binds the handler. Jobs stop being picked up once ctx is cancelled
// (triggered by signal handling in main.go).
func (p *Processor) Start(ctx context.Context, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ctx = ctx
	p.handler = h
	p.log.Info().Int("workers", p.workers).Msg("processor started")
}

// Dispatch queues a job and returns immediately.
func (p *Processor) Dispatch(_ context.Context, job batch.ParseJob) error {
	p.mu.RLock()
	ctx, h := p.ctx, p.handler
	p.mu.RUnlock()
	if h == nil || ctx.Err() != nil {
		return ErrNotStarted
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// Acquire blocks while every slot is busy and fails only on shutdown.
		if err := p.sem.Acquire(ctx, 1); err != nil {
			p.log.Warn().Str("batch_id", job.BatchID).Str("file_id", job.FileID).Msg("job abandoned on shutdown")
			return
		}
		defer p.sem.Release(1)
		if err := h(ctx, job); err != nil {
			p.log.Error().Err(err).Str("batch_id", job.BatchID).Str("file_id", job.FileID).Msg("parse job failed")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (p *Processor) Wait() {
	p.wg.Wait()
}
