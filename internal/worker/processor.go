package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/queue"
)

// Runner is the part of the orchestrator the worker needs.
type Runner interface {
	RunParse(ctx context.Context, job batch.ParseJob) error
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	runner Runner
	log    zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(runner Runner) *Processor {
	return &Processor{runner: runner, log: logger.WithComponent("worker")}
}

// Handler registers the parse job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ParseFileTask, p.handleParse)
	return mux
}

func (p *Processor) handleParse(ctx context.Context, task *asynq.Task) error {
	job, err := queue.DecodeParseTask(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := p.runner.RunParse(ctx, job); err != nil {
		if errors.Is(err, model.ErrBatchNotFound) {
			p.log.Warn().Str("batch_id", job.BatchID).Msg("parse task for unknown batch dropped")
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		p.log.Error().Err(err).Str("batch_id", job.BatchID).Str("file_id", job.FileID).Msg("parse task failed")
		return err
	}
	p.log.Debug().Str("batch_id", job.BatchID).Str("file_id", job.FileID).Msg("parse task done")
	return nil
}
