package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
)

const (
	// ParseFileTask is scheduled once per file when a batch starts processing.
	ParseFileTask = "invoice:parse"

	maxRetry = 3
)

// NewParseTask serializes job into an asynq task.
func NewParseTask(job batch.ParseJob) (*asynq.Task, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(ParseFileTask, data, asynq.MaxRetry(maxRetry)), nil
}

// DecodeParseTask reads the job back out of a task payload.
func DecodeParseTask(task *asynq.Task) (batch.ParseJob, error) {
	var job batch.ParseJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return job, fmt.Errorf("decode payload: %w", err)
	}
	if job.BatchID == "" || job.FileID == "" {
		return job, fmt.Errorf("decode payload: missing batch or file id")
	}
	return job, nil
}

// Dispatcher enqueues parse jobs on Redis for the worker binary.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher wraps an asynq client.
func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch enqueues job.
func (d *Dispatcher) Dispatch(ctx context.Context, job batch.ParseJob) error {
	task, err := NewParseTask(job)
	if err != nil {
		return err
	}
	if _, err := d.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue parse task: %w", err)
	}
	return nil
}
