package batch

import (
	"context"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// Cancel stops a batch that has not started processing. Every file is
// failed with a cancellation reason.
func (o *Orchestrator) Cancel(ctx context.Context, batchID string) (*model.BatchState, error) {
	state, err := o.update(ctx, batchID, func(s *model.BatchState) error {
		if s.Batch.Status != model.BatchUploaded {
			return model.NewBatchStateError("cancel", &s.Batch)
		}
		s.Batch.Status = model.BatchCancelled
		for _, f := range s.Files {
			if f.Status != model.FileCompleted {
				f.Fail(reasonCancelled)
				f.UpdatedAt = o.now()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info().Str("batch_id", batchID).Msg("batch cancelled")
	return state, nil
}

// RemoveFile drops an uploaded or failed file from its batch.
func (o *Orchestrator) RemoveFile(ctx context.Context, batchID, fileID string) (*model.BatchState, error) {
	state, err := o.update(ctx, batchID, func(s *model.BatchState) error {
		f, err := s.File(fileID)
		if err != nil {
			return err
		}
		if f.Status != model.FileUploaded && f.Status != model.FileFailed {
			return model.NewFileStateError("remove", f)
		}
		s.RemoveFile(fileID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info().Str("batch_id", batchID).Str("file_id", fileID).Msg("file removed")
	return state, nil
}
