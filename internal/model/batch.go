package model

import (
	"fmt"
	"time"
)

// BatchStatus is the lifecycle of one bulk upload.
type BatchStatus string

const (
	BatchUploaded   BatchStatus = "uploaded"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

// Batch groups the files of one upload. TotalFiles and ProcessedFiles are
// derived from the file rows by BatchState.Refresh and never set directly.
type Batch struct {
	ID             string      `json:"id"`
	Status         BatchStatus `json:"status"`
	TotalFiles     int         `json:"total_files"`
	ProcessedFiles int         `json:"processed_files"`
	CreatedBy      string      `json:"created_by,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Open reports whether new files may still be added to the batch.
func (b *Batch) Open() bool {
	return b.Status != BatchCancelled && b.Status != BatchFailed
}

// BatchState is a consistent view of a batch and all of its files. Repositories
// hand one to a mutation callback and persist it atomically afterwards.
type BatchState struct {
	Batch Batch   `json:"batch"`
	Files []*File `json:"files"`
	// NewInvoices collects invoices created during the current mutation; the
	// repository persists them in the same commit as the file changes.
	NewInvoices []*Invoice `json:"-"`
}

// File looks up a file by id.
func (s *BatchState) File(id string) (*File, error) {
	for _, f := range s.Files {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, fmt.Errorf("file %s in batch %s: %w", id, s.Batch.ID, ErrFileNotFound)
}

// AddFile appends f to the batch.
func (s *BatchState) AddFile(f *File) {
	f.BatchID = s.Batch.ID
	s.Files = append(s.Files, f)
}

// RemoveFile drops the file with the given id.
func (s *BatchState) RemoveFile(id string) {
	kept := s.Files[:0]
	for _, f := range s.Files {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	s.Files = kept
}

// Children returns the files split from parentID.
func (s *BatchState) Children(parentID string) []*File {
	var out []*File
	for _, f := range s.Files {
		if f.ParentID == parentID {
			out = append(out, f)
		}
	}
	return out
}

// Refresh recomputes the aggregate counters from the file rows and moves a
// running batch between processing and completed. A processing or completed
// batch is completed exactly when no file is uploaded or parsing.
func (s *BatchState) Refresh(now time.Time) {
	pending := 0
	for _, f := range s.Files {
		if !f.Status.Settled() {
			pending++
		}
	}
	s.Batch.TotalFiles = len(s.Files)
	s.Batch.ProcessedFiles = len(s.Files) - pending
	switch s.Batch.Status {
	case BatchProcessing, BatchCompleted:
		if pending > 0 {
			s.Batch.Status = BatchProcessing
		} else {
			s.Batch.Status = BatchCompleted
		}
	}
	s.Batch.UpdatedAt = now
}

// Clone deep-copies the state. NewInvoices is not carried over.
func (s *BatchState) Clone() *BatchState {
	out := &BatchState{Batch: s.Batch, Files: make([]*File, 0, len(s.Files))}
	for _, f := range s.Files {
		out.Files = append(out.Files, f.Clone())
	}
	return out
}
