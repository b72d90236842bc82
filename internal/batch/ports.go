package batch

import (
	"context"
	"fmt"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/pdfsplit"
)

// Repository persists batch state. Update runs fn against a private copy of
// the batch while holding the batch lock and commits the copy only if fn
// returns nil. Invoices appended to BatchState.NewInvoices are stored in the
// same commit.
type Repository interface {
	Create(ctx context.Context, state *model.BatchState) error
	Load(ctx context.Context, batchID string) (*model.BatchState, error)
	Update(ctx context.Context, batchID string, fn func(*model.BatchState) error) (*model.BatchState, error)
	FindInvoices(ctx context.Context, q model.InvoiceQuery) ([]*model.Invoice, error)
}

// FileStore keeps raw documents and rendered previews.
type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	ReadRange(ctx context.Context, key string, offset, length int64) ([]byte, error)
}

// ParseJob identifies one file to parse.
type ParseJob struct {
	BatchID string `json:"batch_id"`
	FileID  string `json:"file_id"`
}

// Dispatcher hands parse jobs to whatever runs them. Dispatch must not wait
// for the parse to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, job ParseJob) error
}

// Splitter counts, splits and previews PDF pages.
type Splitter interface {
	PageCount(data []byte) (int, error)
	Extract(ctx context.Context, data []byte, ranges []pdfsplit.PageRange) ([][]byte, error)
	RenderPages(ctx context.Context, data []byte) ([]pdfsplit.Page, error)
}

// Notifier is told about every committed batch change.
type Notifier interface {
	Publish(state *model.BatchState)
}

type noopNotifier struct{}

func (noopNotifier) Publish(*model.BatchState) {}

// RawKey is the FileStore key of an original document.
func RawKey(contentHash string) string {
	return "raw/" + contentHash
}

// PreviewKey is the FileStore key of one rendered page.
func PreviewKey(contentHash string, page int) string {
	return fmt.Sprintf("thumbs/%s/%d", contentHash, page)
}
