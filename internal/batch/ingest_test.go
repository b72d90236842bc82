package batch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

func TestIngestCreatesBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.Ingest(ctx, "", "alice", []Upload{
		pdfUpload("a.pdf", 2),
		{Name: "receipt.PNG", ContentType: "image/png", Data: []byte("\x89PNG fake")},
	})
	require.NoError(t, err)
	require.Len(t, res.Accepted, 2)
	assert.Empty(t, res.Rejected)

	s := h.state(t, res.BatchID)
	assert.Equal(t, model.BatchUploaded, s.Batch.Status)
	assert.Equal(t, "alice", s.Batch.CreatedBy)
	assert.Equal(t, 2, s.Batch.TotalFiles)
	assert.Equal(t, 0, s.Batch.ProcessedFiles)

	pdf, err := s.File(res.Accepted[0])
	require.NoError(t, err)
	assert.Equal(t, model.FileUploaded, pdf.Status)
	assert.Equal(t, 2, pdf.PageCount)
	assert.Equal(t, "pdf", pdf.Extension)

	ok, err := h.files.Exists(ctx, RawKey(pdf.ContentHash))
	require.NoError(t, err)
	assert.True(t, ok)

	img, err := s.File(res.Accepted[1])
	require.NoError(t, err)
	assert.Equal(t, "png", img.Extension)
	assert.Zero(t, img.PageCount)
}

func TestIngestRejectsWholeCall(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxFileSize = 64 })
	good := pdfUpload("good.pdf", 1)

	_, err := h.orch.Ingest(context.Background(), "", "", []Upload{
		good,
		{Name: "notes.txt", Data: []byte("hello")},
		{Name: "huge.pdf", Data: []byte("%PDF-fake pages=1 " + strings.Repeat("x", 100))},
		good,
		{Name: "empty.pdf"},
		{Name: "broken.pdf", Data: []byte("garbage")},
	})

	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	reasons := map[string]string{}
	for _, r := range ve.Rejections {
		reasons[r.Name] = r.Reason
	}
	assert.Len(t, ve.Rejections, 5)
	assert.Contains(t, reasons["notes.txt"], "not allowed")
	assert.Contains(t, reasons["huge.pdf"], "limit")
	assert.Contains(t, reasons["good.pdf"], "duplicate")
	assert.Contains(t, reasons["empty.pdf"], "empty")
	assert.Contains(t, reasons["broken.pdf"], "PDF")

	ok, err := h.files.Exists(context.Background(), RawKey(contentHash(good.Data)))
	require.NoError(t, err)
	assert.False(t, ok, "nothing may be stored for a rejected call")
}

func TestIngestIntoExistingBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.ingest(t, "a.pdf")

	res, err := h.orch.Ingest(ctx, first.BatchID, "", []Upload{pdfUpload("b.pdf", 1)})
	require.NoError(t, err)
	assert.Equal(t, first.BatchID, res.BatchID)
	assert.Equal(t, 2, h.state(t, first.BatchID).Batch.TotalFiles)

	_, err = h.orch.Ingest(ctx, first.BatchID, "", []Upload{pdfUpload("a.pdf", 1)})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	require.Len(t, ve.Rejections, 1)
	assert.Equal(t, "a.pdf", ve.Rejections[0].Name)
}

func TestIngestEnforcesBatchLimit(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.MaxBatchFiles = 2 })
	ctx := context.Background()

	_, err := h.orch.Ingest(ctx, "", "", []Upload{pdfUpload("a.pdf", 1), pdfUpload("b.pdf", 1), pdfUpload("c.pdf", 1)})
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))

	res := h.ingest(t, "a.pdf", "b.pdf")
	_, err = h.orch.Ingest(ctx, res.BatchID, "", []Upload{pdfUpload("c.pdf", 1)})
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Message, "limit")
}

func TestIngestUnknownOrClosedBatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orch.Ingest(ctx, "missing", "", []Upload{pdfUpload("a.pdf", 1)})
	assert.True(t, errors.Is(err, model.ErrBatchNotFound))

	res := h.ingest(t, "a.pdf")
	_, err = h.orch.Cancel(ctx, res.BatchID)
	require.NoError(t, err)
	_, err = h.orch.Ingest(ctx, res.BatchID, "", []Upload{pdfUpload("b.pdf", 1)})
	var ise *model.InvalidStateError
	assert.True(t, errors.As(err, &ise))
}

func TestIngestFlagsMarketplaceFilenames(t *testing.T) {
	h := newHarness(t)
	res := h.ingest(t, "AMZN-order-771.pdf", "musgrave.pdf")
	s := h.state(t, res.BatchID)

	amzn, _ := s.File(res.Accepted[0])
	other, _ := s.File(res.Accepted[1])
	assert.True(t, amzn.PaymentRequired)
	assert.False(t, other.PaymentRequired)
}

func TestIngestEmptyCall(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Ingest(context.Background(), "", "", nil)
	var ve *model.ValidationError
	assert.True(t, errors.As(err, &ve))
}
