package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

func ingestPDF(t *testing.T, h *harness, name string, pages int) (string, string) {
	t.Helper()
	res, err := h.orch.Ingest(context.Background(), "", "", []Upload{pdfUpload(name, pages)})
	require.NoError(t, err)
	return res.BatchID, res.Accepted[0]
}

func TestSplitPerPage(t *testing.T) {
	h := newHarness(t)
	batchID, parentID := ingestPDF(t, h, "scan.pdf", 3)
	before := h.file(t, batchID, parentID)

	res, err := h.orch.Split(context.Background(), batchID, parentID, SplitPerPage, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SplitCount)

	s := h.state(t, batchID)
	assert.Equal(t, 4, s.Batch.TotalFiles)
	parent, _ := s.File(parentID)
	assert.Equal(t, before, parent, "parent must be left untouched")

	children := s.Children(parentID)
	require.Len(t, children, 3)
	pages := 0
	for i, c := range children {
		assert.Equal(t, model.FileUploaded, c.Status)
		assert.Equal(t, parentID, c.ParentID)
		assert.Equal(t, []string{"1", "2", "3"}[i], c.PageRange)
		assert.Equal(t, 1, c.PageCount)
		pages += c.PageCount
		ok, err := h.files.Exists(context.Background(), RawKey(c.ContentHash))
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, "scan_p2.pdf", children[1].Name)
}

func TestSplitCustomRanges(t *testing.T) {
	h := newHarness(t)
	batchID, parentID := ingestPDF(t, h, "scan.pdf", 4)

	res, err := h.orch.Split(context.Background(), batchID, parentID, SplitCustom, []string{"1", "2-4"})
	require.NoError(t, err)
	require.Equal(t, 2, res.SplitCount)
	assert.Equal(t, "2-4", res.Files[1].PageRange)
	assert.Equal(t, 3, res.Files[1].PageCount)
}

func TestSplitRejectsBadRanges(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID, parentID := ingestPDF(t, h, "scan.pdf", 2)

	for _, specs := range [][]string{nil, {"3"}, {"0-1"}, {"x"}} {
		_, err := h.orch.Split(ctx, batchID, parentID, SplitCustom, specs)
		var se *model.SplitError
		assert.True(t, errors.As(err, &se), "%v: %v", specs, err)
	}
	assert.Equal(t, 1, h.state(t, batchID).Batch.TotalFiles, "failed splits add nothing")
}

func TestSplitOverlapPolicy(t *testing.T) {
	ctx := context.Background()

	allow := newHarness(t)
	batchID, parentID := ingestPDF(t, allow, "scan.pdf", 3)
	res, err := allow.orch.Split(ctx, batchID, parentID, SplitCustom, []string{"1-2", "2-3"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.SplitCount)

	reject := newHarness(t, func(o *Options) { o.AllowOverlap = false })
	batchID, parentID = ingestPDF(t, reject, "scan.pdf", 3)
	_, err = reject.orch.Split(ctx, batchID, parentID, SplitCustom, []string{"1-2", "2-3"})
	var se *model.SplitError
	assert.True(t, errors.As(err, &se))
}

func TestSplitRequiresEligibleFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.Ingest(ctx, "", "", []Upload{
		pdfUpload("scan.pdf", 2),
		{Name: "photo.jpg", ContentType: "image/jpeg", Data: []byte("\xff\xd8\xff jpeg")},
	})
	require.NoError(t, err)

	_, err = h.orch.Split(ctx, res.BatchID, res.Accepted[1], SplitPerPage, nil)
	var se *model.SplitError
	assert.True(t, errors.As(err, &se), "images cannot be split")

	h.process(t, res.BatchID, nil)
	_, err = h.orch.Split(ctx, res.BatchID, res.Accepted[0], SplitPerPage, nil)
	var ise *model.InvalidStateError
	require.True(t, errors.As(err, &ise), "parsed files cannot be split")
	assert.Equal(t, string(model.FileParsed), ise.Status)

	_, err = h.orch.Split(ctx, res.BatchID, res.Accepted[0], "zigzag", nil)
	assert.Error(t, err)
}

func TestSplitChildCannotBeSplitAgain(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID, parentID := ingestPDF(t, h, "scan.pdf", 4)
	res, err := h.orch.Split(ctx, batchID, parentID, SplitCustom, []string{"1-2", "3-4"})
	require.NoError(t, err)
	before := h.state(t, batchID)

	_, err = h.orch.Split(ctx, batchID, res.Files[0].ID, SplitPerPage, nil)
	var se *model.SplitError
	require.True(t, errors.As(err, &se))
	assert.Contains(t, se.Reason, parentID)
	assert.Equal(t, before.Files, h.state(t, batchID).Files, "no grandchildren are created")
}

func TestSplitReviewFileAndReprocessChildren(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	low := cleanResult("Musgrave", "M-1")
	low.Confidence = 0.3
	h.parser.set("scan.pdf", low)
	batchID, parentID := ingestPDF(t, h, "scan.pdf", 2)
	h.process(t, batchID, nil)
	require.Equal(t, model.FileReview, h.file(t, batchID, parentID).Status)

	_, err := h.orch.Split(ctx, batchID, parentID, SplitPerPage, nil)
	require.NoError(t, err)
	assert.Equal(t, model.BatchProcessing, h.state(t, batchID).Batch.Status, "new uploaded files reopen the batch")

	s := h.process(t, batchID, nil)
	assert.Equal(t, model.BatchCompleted, s.Batch.Status)
	for _, c := range s.Children(parentID) {
		assert.Equal(t, model.FileParsed, c.Status)
	}
}

func TestThumbnailsAreCached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	batchID, fileID := ingestPDF(t, h, "scan.pdf", 2)

	pages, err := h.orch.Thumbnails(ctx, batchID, fileID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 2, pages[1].Number)

	f := h.file(t, batchID, fileID)
	ok, err := h.files.Exists(ctx, PreviewKey(f.ContentHash, 2))
	require.NoError(t, err)
	assert.True(t, ok)

	again, err := h.orch.Thumbnails(ctx, batchID, fileID)
	require.NoError(t, err)
	assert.Equal(t, pages, again)
}
