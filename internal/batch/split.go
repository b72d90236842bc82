package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/pdfsplit"
)

// Split modes.
const (
	SplitPerPage = "per_page"
	SplitCustom  = "custom"
)

// SplitResult lists the files created by Split.
type SplitResult struct {
	SplitCount int           `json:"split_count"`
	Files      []*model.File `json:"files"`
}

func splittable(f *model.File) bool {
	return f.Status == model.FileUploaded || f.Status == model.FileFailed || f.Status == model.FileReview
}

// Thumbnails returns one preview per page of a PDF file. Previews are cached
// in the FileStore by content hash.
func (o *Orchestrator) Thumbnails(ctx context.Context, batchID, fileID string) ([]pdfsplit.Page, error) {
	state, err := o.repo.Load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	f, err := state.File(fileID)
	if err != nil {
		return nil, err
	}
	if !f.IsPDF() {
		return nil, model.NewValidationError(fmt.Sprintf("%s is not a PDF", f.Name))
	}

	if pages, ok := o.cachedPreviews(ctx, f); ok {
		return pages, nil
	}
	data, err := o.readPDF(ctx, f)
	if err != nil {
		return nil, err
	}
	pages, err := o.splitter.RenderPages(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", f.Name, err)
	}
	for _, p := range pages {
		if err := o.files.Put(ctx, PreviewKey(f.ContentHash, p.Number), p.Data, p.ContentType); err != nil {
			o.log.Warn().Err(err).Str("file_id", f.ID).Int("page", p.Number).Msg("cache preview")
		}
	}
	return pages, nil
}

func (o *Orchestrator) cachedPreviews(ctx context.Context, f *model.File) ([]pdfsplit.Page, bool) {
	if f.PageCount < 1 {
		return nil, false
	}
	pages := make([]pdfsplit.Page, 0, f.PageCount)
	for n := 1; n <= f.PageCount; n++ {
		data, err := o.files.Get(ctx, PreviewKey(f.ContentHash, n))
		if err != nil {
			return nil, false
		}
		pages = append(pages, pdfsplit.Page{Number: n, ContentType: pdfsplit.PreviewContentType, Data: data})
	}
	return pages, true
}

// readPDF loads the raw bytes of f after checking the PDF signature with a
// short range read.
func (o *Orchestrator) readPDF(ctx context.Context, f *model.File) ([]byte, error) {
	key := RawKey(f.ContentHash)
	head, err := o.files.ReadRange(ctx, key, 0, 5)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	if !strings.HasPrefix(string(head), "%PDF") {
		return nil, &model.SplitError{Reason: fmt.Sprintf("%s is not a PDF document", f.Name)}
	}
	return o.files.Get(ctx, key)
}

// Split derives one child file per page range of a PDF. The parent is kept
// as is; children start in uploaded and are parsed on the next
// StartProcessing call. All children become visible in a single commit.
func (o *Orchestrator) Split(ctx context.Context, batchID, fileID, mode string, specs []string) (*SplitResult, error) {
	state, err := o.repo.Load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	parent, err := state.File(fileID)
	if err != nil {
		return nil, err
	}
	if err := o.checkSplit(state, parent); err != nil {
		return nil, err
	}

	data, err := o.readPDF(ctx, parent)
	if err != nil {
		return nil, err
	}
	pageCount := parent.PageCount
	if pageCount < 1 {
		if pageCount, err = o.splitter.PageCount(data); err != nil {
			return nil, &model.SplitError{Reason: err.Error()}
		}
	}

	var ranges []pdfsplit.PageRange
	switch mode {
	case SplitPerPage:
		ranges = pdfsplit.PerPage(pageCount)
	case SplitCustom, "":
		if ranges, err = pdfsplit.ParseRanges(specs, pageCount, o.opts.AllowOverlap); err != nil {
			return nil, err
		}
	default:
		return nil, model.NewValidationError(fmt.Sprintf("unknown split mode %q", mode))
	}

	parts, err := o.splitter.Extract(ctx, data, ranges)
	if err != nil {
		return nil, &model.SplitError{Reason: err.Error()}
	}
	now := o.now()
	base := strings.TrimSuffix(parent.Name, filepath.Ext(parent.Name))
	children := make([]*model.File, 0, len(parts))
	for i, part := range parts {
		r := ranges[i]
		child := &model.File{
			ID:          uuid.NewString(),
			Name:        fmt.Sprintf("%s_p%s.pdf", base, r.String()),
			Extension:   "pdf",
			ContentType: "application/pdf",
			Size:        int64(len(part)),
			PageCount:   r.Pages(),
			ContentHash: contentHash(part),
			Status:      model.FileUploaded,
			ParentID:    parent.ID,
			PageRange:   r.String(),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		child.PaymentRequired = o.engine.NeedsPaymentAdjustment("", parent.Name, "")
		if err := o.storeRaw(ctx, child.ContentHash, Upload{Name: child.Name, ContentType: child.ContentType, Data: part}); err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	_, err = o.update(ctx, batchID, func(s *model.BatchState) error {
		cur, err := s.File(fileID)
		if err != nil {
			return err
		}
		if err := o.checkSplit(s, cur); err != nil {
			return err
		}
		if cur.ContentHash != parent.ContentHash {
			return model.NewFileStateError("split", cur)
		}
		for _, c := range children {
			s.AddFile(c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	o.log.Info().
		Str("batch_id", batchID).
		Str("file_id", fileID).
		Int("children", len(children)).
		Msg("file split")
	return &SplitResult{SplitCount: len(children), Files: children}, nil
}

func (o *Orchestrator) checkSplit(s *model.BatchState, f *model.File) error {
	if !s.Batch.Open() {
		return model.NewBatchStateError("split", &s.Batch)
	}
	if !f.IsPDF() {
		return &model.SplitError{Reason: fmt.Sprintf("%s is not a PDF", f.Name)}
	}
	if f.ParentID != "" {
		return &model.SplitError{Reason: fmt.Sprintf("%s was split from %s and cannot be split again", f.Name, f.ParentID)}
	}
	if !splittable(f) {
		return model.NewFileStateError("split", f)
	}
	return nil
}
