package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// Upload is one file of an ingest call.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// IngestResult reports the batch the files landed in.
type IngestResult struct {
	BatchID  string            `json:"batch_id"`
	Accepted []string          `json:"accepted"`
	Rejected []model.Rejection `json:"rejected"`
}

type fileKey struct {
	name string
	size int64
}

type prepared struct {
	upload    Upload
	ext       string
	hash      string
	pageCount int
}

// Ingest validates uploads and adds them to batchID, or to a new batch when
// batchID is empty. If any upload fails validation the whole call is
// rejected with a ValidationError listing every reason and nothing is stored.
func (o *Orchestrator) Ingest(ctx context.Context, batchID, createdBy string, uploads []Upload) (*IngestResult, error) {
	if len(uploads) == 0 {
		return nil, model.NewValidationError("no files supplied")
	}

	var existing *model.BatchState
	if batchID != "" {
		state, err := o.repo.Load(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if !state.Batch.Open() {
			return nil, model.NewBatchStateError("ingest", &state.Batch)
		}
		existing = state
	}

	ready, err := o.validateUploads(existing, uploads)
	if err != nil {
		return nil, err
	}

	for _, p := range ready {
		if err := o.storeRaw(ctx, p.hash, p.upload); err != nil {
			return nil, err
		}
	}

	now := o.now()
	files := make([]*model.File, 0, len(ready))
	for _, p := range ready {
		files = append(files, o.newFile(p, now))
	}
	result := &IngestResult{Rejected: []model.Rejection{}}
	for _, f := range files {
		result.Accepted = append(result.Accepted, f.ID)
	}

	if existing == nil {
		state := &model.BatchState{Batch: model.Batch{
			ID:        uuid.NewString(),
			Status:    model.BatchUploaded,
			CreatedBy: createdBy,
			CreatedAt: now,
		}}
		for _, f := range files {
			state.AddFile(f)
		}
		state.Refresh(now)
		if err := o.repo.Create(ctx, state); err != nil {
			return nil, fmt.Errorf("create batch: %w", err)
		}
		o.notifier.Publish(state)
		result.BatchID = state.Batch.ID
		o.log.Info().Str("batch_id", state.Batch.ID).Int("files", len(files)).Msg("batch created")
		return result, nil
	}

	_, err = o.update(ctx, batchID, func(s *model.BatchState) error {
		// The batch may have changed since validation ran.
		if !s.Batch.Open() {
			return model.NewBatchStateError("ingest", &s.Batch)
		}
		if err := o.checkAgainstBatch(s, ready); err != nil {
			return err
		}
		for _, f := range files {
			s.AddFile(f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.BatchID = batchID
	o.log.Info().Str("batch_id", batchID).Int("files", len(files)).Msg("files added to batch")
	return result, nil
}

func (o *Orchestrator) validateUploads(existing *model.BatchState, uploads []Upload) ([]prepared, error) {
	var rejected []model.Rejection
	reject := func(name, reason string) {
		rejected = append(rejected, model.Rejection{Name: name, Reason: reason})
	}

	seen := make(map[fileKey]bool, len(uploads))
	ready := make([]prepared, 0, len(uploads))
	for _, u := range uploads {
		name := strings.TrimSpace(u.Name)
		ext := normalizeExt(filepath.Ext(name))
		size := int64(len(u.Data))
		key := fileKey{name: name, size: size}
		switch {
		case name == "":
			reject(u.Name, "file name is required")
			continue
		case !o.allowed[ext]:
			reject(name, fmt.Sprintf("extension %q is not allowed", ext))
			continue
		case size == 0:
			reject(name, "file is empty")
			continue
		case o.opts.MaxFileSize > 0 && size > o.opts.MaxFileSize:
			reject(name, fmt.Sprintf("file is %d bytes, limit is %d", size, o.opts.MaxFileSize))
			continue
		case seen[key]:
			reject(name, "duplicate of another file in this upload")
			continue
		}
		seen[key] = true

		p := prepared{upload: u, ext: ext, hash: contentHash(u.Data)}
		p.upload.Name = name
		if ext == "pdf" {
			n, err := o.splitter.PageCount(u.Data)
			if err != nil {
				reject(name, "not a readable PDF")
				continue
			}
			p.pageCount = n
		}
		ready = append(ready, p)
	}

	held := 0
	if existing != nil {
		held = len(existing.Files)
		for _, r := range alreadyPresent(existing, ready) {
			reject(r, "already uploaded to this batch")
		}
	}
	if o.opts.MaxBatchFiles > 0 && held+len(uploads) > o.opts.MaxBatchFiles {
		return nil, model.NewValidationError(
			fmt.Sprintf("batch would hold %d files, limit is %d", held+len(uploads), o.opts.MaxBatchFiles), rejected...)
	}

	if len(rejected) > 0 {
		return nil, model.NewValidationError("upload rejected", rejected...)
	}
	return ready, nil
}

// checkAgainstBatch enforces the batch file limit and the (name, size)
// uniqueness against files already in the batch.
func (o *Orchestrator) checkAgainstBatch(s *model.BatchState, ready []prepared) error {
	if o.opts.MaxBatchFiles > 0 && len(s.Files)+len(ready) > o.opts.MaxBatchFiles {
		return model.NewValidationError(fmt.Sprintf("batch would hold %d files, limit is %d",
			len(s.Files)+len(ready), o.opts.MaxBatchFiles))
	}
	var rejected []model.Rejection
	for _, name := range alreadyPresent(s, ready) {
		rejected = append(rejected, model.Rejection{Name: name, Reason: "already uploaded to this batch"})
	}
	if len(rejected) > 0 {
		return model.NewValidationError("upload rejected", rejected...)
	}
	return nil
}

func alreadyPresent(s *model.BatchState, ready []prepared) []string {
	present := make(map[fileKey]bool, len(s.Files))
	for _, f := range s.Files {
		present[fileKey{name: f.Name, size: f.Size}] = true
	}
	var names []string
	for _, p := range ready {
		if present[fileKey{name: p.upload.Name, size: int64(len(p.upload.Data))}] {
			names = append(names, p.upload.Name)
		}
	}
	return names
}

func (o *Orchestrator) storeRaw(ctx context.Context, hash string, u Upload) error {
	key := RawKey(hash)
	ok, err := o.files.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check %s: %w", key, err)
	}
	if ok {
		return nil
	}
	if err := o.files.Put(ctx, key, u.Data, contentType(u)); err != nil {
		return fmt.Errorf("store %s: %w", u.Name, err)
	}
	return nil
}

func (o *Orchestrator) newFile(p prepared, now time.Time) *model.File {
	return &model.File{
		ID:              uuid.NewString(),
		Name:            p.upload.Name,
		Extension:       p.ext,
		ContentType:     contentType(p.upload),
		Size:            int64(len(p.upload.Data)),
		PageCount:       p.pageCount,
		ContentHash:     p.hash,
		Status:          model.FileUploaded,
		PaymentRequired: o.engine.NeedsPaymentAdjustment("", p.upload.Name, ""),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func contentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func contentType(u Upload) string {
	if u.ContentType != "" && u.ContentType != "application/octet-stream" {
		return u.ContentType
	}
	return http.DetectContentType(u.Data)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
