package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/events"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

type adjustmentsRequest struct {
	PaymentAdjustments model.Adjustments `json:"payment_adjustments"`
}

type splitRequest struct {
	Mode       string   `json:"mode"`
	PageRanges []string `json:"page_ranges"`
}

// presigner is implemented by object stores that can hand out direct links.
type presigner interface {
	PresignURL(ctx context.Context, key, fileName string, ttl time.Duration) (string, error)
}

// handleIngest accepts multipart "files" parts. A batch id comes from the
// path or the optional batch_id form field; without one a batch is created.
func (s *Server) handleIngest(c *gin.Context) {
	// Room for every allowed file plus the multipart framing.
	limit := s.cfg.MaxFileSize*int64(s.cfg.MaxBatchFiles) + 1<<20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	form, err := c.MultipartForm()
	if err != nil {
		failure(c, http.StatusBadRequest, CodeValidation, "expecting multipart form", nil)
		return
	}
	batchID := c.Param("id")
	if batchID == "" {
		batchID = firstValue(form, "batch_id")
	}
	uploads, err := s.readUploads(form.File["files"])
	if err != nil {
		failure(c, http.StatusBadRequest, CodeValidation, err.Error(), nil)
		return
	}

	res, err := s.batches.Ingest(c.Request.Context(), batchID, firstValue(form, "created_by"), uploads)
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusCreated, res)
}

func (s *Server) readUploads(headers []*multipart.FileHeader) ([]batch.Upload, error) {
	uploads := make([]batch.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		// One byte past the limit is enough for the size check to reject it.
		data, err := io.ReadAll(io.LimitReader(f, s.cfg.MaxFileSize+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		uploads = append(uploads, batch.Upload{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return uploads, nil
}

func firstValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		failure(c, http.StatusBadRequest, CodeValidation, "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

func (s *Server) handleProcess(c *gin.Context) {
	var req adjustmentsRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := s.batches.StartProcessing(c.Request.Context(), c.Param("id"), req.PaymentAdjustments)
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusAccepted, res)
}

func (s *Server) handleStatus(c *gin.Context) {
	state, err := s.batches.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusOK, state)
}

func (s *Server) handleCancel(c *gin.Context) {
	state, err := s.batches.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusOK, state)
}

func (s *Server) handleRemoveFile(c *gin.Context) {
	state, err := s.batches.RemoveFile(c.Request.Context(), c.Param("id"), c.Param("fileID"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusOK, state)
}

func (s *Server) handleThumbnails(c *gin.Context) {
	pages, err := s.batches.Thumbnails(c.Request.Context(), c.Param("id"), c.Param("fileID"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusOK, pages)
}

func (s *Server) handleSplit(c *gin.Context) {
	var req splitRequest
	if !bindOptional(c, &req) {
		return
	}
	mode := req.Mode
	if mode == "" && len(req.PageRanges) == 0 {
		mode = batch.SplitPerPage
	}
	res, err := s.batches.Split(c.Request.Context(), c.Param("id"), c.Param("fileID"), mode, req.PageRanges)
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusCreated, res)
}

func (s *Server) handleMaterialize(c *gin.Context) {
	var req adjustmentsRequest
	if !bindOptional(c, &req) {
		return
	}
	res, err := s.batches.Materialize(c.Request.Context(), c.Param("id"), req.PaymentAdjustments)
	if err != nil {
		s.respondError(c, err)
		return
	}
	success(c, http.StatusOK, res)
}

func (s *Server) handleEvents(c *gin.Context) {
	batchID := c.Param("id")
	if _, err := s.batches.Status(c.Request.Context(), batchID); err != nil {
		s.respondError(c, err)
		return
	}
	conn, err := events.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("batch_id", batchID).Msg("websocket upgrade failed")
		return
	}
	status := func(ctx context.Context) (*model.BatchState, error) {
		return s.batches.Status(ctx, batchID)
	}
	s.hub.Serve(c.Request.Context(), conn, batchID, status, s.cfg.StatusPushInterval)
}

// handleSignedURL returns a short-lived link to the original document.
func (s *Server) handleSignedURL(c *gin.Context) {
	batchID, fileID := c.Param("id"), c.Param("fileID")
	f, err := s.file(c, batchID, fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	expiry := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	q := url.Values{}
	q.Set("batch", batchID)
	q.Set("file", fileID)
	q.Set("expires", strconv.FormatInt(expiry, 10))
	q.Set("signature", s.signer.Sign(batchID, fileID, expiry))

	body := gin.H{
		"url":     "/download?" + q.Encode(),
		"expires": expiry,
	}
	if p, ok := s.files.(presigner); ok {
		direct, err := p.PresignURL(c.Request.Context(), batch.RawKey(f.ContentHash), f.Name, s.cfg.SignedURLTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("file_id", fileID).Msg("presign failed")
		} else {
			body["direct_url"] = direct
		}
	}
	success(c, http.StatusOK, body)
}

func (s *Server) handleDownload(c *gin.Context) {
	batchID := c.Query("batch")
	fileID := c.Query("file")
	expires := c.Query("expires")
	signature := c.Query("signature")
	if batchID == "" || fileID == "" || expires == "" || signature == "" {
		failure(c, http.StatusBadRequest, CodeValidation, "missing parameters", nil)
		return
	}
	if s.signer.Expired(expires) {
		failure(c, http.StatusUnauthorized, CodeUnauthorized, "url expired", nil)
		return
	}
	if !s.signer.Validate(batchID, fileID, expires, signature) {
		failure(c, http.StatusUnauthorized, CodeUnauthorized, "invalid signature", nil)
		return
	}
	f, err := s.file(c, batchID, fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	data, err := s.files.Get(c.Request.Context(), batch.RawKey(f.ContentHash))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Type", f.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	// ServeContent answers Range requests from the in-memory reader.
	http.ServeContent(c.Writer, c.Request, f.Name, f.UpdatedAt, bytes.NewReader(data))
}

func (s *Server) file(c *gin.Context, batchID, fileID string) (*model.File, error) {
	state, err := s.batches.Status(c.Request.Context(), batchID)
	if err != nil {
		return nil, err
	}
	return state.File(fileID)
}
