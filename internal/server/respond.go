package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// Error codes of the response envelope.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeSplit        = "SPLIT_ERROR"
	CodeAdjustment   = "ADJUSTMENT_ERROR"
	CodeInvalidState = "INVALID_STATE"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInternal     = "INTERNAL_ERROR"
)

func success(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func failure(c *gin.Context, status int, code, message string, details any) {
	body := gin.H{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   body,
	})
}

// respondError maps the orchestrator's typed errors onto HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var (
		verr  *model.ValidationError
		serr  *model.SplitError
		aerr  *model.AdjustmentError
		state *model.InvalidStateError
	)
	switch {
	case errors.As(err, &verr):
		var details any
		if len(verr.Rejections) > 0 {
			details = verr.Rejections
		}
		failure(c, http.StatusBadRequest, CodeValidation, verr.Message, details)
	case errors.As(err, &serr):
		var details any
		if serr.Range != "" {
			details = gin.H{"range": serr.Range}
		}
		failure(c, http.StatusBadRequest, CodeSplit, serr.Error(), details)
	case errors.As(err, &aerr):
		failure(c, http.StatusBadRequest, CodeAdjustment, aerr.Error(), gin.H{"file_id": aerr.FileID})
	case errors.As(err, &state):
		failure(c, http.StatusConflict, CodeInvalidState, state.Error(), gin.H{
			"entity": state.Entity,
			"id":     state.ID,
			"status": state.Status,
		})
	case errors.Is(err, model.ErrBatchNotFound), errors.Is(err, model.ErrFileNotFound):
		failure(c, http.StatusNotFound, CodeNotFound, err.Error(), nil)
	default:
		s.log.Error().Err(err).Str("path", c.FullPath()).Str("batch_id", c.Param("id")).Msg("request failed")
		failure(c, http.StatusInternalServerError, CodeInternal, "internal error", nil)
	}
}
