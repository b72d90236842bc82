// Package server exposes the batch pipeline over HTTP with gin. Handlers are
// thin: they decode the request, call the orchestrator and map its typed
// errors onto status codes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/InvoiceDrop/internal/batch"
	"github.com/dharsanguruparan/InvoiceDrop/internal/config"
	"github.com/dharsanguruparan/InvoiceDrop/internal/events"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/signing"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Batches *batch.Orchestrator
	Files   batch.FileStore
	Hub     *events.Hub
	Signer  *signing.Signer
}

// Server hosts the HTTP handlers for InvoiceDrop.
type Server struct {
	cfg     *config.Config
	batches *batch.Orchestrator
	files   batch.FileStore
	hub     *events.Hub
	signer  *signing.Signer
	log     zerolog.Logger
}

// New creates a configured server.
func New(cfg *config.Config, deps Deps) *Server {
	hub := deps.Hub
	if hub == nil {
		hub = events.NewHub()
	}
	return &Server{
		cfg:     cfg,
		batches: deps.Batches,
		files:   deps.Files,
		hub:     hub,
		signer:  deps.Signer,
		log:     logger.WithComponent("api"),
	}
}

// Serve launches the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		// Shut down gracefully with a timeout once the context is cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("address", s.cfg.Address).Msg("http server listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler builds the gin engine with every route registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	// Bound multipart memory; larger parts spill to temp files.
	r.MaxMultipartMemory = 32 << 20

	r.GET("/healthz", s.handleHealth)
	r.GET("/download", s.handleDownload)

	b := r.Group("/batches")
	b.POST("", s.handleIngest)
	b.GET("/:id", s.handleStatus)
	b.GET("/:id/events", s.handleEvents)
	b.POST("/:id/files", s.handleIngest)
	b.POST("/:id/process", s.handleProcess)
	b.POST("/:id/cancel", s.handleCancel)
	b.POST("/:id/materialize", s.handleMaterialize)
	b.DELETE("/:id/files/:fileID", s.handleRemoveFile)
	b.GET("/:id/files/:fileID/thumbnails", s.handleThumbnails)
	b.POST("/:id/files/:fileID/split", s.handleSplit)
	b.GET("/:id/files/:fileID/signed-url", s.handleSignedURL)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		ev := s.log.Info()
		if status >= http.StatusInternalServerError {
			ev = s.log.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
