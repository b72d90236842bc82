// Package pdfsplit counts, splits and previews PDF pages with pdfcpu.
package pdfsplit

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
)

// PreviewContentType is the content type of rendered page previews. pdfcpu
// does not rasterize, so a preview is the single page as its own PDF.
const PreviewContentType = "application/pdf"

var disableConfigDir sync.Once

// Page is one rendered page preview.
type Page struct {
	Number      int    `json:"page"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"image_bytes"`
}

// Splitter wraps pdfcpu. It is safe for concurrent use.
type Splitter struct {
	concurrency int
	log         zerolog.Logger
}

// New builds a Splitter running at most concurrency extractions at once.
func New(concurrency int) *Splitter {
	if concurrency <= 0 {
		concurrency = 4
	}
	disableConfigDir.Do(api.DisableConfigDir)
	return &Splitter{concurrency: concurrency, log: logger.WithComponent("splitter")}
}

// pdfcpu mutates the configuration it is handed, so every call gets its own.
func newConf() *pdfmodel.Configuration {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in data.
func (s *Splitter) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), newConf())
	if err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return n, nil
}

// Extract returns one PDF per range, in range order.
func (s *Splitter) Extract(ctx context.Context, data []byte, ranges []PageRange) ([][]byte, error) {
	out := make([][]byte, len(ranges))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, r := range ranges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := api.Trim(bytes.NewReader(data), &buf, []string{r.String()}, newConf()); err != nil {
				return fmt.Errorf("extract pages %s: %w", r, err)
			}
			out[i] = buf.Bytes()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	s.log.Debug().Int("ranges", len(ranges)).Msg("pages extracted")
	return out, nil
}

// RenderPages returns a preview for every page of data.
func (s *Splitter) RenderPages(ctx context.Context, data []byte) ([]Page, error) {
	n, err := s.PageCount(data)
	if err != nil {
		return nil, err
	}
	parts, err := s.Extract(ctx, data, PerPage(n))
	if err != nil {
		return nil, err
	}
	pages := make([]Page, n)
	for i, p := range parts {
		pages[i] = Page{Number: i + 1, ContentType: PreviewContentType, Data: p}
	}
	return pages, nil
}
