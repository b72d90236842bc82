// Package duplicate flags parsed files that probably repeat an invoice that
// was already committed, or another file of the same batch.
package duplicate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// Match confidences reported on the warning.
const (
	ConfidenceIdentical = 1.0
	ConfidenceNumber    = 0.95
	ConfidenceSibling   = 0.9
	ConfidenceAmount    = 0.8
)

// Lookup finds committed invoices. Every non-empty field of the query must
// match.
type Lookup interface {
	FindInvoices(ctx context.Context, q model.InvoiceQuery) ([]*model.Invoice, error)
}

// Candidate is the comparable subset of a parsed file.
type Candidate struct {
	FileID        string
	Supplier      string
	InvoiceNumber string
	Date          *time.Time
	Total         decimal.Decimal
	ContentHash   string
}

// CandidateFromFile extracts a Candidate from a parsed file.
func CandidateFromFile(f *model.File) Candidate {
	c := Candidate{FileID: f.ID, Supplier: f.Supplier, ContentHash: f.ContentHash}
	if f.Parsed != nil {
		c.InvoiceNumber = strings.TrimSpace(f.Parsed.InvoiceNumber)
		c.Date = f.Parsed.InvoiceDate
		c.Total = f.Parsed.Total
	}
	return c
}

// Detector compares candidates with committed invoices.
type Detector struct {
	cfg    Config
	lookup Lookup
	log    zerolog.Logger
}

// New builds a Detector.
func New(lookup Lookup, cfg Config) *Detector {
	return &Detector{cfg: cfg, lookup: lookup, log: logger.WithComponent("duplicates")}
}

// Check returns a warning for the strongest match against committed invoices,
// or nil when there is none.
func (d *Detector) Check(ctx context.Context, c Candidate) (*model.DuplicateWarning, error) {
	if c.ContentHash != "" {
		found, err := d.lookup.FindInvoices(ctx, model.InvoiceQuery{SourceHash: c.ContentHash})
		if err != nil {
			return nil, fmt.Errorf("lookup by content hash: %w", err)
		}
		if len(found) > 0 {
			return d.warn(c, &model.DuplicateWarning{
				MatchID:    found[0].ID,
				Reason:     "identical document already invoiced",
				Confidence: ConfidenceIdentical,
			}), nil
		}
	}
	if strings.TrimSpace(c.Supplier) == "" {
		return nil, nil
	}

	if c.InvoiceNumber != "" {
		found, err := d.lookup.FindInvoices(ctx, model.InvoiceQuery{Supplier: c.Supplier, Number: c.InvoiceNumber})
		if err != nil {
			return nil, fmt.Errorf("lookup by invoice number: %w", err)
		}
		if len(found) > 0 {
			return d.warn(c, &model.DuplicateWarning{
				MatchID:    found[0].ID,
				Reason:     fmt.Sprintf("invoice number %s already recorded for %s", c.InvoiceNumber, c.Supplier),
				Confidence: ConfidenceNumber,
			}), nil
		}
	}

	if c.Date == nil || c.Total.IsZero() {
		return nil, nil
	}
	from, to := d.cfg.Window(*c.Date)
	found, err := d.lookup.FindInvoices(ctx, model.InvoiceQuery{Supplier: c.Supplier, From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("lookup by date window: %w", err)
	}
	for _, inv := range found {
		if inv.Date == nil || !d.cfg.DatesMatch(*c.Date, *inv.Date) {
			continue
		}
		if d.cfg.AmountsMatch(c.Total, inv.Total) {
			return d.warn(c, &model.DuplicateWarning{
				MatchID: inv.ID,
				Reason: fmt.Sprintf("same total %s within %d days of invoice dated %s",
					c.Total.StringFixed(2), d.cfg.WindowDays, inv.Date.Format("2006-01-02")),
				Confidence: ConfidenceAmount,
			}), nil
		}
	}
	return nil, nil
}

// CheckSiblings compares c with files of the same batch that already finished
// parsing. The file parsed later is the one that carries the warning.
func (d *Detector) CheckSiblings(c Candidate, siblings []*model.File) *model.DuplicateWarning {
	supplier := model.NormalizeSupplier(c.Supplier)
	for _, s := range siblings {
		if s.ID == c.FileID || s.Parsed == nil || s.Status == model.FileFailed {
			continue
		}
		if c.ContentHash != "" && s.ContentHash == c.ContentHash {
			return d.warn(c, &model.DuplicateWarning{
				MatchID:    s.ID,
				Reason:     fmt.Sprintf("same content as %s in this batch", s.Name),
				Confidence: ConfidenceIdentical,
			})
		}
		if supplier == "" || c.InvoiceNumber == "" {
			continue
		}
		if model.NormalizeSupplier(s.Supplier) == supplier && strings.TrimSpace(s.Parsed.InvoiceNumber) == c.InvoiceNumber {
			return d.warn(c, &model.DuplicateWarning{
				MatchID:    s.ID,
				Reason:     fmt.Sprintf("invoice number %s also parsed from %s in this batch", c.InvoiceNumber, s.Name),
				Confidence: ConfidenceSibling,
			})
		}
	}
	return nil
}

func (d *Detector) warn(c Candidate, w *model.DuplicateWarning) *model.DuplicateWarning {
	d.log.Info().
		Str("file_id", c.FileID).
		Str("match_id", w.MatchID).
		Float64("confidence", w.Confidence).
		Msg(w.Reason)
	return w
}
