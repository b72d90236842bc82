package batch

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// MaterializeResult summarizes one materialization pass.
type MaterializeResult struct {
	Success      bool              `json:"success"`
	CreatedCount int               `json:"created_count"`
	Message      string            `json:"message"`
	Invoices     []*model.Invoice  `json:"invoices,omitempty"`
	Skipped      []model.Rejection `json:"skipped,omitempty"`
}

// Materialize creates an invoice with VAT lines for every parsed, review or
// adjusted amazon_pending file and completes those files. Each file succeeds
// or is skipped on its own; skipped files keep their status.
func (o *Orchestrator) Materialize(ctx context.Context, batchID string, adjustments model.Adjustments) (*MaterializeResult, error) {
	result := &MaterializeResult{}

	_, err := o.update(ctx, batchID, func(s *model.BatchState) error {
		if s.Batch.Status == model.BatchCancelled {
			return model.NewBatchStateError("materialize", &s.Batch)
		}
		result.CreatedCount = 0
		result.Invoices = nil
		result.Skipped = nil
		skip := func(f *model.File, reason string) {
			result.Skipped = append(result.Skipped, model.Rejection{Name: f.ID, Reason: reason})
		}

		for _, f := range s.Files {
			if !f.Status.Materializable() {
				continue
			}
			if raw, ok := adjustments[f.ID]; ok {
				if err := o.recordPayment(f, raw); err != nil {
					skip(f, err.Error())
					continue
				}
			}
			if f.Status == model.FileAmazonPending {
				skip(f, (&model.AdjustmentError{FileID: f.ID, Reason: "actual EUR payment amount required"}).Error())
				continue
			}

			inv, err := buildInvoice(s.Batch.ID, f)
			if err != nil {
				skip(f, err.Error())
				continue
			}
			inv.CreatedAt = o.now()
			s.NewInvoices = append(s.NewInvoices, inv)
			f.Status = model.FileCompleted
			f.InvoiceID = inv.ID
			f.UpdatedAt = inv.CreatedAt
			result.Invoices = append(result.Invoices, inv)
			result.CreatedCount++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Success = true
	result.Message = fmt.Sprintf("created %d invoices", result.CreatedCount)
	if len(result.Skipped) > 0 {
		result.Message += fmt.Sprintf(", skipped %d files", len(result.Skipped))
	}
	blog := logger.WithBatch(o.log, batchID)
	blog.Info().
		Int("created", result.CreatedCount).
		Int("skipped", len(result.Skipped)).
		Msg("batch materialized")
	return result, nil
}

// buildInvoice derives the invoice of f. Adjusted lines take precedence over
// the parsed breakdown; tax-free files book their total as one exempt line;
// a total without breakdown is booked at 0%.
func buildInvoice(batchID string, f *model.File) (*model.Invoice, error) {
	if f.Parsed == nil && len(f.AdjustedLines) == 0 {
		return nil, fmt.Errorf("file %s has no parsed data", f.ID)
	}
	parsed := model.ParsedFields{}
	if f.Parsed != nil {
		parsed = *f.Parsed
	}

	var lines []model.VatLine
	switch {
	case len(f.AdjustedLines) > 0:
		lines = append(lines, f.AdjustedLines...)
	case f.TaxFree && !parsed.Total.IsZero():
		lines = []model.VatLine{model.NewVatLine(model.VatExempt, decimal.Zero, parsed.Total, decimal.Zero)}
	case len(parsed.VatBreakdown) > 0:
		for _, v := range parsed.VatBreakdown {
			lines = append(lines, model.NewVatLine(model.CategoryForRate(v.Rate), v.Rate, v.Net, v.Vat))
		}
	case !parsed.Total.IsZero():
		lines = []model.VatLine{model.NewVatLine(model.VatZero, decimal.Zero, parsed.Total, decimal.Zero)}
	default:
		return nil, fmt.Errorf("file %s has neither VAT lines nor a total", f.ID)
	}

	if f.CreditNote {
		for i, l := range lines {
			if l.Gross.IsPositive() {
				lines[i] = l.Negate()
			}
		}
	}

	currency := parsed.Currency
	if len(f.AdjustedLines) > 0 || currency == "" {
		currency = "EUR"
	}
	inv := &model.Invoice{
		ID:            uuid.NewString(),
		BatchID:       batchID,
		FileID:        f.ID,
		Number:        strings.TrimSpace(parsed.InvoiceNumber),
		Date:          parsed.InvoiceDate,
		Supplier:      f.Supplier,
		Currency:      currency,
		PaymentStatus: model.PaymentUnpaid,
		SourceHash:    f.ContentHash,
		Lines:         lines,
	}
	if f.PaymentAmount != nil && len(f.AdjustedLines) > 0 {
		inv.PaymentStatus = model.PaymentPaid
	}
	inv.SumLines()
	return inv, nil
}
