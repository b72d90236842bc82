// Package model contains the entities shared by the ingestion pipeline, its
// persistence layers and the HTTP surface.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FileStatus describes where an uploaded file sits in the parsing lifecycle.
// A named string type keeps statuses from being mixed up with free text.
type FileStatus string

const (
	FileUploaded      FileStatus = "uploaded"
	FileParsing       FileStatus = "parsing"
	FileParsed        FileStatus = "parsed"
	FileReview        FileStatus = "review"
	FileAmazonPending FileStatus = "amazon_pending"
	FileFailed        FileStatus = "failed"
	FileCompleted     FileStatus = "completed"
)

// Settled reports whether the file is no longer waiting on the parser.
func (s FileStatus) Settled() bool {
	return s != FileUploaded && s != FileParsing
}

// Materializable reports whether an invoice may be created from a file in this
// status. amazon_pending files additionally need an applied adjustment.
func (s FileStatus) Materializable() bool {
	return s == FileParsed || s == FileReview || s == FileAmazonPending
}

// VatAmount is one rate-keyed net/VAT pair as read off the source document.
type VatAmount struct {
	Rate decimal.Decimal `json:"rate"`
	Net  decimal.Decimal `json:"net"`
	Vat  decimal.Decimal `json:"vat"`
}

// ParsedFields holds the structured values the parser extracted.
type ParsedFields struct {
	InvoiceNumber string          `json:"invoice_number,omitempty"`
	InvoiceDate   *time.Time      `json:"invoice_date,omitempty"`
	Total         decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency,omitempty"`
	VatBreakdown  []VatAmount     `json:"vat_breakdown,omitempty"`
	// EURVatAmount is a converted VAT figure printed on foreign-currency
	// invoices; zero when the document does not carry one.
	EURVatAmount decimal.Decimal `json:"eur_vat_amount"`
}

// ParseResult is what a Parser returns for a single file.
type ParseResult struct {
	Supplier   string       `json:"supplier"`
	Fields     ParsedFields `json:"fields"`
	Confidence float64      `json:"confidence"`
	Warnings   []string     `json:"warnings,omitempty"`
	TaxFree    bool         `json:"tax_free"`
	CreditNote bool         `json:"credit_note"`
}

// File is one uploaded (or split-derived) document inside a batch.
type File struct {
	ID          string     `json:"id"`
	BatchID     string     `json:"batch_id"`
	Name        string     `json:"name"`
	Extension   string     `json:"extension"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	PageCount   int        `json:"page_count,omitempty"`
	ContentHash string     `json:"content_hash"`
	Status      FileStatus `json:"status"`

	ParentID  string `json:"parent_file_id,omitempty"`
	PageRange string `json:"page_range,omitempty"`

	Supplier     string        `json:"supplier,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
	Parsed       *ParsedFields `json:"parsed,omitempty"`
	Warnings     []string      `json:"warnings,omitempty"`
	ErrorMessage *string       `json:"error_message,omitempty"`
	// DuplicateOf is the invoice or sibling file this one probably repeats.
	DuplicateOf  string        `json:"duplicate_of,omitempty"`
	TaxFree      bool          `json:"tax_free"`
	CreditNote   bool          `json:"credit_note"`

	// PaymentRequired is set when the file looks like a marketplace purchase
	// invoiced in a foreign currency and needs the EUR amount actually paid.
	PaymentRequired bool             `json:"payment_required"`
	PaymentAmount   *decimal.Decimal `json:"payment_amount,omitempty"`
	AdjustedLines   []VatLine        `json:"adjusted_lines,omitempty"`

	InvoiceID string    `json:"invoice_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsPDF reports whether the file can be split or page-counted.
func (f *File) IsPDF() bool {
	return f.Extension == "pdf"
}

// SetError records msg as the file's error message; an empty msg clears it.
func (f *File) SetError(msg string) {
	if msg == "" {
		f.ErrorMessage = nil
		return
	}
	f.ErrorMessage = &msg
}

// Fail moves the file to failed with the given reason.
func (f *File) Fail(reason string) {
	f.Status = FileFailed
	f.SetError(reason)
}

// Clone returns a deep copy so callers can mutate it without touching shared state.
func (f *File) Clone() *File {
	out := *f
	if f.Confidence != nil {
		c := *f.Confidence
		out.Confidence = &c
	}
	if f.Parsed != nil {
		p := *f.Parsed
		if f.Parsed.InvoiceDate != nil {
			d := *f.Parsed.InvoiceDate
			p.InvoiceDate = &d
		}
		p.VatBreakdown = append([]VatAmount(nil), f.Parsed.VatBreakdown...)
		out.Parsed = &p
	}
	out.Warnings = append([]string(nil), f.Warnings...)
	if f.ErrorMessage != nil {
		msg := *f.ErrorMessage
		out.ErrorMessage = &msg
	}
	if f.PaymentAmount != nil {
		amt := *f.PaymentAmount
		out.PaymentAmount = &amt
	}
	out.AdjustedLines = append([]VatLine(nil), f.AdjustedLines...)
	return &out
}
