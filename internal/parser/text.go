package parser

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	pdfutil "github.com/dharsanguruparan/InvoiceDrop/internal/pdf"
)

var (
	supplierRe = regexp.MustCompile(`(?im)^\s*(?:supplier|seller|sold by|from|lieferant)\s*:\s*(.+?)\s*$`)
	numberRe   = regexp.MustCompile(`(?im)(?:invoice|credit note|rechnung|inv)\s*(?:no\.?|number|nr\.?|#)\s*:?\s*([A-Z0-9][A-Z0-9\-/.]{2,})`)
	dateRe     = regexp.MustCompile(`(?im)(?:invoice date|date|datum)\s*:?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[./]\d{1,2}[./]\d{4}|\d{1,2} [A-Za-z]{3,9} \d{4})`)
	totalRe    = regexp.MustCompile(`(?im)^\s*(?:invoice total|total due|amount due|total|gesamtbetrag)\s*(?:\(?[A-Z]{3}\)?|[€£])?\s*:?\s*[€£]?\s*(-?[\d.,]+)`)
	vatLineRe  = regexp.MustCompile(`(?im)^\s*vat\s*@?\s*(\d{1,2}(?:[.,]\d{1,2})?)\s*%\s*:?\s*(-?[\d.,]+)\s+(-?[\d.,]+)\s*$`)
	eurVatRe   = regexp.MustCompile(`(?im)vat\s*(?:in\s+eur|\(eur\))\s*:?\s*€?\s*([\d.,]+)`)
	currencyLn = regexp.MustCompile(`(?im)^\s*currency\s*:\s*(\S+)`)
	currencyRe = regexp.MustCompile(`(?i)\b(EUR|GBP|USD)\b|[€£$]`)
	taxFreeRe  = regexp.MustCompile(`(?i)tax[- ]free|vat exempt|exempt from vat|reverse charge`)
	creditRe   = regexp.MustCompile(`(?i)credit note|gutschrift`)

	dateFormats = []string{"2006-01-02", "02.01.2006", "2.1.2006", "02/01/2006", "2/1/2006", "2 January 2006", "2 Jan 2006"}
)

// TextParser reads invoices from the text layer of a PDF.
type TextParser struct {
	log zerolog.Logger
}

// NewTextParser builds a TextParser.
func NewTextParser() *TextParser {
	return &TextParser{log: logger.WithComponent("parser")}
}

// Parse implements Parser. Images have no text layer and are refused.
func (p *TextParser) Parse(ctx context.Context, f *model.File, data []byte) (*model.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !f.IsPDF() {
		return nil, fmt.Errorf("%w: %s needs the documentai backend", ErrUnsupportedFormat, f.Extension)
	}
	text, err := pdfutil.ExtractText(data)
	if err != nil {
		return nil, err
	}
	res, err := ParseText(text)
	if err != nil {
		return nil, err
	}
	p.log.Debug().
		Str("file_id", f.ID).
		Str("supplier", res.Supplier).
		Float64("confidence", res.Confidence).
		Int("warnings", len(res.Warnings)).
		Msg("text parsed")
	return res, nil
}

// ParseText extracts fields from plain invoice text. Confidence is the share
// of the five key fields (supplier, number, date, total, VAT breakdown) found.
func ParseText(text string) (*model.ParseResult, error) {
	res := &model.ParseResult{
		Supplier:   firstGroup(supplierRe, text),
		TaxFree:    taxFreeRe.MatchString(text),
		CreditNote: creditRe.MatchString(text),
	}
	if res.Supplier == "" {
		res.Supplier = firstLine(text)
	}
	fields := &res.Fields
	fields.InvoiceNumber = firstGroup(numberRe, text)
	fields.Currency = detectCurrency(text)

	if raw := firstGroup(dateRe, text); raw != "" {
		if d, ok := parseDate(raw); ok {
			fields.InvoiceDate = &d
		}
	}
	if raw := firstGroup(totalRe, text); raw != "" {
		if amt, err := model.ParseAmount(raw); err == nil {
			fields.Total = amt
		}
	}
	if raw := firstGroup(eurVatRe, text); raw != "" {
		if amt, err := model.ParseAmount(raw); err == nil {
			fields.EURVatAmount = amt
		}
	}
	for _, m := range vatLineRe.FindAllStringSubmatch(text, -1) {
		rate, err1 := model.ParseAmount(m[1])
		net, err2 := model.ParseAmount(m[2])
		vat, err3 := model.ParseAmount(m[3])
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		fields.VatBreakdown = append(fields.VatBreakdown, model.VatAmount{Rate: rate, Net: net, Vat: vat})
	}

	found := 0
	for _, ok := range []bool{
		res.Supplier != "",
		fields.InvoiceNumber != "",
		fields.InvoiceDate != nil,
		!fields.Total.IsZero(),
		len(fields.VatBreakdown) > 0 || res.TaxFree,
	} {
		if ok {
			found++
		}
	}
	if found == 0 {
		return nil, ErrNothingExtracted
	}
	res.Confidence = float64(found) / 5
	CrossCheck(res)
	return res, nil
}

func firstGroup(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsAny(line, "0123456789") {
			continue
		}
		return line
	}
	return ""
}

// detectCurrency prefers an explicit "Currency:" line. A converted EUR VAT
// figure does not make the document a EUR invoice.
func detectCurrency(text string) string {
	if c := firstGroup(currencyLn, text); c != "" {
		return NormalizeCurrency(c)
	}
	m := currencyRe.FindStringSubmatch(eurVatRe.ReplaceAllString(text, ""))
	if m == nil {
		return "EUR"
	}
	if m[1] != "" {
		return NormalizeCurrency(m[1])
	}
	return NormalizeCurrency(m[0])
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}
