// Package parser turns uploaded documents into structured invoice fields.
// Two backends exist: a regex parser over the PDF text layer and a Google
// Document AI client that also handles scans and images.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// Parser extracts invoice fields from one file.
type Parser interface {
	Parse(ctx context.Context, f *model.File, data []byte) (*model.ParseResult, error)
}

var (
	// ErrUnsupportedFormat is returned when the backend cannot read the file type.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrNothingExtracted is returned when no invoice field could be found.
	ErrNothingExtracted = errors.New("no invoice fields found")
)

// crossCheckTolerance is the largest gap between the breakdown and the stated
// total that is not reported.
var crossCheckTolerance = decimal.New(2, -2)

// CrossCheck appends anomaly warnings for missing mandatory fields and for a
// VAT breakdown that does not add up to the stated total.
func CrossCheck(res *model.ParseResult) {
	f := res.Fields
	if strings.TrimSpace(res.Supplier) == "" {
		res.Warnings = append(res.Warnings, "supplier not detected")
	}
	if f.InvoiceNumber == "" {
		res.Warnings = append(res.Warnings, "invoice number missing")
	}
	if f.InvoiceDate == nil {
		res.Warnings = append(res.Warnings, "invoice date missing")
	}
	if f.Total.IsZero() {
		res.Warnings = append(res.Warnings, "total amount missing")
	}
	if len(f.VatBreakdown) == 0 || f.Total.IsZero() {
		return
	}
	sum := decimal.Zero
	for _, v := range f.VatBreakdown {
		sum = sum.Add(v.Net).Add(v.Vat)
		if v.Rate.IsPositive() && v.Net.IsPositive() {
			want := v.Net.Mul(v.Rate).Div(decimal.NewFromInt(100))
			if want.Sub(v.Vat).Abs().GreaterThan(crossCheckTolerance) {
				res.Warnings = append(res.Warnings, fmt.Sprintf(
					"VAT %s at %s%% does not match net %s", v.Vat.StringFixed(2), v.Rate.String(), v.Net.StringFixed(2)))
			}
		}
	}
	if sum.Sub(f.Total).Abs().GreaterThan(crossCheckTolerance) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"VAT breakdown sums to %s but total is %s", sum.StringFixed(2), f.Total.StringFixed(2)))
	}
}

// NormalizeCurrency maps symbols and names to ISO codes. Unknown values fall
// back to EUR.
func NormalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	switch normalized {
	case "", "€", "EURO", "EUROS", "EUR":
		return "EUR"
	case "£", "POUND", "POUNDS", "GBP", "STERLING":
		return "GBP"
	case "$", "US$", "DOLLAR", "DOLLARS", "USD":
		return "USD"
	}
	if len(normalized) == 3 {
		return normalized
	}
	return "EUR"
}
