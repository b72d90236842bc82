package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/pdftest"
)

const marketplaceInvoice = `Supplier: Amazon EU S.a.r.l.
Invoice No: INV-42
Invoice Date: 2024-03-10
Currency: GBP
VAT 20% 16.00 3.20
Total: 19.20
VAT in EUR: 4.50`

func TestParseTextFullInvoice(t *testing.T) {
	res, err := ParseText(marketplaceInvoice)
	require.NoError(t, err)

	assert.Equal(t, "Amazon EU S.a.r.l.", res.Supplier)
	assert.Equal(t, "INV-42", res.Fields.InvoiceNumber)
	require.NotNil(t, res.Fields.InvoiceDate)
	assert.Equal(t, "2024-03-10", res.Fields.InvoiceDate.Format("2006-01-02"))
	assert.Equal(t, "GBP", res.Fields.Currency)
	assert.True(t, res.Fields.Total.Equal(decimal.RequireFromString("19.20")))
	assert.True(t, res.Fields.EURVatAmount.Equal(decimal.RequireFromString("4.50")))
	require.Len(t, res.Fields.VatBreakdown, 1)
	assert.True(t, res.Fields.VatBreakdown[0].Rate.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 1.0, res.Confidence)
	assert.Empty(t, res.Warnings)
	assert.False(t, res.TaxFree)
	assert.False(t, res.CreditNote)
}

func TestParseTextPartialInvoice(t *testing.T) {
	res, err := ParseText("Corner Shop\nTotal: 10,50")
	require.NoError(t, err)

	assert.Equal(t, "Corner Shop", res.Supplier)
	assert.True(t, res.Fields.Total.Equal(decimal.RequireFromString("10.50")))
	assert.Equal(t, "EUR", res.Fields.Currency)
	assert.InDelta(t, 0.4, res.Confidence, 0.001)
	assert.Contains(t, res.Warnings, "invoice number missing")
	assert.Contains(t, res.Warnings, "invoice date missing")
}

func TestParseTextBreakdownMismatch(t *testing.T) {
	res, err := ParseText("Supplier: Musgrave\nInvoice No: M-1\nDate: 01.02.2024\nVAT 23% 100.00 23.00\nTotal: 130.00")
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "sums to 123.00")
}

func TestParseTextFlags(t *testing.T) {
	res, err := ParseText("Supplier: Vet Supplies\nCredit Note No: CN-77\nVAT exempt\nTotal: -40.00")
	require.NoError(t, err)
	assert.True(t, res.CreditNote)
	assert.True(t, res.TaxFree)
	assert.Equal(t, "CN-77", res.Fields.InvoiceNumber)
}

func TestParseTextNothingFound(t *testing.T) {
	_, err := ParseText("12345\n678")
	assert.True(t, errors.Is(err, ErrNothingExtracted))
}

func TestTextParserRejectsImages(t *testing.T) {
	p := NewTextParser()
	_, err := p.Parse(context.Background(), &model.File{ID: "f", Extension: "png"}, []byte{0x89, 'P', 'N', 'G'})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestTextParserReadsPDF(t *testing.T) {
	p := NewTextParser()
	data := pdftest.Build("Supplier: Musgrave\nInvoice No: M-9\nTotal: 12.30")

	res, err := p.Parse(context.Background(), &model.File{ID: "f", Extension: "pdf"}, data)
	require.NoError(t, err)
	assert.Equal(t, "M-9", res.Fields.InvoiceNumber)
	assert.True(t, res.Fields.Total.Equal(decimal.RequireFromString("12.30")))
}
