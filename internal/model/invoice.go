package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VatCategory names a VAT rate band.
type VatCategory string

const (
	VatStandard      VatCategory = "STANDARD"
	VatReduced       VatCategory = "REDUCED"
	VatSecondReduced VatCategory = "SECOND_REDUCED"
	VatLivestock     VatCategory = "LIVESTOCK"
	VatZero          VatCategory = "ZERO"
	VatExempt        VatCategory = "EXEMPT"
)

var (
	// Tolerance is the rounding tolerance used for every amount comparison.
	Tolerance = decimal.New(1, -2)

	// StandardRate is the domestic standard VAT rate as a fraction.
	StandardRate = decimal.RequireFromString("0.23")

	categoryRates = []struct {
		category VatCategory
		percent  decimal.Decimal
	}{
		{VatStandard, decimal.NewFromInt(23)},
		{VatReduced, decimal.RequireFromString("13.5")},
		{VatSecondReduced, decimal.NewFromInt(9)},
		{VatLivestock, decimal.RequireFromString("4.8")},
		{VatZero, decimal.Zero},
	}
)

// CategoryForRate maps a percentage rate (23, 13.5, ...) to its category.
// Unknown rates are reported as STANDARD when above 20%, otherwise REDUCED.
func CategoryForRate(percent decimal.Decimal) VatCategory {
	for _, cr := range categoryRates {
		if percent.Sub(cr.percent).Abs().LessThan(Tolerance) {
			return cr.category
		}
	}
	if percent.GreaterThan(decimal.NewFromInt(20)) {
		return VatStandard
	}
	return VatReduced
}

// RoundCents rounds to two decimal places.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// VatLine is one (category, rate, net, vat, gross) component of an invoice.
type VatLine struct {
	Category VatCategory     `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
	Net      decimal.Decimal `json:"net"`
	Vat      decimal.Decimal `json:"vat"`
	Gross    decimal.Decimal `json:"gross"`
}

// NewVatLine rounds net and vat to cents and derives gross from them.
func NewVatLine(category VatCategory, rate, net, vat decimal.Decimal) VatLine {
	net = RoundCents(net)
	vat = RoundCents(vat)
	return VatLine{Category: category, Rate: rate, Net: net, Vat: vat, Gross: net.Add(vat)}
}

// Negate flips the sign of every amount, for credit notes.
func (l VatLine) Negate() VatLine {
	return VatLine{Category: l.Category, Rate: l.Rate, Net: l.Net.Neg(), Vat: l.Vat.Neg(), Gross: l.Gross.Neg()}
}

// PaymentStatus of a materialized invoice.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Invoice is a ledger-grade record produced by materialization.
type Invoice struct {
	ID            string          `json:"id"`
	BatchID       string          `json:"batch_id"`
	FileID        string          `json:"file_id"`
	Number        string          `json:"invoice_number"`
	Date          *time.Time      `json:"invoice_date,omitempty"`
	Supplier      string          `json:"supplier"`
	Currency      string          `json:"currency"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	VatAmount     decimal.Decimal `json:"vat_amount"`
	Total         decimal.Decimal `json:"total_amount"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	SourceHash    string          `json:"source_hash,omitempty"`
	Lines         []VatLine       `json:"vat_lines"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SumLines sets Subtotal, VatAmount and Total from the VAT lines so the
// invoice totals always agree with its breakdown.
func (inv *Invoice) SumLines() {
	inv.Subtotal, inv.VatAmount, inv.Total = decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range inv.Lines {
		inv.Subtotal = inv.Subtotal.Add(l.Net)
		inv.VatAmount = inv.VatAmount.Add(l.Vat)
		inv.Total = inv.Total.Add(l.Gross)
	}
}

// InvoiceQuery selects committed invoices that could duplicate a parsed file.
// Supplier matching is case-insensitive; a zero From/To disables the date range.
type InvoiceQuery struct {
	Supplier   string
	Number     string
	From       time.Time
	To         time.Time
	SourceHash string
}

// NormalizeSupplier folds a supplier name for comparisons.
func NormalizeSupplier(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
