// Package adjustment reconciles marketplace invoices issued in a foreign
// currency against the EUR amount that was actually debited.
//
// The invoice document only carries foreign-currency net/VAT figures (and
// sometimes a converted EUR VAT figure). The bank debit is the authoritative
// total, so the engine rebuilds a standard-rate net from the EUR VAT and books
// whatever is left of the payment as a separate 0% line.
package adjustment

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Options configures an Engine.
type Options struct {
	// StandardRate is the domestic standard VAT rate as a fraction (0.23).
	StandardRate decimal.Decimal
	// MarketplacePattern matches supplier names or filenames of marketplaces
	// that invoice in a foreign currency.
	MarketplacePattern string
	// ForeignCurrency is the invoice currency that triggers reconciliation.
	ForeignCurrency string
}

// DefaultOptions returns the 23% / Amazon / GBP setup.
func DefaultOptions() Options {
	return Options{
		StandardRate:       model.StandardRate,
		MarketplacePattern: `(?i)amazon|amzn`,
		ForeignCurrency:    "GBP",
	}
}

// Engine computes VAT lines for payment-adjusted files.
type Engine struct {
	standardRate    decimal.Decimal
	marketplace     *regexp.Regexp
	foreignCurrency string
	log             zerolog.Logger
}

// New validates opts and builds an Engine.
func New(opts Options) (*Engine, error) {
	if !opts.StandardRate.IsPositive() {
		return nil, fmt.Errorf("standard rate must be positive, got %s", opts.StandardRate)
	}
	re, err := regexp.Compile(opts.MarketplacePattern)
	if err != nil {
		return nil, fmt.Errorf("marketplace pattern: %w", err)
	}
	return &Engine{
		standardRate:    opts.StandardRate,
		marketplace:     re,
		foreignCurrency: strings.ToUpper(opts.ForeignCurrency),
		log:             logger.WithComponent("adjustment"),
	}, nil
}

// MatchesMarketplace reports whether s (a supplier or filename) looks like the
// marketplace.
func (e *Engine) MatchesMarketplace(s string) bool {
	return s != "" && e.marketplace.MatchString(s)
}

// NeedsPaymentAdjustment decides whether a file needs an operator-supplied
// payment amount. currency is empty before parsing; in that case the
// marketplace match alone flags the file.
func (e *Engine) NeedsPaymentAdjustment(supplier, filename, currency string) bool {
	if !e.MatchesMarketplace(supplier) && !e.MatchesMarketplace(filename) {
		return false
	}
	if currency == "" {
		return true
	}
	return strings.EqualFold(currency, e.foreignCurrency)
}

// Result is the outcome of one reconciliation.
type Result struct {
	ActualPaid         decimal.Decimal `json:"actual_paid"`
	EURVatAmount       decimal.Decimal `json:"eur_vat_amount"`
	NetAtStandardRate  decimal.Decimal `json:"net_at_standard_rate"`
	ExpectedTotal      decimal.Decimal `json:"expected_total"`
	ExchangeDifference decimal.Decimal `json:"exchange_difference"`
	// Shortfall is how far the payment fell below the reconstructed
	// standard-rate total; the lines then exceed ActualPaid by this much.
	Shortfall decimal.Decimal `json:"shortfall"`
	Lines     []model.VatLine `json:"lines"`
}

// Reconcile parses the raw operator entry and runs Compute.
func (e *Engine) Reconcile(fileID string, raw model.RawAmount, eurVat decimal.Decimal) (*Result, error) {
	paid, err := model.ParseAmount(string(raw))
	if err != nil {
		return nil, &model.AdjustmentError{FileID: fileID, Value: string(raw), Reason: err.Error()}
	}
	return e.Compute(fileID, paid, eurVat)
}

// Compute builds the VAT lines for a payment of actualPaid EUR given the EUR
// VAT figure of the invoice. It is a pure function of its inputs.
func (e *Engine) Compute(fileID string, actualPaid, eurVat decimal.Decimal) (*Result, error) {
	if !actualPaid.IsPositive() {
		return nil, &model.AdjustmentError{FileID: fileID, Value: actualPaid.String(), Reason: "amount must be greater than zero"}
	}
	actualPaid = model.RoundCents(actualPaid)
	res := &Result{
		ActualPaid:         actualPaid,
		EURVatAmount:       decimal.Zero,
		NetAtStandardRate:  decimal.Zero,
		ExpectedTotal:      decimal.Zero,
		ExchangeDifference: decimal.Zero,
		Shortfall:          decimal.Zero,
	}

	if !eurVat.IsPositive() {
		// Without a EUR VAT figure nothing can be attributed to the standard
		// rate; the whole payment is booked at 0%.
		res.Lines = []model.VatLine{model.NewVatLine(model.VatZero, decimal.Zero, actualPaid, decimal.Zero)}
		e.log.Debug().Str("file_id", fileID).Str("actual_paid", actualPaid.String()).Msg("no EUR VAT, booking payment at zero rate")
		return res, nil
	}

	res.EURVatAmount = model.RoundCents(eurVat)
	// Rounding the net before taking the difference keeps the line grosses
	// summing to actualPaid to the cent.
	res.NetAtStandardRate = model.RoundCents(res.EURVatAmount.Div(e.standardRate))
	res.ExpectedTotal = res.NetAtStandardRate.Add(res.EURVatAmount)
	diff := actualPaid.Sub(res.ExpectedTotal)
	if diff.IsNegative() {
		res.Shortfall = diff.Neg()
		diff = decimal.Zero
	}
	res.ExchangeDifference = diff
	res.Lines = []model.VatLine{
		model.NewVatLine(model.VatStandard, e.standardRate.Mul(hundred), res.NetAtStandardRate, res.EURVatAmount),
		model.NewVatLine(model.VatZero, decimal.Zero, res.ExchangeDifference, decimal.Zero),
	}

	e.log.Debug().
		Str("file_id", fileID).
		Str("actual_paid", actualPaid.String()).
		Str("eur_vat", res.EURVatAmount.String()).
		Str("net_standard", res.NetAtStandardRate.String()).
		Str("exchange_difference", res.ExchangeDifference.String()).
		Str("shortfall", res.Shortfall.String()).
		Msg("payment reconciled")
	return res, nil
}

// Warning returns a human readable note when the payment did not cover the
// reconstructed total, or "" otherwise.
func (r *Result) Warning() string {
	if !r.Shortfall.IsPositive() {
		return ""
	}
	return fmt.Sprintf("payment %s EUR is %s below the standard-rate reconstruction %s EUR",
		r.ActualPaid.StringFixed(2), r.Shortfall.StringFixed(2), r.ExpectedTotal.StringFixed(2))
}
