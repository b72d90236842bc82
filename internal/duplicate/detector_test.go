package duplicate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

type mockLookup struct {
	mock.Mock
}

func (m *mockLookup) FindInvoices(ctx context.Context, q model.InvoiceQuery) ([]*model.Invoice, error) {
	args := m.Called(ctx, q)
	invoices, _ := args.Get(0).([]*model.Invoice)
	return invoices, args.Error(1)
}

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func byHash(q model.InvoiceQuery) bool   { return q.SourceHash != "" }
func byNumber(q model.InvoiceQuery) bool { return q.Number != "" }
func byWindow(q model.InvoiceQuery) bool { return !q.From.IsZero() }

func TestCheckMatchesContentHash(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindInvoices", mock.Anything, mock.MatchedBy(byHash)).
		Return([]*model.Invoice{{ID: "inv-1"}}, nil)
	d := New(lookup, DefaultConfig())

	w, err := d.Check(context.Background(), Candidate{FileID: "f1", ContentHash: "abc"})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "inv-1", w.MatchID)
	assert.Equal(t, ConfidenceIdentical, w.Confidence)
	lookup.AssertExpectations(t)
}

func TestCheckMatchesInvoiceNumber(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindInvoices", mock.Anything, mock.MatchedBy(byHash)).Return(nil, nil)
	lookup.On("FindInvoices", mock.Anything, mock.MatchedBy(byNumber)).
		Return([]*model.Invoice{{ID: "inv-7", Number: "A-100"}}, nil)
	d := New(lookup, DefaultConfig())

	w, err := d.Check(context.Background(), Candidate{
		FileID: "f1", Supplier: "Musgrave", InvoiceNumber: "A-100", ContentHash: "h",
	})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "inv-7", w.MatchID)
	assert.Contains(t, w.Error(), "A-100")
}

func TestCheckMatchesDateAndTotal(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindInvoices", mock.Anything, mock.MatchedBy(byNumber)).Return(nil, nil)
	lookup.On("FindInvoices", mock.Anything, mock.MatchedBy(byWindow)).Return([]*model.Invoice{
		{ID: "far", Date: day("2024-03-01"), Total: decimal.RequireFromString("100.00")},
		{ID: "other-amount", Date: day("2024-03-11"), Total: decimal.RequireFromString("100.50")},
		{ID: "hit", Date: day("2024-03-12"), Total: decimal.RequireFromString("100.01")},
	}, nil)
	d := New(lookup, DefaultConfig())

	w, err := d.Check(context.Background(), Candidate{
		FileID:        "f1",
		Supplier:      "Musgrave",
		InvoiceNumber: "B-2",
		Date:          day("2024-03-10"),
		Total:         decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, "hit", w.MatchID)
	assert.Equal(t, ConfidenceAmount, w.Confidence)
}

func TestCheckNoMatch(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindInvoices", mock.Anything, mock.Anything).Return(nil, nil)
	d := New(lookup, DefaultConfig())

	w, err := d.Check(context.Background(), Candidate{
		FileID: "f1", Supplier: "Musgrave", InvoiceNumber: "C-3",
		Date: day("2024-03-10"), Total: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestCheckWithoutSupplierOnlyUsesHash(t *testing.T) {
	lookup := new(mockLookup)
	d := New(lookup, DefaultConfig())

	w, err := d.Check(context.Background(), Candidate{FileID: "f1", InvoiceNumber: "X"})
	require.NoError(t, err)
	assert.Nil(t, w)
	lookup.AssertNotCalled(t, "FindInvoices", mock.Anything, mock.Anything)
}

func TestCheckPropagatesLookupErrors(t *testing.T) {
	lookup := new(mockLookup)
	lookup.On("FindInvoices", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	d := New(lookup, DefaultConfig())

	_, err := d.Check(context.Background(), Candidate{FileID: "f1", ContentHash: "h"})
	assert.ErrorContains(t, err, "db down")
}

func TestCheckSiblings(t *testing.T) {
	d := New(new(mockLookup), DefaultConfig())
	siblings := []*model.File{
		{ID: "f1", Name: "a.pdf", Supplier: "Musgrave", Status: model.FileParsed, Parsed: &model.ParsedFields{InvoiceNumber: "A-1"}},
		{ID: "f2", Name: "b.pdf", Supplier: "musgrave ", Status: model.FileParsing},
		{ID: "f3", Name: "c.pdf", Supplier: "Other", Status: model.FileFailed, Parsed: &model.ParsedFields{InvoiceNumber: "A-2"}},
	}

	w := d.CheckSiblings(Candidate{FileID: "f2", Supplier: "MUSGRAVE", InvoiceNumber: "A-1"}, siblings)
	require.NotNil(t, w)
	assert.Equal(t, "f1", w.MatchID)

	assert.Nil(t, d.CheckSiblings(Candidate{FileID: "f1", Supplier: "Musgrave", InvoiceNumber: "A-1"}, siblings))
	assert.Nil(t, d.CheckSiblings(Candidate{FileID: "f4", Supplier: "Other", InvoiceNumber: "A-2"}, siblings))
}

func TestConfigWindow(t *testing.T) {
	cfg := DefaultConfig()
	assert.True(t, cfg.DatesMatch(*day("2024-01-10"), *day("2024-01-13")))
	assert.False(t, cfg.DatesMatch(*day("2024-01-10"), *day("2024-01-14")))
	assert.True(t, cfg.AmountsMatch(decimal.RequireFromString("-10.00"), decimal.RequireFromString("10.01")))
	assert.False(t, cfg.AmountsMatch(decimal.RequireFromString("10.00"), decimal.RequireFromString("10.02")))
}
