package pdfutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/pdftest"
)

func TestExtractText(t *testing.T) {
	text, err := ExtractText(pdftest.Build("Invoice No INV-42", "Total 12.30"))
	require.NoError(t, err)
	assert.Contains(t, text, "INV-42")
	assert.Contains(t, text, "12.30")
}

func TestExtractPagesKeepsOrder(t *testing.T) {
	pages, err := ExtractPages(pdftest.Build("first", "", "third"))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Contains(t, pages[0], "first")
	assert.Contains(t, pages[2], "third")
}

func TestExtractTextBlankDocument(t *testing.T) {
	_, err := ExtractText(pdftest.Build("", ""))
	assert.True(t, errors.Is(err, ErrNoText))
}

func TestExtractTextGarbage(t *testing.T) {
	_, err := ExtractText([]byte("%PDF-1.4 truncated"))
	assert.Error(t, err)
}
