package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/config"
	"github.com/dharsanguruparan/InvoiceDrop/internal/parser"
	"github.com/dharsanguruparan/InvoiceDrop/internal/storage"
)

func memoryConfig() *config.Config {
	return &config.Config{
		MaxFileSize:         1 << 20,
		MaxBatchFiles:       5,
		AllowedExtensions:   []string{"pdf"},
		ParseWorkers:        2,
		ConfidenceThreshold: 0.7,
		DuplicateWindowDays: 3,
		DuplicateTolerance:  decimal.RequireFromString("0.01"),
		SplitOverlap:        config.OverlapReject,
		MarketplacePattern:  `(?i)amazon`,
		ForeignCurrency:     "GBP",
		StandardVatRate:     decimal.RequireFromString("0.23"),
		Parser:              "text",
	}
}

func TestBuildInMemory(t *testing.T) {
	a, err := Build(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &storage.MemoryRepository{}, a.Repo)
	assert.IsType(t, &storage.MemoryFileStore{}, a.Files)
	assert.IsType(t, &parser.TextParser{}, a.Parser)

	opts := a.Options()
	assert.False(t, opts.AllowOverlap)
	assert.Equal(t, 5, opts.MaxBatchFiles)
	assert.Equal(t, 0.7, opts.ConfidenceThreshold)
	assert.NotNil(t, a.Orchestrator(nil, nil))
}

func TestBuildRejectsBadMarketplacePattern(t *testing.T) {
	cfg := memoryConfig()
	cfg.MarketplacePattern = "("
	_, err := Build(context.Background(), cfg)
	assert.Error(t, err)
}
