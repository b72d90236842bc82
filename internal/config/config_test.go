package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("INVOICEDROP_SIGNING_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, int64(20<<20), cfg.MaxFileSize)
	assert.Equal(t, []string{"pdf", "jpg", "jpeg", "png"}, cfg.AllowedExtensions)
	assert.Equal(t, OverlapAllow, cfg.SplitOverlap)
	assert.Equal(t, "GBP", cfg.ForeignCurrency)
	assert.True(t, decimal.RequireFromString("0.01").Equal(cfg.DuplicateTolerance))
	assert.True(t, decimal.RequireFromString("0.23").Equal(cfg.StandardVatRate))
	assert.Len(t, cfg.SigningSecret, 32)
	assert.False(t, cfg.Distributed())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("INVOICEDROP_ALLOWED_EXTENSIONS", " .PDF, png ")
	t.Setenv("INVOICEDROP_SPLIT_OVERLAP", "REJECT")
	t.Setenv("INVOICEDROP_PARSE_WORKERS", "-2")
	t.Setenv("INVOICEDROP_SIGNED_TTL", "90s")
	t.Setenv("INVOICEDROP_SIGNING_SECRET", "s3cret")
	t.Setenv("INVOICEDROP_FOREIGN_CURRENCY", "usd")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"pdf", "png"}, cfg.AllowedExtensions)
	assert.Equal(t, OverlapReject, cfg.SplitOverlap)
	assert.Equal(t, defaultWorkerCount, cfg.ParseWorkers)
	assert.Equal(t, 90*time.Second, cfg.SignedURLTTL)
	assert.Equal(t, []byte("s3cret"), cfg.SigningSecret)
	assert.Equal(t, "USD", cfg.ForeignCurrency)
	assert.True(t, cfg.Distributed())
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string][2]string{
		"overlap":    {"INVOICEDROP_SPLIT_OVERLAP", "merge"},
		"confidence": {"INVOICEDROP_CONFIDENCE_THRESHOLD", "1.5"},
		"vat rate":   {"INVOICEDROP_STANDARD_VAT_RATE", "0"},
		"tolerance":  {"INVOICEDROP_DUPLICATE_AMOUNT_TOLERANCE", "abc"},
		"parser":     {"INVOICEDROP_PARSER", "ocr"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestDocumentAIRequiresProcessor(t *testing.T) {
	t.Setenv("INVOICEDROP_PARSER", "documentai")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "acme")
	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "")

	_, err := Load()
	require.Error(t, err)

	t.Setenv("DOCUMENT_AI_PROCESSOR_ID", "proc-1")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "eu", cfg.DocumentAILocation)
}
