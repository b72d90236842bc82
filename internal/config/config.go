// Package config centralizes how InvoiceDrop reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
)

// SplitOverlap selects how overlapping custom page ranges are treated.
type SplitOverlap string

const (
	OverlapAllow  SplitOverlap = "allow"
	OverlapReject SplitOverlap = "reject"
)

// Config represents runtime configuration for the API server and the worker.
type Config struct {
	Address string

	// Intake limits.
	MaxFileSize       int64
	MaxBatchFiles     int
	AllowedExtensions []string

	// Pipeline tuning.
	ParseWorkers        int
	ConfidenceThreshold float64
	DuplicateWindowDays int
	DuplicateTolerance  decimal.Decimal
	SplitOverlap        SplitOverlap
	MarketplacePattern  string
	ForeignCurrency     string
	StandardVatRate     decimal.Decimal
	StatusPushInterval  time.Duration

	SigningSecret []byte
	SignedURLTTL  time.Duration

	// Backends. Empty values select the in-process implementations.
	DatabaseURL     string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string
	S3UseSSL        bool
	RawBucket       string
	ThumbnailBucket string

	Parser              string
	DocumentAIProject   string
	DocumentAILocation  string
	DocumentAIProcessor string

	Log logger.LogConfig
}

const (
	defaultAddress       = ":8080"
	defaultMaxFileSize   = 20 << 20 // 20 MiB
	defaultMaxBatchFiles = 50
	defaultExtensions    = "pdf,jpg,jpeg,png"
	defaultWorkerCount   = 4
	defaultConfidence    = 0.8
	defaultDupWindowDays = 3
	defaultDupTolerance  = "0.01"
	defaultMarketplace   = `(?i)amazon|amzn`
	defaultForeign       = "GBP"
	defaultStandardRate  = "0.23"
	defaultPushInterval  = 2 * time.Second
	defaultSignedTTL     = 5 * time.Minute
)

// Load reads an optional .env file and then the environment, falling back to
// defaults for anything unset.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Address:             readEnv("INVOICEDROP_ADDRESS", defaultAddress),
		MaxFileSize:         parseInt64("INVOICEDROP_MAX_FILE_BYTES", defaultMaxFileSize),
		MaxBatchFiles:       parseInt("INVOICEDROP_MAX_BATCH_FILES", defaultMaxBatchFiles),
		AllowedExtensions:   parseList("INVOICEDROP_ALLOWED_EXTENSIONS", defaultExtensions),
		ParseWorkers:        parseInt("INVOICEDROP_PARSE_WORKERS", defaultWorkerCount),
		ConfidenceThreshold: parseFloat("INVOICEDROP_CONFIDENCE_THRESHOLD", defaultConfidence),
		DuplicateWindowDays: parseInt("INVOICEDROP_DUPLICATE_WINDOW_DAYS", defaultDupWindowDays),
		SplitOverlap:        SplitOverlap(strings.ToLower(readEnv("INVOICEDROP_SPLIT_OVERLAP", string(OverlapAllow)))),
		MarketplacePattern:  readEnv("INVOICEDROP_MARKETPLACE_PATTERN", defaultMarketplace),
		ForeignCurrency:     strings.ToUpper(readEnv("INVOICEDROP_FOREIGN_CURRENCY", defaultForeign)),
		StatusPushInterval:  parseDuration("INVOICEDROP_STATUS_PUSH_INTERVAL", defaultPushInterval),
		SigningSecret:       parseSecret("INVOICEDROP_SIGNING_SECRET"),
		SignedURLTTL:        parseDuration("INVOICEDROP_SIGNED_TTL", defaultSignedTTL),
		DatabaseURL:         readEnv("DATABASE_URL", ""),
		RedisAddr:           readEnv("REDIS_ADDR", ""),
		RedisPassword:       readEnv("REDIS_PASSWORD", ""),
		RedisDB:             parseInt("REDIS_DB", 0),
		S3Endpoint:          readEnv("S3_ENDPOINT", ""),
		S3AccessKey:         readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:         readEnv("S3_SECRET_KEY", ""),
		S3Region:            readEnv("S3_REGION", "us-east-1"),
		S3UseSSL:            parseBool("S3_USE_SSL", false),
		RawBucket:           readEnv("S3_RAW_BUCKET", "invoicedrop-raw"),
		ThumbnailBucket:     readEnv("S3_THUMBNAIL_BUCKET", "invoicedrop-thumbnails"),
		Parser:              strings.ToLower(readEnv("INVOICEDROP_PARSER", "text")),
		DocumentAIProject:   readEnv("GOOGLE_CLOUD_PROJECT", ""),
		DocumentAILocation:  readEnv("GOOGLE_CLOUD_LOCATION", "eu"),
		DocumentAIProcessor: readEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		Log: logger.LogConfig{
			Level:      readEnv("LOG_LEVEL", "info"),
			Format:     readEnv("LOG_FORMAT", "console"),
			TimeFormat: readEnv("LOG_TIME_FORMAT", time.RFC3339),
			Output:     readEnv("LOG_OUTPUT", "stdout"),
		},
	}

	var err error
	if cfg.DuplicateTolerance, err = parseDecimal("INVOICEDROP_DUPLICATE_AMOUNT_TOLERANCE", defaultDupTolerance); err != nil {
		return nil, err
	}
	if cfg.StandardVatRate, err = parseDecimal("INVOICEDROP_STANDARD_VAT_RATE", defaultStandardRate); err != nil {
		return nil, err
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.ParseWorkers <= 0 {
		cfg.ParseWorkers = defaultWorkerCount
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.MaxBatchFiles <= 0 {
		cfg.MaxBatchFiles = defaultMaxBatchFiles
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SplitOverlap {
	case OverlapAllow, OverlapReject:
	default:
		return fmt.Errorf("INVOICEDROP_SPLIT_OVERLAP must be %q or %q, got %q", OverlapAllow, OverlapReject, c.SplitOverlap)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("INVOICEDROP_CONFIDENCE_THRESHOLD must be within [0,1], got %v", c.ConfidenceThreshold)
	}
	if !c.StandardVatRate.IsPositive() {
		return fmt.Errorf("INVOICEDROP_STANDARD_VAT_RATE must be positive")
	}
	switch c.Parser {
	case "text":
	case "documentai":
		if c.DocumentAIProject == "" || c.DocumentAIProcessor == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT and DOCUMENT_AI_PROCESSOR_ID are required for the documentai parser")
		}
	default:
		return fmt.Errorf("INVOICEDROP_PARSER must be text or documentai, got %q", c.Parser)
	}
	return nil
}

// Distributed reports whether parsing runs in a separate asynq worker.
func (c *Config) Distributed() bool {
	return c.RedisAddr != ""
}

func readEnv(key, def string) string {
	// LookupEnv returns (value, true) when the variable is present.
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(out[i]), "."))
	}
	return out
}

func parseInt64(key string, def int64) int64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func parseBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseDecimal(key, def string) (decimal.Decimal, error) {
	v := readEnv(key, def)
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func parseDuration(key string, def time.Duration) time.Duration {
	// time.ParseDuration understands inputs like "5m" or "30s".
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
