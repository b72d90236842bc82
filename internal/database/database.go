package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgx connection pool using the provided DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 8
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the batch, file and invoice tables if needed. Having
// the migration in code lets docker-compose bootstrap everything.
//
// parent_file_id deliberately has no foreign key: a parent may be removed
// while the files split from it stay in the batch.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	const stmt = `
CREATE TABLE IF NOT EXISTS upload_batches (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	total_files INTEGER NOT NULL DEFAULT 0,
	processed_files INTEGER NOT NULL DEFAULT 0,
	created_by TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS upload_files (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES upload_batches(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	file_name TEXT NOT NULL,
	extension TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	parent_file_id TEXT,
	page_range TEXT,
	supplier TEXT,
	confidence DOUBLE PRECISION,
	parsed JSONB,
	warnings JSONB NOT NULL DEFAULT '[]',
	error_message TEXT,
	duplicate_of TEXT,
	tax_free BOOLEAN NOT NULL DEFAULT FALSE,
	credit_note BOOLEAN NOT NULL DEFAULT FALSE,
	payment_required BOOLEAN NOT NULL DEFAULT FALSE,
	payment_amount NUMERIC(14,2),
	adjusted_lines JSONB NOT NULL DEFAULT '[]',
	invoice_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_upload_files_batch ON upload_files(batch_id, position);

CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL,
	file_id TEXT NOT NULL,
	invoice_number TEXT,
	invoice_date DATE,
	supplier TEXT,
	supplier_key TEXT,
	currency TEXT NOT NULL,
	subtotal NUMERIC(14,2) NOT NULL,
	vat_amount NUMERIC(14,2) NOT NULL,
	total_amount NUMERIC(14,2) NOT NULL,
	payment_status TEXT NOT NULL,
	source_hash TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_file ON invoices(file_id);
CREATE INDEX IF NOT EXISTS idx_invoices_supplier ON invoices(supplier_key, invoice_number);
CREATE INDEX IF NOT EXISTS idx_invoices_hash ON invoices(source_hash);

CREATE TABLE IF NOT EXISTS vat_lines (
	invoice_id TEXT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	category TEXT NOT NULL,
	rate NUMERIC(6,3) NOT NULL,
	net NUMERIC(14,2) NOT NULL,
	vat NUMERIC(14,2) NOT NULL,
	gross NUMERIC(14,2) NOT NULL,
	PRIMARY KEY (invoice_id, position)
);`
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
