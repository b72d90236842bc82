// Package repository stores batches, files and invoices in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BatchRepository wraps all SQL used by the API and the worker.
type BatchRepository struct {
	pool *pgxpool.Pool
}

// NewBatchRepository constructs a repository.
func NewBatchRepository(pool *pgxpool.Pool) *BatchRepository {
	return &BatchRepository{pool: pool}
}

// Create inserts a batch and its first files in one transaction.
func (r *BatchRepository) Create(ctx context.Context, state *model.BatchState) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO upload_batches (id, status, total_files, processed_files, created_by, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, state.Batch.ID, state.Batch.Status, state.Batch.TotalFiles, state.Batch.ProcessedFiles,
			state.Batch.CreatedBy, state.Batch.CreatedAt, state.Batch.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		return writeFiles(ctx, tx, state)
	})
}

// Load returns the batch with its files in upload order.
func (r *BatchRepository) Load(ctx context.Context, batchID string) (*model.BatchState, error) {
	return loadState(ctx, r.pool, batchID, false)
}

// Update locks the batch row, runs fn on the loaded state and writes the
// result back in the same transaction. Nothing is written when fn fails.
func (r *BatchRepository) Update(ctx context.Context, batchID string, fn func(*model.BatchState) error) (*model.BatchState, error) {
	var out *model.BatchState
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		state, err := loadState(ctx, tx, batchID, true)
		if err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE upload_batches
			SET status=$1, total_files=$2, processed_files=$3, updated_at=$4
			WHERE id=$5
		`, state.Batch.Status, state.Batch.TotalFiles, state.Batch.ProcessedFiles, state.Batch.UpdatedAt, batchID); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}

		ids := make([]string, len(state.Files))
		for i, f := range state.Files {
			ids[i] = f.ID
		}
		if _, err := tx.Exec(ctx, `DELETE FROM upload_files WHERE batch_id=$1 AND NOT (id = ANY($2))`, batchID, ids); err != nil {
			return fmt.Errorf("delete removed files: %w", err)
		}
		if err := writeFiles(ctx, tx, state); err != nil {
			return err
		}
		if err := writeInvoices(ctx, tx, state.NewInvoices); err != nil {
			return err
		}
		state.NewInvoices = nil
		out = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadState(ctx context.Context, q querier, batchID string, forUpdate bool) (*model.BatchState, error) {
	stmt := `
		SELECT id, status, total_files, processed_files, COALESCE(created_by,''), created_at, updated_at
		FROM upload_batches WHERE id=$1`
	if forUpdate {
		stmt += ` FOR UPDATE`
	}
	state := &model.BatchState{}
	b := &state.Batch
	err := q.QueryRow(ctx, stmt, batchID).Scan(&b.ID, &b.Status, &b.TotalFiles, &b.ProcessedFiles, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", batchID, model.ErrBatchNotFound)
		}
		return nil, fmt.Errorf("select batch: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, batch_id, file_name, extension, content_type, size_bytes, page_count, content_hash, status,
			COALESCE(parent_file_id,''), COALESCE(page_range,''), COALESCE(supplier,''), confidence, parsed,
			warnings, error_message, COALESCE(duplicate_of,''), tax_free, credit_note, payment_required,
			payment_amount::text, adjusted_lines, COALESCE(invoice_id,''), created_at, updated_at
		FROM upload_files WHERE batch_id=$1 ORDER BY position
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("select files: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		state.Files = append(state.Files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return state, nil
}

func scanFile(row pgx.Row) (*model.File, error) {
	var (
		f             model.File
		parsed        []byte
		warnings      []byte
		adjusted      []byte
		paymentAmount *string
	)
	err := row.Scan(&f.ID, &f.BatchID, &f.Name, &f.Extension, &f.ContentType, &f.Size, &f.PageCount, &f.ContentHash, &f.Status,
		&f.ParentID, &f.PageRange, &f.Supplier, &f.Confidence, &parsed,
		&warnings, &f.ErrorMessage, &f.DuplicateOf, &f.TaxFree, &f.CreditNote, &f.PaymentRequired,
		&paymentAmount, &adjusted, &f.InvoiceID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}
	if len(parsed) > 0 && string(parsed) != "null" {
		f.Parsed = &model.ParsedFields{}
		if err := json.Unmarshal(parsed, f.Parsed); err != nil {
			return nil, fmt.Errorf("decode parsed fields of %s: %w", f.ID, err)
		}
	}
	if err := unmarshalList(warnings, &f.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of %s: %w", f.ID, err)
	}
	if err := unmarshalList(adjusted, &f.AdjustedLines); err != nil {
		return nil, fmt.Errorf("decode adjusted lines of %s: %w", f.ID, err)
	}
	if paymentAmount != nil {
		d, err := decimal.NewFromString(*paymentAmount)
		if err != nil {
			return nil, fmt.Errorf("decode payment amount of %s: %w", f.ID, err)
		}
		f.PaymentAmount = &d
	}
	return &f, nil
}

func unmarshalList[T any](data []byte, out *[]T) error {
	if len(data) == 0 {
		return nil
	}
	var list []T
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	if len(list) > 0 {
		*out = list
	}
	return nil
}

func writeFiles(ctx context.Context, tx pgx.Tx, state *model.BatchState) error {
	if len(state.Files) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, f := range state.Files {
		var parsed []byte
		if f.Parsed != nil {
			var err error
			if parsed, err = json.Marshal(f.Parsed); err != nil {
				return fmt.Errorf("encode parsed fields of %s: %w", f.ID, err)
			}
		}
		warnings, err := json.Marshal(nonNil(f.Warnings))
		if err != nil {
			return fmt.Errorf("encode warnings of %s: %w", f.ID, err)
		}
		adjusted, err := json.Marshal(nonNil(f.AdjustedLines))
		if err != nil {
			return fmt.Errorf("encode adjusted lines of %s: %w", f.ID, err)
		}
		var payment *string
		if f.PaymentAmount != nil {
			s := f.PaymentAmount.StringFixed(2)
			payment = &s
		}
		batch.Queue(`
			INSERT INTO upload_files (id, batch_id, position, file_name, extension, content_type, size_bytes, page_count,
				content_hash, status, parent_file_id, page_range, supplier, confidence, parsed, warnings, error_message,
				duplicate_of, tax_free, credit_note, payment_required, payment_amount, adjusted_lines, invoice_id,
				created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,''),$14,$15,$16,$17,
				NULLIF($18,''),$19,$20,$21,$22::numeric,$23,NULLIF($24,''),$25,$26)
			ON CONFLICT (id) DO UPDATE SET
				position=EXCLUDED.position, status=EXCLUDED.status, page_count=EXCLUDED.page_count,
				supplier=EXCLUDED.supplier, confidence=EXCLUDED.confidence, parsed=EXCLUDED.parsed,
				warnings=EXCLUDED.warnings, error_message=EXCLUDED.error_message, duplicate_of=EXCLUDED.duplicate_of,
				tax_free=EXCLUDED.tax_free, credit_note=EXCLUDED.credit_note,
				payment_required=EXCLUDED.payment_required, payment_amount=EXCLUDED.payment_amount,
				adjusted_lines=EXCLUDED.adjusted_lines, invoice_id=EXCLUDED.invoice_id, updated_at=EXCLUDED.updated_at
		`, f.ID, state.Batch.ID, i, f.Name, f.Extension, f.ContentType, f.Size, f.PageCount,
			f.ContentHash, f.Status, f.ParentID, f.PageRange, f.Supplier, f.Confidence, parsed, warnings, f.ErrorMessage,
			f.DuplicateOf, f.TaxFree, f.CreditNote, f.PaymentRequired, payment, adjusted, f.InvoiceID,
			f.CreatedAt, f.UpdatedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert files: %w", err)
	}
	return nil
}

func writeInvoices(ctx context.Context, tx pgx.Tx, invoices []*model.Invoice) error {
	if len(invoices) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, inv := range invoices {
		batch.Queue(`
			INSERT INTO invoices (id, batch_id, file_id, invoice_number, invoice_date, supplier, supplier_key, currency,
				subtotal, vat_amount, total_amount, payment_status, source_hash, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9::numeric,$10::numeric,$11::numeric,$12,$13,$14)
		`, inv.ID, inv.BatchID, inv.FileID, inv.Number, inv.Date, inv.Supplier, model.NormalizeSupplier(inv.Supplier),
			inv.Currency, inv.Subtotal.StringFixed(2), inv.VatAmount.StringFixed(2), inv.Total.StringFixed(2),
			inv.PaymentStatus, inv.SourceHash, inv.CreatedAt)
		for i, l := range inv.Lines {
			batch.Queue(`
				INSERT INTO vat_lines (invoice_id, position, category, rate, net, vat, gross)
				VALUES ($1,$2,$3,$4::numeric,$5::numeric,$6::numeric,$7::numeric)
			`, inv.ID, i, l.Category, l.Rate.String(), l.Net.StringFixed(2), l.Vat.StringFixed(2), l.Gross.StringFixed(2))
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert invoices: %w", err)
	}
	return nil
}

// FindInvoices filters committed invoices by every non-empty query field.
func (r *BatchRepository) FindInvoices(ctx context.Context, q model.InvoiceQuery) ([]*model.Invoice, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if s := model.NormalizeSupplier(q.Supplier); s != "" {
		add("supplier_key = $%d", s)
	}
	if q.Number != "" {
		add("invoice_number = $%d", q.Number)
	}
	if q.SourceHash != "" {
		add("source_hash = $%d", q.SourceHash)
	}
	if !q.From.IsZero() {
		add("invoice_date >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("invoice_date <= $%d", q.To)
	}
	stmt := `
		SELECT id, batch_id, file_id, COALESCE(invoice_number,''), invoice_date, COALESCE(supplier,''), currency,
			subtotal::text, vat_amount::text, total_amount::text, payment_status, COALESCE(source_hash,''), created_at
		FROM invoices`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY created_at"

	rows, err := r.pool.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	var out []*model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, inv)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invoices: %w", err)
	}
	for _, inv := range out {
		if inv.Lines, err = r.vatLines(ctx, inv.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var (
		inv                  model.Invoice
		date                 pgtype.Date
		subtotal, vat, gross string
	)
	if err := row.Scan(&inv.ID, &inv.BatchID, &inv.FileID, &inv.Number, &date, &inv.Supplier, &inv.Currency,
		&subtotal, &vat, &gross, &inv.PaymentStatus, &inv.SourceHash, &inv.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	if date.Valid {
		d := time.Date(date.Time.Year(), date.Time.Month(), date.Time.Day(), 0, 0, 0, 0, time.UTC)
		inv.Date = &d
	}
	var err error
	if inv.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("decode subtotal of %s: %w", inv.ID, err)
	}
	if inv.VatAmount, err = decimal.NewFromString(vat); err != nil {
		return nil, fmt.Errorf("decode vat amount of %s: %w", inv.ID, err)
	}
	if inv.Total, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("decode total of %s: %w", inv.ID, err)
	}
	return &inv, nil
}

func (r *BatchRepository) vatLines(ctx context.Context, invoiceID string) ([]model.VatLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT category, rate::text, net::text, vat::text, gross::text
		FROM vat_lines WHERE invoice_id=$1 ORDER BY position
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("select vat lines: %w", err)
	}
	defer rows.Close()
	var lines []model.VatLine
	for rows.Next() {
		var (
			l                     model.VatLine
			rate, net, vat, gross string
		)
		if err := rows.Scan(&l.Category, &rate, &net, &vat, &gross); err != nil {
			return nil, fmt.Errorf("scan vat line: %w", err)
		}
		for _, p := range []struct {
			dst *decimal.Decimal
			src string
		}{{&l.Rate, rate}, {&l.Net, net}, {&l.Vat, vat}, {&l.Gross, gross}} {
			if *p.dst, err = decimal.NewFromString(p.src); err != nil {
				return nil, fmt.Errorf("decode vat line of %s: %w", invoiceID, err)
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
