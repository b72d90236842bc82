// Package storage contains the in-memory persistence layer used when no
// database or object store is configured, and by tests.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

type batchEntry struct {
	// mu serializes Update calls for one batch; other batches are unaffected.
	mu    sync.Mutex
	state *model.BatchState
}

// MemoryRepository keeps batches and committed invoices in maps. The RWMutex
// guards the maps themselves; each batch carries its own mutation lock.
type MemoryRepository struct {
	mu       sync.RWMutex
	batches  map[string]*batchEntry
	invoices []*model.Invoice
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{batches: make(map[string]*batchEntry)}
}

// Create stores a new batch.
func (m *MemoryRepository) Create(_ context.Context, state *model.BatchState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.batches[state.Batch.ID]; ok {
		return fmt.Errorf("batch %s already exists", state.Batch.ID)
	}
	m.batches[state.Batch.ID] = &batchEntry{state: state.Clone()}
	return nil
}

func (m *MemoryRepository) entry(batchID string) (*batchEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, model.ErrBatchNotFound)
	}
	return e, nil
}

// Load returns a copy of the batch so callers never share memory with the store.
func (m *MemoryRepository) Load(_ context.Context, batchID string) (*model.BatchState, error) {
	e, err := m.entry(batchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

// Update runs fn on a copy of the batch under the batch lock and swaps the
// copy in when fn succeeds.
func (m *MemoryRepository) Update(ctx context.Context, batchID string, fn func(*model.BatchState) error) (*model.BatchState, error) {
	e, err := m.entry(batchID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	working := e.state.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	if len(working.NewInvoices) > 0 {
		m.mu.Lock()
		m.invoices = append(m.invoices, working.NewInvoices...)
		m.mu.Unlock()
	}
	working.NewInvoices = nil
	e.state = working
	return working.Clone(), nil
}

// FindInvoices filters committed invoices by every non-empty query field.
func (m *MemoryRepository) FindInvoices(_ context.Context, q model.InvoiceQuery) ([]*model.Invoice, error) {
	supplier := model.NormalizeSupplier(q.Supplier)
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Invoice
	for _, inv := range m.invoices {
		if supplier != "" && model.NormalizeSupplier(inv.Supplier) != supplier {
			continue
		}
		if q.Number != "" && inv.Number != q.Number {
			continue
		}
		if q.SourceHash != "" && inv.SourceHash != q.SourceHash {
			continue
		}
		if !q.From.IsZero() || !q.To.IsZero() {
			if inv.Date == nil {
				continue
			}
			if !q.From.IsZero() && inv.Date.Before(q.From) {
				continue
			}
			if !q.To.IsZero() && inv.Date.After(q.To) {
				continue
			}
		}
		cp := *inv
		cp.Lines = append([]model.VatLine(nil), inv.Lines...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
