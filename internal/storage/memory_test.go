package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

func newState(id string) *model.BatchState {
	return &model.BatchState{Batch: model.Batch{ID: id, Status: model.BatchUploaded}}
}

func TestMemoryRepositoryLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, newState("b1")))

	s, err := repo.Load(ctx, "b1")
	require.NoError(t, err)
	s.Batch.Status = model.BatchCancelled

	again, err := repo.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.BatchUploaded, again.Batch.Status)
}

func TestMemoryRepositoryUnknownBatch(t *testing.T) {
	_, err := NewMemoryRepository().Load(context.Background(), "nope")
	assert.True(t, errors.Is(err, model.ErrBatchNotFound))
}

func TestMemoryRepositoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, newState("b1")))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "b1", func(s *model.BatchState) error {
		s.AddFile(&model.File{ID: "f1"})
		s.NewInvoices = append(s.NewInvoices, &model.Invoice{ID: "i1", Supplier: "x"})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	s, err := repo.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, s.Files)
	found, err := repo.FindInvoices(ctx, model.InvoiceQuery{Supplier: "x"})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMemoryRepositorySerializesUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, newState("b1")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Update(ctx, "b1", func(s *model.BatchState) error {
				s.AddFile(&model.File{ID: fmt.Sprintf("f%d", i), Status: model.FileUploaded})
				s.Refresh(time.Now())
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	s, err := repo.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, s.Files, 50)
	assert.Equal(t, 50, s.Batch.TotalFiles)
}

func TestMemoryRepositoryFindInvoices(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(ctx, newState("b1")))

	march := func(d int) *time.Time {
		t := time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	_, err := repo.Update(ctx, "b1", func(s *model.BatchState) error {
		s.NewInvoices = append(s.NewInvoices,
			&model.Invoice{ID: "i1", Supplier: "Musgrave Ltd", Number: "A-1", Date: march(1), SourceHash: "h1"},
			&model.Invoice{ID: "i2", Supplier: "musgrave  ltd", Number: "A-2", Date: march(10)},
			&model.Invoice{ID: "i3", Supplier: "Other", Number: "A-1", Date: march(10)},
		)
		return nil
	})
	require.NoError(t, err)

	ids := func(q model.InvoiceQuery) []string {
		found, err := repo.FindInvoices(ctx, q)
		require.NoError(t, err)
		var out []string
		for _, inv := range found {
			out = append(out, inv.ID)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"i1", "i2"}, ids(model.InvoiceQuery{Supplier: "MUSGRAVE LTD"}))
	assert.Equal(t, []string{"i1"}, ids(model.InvoiceQuery{Supplier: "Musgrave Ltd", Number: "A-1"}))
	assert.Equal(t, []string{"i2"}, ids(model.InvoiceQuery{Supplier: "Musgrave Ltd", From: *march(8), To: *march(12)}))
	assert.Equal(t, []string{"i1"}, ids(model.InvoiceQuery{SourceHash: "h1"}))
}

func TestMemoryFileStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryFileStore()
	require.NoError(t, store.Put(ctx, "raw/abc", []byte("%PDF-1.4 body"), "application/pdf"))

	ok, err := store.Exists(ctx, "raw/abc")
	require.NoError(t, err)
	assert.True(t, ok)

	head, err := store.ReadRange(ctx, "raw/abc", 0, 4)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(head))

	tail, err := store.ReadRange(ctx, "raw/abc", 9, -1)
	require.NoError(t, err)
	assert.Equal(t, "body", string(tail))

	whole, err := store.ReadRange(ctx, "raw/abc", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 body", string(whole))

	none, err := store.ReadRange(ctx, "raw/abc", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = store.Get(ctx, "raw/missing")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = store.ReadRange(ctx, "raw/abc", 100, 1)
	assert.Error(t, err)
}
