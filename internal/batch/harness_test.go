package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/adjustment"
	"github.com/dharsanguruparan/InvoiceDrop/internal/duplicate"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
	"github.com/dharsanguruparan/InvoiceDrop/internal/pdfsplit"
	"github.com/dharsanguruparan/InvoiceDrop/internal/storage"
)

// fakePDF builds bytes the fake splitter understands. The tag keeps the
// content hash of different files apart.
func fakePDF(tag string, pages int) []byte {
	return []byte(fmt.Sprintf("%%PDF-fake pages=%d tag=%s", pages, tag))
}

type fakeSplitter struct{}

func (fakeSplitter) PageCount(data []byte) (int, error) {
	var n int
	if _, err := fmt.Sscanf(string(data), "%%PDF-fake pages=%d", &n); err != nil {
		return 0, errors.New("not a fake pdf")
	}
	return n, nil
}

func (fakeSplitter) Extract(_ context.Context, data []byte, ranges []pdfsplit.PageRange) ([][]byte, error) {
	out := make([][]byte, len(ranges))
	for i, r := range ranges {
		out[i] = fakePDF(fmt.Sprintf("%x/%s", data, r), r.Pages())
	}
	return out, nil
}

func (s fakeSplitter) RenderPages(_ context.Context, data []byte) ([]pdfsplit.Page, error) {
	n, err := s.PageCount(data)
	if err != nil {
		return nil, err
	}
	pages := make([]pdfsplit.Page, n)
	for i := range pages {
		pages[i] = pdfsplit.Page{Number: i + 1, ContentType: pdfsplit.PreviewContentType, Data: []byte(fmt.Sprintf("page %d", i+1))}
	}
	return pages, nil
}

type fakeParser struct {
	mu      sync.Mutex
	results map[string]*model.ParseResult
	errs    map[string]error
	calls   int
}

func newFakeParser() *fakeParser {
	return &fakeParser{results: map[string]*model.ParseResult{}, errs: map[string]error{}}
}

func (p *fakeParser) set(name string, res *model.ParseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[name] = res
}

func (p *fakeParser) fail(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[name] = err
}

func (p *fakeParser) Parse(_ context.Context, f *model.File, _ []byte) (*model.ParseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if err := p.errs[f.Name]; err != nil {
		return nil, err
	}
	if res := p.results[f.Name]; res != nil {
		cp := *res
		return &cp, nil
	}
	return cleanResult("Supplier "+f.Name, "N-"+f.Name), nil
}

// cleanResult is a confident, consistent EUR invoice: 100.00 net at 23%.
func cleanResult(supplier, number string) *model.ParseResult {
	return &model.ParseResult{
		Supplier:   supplier,
		Confidence: 1,
		Fields: model.ParsedFields{
			InvoiceNumber: number,
			Total:         decimal.RequireFromString("123.00"),
			Currency:      "EUR",
			VatBreakdown: []model.VatAmount{{
				Rate: decimal.NewFromInt(23),
				Net:  decimal.RequireFromString("100.00"),
				Vat:  decimal.RequireFromString("23.00"),
			}},
		},
	}
}

// marketplaceResult is a GBP marketplace invoice carrying a EUR VAT figure.
func marketplaceResult(number, eurVat string) *model.ParseResult {
	return &model.ParseResult{
		Supplier:   "Amazon EU S.a.r.l.",
		Confidence: 1,
		Fields: model.ParsedFields{
			InvoiceNumber: number,
			Total:         decimal.RequireFromString("19.20"),
			Currency:      "GBP",
			EURVatAmount:  decimal.RequireFromString(eurVat),
			VatBreakdown: []model.VatAmount{{
				Rate: decimal.NewFromInt(20),
				Net:  decimal.RequireFromString("16.00"),
				Vat:  decimal.RequireFromString("3.20"),
			}},
		},
	}
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []ParseJob
	err  error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, job ParseJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) take() []ParseJob {
	d.mu.Lock()
	defer d.mu.Unlock()
	jobs := d.jobs
	d.jobs = nil
	return jobs
}

type recordingNotifier struct {
	mu     sync.Mutex
	states []*model.BatchState
}

func (n *recordingNotifier) Publish(s *model.BatchState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.states = append(n.states, s)
}

type harness struct {
	orch       *Orchestrator
	repo       *storage.MemoryRepository
	files      *storage.MemoryFileStore
	parser     *fakeParser
	dispatcher *recordingDispatcher
	notifier   *recordingNotifier
}

func newHarness(t *testing.T, tweak ...func(*Options)) *harness {
	t.Helper()
	engine, err := adjustment.New(adjustment.DefaultOptions())
	require.NoError(t, err)

	h := &harness{
		repo:       storage.NewMemoryRepository(),
		files:      storage.NewMemoryFileStore(),
		parser:     newFakeParser(),
		dispatcher: &recordingDispatcher{},
		notifier:   &recordingNotifier{},
	}
	opts := DefaultOptions()
	for _, fn := range tweak {
		fn(&opts)
	}
	h.orch = New(Deps{
		Repo:       h.repo,
		Files:      h.files,
		Dispatcher: h.dispatcher,
		Parser:     h.parser,
		Splitter:   fakeSplitter{},
		Detector:   duplicate.New(h.repo, duplicate.DefaultConfig()),
		Engine:     engine,
		Notifier:   h.notifier,
	}, opts)
	return h
}

func pdfUpload(name string, pages int) Upload {
	return Upload{Name: name, ContentType: "application/pdf", Data: fakePDF(name, pages)}
}

// ingest creates a batch from the named one-page PDFs.
func (h *harness) ingest(t *testing.T, names ...string) *IngestResult {
	t.Helper()
	uploads := make([]Upload, len(names))
	for i, n := range names {
		uploads[i] = pdfUpload(n, 1)
	}
	res, err := h.orch.Ingest(context.Background(), "", "tester", uploads)
	require.NoError(t, err)
	return res
}

// drain runs every dispatched parse job.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for _, job := range h.dispatcher.take() {
		require.NoError(t, h.orch.RunParse(context.Background(), job))
	}
}

func (h *harness) state(t *testing.T, batchID string) *model.BatchState {
	t.Helper()
	s, err := h.repo.Load(context.Background(), batchID)
	require.NoError(t, err)
	return s
}

func (h *harness) file(t *testing.T, batchID, fileID string) *model.File {
	t.Helper()
	f, err := h.state(t, batchID).File(fileID)
	require.NoError(t, err)
	return f
}

// process starts processing and runs all parse jobs.
func (h *harness) process(t *testing.T, batchID string, adj model.Adjustments) *model.BatchState {
	t.Helper()
	_, err := h.orch.StartProcessing(context.Background(), batchID, adj)
	require.NoError(t, err)
	h.drain(t)
	return h.state(t, batchID)
}
