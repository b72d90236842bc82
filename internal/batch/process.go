package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dharsanguruparan/InvoiceDrop/internal/duplicate"
	"github.com/dharsanguruparan/InvoiceDrop/internal/logger"
	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

const (
	reasonCancelled = "batch cancelled"
	paymentWarning  = "payment "
)

// StartResult is returned by StartProcessing.
type StartResult struct {
	Accepted   bool              `json:"accepted"`
	Dispatched int               `json:"dispatched"`
	Rejected   []model.Rejection `json:"rejected_adjustments,omitempty"`
}

// StartProcessing records payment adjustments, moves every uploaded file to
// parsing and dispatches one parse job per file. It returns once the jobs
// are handed off.
func (o *Orchestrator) StartProcessing(ctx context.Context, batchID string, adjustments model.Adjustments) (*StartResult, error) {
	result := &StartResult{Accepted: true}
	var jobs []ParseJob

	_, err := o.update(ctx, batchID, func(s *model.BatchState) error {
		if !s.Batch.Open() {
			return model.NewBatchStateError("process", &s.Batch)
		}
		result.Rejected = o.recordPayments(s, adjustments)
		jobs = jobs[:0]
		for _, f := range s.Files {
			if f.Status != model.FileUploaded {
				continue
			}
			f.Status = model.FileParsing
			f.SetError("")
			f.UpdatedAt = o.now()
			jobs = append(jobs, ParseJob{BatchID: s.Batch.ID, FileID: f.ID})
		}
		if s.Batch.Status == model.BatchUploaded {
			s.Batch.Status = model.BatchProcessing
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	failed := 0
	for _, job := range jobs {
		if err := o.dispatcher.Dispatch(ctx, job); err != nil {
			failed++
			o.log.Error().Err(err).Str("batch_id", job.BatchID).Str("file_id", job.FileID).Msg("dispatch failed")
			o.failParse(ctx, job, fmt.Sprintf("could not schedule parsing: %v", err))
			continue
		}
		result.Dispatched++
	}
	if len(jobs) > 0 && failed == len(jobs) {
		_, err := o.update(ctx, batchID, func(s *model.BatchState) error {
			s.Batch.Status = model.BatchFailed
			return nil
		})
		if err != nil {
			return nil, err
		}
		result.Accepted = false
	}

	o.log.Info().
		Str("batch_id", batchID).
		Int("dispatched", result.Dispatched).
		Int("dispatch_failures", failed).
		Msg("processing started")
	return result, nil
}

// RunParse parses one file and writes the outcome back. Results for files
// that are no longer parsing, or whose batch was cancelled meanwhile, are
// discarded. Failures are recorded on the file, never returned.
func (o *Orchestrator) RunParse(ctx context.Context, job ParseJob) error {
	log := logger.WithBatch(o.log, job.BatchID).With().Str("file_id", job.FileID).Logger()
	state, err := o.repo.Load(ctx, job.BatchID)
	if err != nil {
		return err
	}
	f, err := state.File(job.FileID)
	if err != nil {
		log.Warn().Msg("parse job for missing file dropped")
		return nil
	}
	if !o.acceptsResult(state, f) {
		log.Info().Str("status", string(f.Status)).Msg("parse job skipped")
		return nil
	}

	data, err := o.files.Get(ctx, RawKey(f.ContentHash))
	if err != nil {
		o.failParse(ctx, job, fmt.Sprintf("read document: %v", err))
		return nil
	}
	res, err := o.parser.Parse(ctx, f, data)
	if err != nil {
		failure := &model.ParseFailure{FileID: f.ID, Err: err}
		log.Warn().Err(failure).Msg("parse failed")
		o.failParse(ctx, job, err.Error())
		return nil
	}

	candidate := duplicate.CandidateFromFile(withResult(f, res))
	dup, err := o.detector.Check(ctx, candidate)
	if err != nil {
		log.Warn().Err(err).Msg("duplicate check unavailable")
		res.Warnings = append(res.Warnings, "duplicate check unavailable")
	}

	_, err = o.update(ctx, job.BatchID, func(s *model.BatchState) error {
		cur, err := s.File(job.FileID)
		if err != nil || !o.acceptsResult(s, cur) {
			return errDiscard
		}
		applyResult(cur, res)
		if dup == nil {
			dup = o.detector.CheckSiblings(candidate, s.Files)
		}
		o.settle(cur, dup)
		cur.UpdatedAt = o.now()
		return nil
	})
	if errors.Is(err, errDiscard) {
		log.Info().Msg("late parse result discarded")
		return nil
	}
	return err
}

var errDiscard = errors.New("result discarded")

func (o *Orchestrator) acceptsResult(s *model.BatchState, f *model.File) bool {
	return s.Batch.Status != model.BatchCancelled && f.Status == model.FileParsing
}

func (o *Orchestrator) failParse(ctx context.Context, job ParseJob, reason string) {
	_, err := o.update(ctx, job.BatchID, func(s *model.BatchState) error {
		f, err := s.File(job.FileID)
		if err != nil || !o.acceptsResult(s, f) {
			return errDiscard
		}
		f.Fail(reason)
		f.UpdatedAt = o.now()
		return nil
	})
	if err != nil && !errors.Is(err, errDiscard) {
		o.log.Error().Err(err).Str("batch_id", job.BatchID).Str("file_id", job.FileID).Msg("record parse failure")
	}
}

// recordPayments stores valid operator amounts on their files and applies
// them at once to files that have already been parsed.
func (o *Orchestrator) recordPayments(s *model.BatchState, adjustments model.Adjustments) []model.Rejection {
	var rejected []model.Rejection
	for fileID, raw := range adjustments {
		f, err := s.File(fileID)
		if err != nil {
			rejected = append(rejected, model.Rejection{Name: fileID, Reason: "unknown file"})
			continue
		}
		if err := o.recordPayment(f, raw); err != nil {
			rejected = append(rejected, model.Rejection{Name: fileID, Reason: err.Error()})
		}
	}
	return rejected
}

// recordPayment stores raw on f. Once f has been parsed its status and
// adjusted lines are rebuilt, so the lines always sum to the stored amount.
func (o *Orchestrator) recordPayment(f *model.File, raw model.RawAmount) error {
	if err := o.setPayment(f, raw); err != nil {
		return err
	}
	switch f.Status {
	case model.FileAmazonPending:
		o.settle(f, nil)
	case model.FileParsed, model.FileReview:
		if f.PaymentRequired {
			o.settle(f, nil)
		}
	}
	return nil
}

func (o *Orchestrator) setPayment(f *model.File, raw model.RawAmount) error {
	if f.Status == model.FileCompleted {
		return model.NewFileStateError("adjust", f)
	}
	amount, err := model.ParseAmount(string(raw))
	if err != nil {
		return &model.AdjustmentError{FileID: f.ID, Value: string(raw), Reason: err.Error()}
	}
	if !amount.IsPositive() {
		return &model.AdjustmentError{FileID: f.ID, Value: string(raw), Reason: "amount must be greater than zero"}
	}
	amount = model.RoundCents(amount)
	f.PaymentAmount = &amount
	return nil
}

// settle picks the post-parse status of f. A required payment without an
// amount holds the file in amazon_pending; a duplicate, low confidence or
// any warning sends it to review.
func (o *Orchestrator) settle(f *model.File, dup *model.DuplicateWarning) {
	currency := ""
	if f.Parsed != nil {
		currency = f.Parsed.Currency
	}
	f.PaymentRequired = o.engine.NeedsPaymentAdjustment(f.Supplier, f.Name, currency)
	f.AdjustedLines = nil
	f.Warnings = withoutPaymentWarnings(f.Warnings)

	if dup != nil {
		f.DuplicateOf = dup.MatchID
		f.SetError(dup.Error())
	}
	if f.PaymentRequired {
		if f.PaymentAmount == nil {
			f.Status = model.FileAmazonPending
			return
		}
		if err := o.applyAdjustment(f); err != nil {
			o.log.Warn().Err(err).Str("file_id", f.ID).Msg("payment adjustment failed")
			f.Status = model.FileAmazonPending
			return
		}
	}
	switch {
	case f.DuplicateOf != "":
		f.Status = model.FileReview
	case f.Confidence != nil && *f.Confidence < o.opts.ConfidenceThreshold:
		f.Status = model.FileReview
	case len(f.Warnings) > 0:
		f.Status = model.FileReview
	default:
		f.Status = model.FileParsed
	}
}

// applyAdjustment rebuilds the VAT lines of f from its payment amount.
func (o *Orchestrator) applyAdjustment(f *model.File) error {
	eurVat := decimal.Zero
	if f.Parsed != nil {
		eurVat = f.Parsed.EURVatAmount
	}
	res, err := o.engine.Compute(f.ID, *f.PaymentAmount, eurVat)
	if err != nil {
		return err
	}
	f.AdjustedLines = res.Lines
	if w := res.Warning(); w != "" {
		f.Warnings = append(f.Warnings, w)
	}
	return nil
}

func withoutPaymentWarnings(warnings []string) []string {
	out := warnings[:0:0]
	for _, w := range warnings {
		if !strings.HasPrefix(w, paymentWarning) {
			out = append(out, w)
		}
	}
	return out
}

// applyResult copies parser output onto f, replacing earlier values.
func applyResult(f *model.File, res *model.ParseResult) {
	fields := res.Fields
	conf := res.Confidence
	f.Supplier = res.Supplier
	f.Parsed = &fields
	f.Confidence = &conf
	f.Warnings = append([]string(nil), res.Warnings...)
	f.TaxFree = res.TaxFree
	f.CreditNote = res.CreditNote
	f.DuplicateOf = ""
	f.SetError("")
}

// withResult returns a copy of f carrying res, for duplicate lookups made
// before the result is committed.
func withResult(f *model.File, res *model.ParseResult) *model.File {
	c := f.Clone()
	applyResult(c, res)
	return c
}
