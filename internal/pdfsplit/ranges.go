package pdfsplit

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

// PageRange is an inclusive, 1-based page interval.
type PageRange struct {
	From int
	To   int
}

// String renders "3" for a single page and "2-4" otherwise, which is also the
// page selection syntax pdfcpu expects.
func (r PageRange) String() string {
	if r.From == r.To {
		return strconv.Itoa(r.From)
	}
	return fmt.Sprintf("%d-%d", r.From, r.To)
}

// Pages returns the number of pages covered.
func (r PageRange) Pages() int {
	return r.To - r.From + 1
}

// PerPage returns one single-page range for every page.
func PerPage(pageCount int) []PageRange {
	out := make([]PageRange, 0, pageCount)
	for p := 1; p <= pageCount; p++ {
		out = append(out, PageRange{From: p, To: p})
	}
	return out
}

// ParseRanges validates operator ranges ("1", "2-3") against pageCount.
// Overlapping ranges are refused unless allowOverlap is set.
func ParseRanges(specs []string, pageCount int, allowOverlap bool) ([]PageRange, error) {
	if len(specs) == 0 {
		return nil, &model.SplitError{Reason: "at least one page range is required"}
	}
	if pageCount < 1 {
		return nil, &model.SplitError{Reason: "document has no pages"}
	}
	out := make([]PageRange, 0, len(specs))
	for _, spec := range specs {
		r, err := parseRange(spec)
		if err != nil {
			return nil, &model.SplitError{Range: spec, Reason: err.Error()}
		}
		if r.From < 1 || r.To > pageCount {
			return nil, &model.SplitError{Range: spec, Reason: fmt.Sprintf("pages must be within 1-%d", pageCount)}
		}
		out = append(out, r)
	}
	if !allowOverlap {
		if err := checkOverlap(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseRange(spec string) (PageRange, error) {
	s := strings.TrimSpace(spec)
	if s == "" {
		return PageRange{}, fmt.Errorf("empty range")
	}
	from, to, isSpan := strings.Cut(s, "-")
	first, err := strconv.Atoi(strings.TrimSpace(from))
	if err != nil {
		return PageRange{}, fmt.Errorf("not a page number")
	}
	last := first
	if isSpan {
		if last, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
			return PageRange{}, fmt.Errorf("not a page number")
		}
	}
	if last < first {
		return PageRange{}, fmt.Errorf("range end before start")
	}
	return PageRange{From: first, To: last}, nil
}

func checkOverlap(ranges []PageRange) error {
	sorted := append([]PageRange(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].From < sorted[j].From })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].From <= sorted[i-1].To {
			return &model.SplitError{
				Range:  sorted[i].String(),
				Reason: "overlaps range " + sorted[i-1].String(),
			}
		}
	}
	return nil
}
