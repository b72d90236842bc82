package pdfsplit

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

func TestParseRanges(t *testing.T) {
	got, err := ParseRanges([]string{"1", " 2 - 3 ", "5"}, 5, true)
	require.NoError(t, err)
	assert.Equal(t, []PageRange{{1, 1}, {2, 3}, {5, 5}}, got)
	assert.Equal(t, "2-3", got[1].String())
	assert.Equal(t, 2, got[1].Pages())
}

func TestParseRangesErrors(t *testing.T) {
	cases := map[string][]string{
		"empty list":   nil,
		"blank":        {" "},
		"zero page":    {"0"},
		"past end":     {"1", "4-6"},
		"reversed":     {"3-2"},
		"not a number": {"one"},
		"open ended":   {"2-"},
	}
	for name, specs := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRanges(specs, 5, true)
			var splitErr *model.SplitError
			assert.True(t, errors.As(err, &splitErr), "got %v", err)
		})
	}
}

func TestParseRangesOverlapPolicy(t *testing.T) {
	specs := []string{"1-2", "2-3"}

	got, err := ParseRanges(specs, 3, true)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = ParseRanges(specs, 3, false)
	var splitErr *model.SplitError
	require.True(t, errors.As(err, &splitErr))
	assert.Contains(t, splitErr.Reason, "overlaps")

	_, err = ParseRanges([]string{"3", "1-2"}, 3, false)
	assert.NoError(t, err)
}

func TestPerPage(t *testing.T) {
	assert.Equal(t, []PageRange{{1, 1}, {2, 2}, {3, 3}}, PerPage(3))
	assert.Empty(t, PerPage(0))
}
