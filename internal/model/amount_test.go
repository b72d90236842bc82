package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"22.65":     "22.65",
		"22,65":     "22.65",
		"1.234,56":  "1234.56",
		"1,234.56":  "1234.56",
		"€22.65":    "22.65",
		"£ 9.99":    "9.99",
		"22.65 EUR": "22.65",
		"1,234":     "1234",
		"1.234":     "1234",
		"1.234.567": "1234567",
		"0.125":     "0.125",
		"-3.10":     "-3.1",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(decimal.RequireFromString(want)), "%q -> %s, want %s", in, got, want)
	}
}

func TestParseAmountErrors(t *testing.T) {
	_, err := ParseAmount("  ")
	assert.ErrorIs(t, err, ErrEmptyAmount)

	for _, in := range []string{"EUR", "twelve", "1.2.3,4,5", "1e3", "2E-2", "12,34,56", "--5"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestRawAmountAcceptsNumbersAndStrings(t *testing.T) {
	var adj Adjustments
	require.NoError(t, json.Unmarshal([]byte(`{"a": 22.65, "b": "1.234,56", "c": null, "d": "abc"}`), &adj))
	assert.Equal(t, RawAmount("22.65"), adj["a"])
	assert.Equal(t, RawAmount("1.234,56"), adj["b"])
	assert.Equal(t, RawAmount(""), adj["c"])
	assert.Equal(t, RawAmount("abc"), adj["d"])
}
