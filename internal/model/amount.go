package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyAmount is returned by ParseAmount for blank input.
var ErrEmptyAmount = errors.New("amount is missing")

// RawAmount is an operator-entered amount kept exactly as typed. It accepts a
// JSON number or string so a malformed entry only affects its own file.
type RawAmount string

// UnmarshalJSON implements json.Unmarshaler.
func (a *RawAmount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = RawAmount(s)
		return nil
	}
	*a = RawAmount(data)
	return nil
}

// Adjustments maps file ids to the EUR amount actually paid.
type Adjustments map[string]RawAmount

// ParseAmount reads an amount in either German (1.234,56) or English
// (1,234.56) notation, with or without a currency marker. A lone separator
// followed by exactly three digits is read as thousands grouping in both
// notations, so "1.234" and "1,234" are both 1234.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(s)
	for _, marker := range []string{"€", "£", "EUR", "eur", "GBP", "gbp", " ", "\u00a0"} {
		cleaned = strings.ReplaceAll(cleaned, marker, "")
	}
	if cleaned == "" {
		return decimal.Zero, ErrEmptyAmount
	}
	sign := ""
	if strings.HasPrefix(cleaned, "-") {
		sign, cleaned = "-", cleaned[1:]
	}

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// whichever separator comes last is the decimal separator
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		cleaned = normalizeSeparator(cleaned, ",")
	case lastDot >= 0:
		cleaned = normalizeSeparator(cleaned, ".")
	}

	if !plainDecimal(cleaned) {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}
	d, err := decimal.NewFromString(sign + cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q is not a number", s)
	}
	return d, nil
}

// normalizeSeparator rewrites s, which contains only sep as separator, into
// plain decimal form. Input that is neither grouping nor a decimal fraction
// is returned unchanged and rejected by the caller.
func normalizeSeparator(s, sep string) string {
	parts := strings.Split(s, sep)
	if grouped(parts) {
		return strings.Join(parts, "")
	}
	if len(parts) == 2 {
		return parts[0] + "." + parts[1]
	}
	return s
}

// grouped reports whether parts form thousands groups: a leading group of one
// to three digits without a leading zero, then groups of exactly three.
func grouped(parts []string) bool {
	if len(parts) < 2 {
		return false
	}
	head := parts[0]
	if len(head) == 0 || len(head) > 3 || head[0] == '0' {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// plainDecimal accepts digits with at most one decimal point; exponents and
// signs are rejected.
func plainDecimal(s string) bool {
	digits, dot := 0, false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return digits > 0
}
