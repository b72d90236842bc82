package duplicate

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the matching tolerances.
type Config struct {
	// WindowDays is how far apart two invoice dates may be and still match.
	WindowDays int
	// Tolerance is the largest absolute total difference that still matches.
	Tolerance decimal.Decimal
}

// DefaultConfig returns a ±3 day window and a one cent tolerance.
func DefaultConfig() Config {
	return Config{
		WindowDays: 3,
		Tolerance:  decimal.New(1, -2),
	}
}

// AmountsMatch reports whether a and b agree within the tolerance. Signs are
// ignored so a credit note still matches its committed counterpart.
func (c Config) AmountsMatch(a, b decimal.Decimal) bool {
	return a.Abs().Sub(b.Abs()).Abs().LessThanOrEqual(c.Tolerance)
}

// Window returns the inclusive date range around d.
func (c Config) Window(d time.Time) (time.Time, time.Time) {
	span := time.Duration(c.WindowDays) * 24 * time.Hour
	return d.Add(-span), d.Add(span)
}

// DatesMatch reports whether a and b are within the window of each other.
func (c Config) DatesMatch(a, b time.Time) bool {
	from, to := c.Window(a)
	return !b.Before(from) && !b.After(to)
}
