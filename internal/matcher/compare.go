package matcher

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountsEqual reports whether two amounts are equal within the default
// epsilon. The two-cent slack absorbs rounding from upstream fee
// computation; exact decimal equality is too strict for acquirer data.
func AmountsEqual(a, b decimal.Decimal) bool {
	return AmountsCloseEnough(a, b, DefaultEpsilon())
}

// AmountsCloseEnough reports whether |a-b| <= epsilon.
func AmountsCloseEnough(a, b, epsilon decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(epsilon)
}

// DatesWithinWindow reports whether the actual date falls within windowDays
// of the expected date. A nil expected date makes the predicate false: a
// sale without an expected settlement date never matches silently.
func DatesWithinWindow(expected *time.Time, actual time.Time, windowDays int) bool {
	if expected == nil || expected.IsZero() || actual.IsZero() {
		return false
	}
	days := daysBetween(*expected, actual)
	if days < 0 {
		days = -days
	}
	return days <= windowDays
}

// daysBetween counts calendar days from a to b, ignoring time of day so a
// receipt booked late in the evening still lands on its value date.
func daysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
