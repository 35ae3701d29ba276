// Package dates implements the day-granularity arithmetic behind the
// counter: differences, offsets, ages and ordinal days. Every function
// works on the date component of its arguments only.
package dates

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"cloudeng.io/datetime"
	"github.com/teambition/rrule-go"
)

// MaxDays is the largest day offset, in either direction, that ParseDays
// accepts. It keeps AddDays results well inside time.Time's range.
const MaxDays = 100_000_000

const secondsPerDay = 24 * 60 * 60

// Truncate returns midnight of t's calendar day in t's location.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// civil maps the date component of t onto a UTC midnight so that
// subtraction is not disturbed by DST or zone offsets.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns |end - start| in whole calendar days. It works on
// Unix seconds rather than a Duration, which saturates after ~292 years.
func DaysBetween(start, end time.Time) int {
	days := (civil(end).Unix() - civil(start).Unix()) / secondsPerDay
	if days < 0 {
		days = -days
	}
	return int(days)
}

// ParseDays parses a day offset for AddDays, rejecting NaN, infinities
// and magnitudes above MaxDays.
func ParseDays(s string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid day count %q: %w", s, err)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || math.Abs(n) > MaxDays {
		return 0, fmt.Errorf("day count %q outside [-%d, %d]", s, MaxDays, MaxDays)
	}
	return n, nil
}

// AddDays truncates start and moves it by floor(days) calendar days.
// days must be finite and within MaxDays; see ParseDays.
func AddDays(start time.Time, days float64) time.Time {
	return Truncate(start).AddDate(0, 0, int(math.Floor(days)))
}

// AgeInDays is DaysBetween(birth, today).
func AgeInDays(birth, today time.Time) int {
	return DaysBetween(birth, today)
}

// DayOfYear returns the ordinal day of t within its year, 1..366.
func DayOfYear(t time.Time) int {
	return datetime.DateFromTime(t).DayOfYear(t.Year())
}

// IsLeapYear reports whether year has a Feb 29.
func IsLeapYear(year int) bool {
	return datetime.IsLeap(year)
}

// NextAnniversary returns the first yearly recurrence of birth that falls
// on or after today, and the number of days until it. A Feb 29 date only
// recurs in leap years.
func NextAnniversary(birth, today time.Time) (time.Time, int, error) {
	start := Truncate(birth)
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.YEARLY,
		Dtstart: start,
	})
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("dates: anniversary rule: %w", err)
	}
	ref := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, start.Location())
	next := r.After(ref, true)
	if next.IsZero() {
		return time.Time{}, 0, fmt.Errorf("dates: no anniversary of %s after %s", start.Format(time.DateOnly), ref.Format(time.DateOnly))
	}
	return next, DaysBetween(ref, next), nil
}
