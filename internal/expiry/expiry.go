// Package expiry classifies medicine expiry dates into urgency buckets and
// orders medicine lists for display.
//
// Every function takes "today" explicitly; nothing in this package reads the
// wall clock, so results only depend on the arguments.
package expiry

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// DateLayout is the calendar date format exchanged with callers (ISO-8601).
const DateLayout = "2006-01-02"

// Thresholds in days, both inclusive.
const (
	CriticalDays = 7
	WarningDays  = 30
)

// ErrInvalidDate is returned when a date cannot be parsed or is missing.
var ErrInvalidDate = errors.New("invalid date")

// Status is the urgency bucket of an expiry date.
type Status string

const (
	StatusExpired  Status = "expired"
	StatusCritical Status = "critical"
	StatusWarning  Status = "warning"
	StatusSafe     Status = "safe"
)

// Statuses lists all statuses in display order.
var Statuses = []Status{StatusExpired, StatusCritical, StatusWarning, StatusSafe}

func (s Status) String() string { return string(s) }

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusExpired, StatusCritical, StatusWarning, StatusSafe:
		return true
	}
	return false
}

// ParseDate parses a YYYY-MM-DD calendar date into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Today truncates now to its calendar date, expressed as midnight UTC so it
// compares cleanly with dates returned by ParseDate.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysUntil returns the number of whole days from today to expiry. A
// fractional day counts as a full day remaining (ceiling), so 23.5 hours away
// yields 1. The result is negative once expiry lies before today. Both values
// are compared by their wall clock, so a DST change in their location does not
// add or remove a day.
func DaysUntil(expiry, today time.Time) int {
	diff := wallClock(expiry).Sub(wallClock(today))
	days := math.Ceil(diff.Hours() / 24)
	if days == 0 {
		// normalise -0
		return 0
	}
	return int(days)
}

func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// StatusForDays maps a days-until-expiry count onto a status.
func StatusForDays(days int) Status {
	switch {
	case days < 0:
		return StatusExpired
	case days <= CriticalDays:
		return StatusCritical
	case days <= WarningDays:
		return StatusWarning
	default:
		return StatusSafe
	}
}

// Classify returns the status of expiry relative to today.
func Classify(expiry, today time.Time) Status {
	return StatusForDays(DaysUntil(expiry, today))
}

// ClassifyDates is Classify for callers holding YYYY-MM-DD strings. Invalid
// input is an error, never a default status.
func ClassifyDates(expiry, today string) (Status, error) {
	e, err := ParseDate(expiry)
	if err != nil {
		return "", fmt.Errorf("expiry date: %w", err)
	}
	t, err := ParseDate(today)
	if err != nil {
		return "", fmt.Errorf("today: %w", err)
	}
	return Classify(e, t), nil
}

// Priority gives the sort rank of a status: expired < critical < warning < safe.
// Unknown statuses sort last.
func Priority(s Status) int {
	switch s {
	case StatusExpired:
		return 0
	case StatusCritical:
		return 1
	case StatusWarning:
		return 2
	case StatusSafe:
		return 3
	}
	return 4
}

// Compare orders two expiry dates for display: by status priority first, then
// by ascending raw date.
func Compare(a, b, today time.Time) int {
	if c := cmp.Compare(Priority(Classify(a, today)), Priority(Classify(b, today))); c != 0 {
		return c
	}
	return a.Compare(b)
}

// SortForDisplay sorts items in place by Compare on the date returned by
// expiryOf. Items with equal keys keep their input order.
func SortForDisplay[T any](items []T, today time.Time, expiryOf func(T) time.Time) {
	slices.SortStableFunc(items, func(a, b T) int {
		return Compare(expiryOf(a), expiryOf(b), today)
	})
}

// Label is the short badge text shown next to a medicine.
func Label(days int, status Status) string {
	switch {
	case status == StatusExpired:
		return "Expired"
	case days == 1:
		return "1 day left"
	default:
		return fmt.Sprintf("%d days left", days)
	}
}
