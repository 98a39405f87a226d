package expiry

import (
	"fmt"
	"strings"
	"time"
)

// Layouts seen on packaging. Month-only forms are resolved to the last day of
// the month, which is how "EXP 05/2027" is meant.
var (
	dayLayouts = []string{
		DateLayout,
		"2006/01/02",
		"2006.01.02",
		"02/01/2006",
		"02.01.2006",
		"02-01-2006",
		"2 Jan 2006",
		"02 Jan 2006",
		"Jan 2 2006",
	}
	monthLayouts = []string{
		"2006-01",
		"2006/01",
		"01/2006",
		"01-2006",
		"01.2006",
		"01/06",
		"Jan 2006",
		"January 2006",
	}
)

// Longer markers come first so "expires" is not cut down to "ires".
var labelPrefixes = []string{
	"expiration date", "expiry date", "expiration", "expires", "expiry", "exp.", "exp",
	"use by", "best before", "bb",
}

// ParseLabelDate interprets a date as printed on a medicine package and
// returns it as a calendar date. It accepts ISO dates, day-first numeric dates
// and month-only dates, optionally prefixed with "EXP" and similar markers.
func ParseLabelDate(text string) (time.Time, error) {
	s := strings.TrimSpace(text)
	lower := strings.ToLower(s)
	for _, p := range labelPrefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(strings.TrimLeft(s[len(p):], ":. "))
			break
		}
	}
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	for _, layout := range dayLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range monthLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.AddDate(0, 1, -1), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, text)
}
