package expiry

import "time"

// Summary counts medicines per status.
type Summary struct {
	Expired  int `json:"expired"`
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Safe     int `json:"safe"`
}

// Add counts one more item with the given status.
func (s *Summary) Add(status Status) {
	switch status {
	case StatusExpired:
		s.Expired++
	case StatusCritical:
		s.Critical++
	case StatusWarning:
		s.Warning++
	case StatusSafe:
		s.Safe++
	}
}

// Count returns the number of items counted for status.
func (s Summary) Count(status Status) int {
	switch status {
	case StatusExpired:
		return s.Expired
	case StatusCritical:
		return s.Critical
	case StatusWarning:
		return s.Warning
	case StatusSafe:
		return s.Safe
	}
	return 0
}

// Total is the number of items counted.
func (s Summary) Total() int {
	return s.Expired + s.Critical + s.Warning + s.Safe
}

// Summarize classifies every item against the same today and counts them.
func Summarize[T any](items []T, today time.Time, expiryOf func(T) time.Time) Summary {
	var s Summary
	for _, it := range items {
		s.Add(Classify(expiryOf(it), today))
	}
	return s
}
