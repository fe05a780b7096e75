// Package recency classifies a page's timestamps into a "last seen" result.
package recency

import (
	"time"
)

// Kind identifies which result variant an Entry holds.
type Kind int

const (
	// KindFormatted means a timestamp was found and DaysAgo is set.
	KindFormatted Kind = iota
	// KindNoDates means the page was fetched but held no recognizable timestamp.
	KindNoDates
	// KindFetchError means the page could not be fetched.
	KindFetchError
)

// String returns a short name for the kind, used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case KindFormatted:
		return "formatted"
	case KindNoDates:
		return "no_dates"
	case KindFetchError:
		return "fetch_error"
	default:
		return "unknown"
	}
}

// Entry is the result for one identifier.
type Entry struct {
	Kind Kind
	// DaysAgo is the number of whole days since the latest timestamp.
	// Only meaningful for KindFormatted; negative when the timestamp is in the future.
	DaysAgo int
}

// Formatted returns a result for a page last seen days ago.
func Formatted(days int) Entry {
	return Entry{Kind: KindFormatted, DaysAgo: days}
}

// NoDates returns the result for a page without timestamps.
func NoDates() Entry {
	return Entry{Kind: KindNoDates}
}

// FetchError returns the result for a page that failed to load.
func FetchError() Entry {
	return Entry{Kind: KindFetchError}
}

const secondsPerDay = 24 * 60 * 60

// Classify picks the latest of timestamps and reports how many whole days
// separate it from now. An empty set classifies as NoDates.
//
// Days are floor((now - latest) / 24h): 3 days and 2 hours is 3, and a
// timestamp one hour in the future is -1.
func Classify(timestamps []time.Time, now time.Time) Entry {
	if len(timestamps) == 0 {
		return NoDates()
	}

	latest := timestamps[0]
	for _, ts := range timestamps[1:] {
		if ts.After(latest) {
			latest = ts
		}
	}

	return Formatted(DaysBetween(latest, now))
}

// DaysBetween returns floor((to - from) / 24h). It works on whole seconds so
// that spans beyond the range of time.Duration (about 292 years) stay exact.
func DaysBetween(from, to time.Time) int {
	secs := to.Unix() - from.Unix()
	// The sub-second remainder only matters when it borrows a second.
	if to.Nanosecond() < from.Nanosecond() {
		secs--
	}
	days := secs / secondsPerDay
	if secs%secondsPerDay < 0 {
		days--
	}
	return int(days)
}
