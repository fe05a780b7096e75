package recency

import (
	"fmt"
	"strconv"
	"strings"
)

// Strings written to the record store. These are read by people looking at
// the sheet, so they must not change.
const (
	noDatesText    = "No valid dates"
	fetchErrorText = "Error loading"
	lastSeenPrefix = "Last Seen "
	lastSeenSuffix = " Days Ago"
)

// String renders the entry as it appears in the record store.
func (e Entry) String() string {
	switch e.Kind {
	case KindFormatted:
		return fmt.Sprintf("%s%d%s", lastSeenPrefix, e.DaysAgo, lastSeenSuffix)
	case KindNoDates:
		return noDatesText
	case KindFetchError:
		return fetchErrorText
	default:
		return ""
	}
}

// Render converts entries to their record store strings, preserving order.
func Render(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.String()
	}
	return out
}

// Parse is the inverse of Entry.String. It reports false for strings that
// were not produced by String.
func Parse(s string) (Entry, bool) {
	switch s {
	case noDatesText:
		return NoDates(), true
	case fetchErrorText:
		return FetchError(), true
	}

	if !strings.HasPrefix(s, lastSeenPrefix) || !strings.HasSuffix(s, lastSeenSuffix) {
		return Entry{}, false
	}
	num := strings.TrimSuffix(strings.TrimPrefix(s, lastSeenPrefix), lastSeenSuffix)
	days, err := strconv.Atoi(num)
	if err != nil {
		return Entry{}, false
	}
	return Formatted(days), true
}

// Summary counts entries by kind.
type Summary struct {
	Total       int `json:"total"`
	Formatted   int `json:"formatted"`
	NoDates     int `json:"no_dates"`
	FetchErrors int `json:"fetch_errors"`
}

// Summarize tallies entries by kind.
func Summarize(entries []Entry) Summary {
	s := Summary{Total: len(entries)}
	for _, e := range entries {
		switch e.Kind {
		case KindFormatted:
			s.Formatted++
		case KindNoDates:
			s.NoDates++
		case KindFetchError:
			s.FetchErrors++
		}
	}
	return s
}

// SummarizeRendered tallies result strings read back from a record store.
// Strings that are not rendered entries, such as blank cells, count toward
// Total only.
func SummarizeRendered(results []string) Summary {
	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		if e, ok := Parse(r); ok {
			entries = append(entries, e)
		}
	}
	s := Summarize(entries)
	s.Total = len(results)
	return s
}
