// Package extract recovers "last seen" timestamps from rendered profile page text.
//
// Profile pages render activity times as M/D/YYYY, HH:MM:SS (for example
// "4/7/2024, 13:05:02"), scattered through otherwise unstructured text.
package extract

import (
	"regexp"
	"strconv"
	"time"
)

// DefaultMaxScanBytes bounds how much page text is scanned. Text past the
// limit is ignored.
const DefaultMaxScanBytes = 4 << 20

// DefaultMaxMatches bounds how many timestamps are collected from one page.
const DefaultMaxMatches = 10000

var timestampPattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4}), (\d{2}):(\d{2}):(\d{2})\b`)

// Extractor parses timestamps out of page text. The zero value is ready to use
// and interprets timestamps in time.Local with the default scan bounds.
type Extractor struct {
	// Location is attached to every parsed timestamp. Nil means time.Local.
	Location *time.Location
	// MaxScanBytes limits the scanned prefix of the text. Zero means DefaultMaxScanBytes.
	MaxScanBytes int
	// MaxMatches limits the number of timestamps returned. Zero means DefaultMaxMatches.
	MaxMatches int
}

// Default is the extractor used by Timestamps.
var Default = &Extractor{}

// Timestamps returns every timestamp in text using the default extractor.
func Timestamps(text string) []time.Time {
	return Default.Timestamps(text)
}

// Timestamps returns the timestamps found in text, in the order they appear.
// It never fails: text without a recognizable timestamp yields an empty slice.
//
// Fields are not range checked. Out-of-range values roll over the way
// time.Date normalizes them, so "13/1/2024, 00:00:00" is January 1st 2025.
func (e *Extractor) Timestamps(text string) []time.Time {
	maxBytes := e.MaxScanBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxScanBytes
	}
	maxMatches := e.MaxMatches
	if maxMatches <= 0 {
		maxMatches = DefaultMaxMatches
	}
	if len(text) > maxBytes {
		text = text[:maxBytes]
	}

	loc := e.Location
	if loc == nil {
		loc = time.Local
	}

	matches := timestampPattern.FindAllStringSubmatch(text, maxMatches)
	timestamps := make([]time.Time, 0, len(matches))
	for _, m := range matches {
		timestamps = append(timestamps, time.Date(
			atoi(m[3]), time.Month(atoi(m[1])), atoi(m[2]),
			atoi(m[4]), atoi(m[5]), atoi(m[6]), 0, loc,
		))
	}
	return timestamps
}

// atoi converts a pattern group. Groups are short digit runs, so the
// conversion cannot fail.
func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
