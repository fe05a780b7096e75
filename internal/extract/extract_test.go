package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utc(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC)
}

func TestExtractor_Timestamps(t *testing.T) {
	ex := &Extractor{Location: time.UTC}

	tests := []struct {
		name     string
		text     string
		expected []time.Time
	}{
		{
			name:     "empty text",
			text:     "",
			expected: []time.Time{},
		},
		{
			name:     "no timestamps",
			text:     "Character: Rex\nRank: CT\nPlaytime: 12h",
			expected: []time.Time{},
		},
		{
			name:     "single timestamp",
			text:     "Last login 4/7/2024, 13:05:02 from the west gate",
			expected: []time.Time{utc(2024, time.April, 7, 13, 5, 2)},
		},
		{
			name: "multiple timestamps keep text order",
			text: "Joined 12/31/2023, 23:59:59\nPromoted 1/1/2020, 00:00:00\nSeen 06/15/2022, 08:30:00",
			expected: []time.Time{
				utc(2023, time.December, 31, 23, 59, 59),
				utc(2020, time.January, 1, 0, 0, 0),
				utc(2022, time.June, 15, 8, 30, 0),
			},
		},
		{
			name:     "adjacent timestamps",
			text:     "1/2/2021, 03:04:05 1/2/2021, 03:04:06",
			expected: []time.Time{utc(2021, time.January, 2, 3, 4, 5), utc(2021, time.January, 2, 3, 4, 6)},
		},
		{
			name:     "single digit hour is not a match",
			text:     "4/7/2024, 1:05:02",
			expected: []time.Time{},
		},
		{
			name:     "missing comma is not a match",
			text:     "4/7/2024 13:05:02",
			expected: []time.Time{},
		},
		{
			name:     "three digit month is not a match",
			text:     "104/7/2024, 13:05:02",
			expected: []time.Time{},
		},
		{
			name:     "trailing digits break the word boundary",
			text:     "4/7/2024, 13:05:023",
			expected: []time.Time{},
		},
		{
			name:     "month 13 rolls into next year",
			text:     "13/1/2024, 00:00:00",
			expected: []time.Time{utc(2025, time.January, 1, 0, 0, 0)},
		},
		{
			name:     "day 30 of february rolls into march",
			text:     "2/30/2024, 10:00:00",
			expected: []time.Time{utc(2024, time.March, 1, 10, 0, 0)},
		},
		{
			name:     "hour 25 rolls into next day",
			text:     "4/7/2024, 25:00:00",
			expected: []time.Time{utc(2024, time.April, 8, 1, 0, 0)},
		},
		{
			name:     "month zero rolls back",
			text:     "0/10/2024, 12:00:00",
			expected: []time.Time{utc(2023, time.December, 10, 12, 0, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ex.Timestamps(tt.text)
			require.NotNil(t, got)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Timestamps(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestExtractor_Restartable(t *testing.T) {
	ex := &Extractor{Location: time.UTC}
	text := "a 1/1/2020, 00:00:00 b 2/2/2021, 01:01:01"

	first := ex.Timestamps(text)
	second := ex.Timestamps(text)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestExtractor_MaxMatches(t *testing.T) {
	ex := &Extractor{Location: time.UTC, MaxMatches: 3}
	text := strings.Repeat("5/5/2022, 10:10:10 ", 10)

	assert.Len(t, ex.Timestamps(text), 3)
}

func TestExtractor_MaxScanBytes(t *testing.T) {
	prefix := strings.Repeat("x", 100)
	text := prefix + " 5/5/2022, 10:10:10"

	limited := &Extractor{Location: time.UTC, MaxScanBytes: 50}
	assert.Empty(t, limited.Timestamps(text))

	unlimited := &Extractor{Location: time.UTC}
	assert.Len(t, unlimited.Timestamps(text), 1)
}

func TestExtractor_DefaultLocation(t *testing.T) {
	got := (&Extractor{}).Timestamps("4/7/2024, 13:05:02")
	require.Len(t, got, 1)
	assert.Equal(t, time.Local, got[0].Location())
	assert.True(t, got[0].Equal(time.Date(2024, time.April, 7, 13, 5, 2, 0, time.Local)))
}

func TestTimestamps_PackageLevel(t *testing.T) {
	got := Timestamps("seen 4/7/2024, 13:05:02")
	require.Len(t, got, 1)
	assert.Equal(t, 2024, got[0].Year())
	assert.Equal(t, time.April, got[0].Month())
	assert.Equal(t, 7, got[0].Day())
	assert.Equal(t, 13, got[0].Hour())
	assert.Equal(t, 5, got[0].Minute())
	assert.Equal(t, 2, got[0].Second())
}
