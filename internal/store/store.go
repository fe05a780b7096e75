// Package store defines the record store that supplies identifiers and
// receives results, aligned row for row.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reader supplies the ordered identifier list for a run.
type Reader interface {
	// ReadIdentifiers returns one identifier per row starting at the layout's
	// first row. Blank rows are returned as "" so positions never shift.
	ReadIdentifiers(ctx context.Context) ([]string, error)
}

// Writer accepts the ordered result strings for a run.
type Writer interface {
	// WriteResults writes results[k] to the row of identifier k in a single call.
	WriteResults(ctx context.Context, results []string) error
}

// ResultReader reads back the result column, aligned like ReadIdentifiers.
type ResultReader interface {
	ReadResults(ctx context.Context) ([]string, error)
}

// RecordStore is a Reader and Writer over the same rows.
type RecordStore interface {
	Reader
	Writer
	Close() error
}

// AuthError reports that the store rejected the service's credentials.
// It is fatal to a run.
type AuthError struct {
	Store string
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authorization failed: %v", e.Store, e.Cause)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Layout describes where identifiers and results live in a tabular source.
// Identifiers are read from InputColumn and results written to OutputColumn,
// both starting at StartRow, so row k of input is row k of output.
type Layout struct {
	Sheet        string
	InputColumn  string
	OutputColumn string
	StartRow     int
}

// DefaultLayout is the master list layout: identifiers in B5:B, results in E5:E.
func DefaultLayout() Layout {
	return Layout{
		Sheet:        "Masterlist",
		InputColumn:  "B",
		OutputColumn: "E",
		StartRow:     5,
	}
}

// Validate checks that the layout can address a range.
func (l Layout) Validate() error {
	if strings.TrimSpace(l.Sheet) == "" {
		return fmt.Errorf("layout: sheet name is required")
	}
	if !isColumn(l.InputColumn) {
		return fmt.Errorf("layout: invalid input column %q", l.InputColumn)
	}
	if !isColumn(l.OutputColumn) {
		return fmt.Errorf("layout: invalid output column %q", l.OutputColumn)
	}
	if l.StartRow < 1 {
		return fmt.Errorf("layout: start row must be at least 1, got %d", l.StartRow)
	}
	return nil
}

// ReadRange is the open-ended A1 range of the identifier column, e.g. Masterlist!B5:B.
func (l Layout) ReadRange() string {
	return fmt.Sprintf("%s!%s%d:%s", quoteSheet(l.Sheet), l.InputColumn, l.StartRow, l.InputColumn)
}

// ResultRange is the open-ended A1 range of the result column, e.g. Masterlist!E5:E.
func (l Layout) ResultRange() string {
	return fmt.Sprintf("%s!%s%d:%s", quoteSheet(l.Sheet), l.OutputColumn, l.StartRow, l.OutputColumn)
}

// WriteRange is the A1 range covering n results, e.g. Masterlist!E5:E7 for n = 3.
func (l Layout) WriteRange(n int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", quoteSheet(l.Sheet), l.OutputColumn, l.StartRow, l.OutputColumn, l.StartRow+n-1)
}

func isColumn(s string) bool {
	if s == "" || len(s) > 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// quoteSheet quotes sheet names that A1 notation cannot take bare.
func quoteSheet(name string) string {
	for _, r := range name {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return "'" + strings.ReplaceAll(name, "'", "''") + "'"
		}
	}
	return name
}

// Row is one numbered row of a table-backed store.
type Row struct {
	Num   int
	Value string
}

// MaxRows bounds how many rows a table-backed store lays out.
const MaxRows = 1_000_000

// Align lays rows out positionally from startRow. Missing row numbers become
// "" and rows before startRow are dropped, so index k is always row startRow+k.
// A row number more than MaxRows past startRow is an error rather than a
// multi-gigabyte allocation.
func Align(rows []Row, startRow int) ([]string, error) {
	last := startRow - 1
	for _, r := range rows {
		if r.Num-startRow >= MaxRows {
			return nil, fmt.Errorf("row %d is more than %d rows past start row %d", r.Num, MaxRows, startRow)
		}
		if r.Num > last {
			last = r.Num
		}
	}
	out := make([]string, last-startRow+1)
	for _, r := range rows {
		if r.Num >= startRow {
			out[r.Num-startRow] = r.Value
		}
	}
	return out, nil
}
