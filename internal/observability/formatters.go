// Package observability provides formatted run output for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/lastseen/internal/job"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
)

// Printer handles formatted output for the text report format
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		// Truncate long lines
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintReport outputs a human-readable summary of a finished run.
func (p *Printer) PrintReport(report *job.Report) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:       %s\n", report.RunID))
	sb.WriteString(fmt.Sprintf("Started:   %s\n", report.StartedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Duration:  %s\n", report.Duration().Round(time.Millisecond)))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Profiles:  %d\n", report.Total))
	sb.WriteString(fmt.Sprintf("  Seen:          %d\n", report.Formatted))
	sb.WriteString(fmt.Sprintf("  No dates:      %d\n", report.NoDates))
	sb.WriteString(fmt.Sprintf("  Load errors:   %d", report.FetchErrors))
	if report.Error != "" {
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf("Error: %s", report.Error))
	}

	title := "RUN REPORT"
	if report.Error != "" {
		title = "RUN FAILED"
	}
	p.printBox(title, sb.String())
}
