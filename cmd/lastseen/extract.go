package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/lastseen/internal/extract"
	"github.com/jonathan/lastseen/internal/recency"
)

var (
	extractTimezone string
	extractNow      string
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract timestamps from page text",
	Long: "Read page text from a file, or stdin when no file is given, print every timestamp " +
		"found and the value that would be written for the profile.",
	Args: cobra.MaximumNArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringVar(&extractTimezone, "timezone", "", "IANA zone the timestamps are in (default: local)")
	extractCmd.Flags().StringVar(&extractNow, "now", "", "Reference time as RFC 3339 (default: current time)")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	loc := time.Local
	if extractTimezone != "" {
		var err error
		if loc, err = time.LoadLocation(extractTimezone); err != nil {
			return fmt.Errorf("invalid --timezone: %w", err)
		}
	}

	now := time.Now()
	if extractNow != "" {
		var err error
		if now, err = time.Parse(time.RFC3339, extractNow); err != nil {
			return fmt.Errorf("invalid --now: %w", err)
		}
	}

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}
	text, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	ex := &extract.Extractor{Location: loc}
	timestamps := ex.Timestamps(string(text))

	out := cmd.OutOrStdout()
	for _, ts := range timestamps {
		fmt.Fprintln(out, ts.Format(time.RFC3339))
	}
	fmt.Fprintln(out, recency.Classify(timestamps, now))
	return nil
}
