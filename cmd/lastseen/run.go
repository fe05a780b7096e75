package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/lastseen/internal/observability"
)

var runFormat string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one update synchronously",
	Long:  "Read identifiers, check every profile, write the results and print the run report.",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().StringVar(&runFormat, "format", "json", "Report format: json or text")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	if runFormat != "json" && runFormat != "text" {
		return fmt.Errorf("invalid --format %q: must be json or text", runFormat)
	}
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, runErr := newJob(cfg, logger, nil).Execute(ctx)

	if runFormat == "text" {
		observability.NewPrinter(cmd.OutOrStdout()).PrintReport(report)
		return runErr
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return runErr
}
