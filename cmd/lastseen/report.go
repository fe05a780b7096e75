package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jonathan/lastseen/internal/recency"
	"github.com/jonathan/lastseen/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the results currently in the record store",
	Long:  "Read identifiers and the result column back from the record store and print them with a summary.",
	RunE:  runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rs, err := storeOpener(cfg, logger)(ctx)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer rs.Close()

	reader, ok := rs.(store.ResultReader)
	if !ok {
		return fmt.Errorf("record store %q cannot read results back", cfg.RecordStore)
	}
	ids, err := rs.ReadIdentifiers(ctx)
	if err != nil {
		return err
	}
	results, err := reader.ReadResults(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ROW\tIDENTIFIER\tLAST SEEN")
	for i, id := range ids {
		result := ""
		if i < len(results) {
			result = results[i]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", cfg.StartRow+i, id, result)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	s := recency.SummarizeRendered(results[:min(len(results), len(ids))])
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d profiles: %d seen, %d without dates, %d failed to load\n",
		len(ids), s.Formatted, s.NoDates, s.FetchErrors)
	return nil
}
