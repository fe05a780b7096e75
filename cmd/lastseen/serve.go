package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/lastseen/internal/job"
	"github.com/jonathan/lastseen/internal/metrics"
	"github.com/jonathan/lastseen/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP trigger server",
	Long:  `Start an HTTP server. GET / starts a run in the background; /ping, /health, /status and /metrics report on it.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadEnvironment()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	runner := job.NewRunner(newJob(cfg, logger, metrics.New(reg)))

	var tokens *server.TokenService
	auth, err := cfg.TriggerAuth()
	if err != nil {
		return err
	}
	if auth != nil {
		tokens = server.NewTokenService(auth)
	} else {
		logger.Warn("No trigger secret configured, GET / is open")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(server.Config{
		Port:       cfg.Port,
		Trigger:    runner,
		RunContext: ctx,
		Logger:     logger,
		Gatherer:   reg,
		RateLimit:  cfg.RateLimit(),
		Tokens:     tokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("Configured",
		zap.String("record_store", cfg.RecordStore),
		zap.Bool("use_browser", cfg.UseBrowser),
		zap.Int("concurrency", cfg.Concurrency),
	)
	return srv.Serve(ctx)
}
