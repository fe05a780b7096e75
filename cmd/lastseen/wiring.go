package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/lastseen/internal/config"
	"github.com/jonathan/lastseen/internal/fetch"
	"github.com/jonathan/lastseen/internal/job"
	"github.com/jonathan/lastseen/internal/logging"
	"github.com/jonathan/lastseen/internal/metrics"
	"github.com/jonathan/lastseen/internal/store"
	"github.com/jonathan/lastseen/internal/store/postgres"
	"github.com/jonathan/lastseen/internal/store/sheets"
	"github.com/jonathan/lastseen/internal/store/sqlite"
)

// loadEnvironment loads the configuration and builds the logger.
func loadEnvironment() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// storeOpener connects to the configured record store once per run.
func storeOpener(cfg *config.Config, logger *zap.Logger) job.StoreOpener {
	return func(ctx context.Context) (rs store.RecordStore, err error) {
		switch cfg.RecordStore {
		case config.StoreSheets:
			rs, err = sheets.New(ctx, sheets.Config{
				SpreadsheetID:   cfg.SpreadsheetID,
				CredentialsFile: cfg.CredentialsFile,
				Layout:          cfg.Layout(),
				Logger:          logger,
			})
		case config.StorePostgres:
			rs, err = postgres.Connect(ctx, cfg.DatabaseURL, cfg.StartRow)
		case config.StoreSQLite:
			rs, err = sqlite.New(ctx, cfg.SQLitePath, cfg.StartRow)
		default:
			err = fmt.Errorf("unknown record store %q", cfg.RecordStore)
		}
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
}

// pageOpener returns the headless browser fetcher, or the plain HTTP one
// when the browser is disabled.
func pageOpener(cfg *config.Config, logger *zap.Logger) fetch.Opener {
	opts := cfg.FetchOptions(logger)
	if !cfg.UseBrowser {
		return fetch.NewHTTPOpener(opts, nil)
	}
	browser := fetch.NewBrowserOpener(opts)
	browser.ExecPath = cfg.ChromePath
	return browser
}

func newJob(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *job.Job {
	return job.New(storeOpener(cfg, logger), pageOpener(cfg, logger), job.Options{
		Batch:   cfg.BatchOptions(),
		Logger:  logger,
		Metrics: m,
	})
}
