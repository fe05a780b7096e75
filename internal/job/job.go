// Package job runs one complete pass: read identifiers from the record store,
// check every profile and write the results back in a single batch.
package job

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/lastseen/internal/batch"
	"github.com/jonathan/lastseen/internal/fetch"
	"github.com/jonathan/lastseen/internal/metrics"
	"github.com/jonathan/lastseen/internal/recency"
	"github.com/jonathan/lastseen/internal/store"
)

// StoreOpener connects to the record store for one run. Authorization
// happens here, so credential problems surface before any profile is fetched.
type StoreOpener func(ctx context.Context) (store.RecordStore, error)

// Options configures a Job.
type Options struct {
	// Batch is passed to batch.Run. Its Logger and Observer are set by the job.
	Batch   batch.Options
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Report summarizes a finished run.
type Report struct {
	RunID      uuid.UUID `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	recency.Summary
	Error string `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Job ties the record store, the profile fetcher and the batch orchestrator together.
type Job struct {
	openStore StoreOpener
	opener    fetch.Opener
	opts      Options
}

// New creates a Job.
func New(openStore StoreOpener, opener fetch.Opener, opts Options) *Job {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Job{openStore: openStore, opener: opener, opts: opts}
}

// Execute performs one run under a fresh run ID.
func (j *Job) Execute(ctx context.Context) (*Report, error) {
	return j.execute(ctx, uuid.New())
}

// execute performs one run. Either every result is written or nothing is:
// store failures and cancellation abort before the write, and the write is a
// single call. The returned report is never nil.
func (j *Job) execute(ctx context.Context, runID uuid.UUID) (report *Report, err error) {
	log := j.opts.Logger.With(zap.String("run_id", runID.String()))
	report = &Report{RunID: runID, StartedAt: time.Now()}

	if j.opts.Metrics != nil {
		j.opts.Metrics.RunStarted()
	}
	defer func() {
		report.FinishedAt = time.Now()
		if err != nil {
			report.Error = err.Error()
			log.Error("Run failed", zap.Error(err))
		} else {
			log.Info("Run complete",
				zap.Int("total", report.Total),
				zap.Int("formatted", report.Formatted),
				zap.Int("no_dates", report.NoDates),
				zap.Int("fetch_errors", report.FetchErrors),
				zap.Duration("duration", report.Duration()))
		}
		if j.opts.Metrics != nil {
			j.opts.Metrics.RunFinished(report.StartedAt, err)
		}
	}()

	rs, err := j.openStore(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to open record store: %w", err)
	}
	defer func() {
		if cerr := rs.Close(); cerr != nil {
			log.Warn("Failed to close record store", zap.Error(cerr))
		}
	}()

	ids, err := rs.ReadIdentifiers(ctx)
	if err != nil {
		return report, err
	}
	log.Info("Read identifiers", zap.Int("count", len(ids)))

	entries, err := j.check(ctx, log, ids)
	if err != nil {
		return report, err
	}
	report.Summary = recency.Summarize(entries)

	if len(entries) == 0 {
		log.Info("No identifiers to update")
		return report, nil
	}
	if err := rs.WriteResults(ctx, recency.Render(entries)); err != nil {
		return report, err
	}
	return report, nil
}

// check opens one fetch session for the whole batch and releases it once
// every identifier has been processed, whatever the outcome.
func (j *Job) check(ctx context.Context, log *zap.Logger, ids []string) ([]recency.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	session, err := j.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			log.Warn("Failed to close fetch session", zap.Error(cerr))
		}
	}()

	opts := j.opts.Batch
	opts.Logger = log
	if j.opts.Metrics != nil {
		opts.Observer = j.opts.Metrics
	}

	entries, err := batch.Run(ctx, ids, session.Fetch, opts)
	if err != nil {
		return nil, fmt.Errorf("run aborted after %d of %d profiles: %w", len(entries), len(ids), err)
	}
	return entries, nil
}
