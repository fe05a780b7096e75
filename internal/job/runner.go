package job

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrRunInProgress is returned by Start while a previous run is still going.
var ErrRunInProgress = errors.New("a run is already in progress")

// Status describes the runner's current and most recent run.
type Status struct {
	Running bool    `json:"running"`
	RunID   string  `json:"run_id,omitempty"`
	Last    *Report `json:"last,omitempty"`
}

// Runner starts jobs in the background, one at a time.
type Runner struct {
	job    *Job
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	current uuid.UUID
	last    *Report
	wg      sync.WaitGroup
}

// NewRunner creates a Runner for job.
func NewRunner(job *Job) *Runner {
	return &Runner{job: job, logger: job.opts.Logger}
}

// Start launches a run in the background and returns its ID immediately.
// The run uses ctx, not the caller's request context, so it outlives the
// request that triggered it.
func (r *Runner) Start(ctx context.Context) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return r.current, ErrRunInProgress
	}
	id := uuid.New()
	r.running = true
	r.current = id

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		report, _ := r.job.execute(ctx, id)

		r.mu.Lock()
		r.running = false
		r.last = report
		r.mu.Unlock()
	}()

	r.logger.Info("Run started", zap.String("run_id", id.String()))
	return id, nil
}

// Status returns a snapshot of the runner state.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Status{Running: r.running, Last: r.last}
	if r.running {
		s.RunID = r.current.String()
	}
	return s
}

// Wait blocks until the background run, if any, has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
