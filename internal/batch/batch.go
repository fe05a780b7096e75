// Package batch drives profile checks for an ordered list of identifiers.
//
// Run fetches each identifier's page, extracts its timestamps and classifies
// the latest one. Failures are isolated per identifier: a page that cannot be
// fetched becomes a FetchError entry at its own position and the batch moves on.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/lastseen/internal/extract"
	"github.com/jonathan/lastseen/internal/recency"
)

// DefaultFetchTimeout bounds a single fetch when Options.FetchTimeout is unset.
const DefaultFetchTimeout = 30 * time.Second

// FetchFunc returns the rendered text of an identifier's profile page.
type FetchFunc func(ctx context.Context, id string) (string, error)

// Observer is notified after each identifier is processed. It is called from
// worker goroutines and must be safe for concurrent use when Concurrency > 1.
type Observer interface {
	Observe(index int, id string, entry recency.Entry, elapsed time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(index int, id string, entry recency.Entry, elapsed time.Duration)

// Observe calls f.
func (f ObserverFunc) Observe(index int, id string, entry recency.Entry, elapsed time.Duration) {
	f(index, id, entry, elapsed)
}

// Options configures Run. The zero value processes identifiers one at a time.
type Options struct {
	// Concurrency is the maximum number of fetches in flight. Values below 1 mean 1.
	Concurrency int
	// FetchTimeout bounds each fetch. Expiry counts as a fetch failure.
	FetchTimeout time.Duration
	// Clock supplies "now" for classification. Defaults to time.Now.
	Clock func() time.Time
	// Extractor parses page text. Defaults to extract.Default.
	Extractor *extract.Extractor
	Logger    *zap.Logger
	Observer  Observer
}

func (o Options) withDefaults() Options {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Extractor == nil {
		o.Extractor = extract.Default
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Run processes ids and returns one entry per identifier, entry i belonging
// to ids[i]. Fetch failures never abort the batch.
//
// The only error returned is ctx's: when ctx is cancelled no further
// identifiers are started and Run returns the entries completed so far, as a
// prefix of the full result.
func Run(ctx context.Context, ids []string, fetch FetchFunc, opts Options) ([]recency.Entry, error) {
	opts = opts.withDefaults()

	results := make([]recency.Entry, len(ids))
	done := make([]bool, len(ids))

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			start := time.Now()
			entry, ok := check(ctx, id, fetch, opts)
			if !ok {
				return nil
			}
			results[i] = entry
			done[i] = true
			if opts.Observer != nil {
				opts.Observer.Observe(i, id, entry, time.Since(start))
			}
			return nil
		})
	}
	_ = g.Wait()

	completed := 0
	for completed < len(done) && done[completed] {
		completed++
	}
	if completed < len(ids) {
		return results[:completed], ctx.Err()
	}
	return results, nil
}

// check runs one identifier through fetch, extract and classify. It reports
// false when the parent context was cancelled before a result was produced.
func check(ctx context.Context, id string, fetch FetchFunc, opts Options) (recency.Entry, bool) {
	if ctx.Err() != nil {
		return recency.Entry{}, false
	}
	log := opts.Logger.With(zap.String("id", id))
	log.Info("Checking profile")

	fetchCtx, cancel := context.WithTimeout(ctx, opts.FetchTimeout)
	defer cancel()

	text, err := safeFetch(fetchCtx, id, fetch)
	if err != nil {
		if ctx.Err() != nil {
			return recency.Entry{}, false
		}
		log.Warn("Failed to load profile", zap.Error(err))
		return recency.FetchError(), true
	}

	timestamps := opts.Extractor.Timestamps(text)
	entry := recency.Classify(timestamps, opts.Clock())
	log.Debug("Classified profile",
		zap.Int("timestamps", len(timestamps)),
		zap.Stringer("result", entry))
	return entry, true
}

// safeFetch converts a panicking fetcher into an error so one bad page
// cannot take down the batch.
func safeFetch(ctx context.Context, id string, fetch FetchFunc) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return fetch(ctx, id)
}
