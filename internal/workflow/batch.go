package workflow

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/codeshift/internal/pipeline"
)

// Runner is satisfied by *Engine.
type Runner interface {
	Run(ctx context.Context, sourceCode string) (*pipeline.State, error)
}

// Job is one source program of a batch.
type Job struct {
	Name       string
	SourceCode string
}

type BatchResult struct {
	Name    string
	State   *pipeline.State
	Err     error
	Latency time.Duration
}

// Batch runs independent workflows with at most concurrency in flight.
// Results keep the order of jobs. A job error does not stop the others.
func Batch(ctx context.Context, runner Runner, jobs []Job, concurrency int) []BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	results := make([]BatchResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			state, err := runner.Run(gctx, job.SourceCode)
			results[i] = BatchResult{
				Name:    job.Name,
				State:   state,
				Err:     err,
				Latency: time.Since(start),
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Counts tallies fully successful, degraded and errored results.
func Counts(results []BatchResult) (succeeded, degraded, failed int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.State != nil && r.State.Succeeded():
			succeeded++
		default:
			degraded++
		}
	}
	return succeeded, degraded, failed
}
