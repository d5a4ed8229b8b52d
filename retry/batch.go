package retry

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one independent orchestration.
type Job struct {
	Name     string
	Generate GenerateFunc
}

// JobResult holds the result of one Job.
type JobResult struct {
	Name    string
	Outcome *Outcome
	Err     error
}

// RunBatch runs jobs concurrently with at most limit in flight (unlimited
// when limit <= 0). Results are indexed like jobs. A failing job does not
// cancel the others.
func (o *Orchestrator) RunBatch(ctx context.Context, jobs []Job, limit int) []JobResult {
	results := make([]JobResult, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, job := range jobs {
		g.Go(func() error {
			out, err := o.Run(gctx, job.Generate)
			results[i] = JobResult{Name: job.Name, Outcome: out, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
