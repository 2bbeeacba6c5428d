package backtest

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

// Job is one independent run of a batch. Build is called on the worker
// goroutine and must return a runner that shares no mutable state with any
// other job.
type Job struct {
	Name  string
	Build func(ctx context.Context) (*Runner, error)
	// Done, when set, sees every successful result; its error fails the job.
	Done func(Result) error
}

// BatchResult pairs a job with its outcome.
type BatchResult struct {
	Name   string
	Result Result
	Err    error
}

// RunBatch runs jobs concurrently, at most workers at a time (0 means one per
// job), and returns the results in job order. A failing or panicking job does
// not affect the others.
func RunBatch(ctx context.Context, jobs []Job, workers int) []BatchResult {
	out := make([]BatchResult, len(jobs))
	if len(jobs) == 0 {
		return out
	}
	if workers <= 0 || workers > len(jobs) {
		workers = len(jobs)
	}

	p := pool.New().WithMaxGoroutines(workers)
	for i, job := range jobs {
		i, job := i, job
		p.Go(func() {
			out[i] = runJob(ctx, job)
		})
	}
	p.Wait()
	return out
}

func runJob(ctx context.Context, job Job) (br BatchResult) {
	br.Name = job.Name

	var pc panics.Catcher
	pc.Try(func() {
		if job.Build == nil {
			br.Err = fmt.Errorf("backtest: job %q has no Build func", job.Name)
			return
		}
		r, err := job.Build(ctx)
		if err != nil {
			br.Err = fmt.Errorf("build %s: %w", job.Name, err)
			return
		}
		if r.Name == "" {
			r.Name = job.Name
		}
		br.Result, br.Err = r.Run(ctx)
		if br.Err == nil && job.Done != nil {
			br.Err = job.Done(br.Result)
		}
	})
	if rec := pc.Recovered(); rec != nil {
		br.Err = fmt.Errorf("run %s: %w", job.Name, rec.AsError())
	}
	return br
}
