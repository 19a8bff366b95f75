package merger

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

type RunResult struct {
	Job     RunJob
	Summary RunSummary
	Err     error
}

// RunProcessor processes a single run. ProcessRun is the default.
type RunProcessor func(ctx context.Context, job RunJob, config Configuration) (RunSummary, error)

func processJob(ctx context.Context, process RunProcessor, config Configuration, job RunJob) (result RunResult) {
	result.Job = job
	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("Recovered from panic on run %d: %v", job.RunNumber, r)
			logger.Error(message)
			result.Err = &ErrRun{RunNumber: job.RunNumber, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		result.Err = &ErrRun{RunNumber: job.RunNumber, Err: err}
		return result
	}
	if config.Verbosity > 0 {
		logger.Info(fmt.Sprintf("Processing run %d", job.RunNumber), "workers")
	}
	result.Summary, result.Err = process(ctx, job, config)
	return result
}

// ProcessRuns runs every job with at most config.NumWorkers runs in flight. A
// failing run does not stop the others; each result carries its own error.
// Results come back in job order.
func ProcessRuns(ctx context.Context, jobs []RunJob, config Configuration, process RunProcessor) []RunResult {
	if process == nil {
		process = ProcessRun
	}
	nWorkers := config.NumWorkers
	if nWorkers < 1 {
		nWorkers = 1
	}

	results := make([]RunResult, len(jobs))
	var group errgroup.Group
	group.SetLimit(nWorkers)
	for i, job := range jobs {
		group.Go(func() error {
			results[i] = processJob(ctx, process, config, job)
			return nil
		})
	}
	group.Wait()
	return results
}
