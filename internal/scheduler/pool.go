package scheduler

import (
	"context"
	"errors"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"golang.org/x/sync/errgroup"
)

var errNoResult = errors.New("runner returned no result")

// Pool runs up to Workers jobs at a time and waits for all of them. Jobs are
// submitted in order; they complete in any order.
type Pool struct {
	Runner   Runner
	Workers  int
	Observer Observer
}

var _ Scheduler = (*Pool)(nil)

// Schedule implements Scheduler.
func (p *Pool) Schedule(ctx context.Context, jobs []*model.JobSpec) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	logger.Info("Starting worker pool.", "workers", workers, "jobs", len(jobs))
	for _, j := range jobs {
		notify(ctx, p.Observer, Event{Kind: EventQueued, Variable: j.Variable})
	}

	results := make([]*model.JobResult, len(jobs))
	var g errgroup.Group
	g.SetLimit(workers)

	submitted := 0
	for i, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		// Go blocks while every slot is busy.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			results[i] = runOne(ctx, p.Runner, p.Observer, j)
			return nil
		})
		submitted = i + 1
	}

	logger.Info("Waiting for all jobs to complete...")
	_ = g.Wait()

	report := &Report{}
	var skipped []*model.JobSpec
	for i, j := range jobs {
		if i < submitted && results[i] != nil {
			report.Results = append(report.Results, results[i])
			continue
		}
		skipped = append(skipped, j)
	}
	report.NotStarted = skipRest(ctx, p.Observer, skipped)
	logger.Info("All jobs completed.", "started", len(report.Results), "not_started", len(report.NotStarted))
	return report, RunError(ctx)
}
