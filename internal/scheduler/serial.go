package scheduler

import (
	"context"
	"time"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
)

// Serial runs jobs one at a time, in order, in the calling process. The
// first failed job stops the run.
type Serial struct {
	Runner   Runner
	Observer Observer
}

var _ Scheduler = (*Serial)(nil)

// Schedule implements Scheduler.
func (s *Serial) Schedule(ctx context.Context, jobs []*model.JobSpec) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Running jobs serially.", "jobs", len(jobs))
	for _, j := range jobs {
		notify(ctx, s.Observer, Event{Kind: EventQueued, Variable: j.Variable})
	}

	report := &Report{}
	for i, j := range jobs {
		if ctx.Err() != nil {
			report.NotStarted = skipRest(ctx, s.Observer, jobs[i:])
			return report, RunError(ctx)
		}
		res := runOne(ctx, s.Runner, s.Observer, j)
		report.Results = append(report.Results, res)
		if !res.OK() {
			logger.Error("Job failed, stopping serial run.", "variable", j.Variable, "error", res.Err)
			report.NotStarted = skipRest(ctx, s.Observer, jobs[i+1:])
			return report, RunError(ctx)
		}
	}
	return report, nil
}

// runOne executes a single job and reports its lifecycle. Jobs carrying a
// resolution error fail without running.
func runOne(ctx context.Context, r Runner, o Observer, j *model.JobSpec) *model.JobResult {
	notify(ctx, o, Event{Kind: EventStarted, Variable: j.Variable})
	var res *model.JobResult
	if j.Err != nil {
		res = model.Failed(j.Variable, j.Err)
	} else {
		start := time.Now()
		res = r.Run(ctx, j)
		if res == nil {
			res = model.Failed(j.Variable, errNoResult)
		}
		if res.Duration == 0 {
			res.Duration = time.Since(start)
		}
	}
	res = interruptedResult(ctx, res)
	notify(ctx, o, Event{Kind: EventFinished, Variable: j.Variable, Result: res})
	return res
}

func skipRest(ctx context.Context, o Observer, jobs []*model.JobSpec) []string {
	logger := ctxlog.FromContext(ctx)
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		logger.Warn("Job not started.", "variable", j.Variable)
		notify(ctx, o, Event{Kind: EventNotStarted, Variable: j.Variable})
		names = append(names, j.Variable)
	}
	return names
}
