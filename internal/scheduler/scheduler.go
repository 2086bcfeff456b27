package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/cmipconv/internal/model"
)

// Runner executes one job to completion. It must not panic and always
// returns a result; failures are carried in the result.
type Runner interface {
	Run(ctx context.Context, spec *model.JobSpec) *model.JobResult
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, spec *model.JobSpec) *model.JobResult

// Run calls fn.
func (fn RunnerFunc) Run(ctx context.Context, spec *model.JobSpec) *model.JobResult {
	return fn(ctx, spec)
}

// Scheduler runs a batch of jobs.
type Scheduler interface {
	Schedule(ctx context.Context, jobs []*model.JobSpec) (*Report, error)
}

// Report is what a strategy knows once it returns.
type Report struct {
	// Results holds one result per started job, in submission order.
	Results []*model.JobResult
	// NotStarted names the jobs that were never launched.
	NotStarted []string
}

// EventKind is a job lifecycle transition.
type EventKind string

const (
	EventQueued     EventKind = "queued"
	EventStarted    EventKind = "started"
	EventFinished   EventKind = "finished"
	EventNotStarted EventKind = "not_started"
)

// Event describes one lifecycle transition of a job.
type Event struct {
	Kind     EventKind
	Variable string
	// Result is set for EventFinished.
	Result *model.JobResult
}

// Observer receives job lifecycle events. Pool calls Observe from several
// goroutines at once.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls fn.
func (fn ObserverFunc) Observe(ctx context.Context, e Event) { fn(ctx, e) }

// Observers fans events out to every non-nil observer in order.
type Observers []Observer

// Observe implements Observer.
func (obs Observers) Observe(ctx context.Context, e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ctx, e)
		}
	}
}

func notify(ctx context.Context, o Observer, e Event) {
	if o != nil {
		o.Observe(context.WithoutCancel(ctx), e)
	}
}

// RunError returns the run-wide error of a finished context: the recorded
// cause when it is one of the run sentinels, otherwise the matching
// sentinel for a plain deadline or cancellation. It returns nil while ctx is
// still live.
func RunError(ctx context.Context) error {
	if ctx.Err() == nil {
		return nil
	}
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, model.ErrTimeout), errors.Is(cause, model.ErrInterrupted):
		return cause
	case errors.Is(cause, context.DeadlineExceeded):
		return model.ErrTimeout
	}
	return model.ErrInterrupted
}

// interruptedResult is the result of a job stopped by the run context.
func interruptedResult(ctx context.Context, r *model.JobResult) *model.JobResult {
	if r == nil {
		return r
	}
	if runErr := RunError(ctx); runErr != nil && r.Status == model.StatusFailed && r.Err != nil &&
		!errors.Is(r.Err, model.ErrTimeout) && !errors.Is(r.Err, model.ErrInterrupted) {
		r.Err = fmt.Errorf("%w: %w", runErr, r.Err)
	}
	return r
}
