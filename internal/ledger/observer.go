package ledger

import (
	"context"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/scheduler"
)

// Recorder returns an observer that records job lifecycle events of runID.
// Write failures are logged and never affect the run.
func (l *Ledger) Recorder(runID string) scheduler.Observer {
	return scheduler.ObserverFunc(func(ctx context.Context, e scheduler.Event) {
		j := Job{RunID: runID, Variable: e.Variable}
		switch e.Kind {
		case scheduler.EventQueued:
			j.State = StatePending
		case scheduler.EventStarted:
			j.State = StateRunning
		case scheduler.EventNotStarted:
			j.State = StateNotStarted
		case scheduler.EventFinished:
			j.State = resultState(e.Result)
			if r := e.Result; r != nil {
				j.OutputPath = r.OutputPath
				j.DurationMS = r.Duration.Milliseconds()
				if r.Err != nil {
					j.ErrorKind = model.ErrorKind(r.Err)
					j.Error = r.Err.Error()
				} else if r.Reason != "" {
					j.Error = r.Reason
				}
			}
		default:
			return
		}
		if err := l.SetJob(ctx, j); err != nil {
			ctxlog.FromContext(ctx).Warn("Ledger update failed.", "variable", e.Variable, "error", err)
		}
	})
}

func resultState(r *model.JobResult) State {
	if r == nil {
		return StateFailed
	}
	switch r.Status {
	case model.StatusSucceeded:
		return StateSucceeded
	case model.StatusSkipped:
		return StateSkipped
	}
	return StateFailed
}
