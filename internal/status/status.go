// Package status reduces the job results of a run to one run-wide outcome.
package status

import (
	"errors"
	"fmt"
	"io"

	"github.com/vk/cmipconv/internal/model"
)

// Exit codes of a conversion run.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// RunStatus is the run-wide outcome.
type RunStatus struct {
	Handlers   int
	Succeeded  []string
	Skipped    []string
	Failed     []string
	NotStarted []string
	// Errors maps each failed variable to its error.
	Errors map[string]error
	// RunErr is the run-wide error: a timeout, an interrupt, or
	// model.ErrNoHandlers.
	RunErr error
}

// Aggregate computes the run status from the number of matched handlers,
// the results of every started job, the names of jobs that never started,
// and the run-wide error.
func Aggregate(handlers int, results []*model.JobResult, notStarted []string, runErr error) *RunStatus {
	s := &RunStatus{
		Handlers:   handlers,
		NotStarted: notStarted,
		Errors:     make(map[string]error),
		RunErr:     runErr,
	}
	if handlers == 0 && runErr == nil {
		s.RunErr = model.ErrNoHandlers
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		switch r.Status {
		case model.StatusSucceeded:
			s.Succeeded = append(s.Succeeded, r.Variable)
		case model.StatusSkipped:
			s.Skipped = append(s.Skipped, r.Variable)
		default:
			s.Failed = append(s.Failed, r.Variable)
			s.Errors[r.Variable] = r.Err
		}
	}
	return s
}

// OK reports whether every job that ran succeeded or was skipped and the
// run itself neither timed out, was interrupted, nor matched nothing.
func (s *RunStatus) OK() bool {
	return s.RunErr == nil && len(s.Failed) == 0
}

// ExitCode is the process exit status for s.
func (s *RunStatus) ExitCode() int {
	if s.OK() {
		return ExitOK
	}
	return ExitFailure
}

// Err summarizes why the run failed, or returns nil.
func (s *RunStatus) Err() error {
	if s.OK() {
		return nil
	}
	if s.RunErr != nil && len(s.Failed) == 0 {
		return s.RunErr
	}
	failed := fmt.Errorf("%d of %d handlers failed: %v", len(s.Failed), s.Handlers, s.Failed)
	if s.RunErr != nil {
		return errors.Join(s.RunErr, failed)
	}
	return failed
}

// Summary writes the console summary of the run.
func (s *RunStatus) Summary(w io.Writer) {
	if errors.Is(s.RunErr, model.ErrNoHandlers) {
		fmt.Fprintln(w, "❌ No handlers matched the requested variables.")
		return
	}
	fmt.Fprintf(w, "%d handlers: %d succeeded, %d skipped, %d failed, %d not started\n",
		s.Handlers, len(s.Succeeded), len(s.Skipped), len(s.Failed), len(s.NotStarted))
	if len(s.Failed) > 0 {
		fmt.Fprintln(w, "❌ Failed variables:")
		for _, name := range s.Failed {
			if err := s.Errors[name]; err != nil {
				fmt.Fprintf(w, "    %s: %v\n", name, err)
			} else {
				fmt.Fprintf(w, "    %s\n", name)
			}
		}
	}
	if len(s.NotStarted) > 0 {
		fmt.Fprintln(w, "⏸️ Not started:")
		for _, name := range s.NotStarted {
			fmt.Fprintf(w, "    %s\n", name)
		}
	}
	switch {
	case errors.Is(s.RunErr, model.ErrTimeout):
		fmt.Fprintln(w, "⏱️ Run stopped: timeout reached.")
	case errors.Is(s.RunErr, model.ErrInterrupted):
		fmt.Fprintln(w, "🛑 Run stopped: interrupted.")
	case s.OK():
		fmt.Fprintln(w, "✅ All handlers completed successfully.")
	}
}
