package workerproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/scheduler"
)

// DefaultGrace is how long a child may take to exit after SIGINT.
const DefaultGrace = 10 * time.Second

// WorkerCommand is the hidden subcommand a child is started with.
const WorkerCommand = "worker"

// Runner starts one child process per job.
type Runner struct {
	// Executable defaults to the running binary.
	Executable string
	// Args default to the worker command.
	Args []string
	// Env is appended to the parent's environment.
	Env   []string
	Grace time.Duration
}

var _ scheduler.Runner = (*Runner)(nil)

// Run implements scheduler.Runner.
func (r *Runner) Run(ctx context.Context, spec *model.JobSpec) *model.JobResult {
	ctx, logger := ctxlog.With(ctx, "variable", spec.Variable)

	payload, err := json.Marshal(spec)
	if err != nil {
		return model.Failed(spec.Variable, fmt.Errorf("failed to encode job spec: %w", err))
	}
	exe := r.Executable
	if exe == "" {
		if exe, err = os.Executable(); err != nil {
			return model.Failed(spec.Variable, fmt.Errorf("failed to locate worker binary: %w", err))
		}
	}
	args := r.Args
	if args == nil {
		args = []string{WorkerCommand}
	}

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	stderr := &lineWriter{logger: logger}
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = r.Grace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultGrace
	}
	configure(cmd)

	if err := cmd.Start(); err != nil {
		return model.Failed(spec.Variable, fmt.Errorf("failed to start worker: %w", err))
	}
	pid := cmd.Process.Pid
	stderr.setPID(pid)
	logger.Debug("Worker process started.", "pid", pid)

	waitErr := cmd.Wait()
	stderr.Flush()

	var res model.JobResult
	if stdout.Len() > 0 {
		if err := json.Unmarshal(stdout.Bytes(), &res); err == nil && res.Variable != "" {
			logger.Debug("Worker process finished.", "pid", pid, "status", res.Status)
			return &res
		}
	}
	if runErr := scheduler.RunError(ctx); runErr != nil {
		return model.Failed(spec.Variable, fmt.Errorf("worker %d stopped: %w", pid, runErr))
	}
	if waitErr == nil {
		waitErr = fmt.Errorf("no result on stdout")
	}
	return model.Failed(spec.Variable, fmt.Errorf("worker %d exited without a result: %w", pid, waitErr))
}
