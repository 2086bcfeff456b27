package workerproc_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/scheduler"
	"github.com/vk/cmipconv/internal/testutil"
	"github.com/vk/cmipconv/internal/workerproc"
)

const helperEnv = "CMIPCONV_TEST_WORKER"

// TestHelperWorker is not a real test. It is the child process started by
// the tests below.
func TestHelperWorker(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		t.Skip("helper process")
	}
	ctx, stop := scheduler.WithInterrupt(context.Background())
	defer stop()

	runner := scheduler.RunnerFunc(func(ctx context.Context, spec *model.JobSpec) *model.JobResult {
		switch spec.Variable {
		case "pr":
			fmt.Fprintln(os.Stderr, "converting pr")
			return model.Succeeded(spec.Variable, spec.OutputDir+"/pr.nc", 24)
		case "missing":
			return model.Failed(spec.Variable, &model.MissingInputError{Variable: spec.Variable, Missing: spec.Files.Keys()})
		case "hang":
			<-ctx.Done()
			return model.Failed(spec.Variable, context.Cause(ctx))
		case "crash":
			fmt.Fprint(os.Stderr, "fatal: out of memory")
			os.Exit(3)
		}
		return model.Failed(spec.Variable, fmt.Errorf("unexpected variable"))
	})
	if err := workerproc.Serve(ctx, os.Stdin, os.Stdout, runner); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(0)
}

func helperRunner() *workerproc.Runner {
	return &workerproc.Runner{
		Executable: os.Args[0],
		Args:       []string{"-test.run=^TestHelperWorker$"},
		Env:        []string{helperEnv + "=1"},
		Grace:      2 * time.Second,
	}
}

func logContext() (context.Context, *testutil.SafeBuffer) {
	buf := &testutil.SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return ctxlog.WithLogger(context.Background(), logger), buf
}

func TestRunner_Succeeds(t *testing.T) {
	// --- Arrange ---
	ctx, logs := logContext()

	// --- Act ---
	res := helperRunner().Run(ctx, &model.JobSpec{Variable: "pr", OutputDir: "/out"})

	// --- Assert ---
	require.Equal(t, model.StatusSucceeded, res.Status, "error: %v", res.Err)
	assert.Equal(t, "/out/pr.nc", res.OutputPath)
	assert.Equal(t, 24, res.Timesteps)
	assert.Contains(t, logs.String(), "worker: converting pr")
	assert.Contains(t, logs.String(), "variable=pr")
}

func TestRunner_ErrorsKeepTheirType(t *testing.T) {
	ctx, _ := logContext()
	spec := &model.JobSpec{Variable: "missing", Files: model.FileSet{"PRECC": {"/in/a.nc"}}}

	res := helperRunner().Run(ctx, spec)

	require.Equal(t, model.StatusFailed, res.Status)
	var missing *model.MissingInputError
	require.ErrorAs(t, res.Err, &missing)
	assert.Equal(t, []string{"PRECC"}, missing.Missing)
}

func TestRunner_CrashedWorker(t *testing.T) {
	ctx, logs := logContext()

	res := helperRunner().Run(ctx, &model.JobSpec{Variable: "crash"})

	require.Equal(t, model.StatusFailed, res.Status)
	assert.Contains(t, res.Err.Error(), "exited without a result")
	assert.Contains(t, logs.String(), "fatal: out of memory", "partial stderr lines are flushed")
}

func TestRunner_TimeoutInterruptsWorker(t *testing.T) {
	ctx, _ := logContext()
	ctx, cancel := scheduler.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := helperRunner().Run(ctx, &model.JobSpec{Variable: "hang"})

	require.Equal(t, model.StatusFailed, res.Status)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.True(t,
		strings.Contains(res.Err.Error(), "interrupted") || strings.Contains(res.Err.Error(), "timeout"),
		"unexpected error: %v", res.Err)
}

func TestServe_RejectsBadInput(t *testing.T) {
	runner := scheduler.RunnerFunc(func(context.Context, *model.JobSpec) *model.JobResult { return nil })

	var out bytes.Buffer
	assert.Error(t, workerproc.Serve(context.Background(), strings.NewReader("not json"), &out, runner))
	assert.Error(t, workerproc.Serve(context.Background(), strings.NewReader(`{}`), &out, runner))
	assert.Empty(t, out.String())
}

func TestServe_NilResultBecomesFailure(t *testing.T) {
	runner := scheduler.RunnerFunc(func(context.Context, *model.JobSpec) *model.JobResult { return nil })
	var out bytes.Buffer

	require.NoError(t, workerproc.Serve(context.Background(), strings.NewReader(`{"variable":"pr"}`), &out, runner))

	assert.Contains(t, out.String(), `"status":"failed"`)
}
