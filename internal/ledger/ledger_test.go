package ledger_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/ledger"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/scheduler"
)

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "state", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLedger_RecordsJobLifecycle(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	l := openLedger(t)
	runID, err := l.StartRun(ctx, "parallel", 3)
	require.NoError(t, err)
	rec := l.Recorder(runID)

	failed := model.Failed("evspsbl", &model.MissingInputError{Variable: "evspsbl", Missing: []string{"QFLX"}})
	done := model.Succeeded("pr", "/out/pr.nc", 24)
	done.Duration = 1500 * time.Millisecond

	// --- Act ---
	for _, v := range []string{"pr", "evspsbl", "tas"} {
		rec.Observe(ctx, scheduler.Event{Kind: scheduler.EventQueued, Variable: v})
	}
	rec.Observe(ctx, scheduler.Event{Kind: scheduler.EventStarted, Variable: "pr"})
	rec.Observe(ctx, scheduler.Event{Kind: scheduler.EventFinished, Variable: "pr", Result: done})
	rec.Observe(ctx, scheduler.Event{Kind: scheduler.EventStarted, Variable: "evspsbl"})
	rec.Observe(ctx, scheduler.Event{Kind: scheduler.EventFinished, Variable: "evspsbl", Result: failed})
	rec.Observe(ctx, scheduler.Event{Kind: scheduler.EventNotStarted, Variable: "tas"})
	require.NoError(t, l.FinishRun(ctx, runID, 1, model.ErrTimeout))

	// --- Assert ---
	jobs, err := l.Jobs(ctx, runID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	byName := map[string]ledger.Job{}
	for _, j := range jobs {
		byName[j.Variable] = j
	}
	assert.Equal(t, ledger.StateSucceeded, byName["pr"].State)
	assert.Equal(t, "/out/pr.nc", byName["pr"].OutputPath)
	assert.Equal(t, int64(1500), byName["pr"].DurationMS)
	assert.Equal(t, ledger.StateFailed, byName["evspsbl"].State)
	assert.Equal(t, model.KindMissingInput, byName["evspsbl"].ErrorKind)
	assert.Contains(t, byName["evspsbl"].Error, "QFLX")
	assert.Equal(t, ledger.StateNotStarted, byName["tas"].State)

	run, err := l.GetRun(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Handlers)
	require.NotNil(t, run.ExitCode)
	assert.Equal(t, 1, *run.ExitCode)
	require.NotNil(t, run.RunError)
	assert.Contains(t, *run.RunError, "timeout")
	assert.NotNil(t, run.FinishedAt)
}

func TestLedger_Runs(t *testing.T) {
	ctx := context.Background()
	l := openLedger(t)
	first, err := l.StartRun(ctx, "serial", 1)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := l.StartRun(ctx, "parallel", 2)
	require.NoError(t, err)

	runs, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID, "most recent first")
	assert.Equal(t, first, runs[1].ID)
	assert.Nil(t, runs[0].FinishedAt)

	limited, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = l.GetRun(ctx, "no-such-run")
	assert.Error(t, err)
}
