package scheduler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/scheduler"
)

var errBoom = errors.New("boom")

// recorder collects lifecycle events.
type recorder struct {
	mu     sync.Mutex
	events []scheduler.Event
}

func (r *recorder) Observe(_ context.Context, e scheduler.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds(variable string) []scheduler.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []scheduler.EventKind
	for _, e := range r.events {
		if e.Variable == variable {
			out = append(out, e.Kind)
		}
	}
	return out
}

func specs(names ...string) []*model.JobSpec {
	out := make([]*model.JobSpec, len(names))
	for i, n := range names {
		out[i] = &model.JobSpec{Variable: n}
	}
	return out
}

// failing returns a runner that fails the named variables and succeeds
// otherwise.
func failing(names ...string) scheduler.RunnerFunc {
	return func(_ context.Context, spec *model.JobSpec) *model.JobResult {
		for _, n := range names {
			if spec.Variable == n {
				return model.Failed(spec.Variable, errBoom)
			}
		}
		return model.Succeeded(spec.Variable, "/out/"+spec.Variable+".nc", 1)
	}
}

func variables(rs []*model.JobResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Variable
	}
	return out
}

func TestSerial_FailFast(t *testing.T) {
	// --- Arrange ---
	rec := &recorder{}
	s := &scheduler.Serial{Runner: failing("evspsbl"), Observer: rec}

	// --- Act ---
	report, err := s.Schedule(context.Background(), specs("pr", "evspsbl", "tas", "rlut"))

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, []string{"pr", "evspsbl"}, variables(report.Results))
	assert.Equal(t, []string{"tas", "rlut"}, report.NotStarted)
	assert.Equal(t, []scheduler.EventKind{scheduler.EventQueued, scheduler.EventStarted, scheduler.EventFinished}, rec.kinds("pr"))
	assert.Equal(t, []scheduler.EventKind{scheduler.EventQueued, scheduler.EventNotStarted}, rec.kinds("tas"))
}

func TestSerial_RunsInOrder(t *testing.T) {
	var order []string
	s := &scheduler.Serial{Runner: scheduler.RunnerFunc(func(_ context.Context, spec *model.JobSpec) *model.JobResult {
		order = append(order, spec.Variable)
		return model.Skipped(spec.Variable, "nothing to do")
	})}

	report, err := s.Schedule(context.Background(), specs("c", "a", "b"))

	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)
	assert.Len(t, report.Results, 3)
	assert.Empty(t, report.NotStarted)
}

func TestPool_CollectsAll(t *testing.T) {
	rec := &recorder{}
	p := &scheduler.Pool{Runner: failing("pr"), Workers: 3, Observer: rec}

	report, err := p.Schedule(context.Background(), specs("pr", "evspsbl", "tas"))

	require.NoError(t, err)
	require.Len(t, report.Results, 3)
	assert.Equal(t, []string{"pr", "evspsbl", "tas"}, variables(report.Results), "results keep submission order")
	assert.Equal(t, model.StatusFailed, report.Results[0].Status)
	assert.Equal(t, model.StatusSucceeded, report.Results[1].Status)
	assert.Equal(t, model.StatusSucceeded, report.Results[2].Status)
	assert.Empty(t, report.NotStarted)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	var live, peak atomic.Int32
	runner := scheduler.RunnerFunc(func(_ context.Context, spec *model.JobSpec) *model.JobResult {
		n := live.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		live.Add(-1)
		return model.Succeeded(spec.Variable, "", 0)
	})
	p := &scheduler.Pool{Runner: runner, Workers: 2}

	report, err := p.Schedule(context.Background(), specs("a", "b", "c", "d", "e", "f"))

	require.NoError(t, err)
	assert.Len(t, report.Results, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestPool_Timeout(t *testing.T) {
	// --- Arrange ---
	rec := &recorder{}
	blocking := scheduler.RunnerFunc(func(ctx context.Context, spec *model.JobSpec) *model.JobResult {
		<-ctx.Done()
		return model.Failed(spec.Variable, context.Cause(ctx))
	})
	p := &scheduler.Pool{Runner: blocking, Workers: 1, Observer: rec}
	ctx, cancel := scheduler.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// --- Act ---
	start := time.Now()
	report, err := p.Schedule(ctx, specs("pr", "evspsbl", "tas"))

	// --- Assert ---
	require.ErrorIs(t, err, model.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Err, model.ErrTimeout)
	assert.Equal(t, []string{"evspsbl", "tas"}, report.NotStarted)
	assert.Contains(t, rec.kinds("tas"), scheduler.EventNotStarted)
	assert.NotContains(t, rec.kinds("tas"), scheduler.EventStarted)
}

func TestSerial_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancelCause(context.Background())
	calls := 0
	s := &scheduler.Serial{Runner: scheduler.RunnerFunc(func(_ context.Context, spec *model.JobSpec) *model.JobResult {
		calls++
		cancel(model.ErrInterrupted)
		return model.Succeeded(spec.Variable, "", 1)
	})}

	report, err := s.Schedule(ctx, specs("pr", "evspsbl"))

	require.ErrorIs(t, err, model.ErrInterrupted)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"pr"}, variables(report.Results))
	assert.Equal(t, []string{"evspsbl"}, report.NotStarted)
}

func TestResolutionErrorsFailWithoutRunning(t *testing.T) {
	called := false
	runner := scheduler.RunnerFunc(func(_ context.Context, spec *model.JobSpec) *model.JobResult {
		called = true
		return model.Succeeded(spec.Variable, "", 1)
	})
	jobs := []*model.JobSpec{{
		Variable: "pr",
		Err:      &model.MissingInputError{Variable: "pr", Missing: []string{"PRECL"}},
	}}

	report, err := (&scheduler.Pool{Runner: runner, Workers: 2}).Schedule(context.Background(), jobs)

	require.NoError(t, err)
	assert.False(t, called)
	require.Len(t, report.Results, 1)
	var missing *model.MissingInputError
	assert.ErrorAs(t, report.Results[0].Err, &missing)
}

func TestRunError(t *testing.T) {
	live := context.Background()
	assert.NoError(t, scheduler.RunError(live))

	testCases := []struct {
		name string
		ctx  func() context.Context
		want error
	}{
		{"timeout cause", func() context.Context {
			ctx, cancel := context.WithCancelCause(live)
			cancel(model.ErrTimeout)
			return ctx
		}, model.ErrTimeout},
		{"plain deadline", func() context.Context {
			ctx, cancel := context.WithDeadline(live, time.Now().Add(-time.Second))
			t.Cleanup(cancel)
			return ctx
		}, model.ErrTimeout},
		{"plain cancel", func() context.Context {
			ctx, cancel := context.WithCancel(live)
			cancel()
			return ctx
		}, model.ErrInterrupted},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, scheduler.RunError(tc.ctx()), tc.want)
		})
	}
}

func TestOptionsFor(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "custom.json")
	require.NoError(t, os.WriteFile(custom, []byte(`{"contact": "ops@example.org"}`), 0o644))

	opts, err := scheduler.OptionsFor(&model.JobSpec{Variable: "pr", OutputDir: "/out", CustomMetadata: custom})

	require.NoError(t, err)
	assert.Equal(t, model.ModeStandard, opts.Mode)
	assert.Equal(t, "/out", opts.OutputDir)
	assert.Equal(t, map[string]string{"contact": "ops@example.org"}, opts.CustomAttributes)
}
