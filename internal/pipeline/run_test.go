package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/rawdata"
	"github.com/vk/cmipconv/internal/session"
	"github.com/vk/cmipconv/internal/testutil"
)

// fakeSession records what a job does with its session.
type fakeSession struct {
	table   string
	axes    []session.AxisSpec
	times   []float64
	fixed   []float64
	closed  bool
	aborted bool
}

func (f *fakeSession) LoadTable(name string) error { f.table = name; return nil }
func (f *fakeSession) DefineAxis(spec session.AxisSpec) (session.AxisID, error) {
	f.axes = append(f.axes, spec)
	return session.AxisID(len(f.axes) - 1), nil
}
func (f *fakeSession) DefineVariable(string, string, []session.AxisID, string) (session.VarID, error) {
	return 0, nil
}
func (f *fakeSession) WriteTimestep(_ session.VarID, _ []float64, t float64, _ [2]float64) error {
	f.times = append(f.times, t)
	return nil
}
func (f *fakeSession) Write(_ session.VarID, data []float64) error { f.fixed = data; return nil }
func (f *fakeSession) Close() (string, error) {
	f.closed = true
	return "/fake/out.nc", nil
}
func (f *fakeSession) Abort() error {
	if !f.closed {
		f.aborted = true
	}
	return nil
}

func useFakeSession(t *testing.T) *fakeSession {
	t.Helper()
	fake := &fakeSession{}
	prev := opener
	opener = func(session.Options) (session.Session, error) { return fake, nil }
	t.Cleanup(func() { opener = prev })
	return fake
}

// prInputs writes PRECC and PRECL for two consecutive years split into one
// file per year, and returns the resulting FileSet.
func prInputs(t *testing.T, dir string) model.FileSet {
	t.Helper()
	fs := model.FileSet{}
	for _, start := range []int{0, 12} {
		paths := testutil.WriteTimeSeries(t, dir, testutil.MonthlyGrid{
			StartMonth: start, Months: 12, NLat: 2, NLon: 3,
			Vars: map[string]testutil.GridFn{
				"PRECC": testutil.Const(1e-8),
				"PRECL": func(k, j, i int) float64 { return float64(k) * 1e-9 },
			},
			Units: map[string]string{"PRECC": "m/s", "PRECL": "m/s"},
		})
		for v, p := range paths {
			fs[v] = append(fs[v], p)
		}
	}
	return fs
}

func sumScale(factor float64) *Transform {
	return &Transform{
		Step: func(_ context.Context, in *Inputs, f *Frame) ([]float64, error) {
			a, b := f.Data["PRECC"], f.Data["PRECL"]
			out := make([]float64, len(a.Elements))
			for i := range out {
				out[i] = (a.Elements[i] + b.Elements[i]) * factor
			}
			return out, nil
		},
	}
}

func standardOptions(t *testing.T, root string) *Options {
	t.Helper()
	tables := filepath.Join(root, "tables")
	testutil.StandardTables(t, tables)
	return &Options{
		Mode:         model.ModeStandard,
		OutputDir:    filepath.Join(root, "out"),
		TablesDir:    tables,
		MetadataPath: testutil.WriteMetadata(t, filepath.Join(root, "user_metadata.json")),
		LogDir:       filepath.Join(root, "logs"),
	}
}

func TestRun_StandardWritesEveryTimestep(t *testing.T) {
	// --- Arrange ---
	root := t.TempDir()
	files := prInputs(t, filepath.Join(root, "in"))
	req := &Request{
		Variable:  "pr",
		Table:     "CMIP6_Amon.json",
		Units:     "kg m-2 s-1",
		Deps:      []string{"PRECC", "PRECL"},
		Files:     files,
		Transform: sumScale(1000),
		Options:   standardOptions(t, root),
	}

	// --- Act ---
	out, err := Run(context.Background(), req)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, 24, out.Timesteps)
	assert.FileExists(t, out.Path)
	assert.FileExists(t, filepath.Join(root, "logs", "pr.log"))

	series, err := rawdata.OpenSeries("pr", []string{out.Path}, nil)
	require.NoError(t, err)
	require.Equal(t, 24, series.Len())
	prev := -1.0
	for k := 0; k < series.Len(); k++ {
		tv, b := series.Time(k)
		assert.Greater(t, tv, prev, "timestep %d", k)
		assert.Equal(t, rawdata.NoLeapMonthBounds(k), b)
		prev = tv

		slice, err := series.Slice(k)
		require.NoError(t, err)
		require.Len(t, slice.Elements, 6)
		want := (1e-8 + float64(k)*1e-9) * 1000
		assert.InDelta(t, want, slice.Elements[0], 1e-9, "timestep %d", k)
	}
}

func TestRun_SimpleMode(t *testing.T) {
	root := t.TempDir()
	req := &Request{
		Variable:  "pr",
		Units:     "kg m-2 s-1",
		Deps:      []string{"PRECC", "PRECL"},
		Files:     prInputs(t, filepath.Join(root, "in")),
		Transform: sumScale(1000),
		Options:   &Options{Mode: model.ModeSimple, OutputDir: filepath.Join(root, "simple")},
	}

	out, err := Run(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "simple", "pr.nc"), out.Path)
	f, err := rawdata.Open(out.Path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []int{24, 2, 3}, f.Shape("pr"))
	assert.Equal(t, "kg m-2 s-1", f.Attribute("pr", "units"))
}

func TestRun_MissingInputsStopBeforeSession(t *testing.T) {
	opened := false
	prev := opener
	opener = func(session.Options) (session.Session, error) { opened = true; return &fakeSession{}, nil }
	t.Cleanup(func() { opener = prev })

	_, err := Run(context.Background(), &Request{
		Variable:  "pr",
		Deps:      []string{"PRECC", "PRECL"},
		Files:     model.FileSet{"PRECC": {"/data/PRECC_000101_000112.nc"}},
		Transform: sumScale(1),
	})

	var missing *model.MissingInputError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"PRECL"}, missing.Missing)
	assert.False(t, opened, "no session may be opened for a job with missing inputs")
}

func TestRun_FailuresReleaseTheSession(t *testing.T) {
	boom := errors.New("boom")
	testCases := []struct {
		name      string
		step      func(context.Context, *Inputs, *Frame) ([]float64, error)
		wantStep  int
		wantWrote int
		wantErr   error
	}{
		{
			name: "transform error",
			step: func(_ context.Context, _ *Inputs, f *Frame) ([]float64, error) {
				if f.Index == 3 {
					return nil, boom
				}
				return make([]float64, 6), nil
			},
			wantStep:  3,
			wantWrote: 3,
			wantErr:   boom,
		},
		{
			name: "wrong output size",
			step: func(context.Context, *Inputs, *Frame) ([]float64, error) {
				return make([]float64, 5), nil
			},
			wantStep:  0,
			wantWrote: 0,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			fake := useFakeSession(t)
			req := &Request{
				Variable:  "pr",
				Table:     "CMIP6_Amon.json",
				Deps:      []string{"PRECC", "PRECL"},
				Files:     prInputs(t, t.TempDir()),
				Transform: &Transform{Step: tc.step},
			}

			// --- Act ---
			_, err := Run(context.Background(), req)

			// --- Assert ---
			var te *model.TransformError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.wantStep, te.Step)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			}
			assert.Len(t, fake.times, tc.wantWrote)
			assert.True(t, fake.aborted)
			assert.False(t, fake.closed)
		})
	}
}

func TestRun_CancelledBetweenTimesteps(t *testing.T) {
	fake := useFakeSession(t)
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	req := &Request{
		Variable: "pr",
		Deps:     []string{"PRECC", "PRECL"},
		Files:    prInputs(t, t.TempDir()),
		Transform: &Transform{Step: func(_ context.Context, _ *Inputs, f *Frame) ([]float64, error) {
			if f.Index == 4 {
				cancel(model.ErrTimeout)
			}
			return make([]float64, 6), nil
		}},
	}

	_, err := Run(ctx, req)

	require.ErrorIs(t, err, model.ErrTimeout)
	assert.Len(t, fake.times, 5)
	assert.True(t, fake.aborted)
}

func TestRun_CancelledInsideTransform(t *testing.T) {
	testCases := []struct {
		name     string
		cause    error
		wantKind string
	}{
		{name: "timeout", cause: model.ErrTimeout, wantKind: model.KindTimeout},
		{name: "interrupt", cause: model.ErrInterrupted, wantKind: model.KindInterrupted},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Arrange ---
			fake := useFakeSession(t)
			ctx, cancel := context.WithCancelCause(context.Background())
			defer cancel(nil)
			req := &Request{
				Variable: "pr",
				Deps:     []string{"PRECC", "PRECL"},
				Files:    prInputs(t, t.TempDir()),
				Transform: &Transform{Step: func(ctx context.Context, _ *Inputs, f *Frame) ([]float64, error) {
					if f.Index == 2 {
						cancel(tc.cause)
						return nil, ctx.Err()
					}
					return make([]float64, 6), nil
				}},
			}

			// --- Act ---
			_, err := Run(ctx, req)

			// --- Assert ---
			require.ErrorIs(t, err, tc.cause)
			var te *model.TransformError
			assert.False(t, errors.As(err, &te), "a cancelled step is not a transform failure")
			assert.Equal(t, tc.wantKind, model.ErrorKind(err))
			assert.Len(t, fake.times, 2)
			assert.True(t, fake.aborted)
		})
	}
}

func TestRun_MisalignedStreams(t *testing.T) {
	useFakeSession(t)
	dir := t.TempDir()
	a := testutil.WriteTimeSeries(t, dir, testutil.MonthlyGrid{Months: 12, NLat: 1, NLon: 1,
		Vars: map[string]testutil.GridFn{"PRECC": testutil.Const(1)}})
	b := testutil.WriteTimeSeries(t, dir, testutil.MonthlyGrid{Months: 6, NLat: 1, NLon: 1,
		Vars: map[string]testutil.GridFn{"PRECL": testutil.Const(1)}})

	_, err := Run(context.Background(), &Request{
		Variable:  "pr",
		Deps:      []string{"PRECC", "PRECL"},
		Files:     model.FileSet{"PRECC": {a["PRECC"]}, "PRECL": {b["PRECL"]}},
		Transform: sumScale(1),
	})

	require.ErrorIs(t, err, model.ErrInvalidFileSet)
}

func TestRun_FixedField(t *testing.T) {
	fake := useFakeSession(t)
	dir := t.TempDir()
	paths := testutil.WriteTimeSeries(t, dir, testutil.MonthlyGrid{Months: 1, NLat: 2, NLon: 2,
		Vars: map[string]testutil.GridFn{"area": testutil.Const(0.5)}})

	out, err := Run(context.Background(), &Request{
		Variable: "areacella",
		Table:    "CMIP6_fx.json",
		Deps:     []string{"area"},
		Files:    model.FileSet{"area": {paths["area"]}},
		Transform: &Transform{Fixed: func(_ context.Context, in *Inputs) ([]float64, error) {
			f, err := in.Open("area")
			if err != nil {
				return nil, err
			}
			defer f.Close()
			vals, err := f.ReadFloats("area")
			if err != nil {
				return nil, err
			}
			return vals[:4], nil
		}},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, out.Timesteps)
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, fake.fixed)
	require.Len(t, fake.axes, 2, "a fixed field has no time axis")
	assert.Equal(t, session.AxisLatitude, fake.axes[0].Name)
	assert.Equal(t, "CMIP6_fx.json", fake.table)
}

func TestTransformValidation(t *testing.T) {
	step := func(context.Context, *Inputs, *Frame) ([]float64, error) { return nil, nil }
	fixed := func(context.Context, *Inputs) ([]float64, error) { return nil, nil }
	testCases := []struct {
		tr      *Transform
		wantErr bool
	}{
		{nil, true},
		{&Transform{}, true},
		{&Transform{Step: step, Fixed: fixed}, true},
		{&Transform{Step: step}, false},
		{&Transform{Fixed: fixed}, false},
	}
	for i, tc := range testCases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			err := tc.tr.validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
