package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/rawdata"
	"github.com/vk/cmipconv/internal/session"
	"github.com/vk/cmipconv/internal/testutil"
)

type env struct {
	tables, out, meta, logs string
}

func newEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	e := env{
		tables: filepath.Join(root, "tables"),
		out:    filepath.Join(root, "out"),
		meta:   filepath.Join(root, "user_metadata.json"),
		logs:   filepath.Join(root, "logs"),
	}
	testutil.StandardTables(t, e.tables)
	testutil.WriteMetadata(t, e.meta)
	return e
}

func (e env) open(t *testing.T, policy session.FilePolicy) *session.Archive {
	t.Helper()
	a, err := session.Open(session.Options{
		TablesDir:    e.tables,
		LogPath:      filepath.Join(e.logs, "pr.log"),
		MetadataPath: e.meta,
		OutputDir:    e.out,
		Policy:       policy,
		Attributes:   map[string]string{"contact": "ops@example.org"},
	})
	require.NoError(t, err)
	return a
}

// writePr converts a tiny three-step field and returns the output path along
// with the first error any session call reports.
func writePr(t *testing.T, e env, policy session.FilePolicy) (string, error) {
	t.Helper()
	a := e.open(t, policy)
	defer a.Abort()

	if err := a.LoadTable("CMIP6_Amon.json"); err != nil {
		return "", err
	}
	timeAx, err := a.DefineAxis(session.AxisSpec{Name: session.AxisTime, Units: "days since 0001-01-01", Calendar: "noleap", Length: 3})
	if err != nil {
		return "", err
	}
	latAx, err := a.DefineAxis(session.AxisSpec{Name: session.AxisLatitude, Units: "degrees_north", Values: []float64{-45, 45}, Bounds: [][2]float64{{-90, 0}, {0, 90}}})
	if err != nil {
		return "", err
	}
	lonAx, err := a.DefineAxis(session.AxisSpec{Name: session.AxisLongitude, Units: "degrees_east", Values: []float64{90, 270}})
	if err != nil {
		return "", err
	}
	v, err := a.DefineVariable("pr", "kg m-2 s-1", []session.AxisID{timeAx, latAx, lonAx}, "")
	if err != nil {
		return "", err
	}

	for k := 0; k < 3; k++ {
		b := rawdata.NoLeapMonthBounds(k)
		if err := a.WriteTimestep(v, []float64{1, 2, 3, float64(k)}, (b[0]+b[1])/2, b); err != nil {
			return "", err
		}
	}
	return a.Close()
}

func TestArchive_WritesReadableOutput(t *testing.T) {
	// --- Arrange ---
	e := newEnv(t)

	// --- Act ---
	path, err := writePr(t, e, session.Replace)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(e.out, "CMIP6", "CMIP", "E3SM-Project", "E3SM-1-0", "piControl",
		"r1i1p1f1", "Amon", "pr", "gr", "pr_Amon_E3SM-1-0_piControl_r1i1p1f1_gr.nc"), path)

	f, err := rawdata.Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []int{3, 2, 2}, f.Shape("pr"))
	assert.Equal(t, "kg m-2 s-1", f.Attribute("pr", "units"))
	assert.Equal(t, "Amon", f.Attribute("", "table_id"))
	assert.Equal(t, "ops@example.org", f.Attribute("", "contact"))
	assert.Equal(t, "piControl", f.Attribute("", "experiment_id"))

	data, err := f.ReadFloats("pr")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 0, 1, 2, 3, 1, 1, 2, 3, 2}, data)

	logData, err := os.ReadFile(filepath.Join(e.logs, "pr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), "session closed")
}

func TestArchive_WritesEveryTimestepAndBound(t *testing.T) {
	// --- Arrange ---
	e := newEnv(t)
	path, err := writePr(t, e, session.Replace)
	require.NoError(t, err)
	f, err := rawdata.Open(path)
	require.NoError(t, err)
	defer f.Close()

	testCases := []struct {
		name       string
		coordinate string
		wantValues []float64
		wantBounds [][2]float64
	}{
		{
			name:       "time",
			coordinate: session.AxisTime,
			wantValues: []float64{15.5, 45, 74.5},
			wantBounds: [][2]float64{{0, 31}, {31, 59}, {59, 90}},
		},
		{
			name:       "latitude",
			coordinate: session.AxisLatitude,
			wantValues: []float64{-45, 45},
			wantBounds: [][2]float64{{-90, 0}, {0, 90}},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// --- Act ---
			values, bounds, err := f.Coordinate(tc.coordinate)

			// --- Assert ---
			require.NoError(t, err)
			assert.Equal(t, tc.wantValues, values)
			assert.Equal(t, tc.wantBounds, bounds)
		})
	}
}

func TestArchive_ReplaceIsIdempotent(t *testing.T) {
	e := newEnv(t)

	first, err := writePr(t, e, session.Replace)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(first)
	require.NoError(t, err)

	second, err := writePr(t, e, session.Replace)
	require.NoError(t, err)
	secondBytes, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstBytes, secondBytes, "re-running must produce byte-identical output")
}

func TestArchive_PreserveRefusesOverwrite(t *testing.T) {
	e := newEnv(t)
	_, err := writePr(t, e, session.Replace)
	require.NoError(t, err)

	path, err := writePr(t, e, session.Preserve)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	assert.Empty(t, path)
}

func TestArchive_OneSessionPerProcess(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, session.Replace)

	_, err := session.Open(session.Options{MetadataPath: e.meta})
	assert.ErrorIs(t, err, session.ErrSessionActive)

	require.NoError(t, a.Abort())
	b := e.open(t, session.Replace)
	require.NoError(t, b.Abort())
}

func TestArchive_TableAndVariableValidation(t *testing.T) {
	testCases := []struct {
		name     string
		table    string
		variable string
		units    string
		positive string
		wantLoad bool
		errLike  string
	}{
		{name: "missing table", table: "CMIP6_Nope.json", wantLoad: true},
		{name: "variable not in table", table: "CMIP6_Amon.json", variable: "tos", units: "degC", wantLoad: true},
		{name: "unit mismatch", table: "CMIP6_Amon.json", variable: "pr", units: "mm/day", errLike: "do not match"},
		{name: "positive required", table: "CMIP6_Amon.json", variable: "rlut", units: "W m-2", errLike: "positive"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			a := e.open(t, session.Replace)
			defer a.Abort()

			err := a.LoadTable(tc.table)
			if err == nil {
				ax, aerr := a.DefineAxis(session.AxisSpec{Name: session.AxisTime, Units: "days since 0001-01-01", Length: 1})
				require.NoError(t, aerr)
				_, err = a.DefineVariable(tc.variable, tc.units, []session.AxisID{ax}, tc.positive)
			}
			require.Error(t, err)
			var tableErr *model.TableLoadError
			assert.Equal(t, tc.wantLoad, errors.As(err, &tableErr))
			if tc.errLike != "" {
				assert.Contains(t, err.Error(), tc.errLike)
			}
		})
	}
}

func TestArchive_RejectsNonIncreasingTime(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, session.Replace)
	defer a.Abort()

	require.NoError(t, a.LoadTable("CMIP6_Amon.json"))
	timeAx, err := a.DefineAxis(session.AxisSpec{Name: session.AxisTime, Units: "days since 0001-01-01", Length: 2})
	require.NoError(t, err)
	latAx, err := a.DefineAxis(session.AxisSpec{Name: session.AxisLatitude, Units: "degrees_north", Values: []float64{0}})
	require.NoError(t, err)
	v, err := a.DefineVariable("pr", "kg m-2 s-1", []session.AxisID{timeAx, latAx}, "")
	require.NoError(t, err)

	require.NoError(t, a.WriteTimestep(v, []float64{1}, 15, [2]float64{0, 31}))
	err = a.WriteTimestep(v, []float64{1}, 15, [2]float64{0, 31})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not follow")

	err = a.WriteTimestep(v, []float64{1, 2}, 45, [2]float64{31, 59})
	assert.Contains(t, err.Error(), "expected 1")
}

func TestArchive_AbortLeavesNoArtifact(t *testing.T) {
	e := newEnv(t)
	a := e.open(t, session.Replace)

	require.NoError(t, a.LoadTable("CMIP6_Amon.json"))
	timeAx, _ := a.DefineAxis(session.AxisSpec{Name: session.AxisTime, Units: "days since 0001-01-01", Length: 2})
	latAx, _ := a.DefineAxis(session.AxisSpec{Name: session.AxisLatitude, Units: "degrees_north", Values: []float64{0}})
	v, err := a.DefineVariable("pr", "kg m-2 s-1", []session.AxisID{timeAx, latAx}, "")
	require.NoError(t, err)
	require.NoError(t, a.WriteTimestep(v, []float64{1}, 15, [2]float64{0, 31}))

	require.NoError(t, a.Abort())
	_, err = a.Close()
	assert.ErrorIs(t, err, session.ErrClosed)

	var files []string
	filepath.WalkDir(e.out, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	assert.Empty(t, files)
}

func TestWriteSimple(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tas.nc")
	err := session.WriteSimple(path, &session.SimpleResult{
		Variable:   "tas",
		Units:      "K",
		Axes:       []session.AxisSpec{{Name: session.AxisLatitude, Units: "degrees_north", Values: []float64{-45, 45}}},
		Times:      []float64{15.5, 45},
		TimeBounds: [][2]float64{{0, 31}, {31, 59}},
		TimeUnits:  "days since 0001-01-01",
		Data:       [][]float64{{280, 290}, {281, 291}},
	})
	require.NoError(t, err)

	f, err := rawdata.Open(path)
	require.NoError(t, err)
	defer f.Close()
	data, err := f.ReadFloats("tas")
	require.NoError(t, err)
	assert.Equal(t, []float64{280, 290, 281, 291}, data)
	assert.Equal(t, "", f.Attribute("", "experiment_id"))
}
