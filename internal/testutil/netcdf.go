package testutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/rawdata"
)

// NCVar is one variable of a fabricated NetCDF file.
type NCVar struct {
	Name  string
	Dims  []string
	Data  []float64
	Attrs map[string]string
}

// NetCDF describes a small NetCDF classic file for tests. All dimensions are
// fixed-length.
type NetCDF struct {
	Dims    []string
	Lengths []int
	Vars    []NCVar
	Global  map[string]string
}

// WriteNetCDF writes nc to path, creating parent directories.
func WriteNetCDF(t testing.TB, path string, nc NetCDF) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	h := cdf.NewHeader(nc.Dims, nc.Lengths)
	for _, k := range sortedKeys(nc.Global) {
		h.AddAttribute("", k, nc.Global[k])
	}
	for _, v := range nc.Vars {
		h.AddVariable(v.Name, v.Dims, []float64{0})
		for _, k := range sortedKeys(v.Attrs) {
			h.AddAttribute(v.Name, k, v.Attrs[k])
		}
	}
	h.Define()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	ff, err := cdf.Create(f, h)
	require.NoError(t, err)
	for _, v := range nc.Vars {
		w := ff.Writer(v.Name, nil, nil)
		n, err := w.Write(v.Data)
		if errors.Is(err, io.EOF) {
			err = nil
		}
		require.NoError(t, err, "writing %s", v.Name)
		require.Equal(t, len(v.Data), n, "writing %s", v.Name)
	}
}

// GridFn returns the value of a field at timestep k, latitude j, longitude i.
type GridFn func(k, j, i int) float64

// Const returns a GridFn with a constant value.
func Const(v float64) GridFn {
	return func(int, int, int) float64 { return v }
}

// MonthlyGrid describes a regular lat/lon monthly time-series file on a
// 365-day calendar, with time counted in days since the simulation start.
type MonthlyGrid struct {
	StartMonth int // zero-based month index of the first record
	Months     int
	NLat, NLon int
	Vars       map[string]GridFn
	Units      map[string]string
}

// Build returns the NetCDF description of g.
func (g MonthlyGrid) Build() NetCDF {
	nc := NetCDF{
		Dims:    []string{"time", "lat", "lon", "nbnd"},
		Lengths: []int{g.Months, g.NLat, g.NLon, 2},
		Global:  map[string]string{"source": "E3SM"},
	}

	times := make([]float64, g.Months)
	tb := make([]float64, 0, 2*g.Months)
	for k := 0; k < g.Months; k++ {
		b := rawdata.NoLeapMonthBounds(g.StartMonth + k)
		times[k] = (b[0] + b[1]) / 2
		tb = append(tb, b[0], b[1])
	}
	lat := make([]float64, g.NLat)
	for j := range lat {
		lat[j] = -90 + (float64(j)+0.5)*180/float64(g.NLat)
	}
	lon := make([]float64, g.NLon)
	for i := range lon {
		lon[i] = (float64(i) + 0.5) * 360 / float64(g.NLon)
	}

	nc.Vars = append(nc.Vars,
		NCVar{Name: "time", Dims: []string{"time"}, Data: times, Attrs: map[string]string{
			"units": "days since 0001-01-01 00:00:00", "calendar": "noleap", "bounds": "time_bnds",
		}},
		NCVar{Name: "time_bnds", Dims: []string{"time", "nbnd"}, Data: tb},
		NCVar{Name: "lat", Dims: []string{"lat"}, Data: lat, Attrs: map[string]string{"units": "degrees_north"}},
		NCVar{Name: "lon", Dims: []string{"lon"}, Data: lon, Attrs: map[string]string{"units": "degrees_east"}},
	)
	for _, name := range sortedKeys(g.Vars) {
		fn := g.Vars[name]
		data := make([]float64, 0, g.Months*g.NLat*g.NLon)
		for k := 0; k < g.Months; k++ {
			for j := 0; j < g.NLat; j++ {
				for i := 0; i < g.NLon; i++ {
					data = append(data, fn(g.StartMonth+k, j, i))
				}
			}
		}
		attrs := map[string]string{}
		if u, ok := g.Units[name]; ok {
			attrs["units"] = u
		}
		nc.Vars = append(nc.Vars, NCVar{Name: name, Dims: []string{"time", "lat", "lon"}, Data: data, Attrs: attrs})
	}
	return nc
}

// TimeSeriesName returns the E3SM single-variable time-series file name for
// variable v covering the zero-based months [start, start+months).
func TimeSeriesName(v string, start, months int) string {
	end := start + months - 1
	return fmt.Sprintf("%s_%04d%02d_%04d%02d.nc", v, start/12+1, start%12+1, end/12+1, end%12+1)
}

// WriteTimeSeries writes one E3SM-style time-series file per variable under
// dir and returns their paths keyed by variable.
func WriteTimeSeries(t testing.TB, dir string, g MonthlyGrid) map[string]string {
	t.Helper()
	out := make(map[string]string, len(g.Vars))
	for _, name := range sortedKeys(g.Vars) {
		single := g
		single.Vars = map[string]GridFn{name: g.Vars[name]}
		path := filepath.Join(dir, TimeSeriesName(name, g.StartMonth, g.Months))
		WriteNetCDF(t, path, single.Build())
		out[name] = path
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
