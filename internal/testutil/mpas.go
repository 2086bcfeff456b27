package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/cmipconv/internal/rawdata"
)

// MPASMesh is the unstructured test mesh: three cells, the second of which
// is land (maxLevelCell == 0).
var MPASMesh = struct {
	MaxLevel []float64
	Area     []float64
}{
	MaxLevel: []float64{2, 0, 1},
	Area:     []float64{1, 1, 3},
}

// MPASOcean describes monthly ocean history files on the test mesh.
type MPASOcean struct {
	Months int
	Levels int
	// Temperature returns the value at month k, cell c, level l.
	Temperature func(k, c, l int) float64
	// Thickness returns the layer thickness at month k, cell c, level l.
	// Nil leaves the field out of the history files.
	Thickness func(k, c, l int) float64
	// Density0 is written to an mpaso_in namelist when positive.
	Density0 float64
}

// WriteMPASOcean writes one history file per year plus the mesh, an optional
// namelist and a map onto a 1x2 lat/lon grid under dir. It returns the map
// file path.
func WriteMPASOcean(t testing.TB, dir string, o MPASOcean) string {
	t.Helper()
	const cells = 3
	for start := 0; start < o.Months; start += 12 {
		n := min(12, o.Months-start)
		days := make([]float64, n)
		temp := make([]float64, 0, n*cells*o.Levels)
		var thick []float64
		for k := 0; k < n; k++ {
			b := rawdata.NoLeapMonthBounds(start + k)
			days[k] = (b[0] + b[1]) / 2
			for c := 0; c < cells; c++ {
				for l := 0; l < o.Levels; l++ {
					temp = append(temp, o.Temperature(start+k, c, l))
					if o.Thickness != nil {
						thick = append(thick, o.Thickness(start+k, c, l))
					}
				}
			}
		}
		vars := []NCVar{
			{Name: "timeMonthly_avg_daysSinceStartOfSim", Dims: []string{"Time"}, Data: days},
			{Name: "timeMonthly_avg_activeTracers_temperature", Dims: []string{"Time", "nCells", "nVertLevels"}, Data: temp},
		}
		if o.Thickness != nil {
			vars = append(vars, NCVar{Name: "timeMonthly_avg_layerThickness", Dims: []string{"Time", "nCells", "nVertLevels"}, Data: thick})
		}
		name := fmt.Sprintf("mpaso.hist.am.timeSeriesStatsMonthly.%04d-01-01.nc", start/12+1)
		WriteNetCDF(t, filepath.Join(dir, name), NetCDF{
			Dims:    []string{"Time", "nCells", "nVertLevels"},
			Lengths: []int{n, cells, o.Levels},
			Global:  map[string]string{"config_start_time": "0001-01-01_00:00:00"},
			Vars:    vars,
		})
	}
	if o.Density0 > 0 {
		nl := fmt.Sprintf("&ocean_constants\n    config_density0 = %g\n/\n", o.Density0)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "mpaso_in"), []byte(nl), 0o644))
	}
	WriteNetCDF(t, filepath.Join(dir, "mpaso.rst.0002-01-01_00000.nc"), NetCDF{
		Dims:    []string{"nCells"},
		Lengths: []int{cells},
		Vars: []NCVar{
			{Name: "maxLevelCell", Dims: []string{"nCells"}, Data: MPASMesh.MaxLevel},
			{Name: "areaCell", Dims: []string{"nCells"}, Data: MPASMesh.Area},
		},
	})
	return WriteMPASMap(t, filepath.Join(dir, "map_test_to_1x2.nc"))
}

// WriteMPASMap writes a remapping file from the test mesh onto one latitude
// and two longitudes: the first destination cell takes cell 0, the second
// averages cells 1 and 2.
func WriteMPASMap(t testing.TB, path string) string {
	t.Helper()
	WriteNetCDF(t, path, NetCDF{
		Dims:    []string{"n_s", "n_b", "dst_grid_rank"},
		Lengths: []int{3, 2, 2},
		Vars: []NCVar{
			{Name: "row", Dims: []string{"n_s"}, Data: []float64{1, 2, 2}},
			{Name: "col", Dims: []string{"n_s"}, Data: []float64{1, 2, 3}},
			{Name: "S", Dims: []string{"n_s"}, Data: []float64{1, 0.5, 0.5}},
			{Name: "yc_b", Dims: []string{"n_b"}, Data: []float64{0, 0}},
			{Name: "xc_b", Dims: []string{"n_b"}, Data: []float64{90, 270}},
			{Name: "dst_grid_dims", Dims: []string{"dst_grid_rank"}, Data: []float64{2, 1}},
		},
	})
	return path
}
