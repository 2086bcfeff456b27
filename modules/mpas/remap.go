package mpas

import (
	"fmt"
	"math"

	"github.com/vk/cmipconv/internal/rawdata"
	"github.com/vk/cmipconv/internal/session"
)

// Map is a sparse remapping matrix from mesh cells onto a regular lat/lon
// grid, read from a SCRIP-style weights file.
type Map struct {
	rows, cols []int
	weights    []float64

	Lat, Lon []float64
}

// ReadMap reads the weights (row, col, S) and the destination grid
// (yc_b, xc_b, dst_grid_dims) of a weights file. Indices in the file are
// one-based.
func ReadMap(path string) (*Map, error) {
	f, err := rawdata.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	read := func(v string) []float64 {
		if err != nil {
			return nil
		}
		var out []float64
		out, err = f.ReadFloats(v)
		return out
	}
	row, col, s := read("row"), read("col"), read("S")
	yc, xc, dims := read("yc_b"), read("xc_b"), read("dst_grid_dims")
	if err != nil {
		return nil, fmt.Errorf("weights file %s: %w", path, err)
	}
	if len(row) != len(s) || len(col) != len(s) {
		return nil, fmt.Errorf("weights file %s: row, col and S differ in length", path)
	}
	if len(dims) != 2 {
		return nil, fmt.Errorf("weights file %s: destination grid is not two-dimensional", path)
	}
	nlon, nlat := int(dims[0]), int(dims[1])
	if nlon*nlat != len(yc) || len(yc) != len(xc) {
		return nil, fmt.Errorf("weights file %s: destination grid %dx%d does not match %d cell centers", path, nlat, nlon, len(yc))
	}

	m := &Map{
		rows:    make([]int, len(s)),
		cols:    make([]int, len(s)),
		weights: s,
		Lat:     make([]float64, nlat),
		Lon:     make([]float64, nlon),
	}
	for k := range s {
		m.rows[k], m.cols[k] = int(row[k])-1, int(col[k])-1
		if m.rows[k] < 0 || m.rows[k] >= len(yc) {
			return nil, fmt.Errorf("weights file %s: row %d out of range", path, m.rows[k]+1)
		}
	}
	for j := range m.Lat {
		m.Lat[j] = yc[j*nlon]
	}
	copy(m.Lon, xc[:nlon])
	return m, nil
}

// Axes returns the latitude and longitude axes of the destination grid.
func (m *Map) Axes() []session.AxisSpec {
	return []session.AxisSpec{
		{Name: session.AxisLatitude, Units: "degrees_north", Values: m.Lat, Bounds: rawdata.MidpointBounds(m.Lat)},
		{Name: session.AxisLongitude, Units: "degrees_east", Values: m.Lon, Bounds: rawdata.MidpointBounds(m.Lon)},
	}
}

// Apply remaps src. Cells that are not valid, NaN, or fill contribute
// nothing, and each destination cell is renormalized by the weight that did
// contribute. Destination cells with no contribution get the fill value.
func (m *Map) Apply(src []float64, valid []bool) ([]float64, error) {
	n := len(m.Lat) * len(m.Lon)
	out := make([]float64, n)
	wsum := make([]float64, n)
	for k, w := range m.weights {
		c := m.cols[k]
		if c < 0 || c >= len(src) {
			return nil, fmt.Errorf("weights reference cell %d, field has %d", c+1, len(src))
		}
		v := src[c]
		if (valid != nil && !valid[c]) || math.IsNaN(v) || v >= session.FillValue {
			continue
		}
		r := m.rows[k]
		out[r] += w * v
		wsum[r] += w
	}
	for i := range out {
		if wsum[i] > 0 {
			out[i] /= wsum[i]
		} else {
			out[i] = session.FillValue
		}
	}
	return out, nil
}
