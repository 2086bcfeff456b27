// Package rawdata reads raw model output stored as NetCDF classic files.
package rawdata

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// File is one open raw input file.
type File struct {
	path string
	f    *os.File
	nc   *cdf.File
}

// Open opens path and parses its NetCDF header.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("rawdata: reading header of %s: %v", path, err)
	}
	return &File{path: path, f: f, nc: nc}, nil
}

// Close releases the underlying file handle.
func (f *File) Close() error {
	return f.f.Close()
}

// Path returns the path the file was opened from.
func (f *File) Path() string { return f.path }

// HasVariable reports whether the header declares variable v.
func (f *File) HasVariable(v string) bool {
	for _, name := range f.nc.Header.Variables() {
		if name == v {
			return true
		}
	}
	return false
}

// Dimensions returns the dimension names of v.
func (f *File) Dimensions(v string) []string {
	return f.nc.Header.Dimensions(v)
}

// Shape returns the dimension lengths of v. The record dimension reports the
// number of records in the file.
func (f *File) Shape(v string) []int {
	return f.nc.Header.Lengths(v)
}

// Attribute returns attribute a of variable v as a string. Use v == "" for
// global attributes. Numeric attributes are formatted; missing ones are "".
func (f *File) Attribute(v, a string) string {
	return attrString(f.nc.Header.GetAttribute(v, a))
}

// FloatAttribute returns the first element of a numeric attribute.
func (f *File) FloatAttribute(v, a string) (float64, bool) {
	switch val := f.nc.Header.GetAttribute(v, a).(type) {
	case []float32:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	case []float64:
		if len(val) > 0 {
			return val[0], true
		}
	case []int32:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	case []int16:
		if len(val) > 0 {
			return float64(val[0]), true
		}
	case string:
		if x, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return x, true
		}
	}
	return 0, false
}

// Read reads the whole of variable v as a dense array shaped like v.
func (f *File) Read(v string) (*sparse.DenseArray, error) {
	dims := f.Shape(v)
	if len(dims) == 0 {
		return nil, fmt.Errorf("rawdata: %s: missing variable %s", f.path, v)
	}
	vals, err := f.ReadFloats(v)
	if err != nil {
		return nil, err
	}
	out := sparse.ZerosDense(dims...)
	copy(out.Elements, vals)
	return out, nil
}

// ReadFloats reads the whole of variable v, flattened in row-major order.
func (f *File) ReadFloats(v string) ([]float64, error) {
	if !f.HasVariable(v) {
		return nil, fmt.Errorf("rawdata: %s: missing variable %s", f.path, v)
	}
	r := f.nc.Reader(v, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("rawdata: %s: reading %s: %v", f.path, v, err)
	}
	return toFloat64(buf)
}

// Coordinate reads a one-dimensional coordinate and its cell bounds. Bounds
// come from the variable named by the "bounds" attribute, then from
// "<name>_bnds", and are otherwise derived from midpoints between centers.
func (f *File) Coordinate(name string) ([]float64, [][2]float64, error) {
	values, err := f.ReadFloats(name)
	if err != nil {
		return nil, nil, err
	}
	bndsName := f.Attribute(name, "bounds")
	if bndsName == "" || !f.HasVariable(bndsName) {
		bndsName = name + "_bnds"
	}
	if f.HasVariable(bndsName) {
		raw, err := f.ReadFloats(bndsName)
		if err != nil {
			return nil, nil, err
		}
		bounds, err := pairs(raw, len(values))
		if err != nil {
			return nil, nil, fmt.Errorf("rawdata: %s: %s: %w", f.path, bndsName, err)
		}
		return values, bounds, nil
	}
	return values, MidpointBounds(values), nil
}

// MidpointBounds derives cell bounds halfway between neighbouring centers.
func MidpointBounds(centers []float64) [][2]float64 {
	n := len(centers)
	out := make([][2]float64, n)
	if n == 0 {
		return out
	}
	if n == 1 {
		out[0] = [2]float64{centers[0] - 0.5, centers[0] + 0.5}
		return out
	}
	for i := range centers {
		var lo, hi float64
		if i == 0 {
			lo = centers[0] - (centers[1]-centers[0])/2
		} else {
			lo = (centers[i-1] + centers[i]) / 2
		}
		if i == n-1 {
			hi = centers[n-1] + (centers[n-1]-centers[n-2])/2
		} else {
			hi = (centers[i] + centers[i+1]) / 2
		}
		out[i] = [2]float64{lo, hi}
	}
	return out
}

func pairs(raw []float64, n int) ([][2]float64, error) {
	if len(raw) != 2*n {
		return nil, fmt.Errorf("expected %d bound pairs, got %d values", n, len(raw))
	}
	out := make([][2]float64, n)
	for i := range out {
		out[i] = [2]float64{raw[2*i], raw[2*i+1]}
	}
	return out, nil
}

func toFloat64(buf interface{}) ([]float64, error) {
	switch b := buf.(type) {
	case []float64:
		return b, nil
	case []float32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("rawdata: unsupported element type %T", buf)
}

func attrString(v interface{}) string {
	switch a := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimRight(a, "\x00")
	case []float32:
		if len(a) == 1 {
			return strconv.FormatFloat(float64(a[0]), 'g', -1, 32)
		}
	case []float64:
		if len(a) == 1 {
			return strconv.FormatFloat(a[0], 'g', -1, 64)
		}
	case []int32:
		if len(a) == 1 {
			return strconv.Itoa(int(a[0]))
		}
	}
	return fmt.Sprint(v)
}
