package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
)

// SimpleResult is a converted variable held in memory without any archival
// metadata.
type SimpleResult struct {
	Variable   string
	Units      string
	Positive   string
	Axes       []AxisSpec // spatial axes only
	Times      []float64
	TimeBounds [][2]float64
	TimeUnits  string
	Calendar   string
	Data       [][]float64 // one entry per timestep, or a single entry for a fixed field
}

// Timed reports whether the result has a time axis.
func (r *SimpleResult) Timed() bool { return r.Times != nil }

// WriteSimple writes r as a plain NetCDF file at path, replacing any
// existing file. No table, dataset metadata, or session is involved.
func WriteSimple(path string, r *SimpleResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var dims []string
	var lengths []int
	var varDims []string
	if r.Timed() {
		dims, lengths = append(dims, AxisTime), append(lengths, len(r.Times))
		varDims = append(varDims, AxisTime)
	}
	for _, ax := range r.Axes {
		dims, lengths = append(dims, ax.Name), append(lengths, ax.Len())
		varDims = append(varDims, ax.Name)
	}
	if r.Timed() {
		dims, lengths = append(dims, "bnds"), append(lengths, 2)
	}

	h := cdf.NewHeader(dims, lengths)
	h.AddAttribute("", "variable_id", r.Variable)
	if r.Timed() {
		h.AddVariable(AxisTime, []string{AxisTime}, []float64{0})
		h.AddAttribute(AxisTime, "units", r.TimeUnits)
		if r.Calendar != "" {
			h.AddAttribute(AxisTime, "calendar", r.Calendar)
		}
		h.AddVariable("time_bnds", []string{AxisTime, "bnds"}, []float64{0})
	}
	for _, ax := range r.Axes {
		h.AddVariable(ax.Name, []string{ax.Name}, []float64{0})
		h.AddAttribute(ax.Name, "units", ax.Units)
	}
	h.AddVariable(r.Variable, varDims, []float32{0})
	h.AddAttribute(r.Variable, "units", r.Units)
	if r.Positive != "" {
		h.AddAttribute(r.Variable, "positive", r.Positive)
	}
	h.AddAttribute(r.Variable, "_FillValue", []float32{FillValue})
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if r.Timed() {
		if err := write(nc.Writer(AxisTime, nil, nil), r.Times); err != nil {
			return err
		}
		flat := make([]float64, 0, 2*len(r.TimeBounds))
		for _, b := range r.TimeBounds {
			flat = append(flat, b[0], b[1])
		}
		if err := write(nc.Writer("time_bnds", nil, nil), flat); err != nil {
			return err
		}
	}
	for _, ax := range r.Axes {
		if err := write(nc.Writer(ax.Name, nil, nil), ax.Values); err != nil {
			return err
		}
	}
	var all []float64
	for _, step := range r.Data {
		all = append(all, step...)
	}
	if err := write(nc.Writer(r.Variable, nil, nil), toFloat32(all)); err != nil {
		return fmt.Errorf("writing %s: %w", r.Variable, err)
	}
	return f.Close()
}
