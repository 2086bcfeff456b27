package mpas

import (
	"context"
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/pipeline"
	"github.com/vk/cmipconv/internal/rawdata"
	"github.com/vk/cmipconv/internal/session"
	"gonum.org/v1/gonum/stat"
)

// FieldArgs select the field a transform reads.
type FieldArgs struct {
	// Source is the history-file input, MPASO or MPASSI.
	Source string `arg:"source"`
	Field  string `arg:"field"`
	// Level is the vertical level taken from three-dimensional fields.
	Level int `arg:"level"`
}

func (a *FieldArgs) check(name string) error {
	switch {
	case a == nil:
		return fmt.Errorf("%s: no arguments", name)
	case a.Source != model.MPASO && a.Source != model.MPASSI:
		return fmt.Errorf("%s: source must be %s or %s, got %q", name, model.MPASO, model.MPASSI, a.Source)
	case a.Field == "":
		return fmt.Errorf("%s: field is required", name)
	case a.Level < 0:
		return fmt.Errorf("%s: level must not be negative", name)
	}
	return nil
}

func clock(context.Context, *pipeline.Inputs) (rawdata.Clock, error) { return Clock, nil }

// surface extracts level from a (cells, levels) timestep, or returns a
// (cells) timestep as is.
func surface(a *sparse.DenseArray, cells, level int) ([]float64, error) {
	switch len(a.Shape) {
	case 1:
		if a.Shape[0] != cells {
			return nil, fmt.Errorf("field has %d cells, mesh has %d", a.Shape[0], cells)
		}
		return a.Elements, nil
	case 2:
		if a.Shape[0] != cells {
			return nil, fmt.Errorf("field has %d cells, mesh has %d", a.Shape[0], cells)
		}
		levels := a.Shape[1]
		if level >= levels {
			return nil, fmt.Errorf("level %d out of range, field has %d levels", level, levels)
		}
		out := make([]float64, cells)
		for c := range out {
			out[c] = a.Elements[c*levels+level]
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported field shape %v", a.Shape)
}

func readMesh(in *pipeline.Inputs) (*Mesh, error) {
	path := in.Files.First(model.MPASMesh)
	if path == "" {
		return nil, &model.MissingInputError{Variable: in.Variable, Missing: []string{model.MPASMesh}}
	}
	return ReadMesh(path)
}

// NewSurfaceRemap takes one level of an MPAS field, masks land cells, and
// remaps it onto the lat/lon grid of the MPAS_map weights.
func NewSurfaceRemap(args any) (*pipeline.Transform, error) {
	a, _ := args.(*FieldArgs)
	if err := a.check("mpas_surface_remap"); err != nil {
		return nil, err
	}
	var (
		mesh *Mesh
		m    *Map
	)
	return &pipeline.Transform{
		Streams: []pipeline.Stream{{Key: a.Source, Variable: a.Field}},
		Clock:   clock,
		Layout: func(_ context.Context, in *pipeline.Inputs) (*pipeline.Layout, error) {
			var err error
			if mesh, err = readMesh(in); err != nil {
				return nil, err
			}
			path := in.Files.First(model.MPASMap)
			if path == "" {
				return nil, &model.MissingInputError{Variable: in.Variable, Missing: []string{model.MPASMap}}
			}
			if m, err = ReadMap(path); err != nil {
				return nil, err
			}
			return &pipeline.Layout{Axes: m.Axes()}, nil
		},
		Step: func(_ context.Context, _ *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, ok := f.Data[a.Field]
			if !ok {
				return nil, fmt.Errorf("no data for %s", a.Field)
			}
			field, err := surface(x, mesh.Cells(), a.Level)
			if err != nil {
				return nil, err
			}
			return m.Apply(field, mesh.Ocean)
		},
	}, nil
}

// NewGlobalMean takes one level of an MPAS field and averages it over ocean
// cells weighted by cell area. The output has no spatial axes.
func NewGlobalMean(args any) (*pipeline.Transform, error) {
	a, _ := args.(*FieldArgs)
	if err := a.check("mpas_global_mean"); err != nil {
		return nil, err
	}
	var mesh *Mesh
	return &pipeline.Transform{
		Streams: []pipeline.Stream{{Key: a.Source, Variable: a.Field}},
		Clock:   clock,
		Layout: func(_ context.Context, in *pipeline.Inputs) (*pipeline.Layout, error) {
			var err error
			mesh, err = readMesh(in)
			return &pipeline.Layout{}, err
		},
		Step: func(_ context.Context, _ *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, ok := f.Data[a.Field]
			if !ok {
				return nil, fmt.Errorf("no data for %s", a.Field)
			}
			field, err := surface(x, mesh.Cells(), a.Level)
			if err != nil {
				return nil, err
			}
			return []float64{WeightedMean(field, mesh.Area, mesh.Ocean)}, nil
		},
	}, nil
}

// WeightedMean averages the valid, finite entries of x weighted by w. With
// nothing to average it returns the fill value.
func WeightedMean(x, w []float64, valid []bool) float64 {
	var xs, ws []float64
	for i, v := range x {
		if !valid[i] || math.IsNaN(v) || v >= session.FillValue {
			continue
		}
		xs = append(xs, v)
		ws = append(ws, w[i])
	}
	if len(xs) == 0 {
		return session.FillValue
	}
	return stat.Mean(xs, ws)
}

// MassArgs are the arguments of the mpas_ocean_mass transform.
type MassArgs struct {
	// Field is the layer thickness field of the MPASO history files.
	Field string `arg:"field"`
	// Density names the namelist option holding the reference density.
	Density string `arg:"density"`
}

// NewOceanMass integrates density0 * layerThickness * areaCell over every
// active level of every ocean cell. density0 comes from the MPAS-Ocean
// namelist. The output has no spatial axes.
func NewOceanMass(args any) (*pipeline.Transform, error) {
	a, _ := args.(*MassArgs)
	switch {
	case a == nil:
		return nil, fmt.Errorf("mpas_ocean_mass: no arguments")
	case a.Field == "" || a.Density == "":
		return nil, fmt.Errorf("mpas_ocean_mass: field and density are required")
	}
	var (
		mesh    *Mesh
		density float64
	)
	return &pipeline.Transform{
		Streams: []pipeline.Stream{{Key: model.MPASO, Variable: a.Field}},
		Clock:   clock,
		Layout: func(_ context.Context, in *pipeline.Inputs) (*pipeline.Layout, error) {
			var err error
			if mesh, err = readMesh(in); err != nil {
				return nil, err
			}
			path := in.Files.First(model.MPASNamelist)
			if path == "" {
				return nil, &model.MissingInputError{Variable: in.Variable, Missing: []string{model.MPASNamelist}}
			}
			nl, err := ReadNamelist(path)
			if err != nil {
				return nil, err
			}
			if density, err = nl.Float(a.Density); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
			return &pipeline.Layout{}, nil
		},
		Step: func(_ context.Context, _ *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, ok := f.Data[a.Field]
			if !ok {
				return nil, fmt.Errorf("no data for %s", a.Field)
			}
			if len(x.Shape) != 2 || x.Shape[0] != mesh.Cells() {
				return nil, fmt.Errorf("%s has shape %v, expected (%d cells, levels)", a.Field, x.Shape, mesh.Cells())
			}
			levels := x.Shape[1]
			var mass float64
			for c := 0; c < mesh.Cells(); c++ {
				for l := 0; l < levels; l++ {
					h := x.Elements[c*levels+l]
					if !mesh.Active(c, l) || math.IsNaN(h) || h >= session.FillValue {
						continue
					}
					mass += density * h * mesh.Area[c]
				}
			}
			return []float64{mass}, nil
		},
	}, nil
}
