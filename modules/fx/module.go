// Package fx provides transforms for fixed (time-invariant) fields.
package fx

import (
	"context"
	"fmt"

	"github.com/vk/cmipconv/internal/pipeline"
	"github.com/vk/cmipconv/internal/registry"
	"gonum.org/v1/gonum/floats"
)

// EarthRadius is the sphere radius, in metres, the atmosphere model uses.
const EarthRadius = 6.37122e6

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the transforms with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("cell_area", &registry.RegisteredTransform{
		NewArgs: func() any { return new(CellAreaArgs) },
		New:     NewCellArea,
	})
}

// CellAreaArgs are the arguments of cell_area.
type CellAreaArgs struct {
	Field  string  `arg:"field"`
	Radius float64 `arg:"radius"`
}

// NewCellArea converts cell areas in steradians to square metres on a
// sphere of Radius.
func NewCellArea(args any) (*pipeline.Transform, error) {
	a, ok := args.(*CellAreaArgs)
	if !ok {
		return nil, fmt.Errorf("cell_area: unexpected arguments %T", args)
	}
	if a.Radius <= 0 {
		a.Radius = EarthRadius
	}
	return &pipeline.Transform{
		Fixed: func(_ context.Context, in *pipeline.Inputs) ([]float64, error) {
			f, err := in.Open(in.Lead)
			if err != nil {
				return nil, err
			}
			defer f.Close()
			name := a.Field
			if name == "" {
				name = in.Lead
			}
			area, err := f.ReadFloats(name)
			if err != nil {
				return nil, err
			}
			floats.Scale(a.Radius*a.Radius, area)
			return area, nil
		},
	}, nil
}
