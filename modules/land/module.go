// Package land provides transforms for land-model soil columns.
package land

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/cmipconv/internal/pipeline"
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/internal/session"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the transforms with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("vertical_sum_capped", &registry.RegisteredTransform{
		NewArgs: func() any { return new(VerticalSumArgs) },
		New:     NewVerticalSum,
	})
}

// VerticalSumArgs are the arguments of vertical_sum_capped.
type VerticalSumArgs struct {
	Cap float64 `arg:"cap"`
}

// NewVerticalSum sums a (level, lat, lon) field over its levels and caps
// columns holding any positive value at Cap. Columns that sum to NaN are
// written as fill values.
func NewVerticalSum(args any) (*pipeline.Transform, error) {
	a, ok := args.(*VerticalSumArgs)
	if !ok {
		return nil, fmt.Errorf("vertical_sum_capped: unexpected arguments %T", args)
	}
	if a.Cap <= 0 {
		return nil, fmt.Errorf("vertical_sum_capped: cap must be positive, got %v", a.Cap)
	}
	return &pipeline.Transform{
		Step: func(_ context.Context, in *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, ok := f.Data[in.Lead]
			if !ok {
				return nil, fmt.Errorf("no data for %s", in.Lead)
			}
			if len(x.Shape) < 2 {
				return nil, fmt.Errorf("%s has shape %v, expected a level dimension", in.Lead, x.Shape)
			}
			return SumColumns(x.Elements, x.Shape[0], a.Cap), nil
		},
	}, nil
}

// SumColumns sums levels stacked as [level][cell] and caps every column
// with a positive entry at limit.
func SumColumns(values []float64, levels int, limit float64) []float64 {
	cells := len(values) / levels
	out := make([]float64, cells)
	positive := make([]bool, cells)
	for l := 0; l < levels; l++ {
		row := values[l*cells : (l+1)*cells]
		for c, v := range row {
			out[c] += v
			if v > 0 {
				positive[c] = true
			}
		}
	}
	for c, v := range out {
		switch {
		case math.IsNaN(v):
			out[c] = session.FillValue
		case positive[c] && v > limit:
			out[c] = limit
		}
	}
	return out
}
