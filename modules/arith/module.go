// Package arith provides point-wise transforms over regular-grid inputs:
// copying, scaling, summing, differencing and scaled addition of raw fields.
package arith

import (
	"github.com/vk/cmipconv/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the transforms with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("identity", &registry.RegisteredTransform{
		New: NewIdentity,
	})
	r.RegisterTransform("scale", &registry.RegisteredTransform{
		NewArgs: func() any { return new(ScaleArgs) },
		New:     NewScale,
	})
	r.RegisterTransform("sum_scale", &registry.RegisteredTransform{
		NewArgs: func() any { return new(SumScaleArgs) },
		New:     NewSumScale,
	})
	r.RegisterTransform("difference", &registry.RegisteredTransform{
		NewArgs: func() any { return new(DifferenceArgs) },
		New:     NewDifference,
	})
	r.RegisterTransform("add_scaled", &registry.RegisteredTransform{
		NewArgs: func() any { return new(AddScaledArgs) },
		New:     NewAddScaled,
	})
}
