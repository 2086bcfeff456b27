// Package mpas provides transforms for MPAS ocean and sea-ice output on
// unstructured meshes: remapping surface fields onto a lat/lon grid,
// area-weighted global means and the total ocean mass.
package mpas

import (
	"github.com/vk/cmipconv/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the transforms with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("mpas_surface_remap", &registry.RegisteredTransform{
		NewArgs: func() any { return new(FieldArgs) },
		New:     NewSurfaceRemap,
	})
	r.RegisterTransform("mpas_global_mean", &registry.RegisteredTransform{
		NewArgs: func() any { return new(FieldArgs) },
		New:     NewGlobalMean,
	})
	r.RegisterTransform("mpas_ocean_mass", &registry.RegisteredTransform{
		NewArgs: func() any { return new(MassArgs) },
		New:     NewOceanMass,
	})
}
