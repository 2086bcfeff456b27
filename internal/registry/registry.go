package registry

import (
	"github.com/vk/cmipconv/internal/config"
)

// Module is the interface that all transform modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// Registry holds the registered transforms and the loaded variable
// definitions for a single application instance.
type Registry struct {
	TransformRegistry  map[string]*RegisteredTransform
	DefinitionRegistry map[string]*config.TransformDefinition
	model              *config.Model
	converter          config.Converter
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		TransformRegistry:  make(map[string]*RegisteredTransform),
		DefinitionRegistry: make(map[string]*config.TransformDefinition),
		model:              config.NewModel(),
	}
}

// PopulateDefinitionsFromModel stores the loaded manifests and the converter
// used to decode their arguments.
func (r *Registry) PopulateDefinitionsFromModel(model *config.Model, converter config.Converter) {
	for key, val := range model.Transforms {
		r.DefinitionRegistry[key] = val
	}
	r.model = model
	r.converter = converter
}

// Variables returns every loaded variable definition in declaration order.
func (r *Registry) Variables() []*config.VariableDefinition {
	return r.model.OrderedVariables()
}
