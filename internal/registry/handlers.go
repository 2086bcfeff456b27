package registry

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/vk/cmipconv/internal/pipeline"
)

// RegisteredTransform holds the compiled Go parts of a transform.
type RegisteredTransform struct {
	// NewArgs returns a pointer to a fresh argument struct whose fields carry
	// `arg` tags. Nil when the transform takes no arguments.
	NewArgs func() any
	// New builds the per-job transform from decoded arguments.
	New func(args any) (*pipeline.Transform, error)
}

// argsType returns the struct type behind NewArgs, or nil.
func (t *RegisteredTransform) argsType() reflect.Type {
	if t.NewArgs == nil {
		return nil
	}
	rt := reflect.TypeOf(t.NewArgs())
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	return rt
}

// RegisterTransform registers the Go implementation of a transform.
func (r *Registry) RegisterTransform(name string, t *RegisteredTransform) {
	if _, exists := r.TransformRegistry[name]; exists {
		panic(fmt.Sprintf("transform with name '%s' already registered", name))
	}
	if t.New == nil {
		panic(fmt.Sprintf("transform '%s' has no constructor", name))
	}
	slog.Debug("Registering transform.", "name", name)
	r.TransformRegistry[name] = t
}
