package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/hcl"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ValidateRegistry performs a strict parity check between manifests and Go
// code. Every variable must name a registered transform with a published
// contract, every contract input must match a Go argument field in both
// presence and type, and every variable's arguments must decode.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range sortedKeys(r.DefinitionRegistry) {
		def := r.DefinitionRegistry[name]
		tr, ok := r.TransformRegistry[name]
		if !ok {
			errs = append(errs, fmt.Sprintf("transform '%s': declared in manifests but not registered in Go", name))
			continue
		}

		argsType := tr.argsType()
		if argsType == nil {
			if len(def.Inputs) > 0 {
				errs = append(errs, fmt.Sprintf("transform '%s': manifest declares inputs, but Go transform has no argument struct", name))
			}
			continue
		}

		goInputs := make(map[string]reflect.StructField)
		for i := 0; i < argsType.NumField(); i++ {
			field := argsType.Field(i)
			if !field.IsExported() {
				continue
			}
			tagName := strings.Split(field.Tag.Get(hcl.ArgTag), ",")[0]
			if tagName != "" && tagName != "-" {
				goInputs[tagName] = field
			}
		}

		// Check for presence mismatches
		for _, in := range sortedKeys(goInputs) {
			if _, ok := def.Inputs[in]; !ok {
				errs = append(errs, fmt.Sprintf("transform '%s': Go struct has field for input '%s' which is not declared in manifest", name, in))
			}
		}
		for _, in := range sortedKeys(def.Inputs) {
			if _, ok := goInputs[in]; !ok {
				errs = append(errs, fmt.Sprintf("transform '%s': manifest declares input '%s' which is not found in Go struct", name, in))
			}
		}

		// Check for type mismatches
		for _, in := range sortedKeys(def.Inputs) {
			goField, ok := goInputs[in]
			if !ok {
				continue
			}
			manifestType := def.Inputs[in].Type
			if manifestType.Equals(cty.DynamicPseudoType) {
				logger.Warn("Transform input has 'type = any', which disables static type checking.", "transform", name, "input", in)
				continue
			}
			goFieldType, err := gocty.ImpliedType(reflect.Zero(goField.Type).Interface())
			if err != nil {
				errs = append(errs, fmt.Sprintf("transform '%s', input '%s': could not imply cty type from Go field type %s: %v", name, in, goField.Type, err))
				continue
			}
			if !manifestType.Equals(goFieldType) {
				errs = append(errs, fmt.Sprintf("transform '%s', input '%s': type mismatch. Manifest requires '%s' but Go struct field '%s' provides '%s'",
					name, in, manifestType.FriendlyName(), goField.Name, goFieldType.FriendlyName()))
			}
		}
	}

	for _, v := range r.model.OrderedVariables() {
		if len(v.Raw) == 0 {
			errs = append(errs, fmt.Sprintf("variable '%s' (%s): no raw inputs", v.Name, v.Source))
		}
		if v.Units == "" {
			errs = append(errs, fmt.Sprintf("variable '%s' (%s): no units", v.Name, v.Source))
		}
		tr, ok := r.TransformRegistry[v.Transform]
		if !ok {
			errs = append(errs, fmt.Sprintf("variable '%s' (%s): unknown transform '%s'", v.Name, v.Source, v.Transform))
			continue
		}
		def, ok := r.DefinitionRegistry[v.Transform]
		if !ok {
			errs = append(errs, fmt.Sprintf("variable '%s' (%s): transform '%s' has no manifest contract", v.Name, v.Source, v.Transform))
			continue
		}
		if _, err := r.decodeArgs(ctx, tr, def, v.Arguments); err != nil {
			errs = append(errs, fmt.Sprintf("variable '%s' (%s): %v", v.Name, v.Source, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
