package hcl

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// ArgTag is the struct tag naming the manifest argument a field binds to.
const ArgTag = "arg"

// Converter is the HCL-specific implementation of the config.Converter interface.
type Converter struct{}

// NewConverter creates a new HCL converter.
func NewConverter() *Converter {
	return &Converter{}
}

var _ config.Converter = (*Converter)(nil)

// DecodeBody evaluates argument expressions, applies defaults, and populates
// the provided Go struct using reflection. Fields without a declared input
// keep the value they already hold.
func (c *Converter) DecodeBody(
	ctx context.Context,
	target any,
	args map[string]hcl.Expression,
	defs map[string]*config.InputDefinition,
) error {
	logger := ctxlog.FromContext(ctx)

	for name := range args {
		if _, ok := defs[name]; !ok {
			return fmt.Errorf("unexpected argument %q (accepted: %s)", name, strings.Join(sortedNames(defs), ", "))
		}
	}

	structVal := reflect.ValueOf(target)
	if structVal.Kind() != reflect.Ptr || structVal.IsNil() {
		return fmt.Errorf("target must be a non-nil pointer")
	}
	structVal = structVal.Elem()
	structType := structVal.Type()

	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		fieldVal := structVal.Field(i)
		if !fieldVal.CanSet() {
			continue
		}

		lookupName := field.Name
		if tag := field.Tag.Get(ArgTag); tag != "" {
			lookupName = strings.Split(tag, ",")[0]
		}

		inputDef, defExists := defs[lookupName]
		if !defExists {
			continue
		}

		targetPtr := fieldVal.Addr().Interface()
		if argExpr, provided := args[lookupName]; provided {
			val, diags := argExpr.Value(nil)
			if diags.HasErrors() {
				return diags
			}
			if err := c.decode(val, inputDef.Type, targetPtr); err != nil {
				return fmt.Errorf("failed to decode argument '%s': %w", lookupName, err)
			}
			continue
		}
		if inputDef.Default == nil && !inputDef.Optional {
			return fmt.Errorf("missing required argument %q", lookupName)
		}
		if inputDef.Default != nil {
			if err := c.decode(*inputDef.Default, inputDef.Type, targetPtr); err != nil {
				return fmt.Errorf("failed to apply default for '%s': %w", lookupName, err)
			}
		}
	}
	logger.Debug("Arguments decoded.", "target", structType.Name(), "provided", len(args))
	return nil
}

// decode converts val to the declared type, then to the Go type behind goVal.
func (c *Converter) decode(val cty.Value, declared cty.Type, goVal any) error {
	if declared != cty.NilType && declared != cty.DynamicPseudoType {
		converted, err := convert.Convert(val, declared)
		if err != nil {
			return fmt.Errorf("cannot convert %s to declared type %s: %w", val.Type().FriendlyName(), declared.FriendlyName(), err)
		}
		val = converted
	}

	valPtr := reflect.ValueOf(goVal)
	impliedType, err := gocty.ImpliedType(valPtr.Elem().Interface())
	if err != nil {
		return gocty.FromCtyValue(val, goVal)
	}
	converted, err := convert.Convert(val, impliedType)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), impliedType.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, goVal)
}

func sortedNames(defs map[string]*config.InputDefinition) []string {
	names := make([]string, 0, len(defs))
	for n := range defs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
