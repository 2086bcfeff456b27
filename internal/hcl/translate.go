// This file translates HCL schema structs into the format-agnostic
// configuration model defined in the config package.

package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/schema"
	"github.com/zclconf/go-cty/cty"
)

// translateInputDefinition processes a single transform input block,
// handling its default value and type.
func translateInputDefinition(in *schema.InputDefinition, owner string) (*config.InputDefinition, error) {
	var defaultVal *cty.Value
	var isOptional bool

	if in.Default != nil {
		val, diags := in.Default.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("invalid default value for input '%s' of transform '%s': %w", in.Name, owner, diags)
		}
		if !val.IsNull() {
			defaultVal = &val
			isOptional = true
		}
	}

	parsedType, err := typeExprToCtyType(in.Type)
	if err != nil {
		return nil, fmt.Errorf("transform '%s', input '%s': %w", owner, in.Name, err)
	}

	return &config.InputDefinition{
		Name:        in.Name,
		Type:        parsedType,
		Description: in.Description,
		Default:     defaultVal,
		Optional:    isOptional,
	}, nil
}

// translateTransform converts a transform contract into the agnostic model.
func translateTransform(s *schema.Transform) (*config.TransformDefinition, error) {
	t := &config.TransformDefinition{
		Name:        s.Name,
		Description: s.Description,
		Inputs:      make(map[string]*config.InputDefinition),
	}
	for _, in := range s.Inputs {
		def, err := translateInputDefinition(in, s.Name)
		if err != nil {
			return nil, err
		}
		t.Inputs[in.Name] = def
	}
	return t, nil
}

// translateVariable converts a variable definition into the agnostic model.
func translateVariable(s *schema.Variable, source string) (*config.VariableDefinition, error) {
	v := &config.VariableDefinition{
		Name:        s.Name,
		Description: s.Description,
		Raw:         s.Raw,
		Table:       s.Table,
		Units:       s.Units,
		Positive:    s.Positive,
		Realm:       s.Realm,
		Frequency:   s.Freq,
		Transform:   s.Transform,
		Simple:      true,
		Frequencies: make(map[string]*config.FrequencyOverride),
		Source:      source,
	}
	if v.Frequency == "" {
		v.Frequency = config.DefaultFrequency
	}
	if s.Simple != nil {
		v.Simple = *s.Simple
	}
	if s.Arguments != nil {
		args, err := extractBodyAttributes(s.Arguments.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: variable '%s': %w", source, s.Name, err)
		}
		v.Arguments = args
	}
	for _, f := range s.Frequencies {
		if _, dup := v.Frequencies[f.Name]; dup {
			return nil, fmt.Errorf("%s: variable '%s' declares frequency '%s' twice", source, s.Name, f.Name)
		}
		v.Frequencies[f.Name] = &config.FrequencyOverride{Frequency: f.Name, Table: f.Table, Raw: f.Raw}
	}
	return v, nil
}

func extractBodyAttributes(body hcl.Body) (map[string]hcl.Expression, error) {
	if body == nil {
		return nil, nil
	}
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	exprMap := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		exprMap[name] = attr.Expr
	}
	return exprMap, nil
}
