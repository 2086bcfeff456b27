package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFrequency is the output frequency a variable definition describes
// unless it says otherwise.
const DefaultFrequency = "mon"

// FixedFrequency marks variables with no time axis. They are produced at any
// requested frequency.
const FixedFrequency = "fx"

// Model is the unified, format-agnostic representation of every handler
// manifest and transform contract loaded for a run.
type Model struct {
	Transforms map[string]*TransformDefinition
	Variables  map[string]*VariableDefinition
	// Order lists variable names in the order they were first declared.
	Order []string
}

// NewModel returns an empty Model.
func NewModel() *Model {
	return &Model{
		Transforms: make(map[string]*TransformDefinition),
		Variables:  make(map[string]*VariableDefinition),
	}
}

// AddVariable stores def, replacing an earlier definition of the same name
// while keeping its original position.
func (m *Model) AddVariable(def *VariableDefinition) {
	if _, exists := m.Variables[def.Name]; !exists {
		m.Order = append(m.Order, def.Name)
	}
	m.Variables[def.Name] = def
}

// OrderedVariables returns the variable definitions in declaration order.
func (m *Model) OrderedVariables() []*VariableDefinition {
	out := make([]*VariableDefinition, 0, len(m.Order))
	for _, name := range m.Order {
		out = append(out, m.Variables[name])
	}
	return out
}

// --- Manifest Models ---

// TransformDefinition is the public contract of a Go transform: the
// arguments a variable definition may pass to it.
type TransformDefinition struct {
	Name        string
	Description string
	Inputs      map[string]*InputDefinition
}

// InputDefinition defines a single argument of a transform.
type InputDefinition struct {
	Name        string
	Type        cty.Type
	Description string
	Default     *cty.Value
	Optional    bool
}

// VariableDefinition describes how one output variable is produced.
type VariableDefinition struct {
	Name        string
	Description string
	Raw         []string
	Table       string
	Units       string
	Positive    string
	Realm       string
	Frequency   string
	Transform   string
	Simple      bool
	Arguments   map[string]hcl.Expression
	Frequencies map[string]*FrequencyOverride
	Source      string
}

// FrequencyOverride replaces the table (and optionally the raw inputs) of a
// variable when it is produced at another frequency.
type FrequencyOverride struct {
	Frequency string
	Table     string
	Raw       []string
}

// ForFrequency returns the table and raw inputs to use at freq, and whether
// the variable can be produced at freq at all.
func (d *VariableDefinition) ForFrequency(freq string) (string, []string, bool) {
	if freq == "" {
		freq = DefaultFrequency
	}
	if d.Frequency == FixedFrequency || d.Frequency == freq {
		return d.Table, d.Raw, true
	}
	if o, ok := d.Frequencies[freq]; ok {
		raw := o.Raw
		if len(raw) == 0 {
			raw = d.Raw
		}
		return o.Table, raw, true
	}
	return "", nil, false
}
