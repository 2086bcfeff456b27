package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// --- Handler Manifest Structures ---

// Arguments represents the content of the 'arguments' block within a
// variable definition.
type Arguments struct {
	Body hcl.Body `hcl:",remain"`
}

// FrequencyBlock represents a `frequency` block overriding the destination
// table of a variable for another output frequency.
type FrequencyBlock struct {
	Name  string   `hcl:"name,label"`
	Table string   `hcl:"table"`
	Raw   []string `hcl:"raw,optional"`
}

// Variable represents a `variable` block: how one output variable is
// produced from raw model variables.
type Variable struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Raw         []string          `hcl:"raw"`
	Table       string            `hcl:"table"`
	Units       string            `hcl:"units"`
	Positive    string            `hcl:"positive,optional"`
	Realm       string            `hcl:"realm,optional"`
	Freq        string            `hcl:"freq,optional"`
	Transform   string            `hcl:"transform"`
	Simple      *bool             `hcl:"simple,optional"`
	Arguments   *Arguments        `hcl:"arguments,block"`
	Frequencies []*FrequencyBlock `hcl:"frequency,block"`
}

// --- Transform Contract Schemas ---

// InputDefinition defines a single argument accepted by a transform.
type InputDefinition struct {
	Name        string         `hcl:"name,label"`
	Type        hcl.Expression `hcl:"type"`
	Description string         `hcl:"description,optional"`
	Default     hcl.Expression `hcl:"default,optional"`
}

// Transform represents a `transform` block: the public contract of a Go
// transform registered under the same name.
type Transform struct {
	Name        string             `hcl:"name,label"`
	Description string             `hcl:"description,optional"`
	Inputs      []*InputDefinition `hcl:"input,block"`
}

// ManifestFile represents the top-level structure of a manifest file.
type ManifestFile struct {
	Variables  []*Variable  `hcl:"variable,block"`
	Transforms []*Transform `hcl:"transform,block"`
	Body       hcl.Body     `hcl:",remain"`
}

// --- Run File ---

// RunFile is the optional HCL run configuration. Every attribute mirrors a
// command-line flag; flags given explicitly win.
type RunFile struct {
	Variables      []string `hcl:"variables,optional"`
	InputPath      string   `hcl:"input_path,optional"`
	OutputPath     string   `hcl:"output_path,optional"`
	TablesPath     string   `hcl:"tables_path,optional"`
	UserMetadata   string   `hcl:"user_metadata,optional"`
	CustomMetadata string   `hcl:"custom_metadata,optional"`
	MapPath        string   `hcl:"map,optional"`
	LogDir         string   `hcl:"logdir,optional"`
	HandlersPath   string   `hcl:"handlers,optional"`
	Realm          string   `hcl:"realm,optional"`
	Frequency      string   `hcl:"freq,optional"`
	NumProc        *int     `hcl:"num_proc,optional"`
	Serial         *bool    `hcl:"serial,optional"`
	Simple         *bool    `hcl:"simple,optional"`
	Timeout        string   `hcl:"timeout,optional"`
	LedgerPath     string   `hcl:"ledger,optional"`
	LogLevel       string   `hcl:"log_level,optional"`
	LogFormat      string   `hcl:"log_format,optional"`
	Body           hcl.Body `hcl:",remain"`
}
