package config

import (
	"context"
	"io/fs"

	"github.com/hashicorp/hcl/v2"
)

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads every manifest found in the given file systems, translates
	// them into the format-agnostic model, and returns a matching Converter.
	// Later sources override variables of the same name from earlier ones.
	Load(ctx context.Context, sources ...fs.FS) (*Model, Converter, error)
}

// Converter is the interface for a format-specific data binding and type
// conversion implementation. It acts as the bridge between the raw
// configuration and the Go argument structs of transforms.
type Converter interface {
	// DecodeBody decodes the raw arguments of a variable definition into a
	// target Go struct, applying defaults and validations.
	DecodeBody(
		ctx context.Context,
		target any,
		args map[string]hcl.Expression,
		defs map[string]*InputDefinition,
	) error
}
