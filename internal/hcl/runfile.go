package hcl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/cmipconv/internal/schema"
)

// LoadRunFile parses the HCL run configuration at path. Unknown settings are
// rejected so that a typo does not silently fall back to a default.
func LoadRunFile(path string) (*schema.RunFile, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse run file %s: %w", path, diags)
	}

	var rf schema.RunFile
	if diags := gohcl.DecodeBody(f.Body, nil, &rf); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode run file %s: %w", path, diags)
	}
	if rf.Body != nil {
		attrs, _ := rf.Body.JustAttributes()
		if len(attrs) > 0 {
			unknown := make([]string, 0, len(attrs))
			for name := range attrs {
				unknown = append(unknown, name)
			}
			sort.Strings(unknown)
			return nil, fmt.Errorf("run file %s: unknown settings: %s", path, strings.Join(unknown, ", "))
		}
	}
	return &rf, nil
}
