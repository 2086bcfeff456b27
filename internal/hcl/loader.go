package hcl

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// Load parses every .hcl file of every source, in source order and, within
// a source, in lexical path order.
func (l *Loader) Load(ctx context.Context, sources ...fs.FS) (*config.Model, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "source_count", len(sources))

	model := config.NewModel()

	for i, src := range sources {
		if src == nil {
			continue
		}
		files, err := findHCLFiles(src)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list manifests of source %d: %w", i, err)
		}
		logger.Debug("Discovered HCL files.", "source", i, "count", len(files))

		// The parser caches by file name, and sources may share names.
		parser := hclparse.NewParser()

		for _, name := range files {
			data, err := fs.ReadFile(src, name)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to read HCL file %s: %w", name, err)
			}
			hclFile, diags := parser.ParseHCL(data, name)
			if diags.HasErrors() {
				return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", name, diags)
			}

			var root schema.ManifestFile
			if diags := gohcl.DecodeBody(hclFile.Body, nil, &root); diags.HasErrors() {
				return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", name, diags)
			}

			for _, tr := range root.Transforms {
				def, err := translateTransform(tr)
				if err != nil {
					return nil, nil, fmt.Errorf("%s: %w", name, err)
				}
				if _, exists := model.Transforms[def.Name]; exists {
					return nil, nil, fmt.Errorf("%s: transform %q declared more than once", name, def.Name)
				}
				model.Transforms[def.Name] = def
			}
			for _, v := range root.Variables {
				def, err := translateVariable(v, name)
				if err != nil {
					return nil, nil, err
				}
				if prev, exists := model.Variables[def.Name]; exists {
					logger.Info("Variable definition overridden.", "variable", def.Name, "previous", prev.Source, "file", name)
				}
				model.AddVariable(def)
			}
		}
	}

	logger.Debug("HCL loading complete.", "transforms", len(model.Transforms), "variables", len(model.Variables))
	return model, NewConverter(), nil
}

func findHCLFiles(src fs.FS) ([]string, error) {
	var files []string
	err := fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".hcl" {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
