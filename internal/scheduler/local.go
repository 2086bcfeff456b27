package scheduler

import (
	"context"
	"fmt"

	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/pipeline"
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/internal/session"
)

// Local runs jobs in the calling process against a registry.
type Local struct {
	Registry *registry.Registry
}

var _ Runner = (*Local)(nil)

// Run implements Runner.
func (l *Local) Run(ctx context.Context, spec *model.JobSpec) *model.JobResult {
	if spec.Err != nil {
		return model.Failed(spec.Variable, spec.Err)
	}
	h, err := l.Registry.Lookup(spec.Variable, spec.Frequency)
	if err != nil {
		return model.Failed(spec.Variable, err)
	}
	opts, err := OptionsFor(spec)
	if err != nil {
		return model.Failed(spec.Variable, err)
	}
	return h.Handle(ctx, spec.Files, opts)
}

// OptionsFor derives the pipeline options of a job from its spec.
func OptionsFor(spec *model.JobSpec) (*pipeline.Options, error) {
	attrs, err := session.ReadAttributes(spec.CustomMetadata)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec.Variable, err)
	}
	mode := spec.Mode
	if mode == "" {
		mode = model.ModeStandard
	}
	return &pipeline.Options{
		Mode:             mode,
		OutputDir:        spec.OutputDir,
		TablesDir:        spec.TablesDir,
		MetadataPath:     spec.MetadataPath,
		LogDir:           spec.LogDir,
		CustomAttributes: attrs,
		Policy:           session.Replace,
	}, nil
}
