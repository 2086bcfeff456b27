package registry

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/pipeline"
)

// All selects every handler of the requested realm and frequency.
const All = "all"

// Handler converts one output variable. It is immutable once selected and
// is invoked at most once per run.
type Handler interface {
	Name() string
	Dependencies() []string
	Table() string
	Units() string
	Positive() string
	Realm() string
	Frequency() string
	SupportsSimple() bool
	Handle(ctx context.Context, files model.FileSet, opts *pipeline.Options) *model.JobResult
}

type handler struct {
	def       *config.VariableDefinition
	freq      string
	table     string
	raw       []string
	transform *RegisteredTransform
	contract  *config.TransformDefinition
	reg       *Registry
}

var _ Handler = (*handler)(nil)

func (h *handler) Name() string           { return h.def.Name }
func (h *handler) Dependencies() []string { return slices.Clone(h.raw) }
func (h *handler) Table() string          { return h.table }
func (h *handler) Units() string          { return h.def.Units }
func (h *handler) Positive() string       { return h.def.Positive }
func (h *handler) Realm() string          { return h.def.Realm }
func (h *handler) Frequency() string      { return h.freq }
func (h *handler) SupportsSimple() bool   { return h.def.Simple }

// Handle runs the conversion pipeline for the variable and reports the
// outcome. It never panics on bad input; every failure becomes a Failed
// result.
func (h *handler) Handle(ctx context.Context, files model.FileSet, opts *pipeline.Options) *model.JobResult {
	ctx, logger := ctxlog.With(ctx, "variable", h.def.Name)
	start := time.Now()

	result := h.handle(ctx, files, opts)
	result.Duration = time.Since(start)

	switch result.Status {
	case model.StatusSucceeded:
		logger.Info("✅ Finished conversion", "output", result.OutputPath, "timesteps", result.Timesteps, "duration", result.Duration)
	case model.StatusSkipped:
		logger.Info("⏭️ Skipped conversion", "reason", result.Reason)
	default:
		logger.Error("❌ Conversion failed", "error", result.Err, "duration", result.Duration)
	}
	return result
}

func (h *handler) handle(ctx context.Context, files model.FileSet, opts *pipeline.Options) *model.JobResult {
	logger := ctxlog.FromContext(ctx)
	if opts != nil && opts.Mode == model.ModeSimple && !h.def.Simple {
		return model.Skipped(h.def.Name, "handler does not support simple mode")
	}
	if h.transform == nil || h.contract == nil {
		return model.Failed(h.def.Name, fmt.Errorf("transform %q is not registered", h.def.Transform))
	}
	logger.Info("▶️ Starting conversion", "table", h.table, "inputs", h.raw)

	args, err := h.reg.decodeArgs(ctx, h.transform, h.contract, h.def.Arguments)
	if err != nil {
		return model.Failed(h.def.Name, fmt.Errorf("failed to decode arguments for %s: %w", h.def.Name, err))
	}
	tr, err := h.transform.New(args)
	if err != nil {
		return model.Failed(h.def.Name, fmt.Errorf("failed to build transform %s for %s: %w", h.def.Transform, h.def.Name, err))
	}

	out, err := pipeline.Run(ctx, &pipeline.Request{
		Variable:  h.def.Name,
		Table:     h.table,
		Units:     h.def.Units,
		Positive:  h.def.Positive,
		Deps:      h.raw,
		Files:     files,
		Transform: tr,
		Options:   opts,
	})
	if err != nil {
		return model.Failed(h.def.Name, err)
	}
	return model.Succeeded(h.def.Name, out.Path, out.Timesteps)
}

// decodeArgs decodes a variable's arguments into a fresh argument struct of
// t. It returns nil for transforms without arguments.
func (r *Registry) decodeArgs(ctx context.Context, t *RegisteredTransform, contract *config.TransformDefinition, args map[string]hcl.Expression) (any, error) {
	if t.NewArgs == nil {
		if len(args) > 0 {
			return nil, fmt.Errorf("transform takes no arguments")
		}
		return nil, nil
	}
	target := t.NewArgs()
	if r.converter == nil {
		return nil, fmt.Errorf("no argument converter configured")
	}
	if err := r.converter.DecodeBody(ctx, target, args, contract.Inputs); err != nil {
		return nil, err
	}
	return target, nil
}

// Lookup returns the handler of variable name at freq.
func (r *Registry) Lookup(name, freq string) (Handler, error) {
	def, ok := r.model.Variables[name]
	if !ok {
		return nil, fmt.Errorf("no handler for variable %q", name)
	}
	h, ok := r.bind(def, freq)
	if !ok {
		return nil, fmt.Errorf("handler %q has no definition for frequency %q", name, freq)
	}
	return h, nil
}

// Select returns the handlers of the requested variables, in declaration
// order. The name All selects every variable; realm, when set, restricts the
// selection to one realm. Unknown names and variables that cannot be
// produced at freq are logged and left out.
func (r *Registry) Select(ctx context.Context, names []string, freq, realm string) []Handler {
	logger := ctxlog.FromContext(ctx)
	if freq == "" {
		freq = config.DefaultFrequency
	}

	all := slices.Contains(names, All)
	for _, n := range names {
		if n != All {
			if _, ok := r.model.Variables[n]; !ok {
				logger.Warn("No handler found for requested variable.", "variable", n)
			}
		}
	}

	var out []Handler
	for _, def := range r.model.OrderedVariables() {
		if !all && !slices.Contains(names, def.Name) {
			continue
		}
		if realm != "" && def.Realm != realm {
			logger.Debug("Handler skipped: other realm.", "variable", def.Name, "realm", def.Realm)
			continue
		}
		h, ok := r.bind(def, freq)
		if !ok {
			if !all {
				logger.Warn("Handler cannot produce the requested frequency.", "variable", def.Name, "frequency", freq)
			}
			continue
		}
		out = append(out, h)
	}
	logger.Debug("Handlers selected.", "requested", len(names), "selected", len(out))
	return out
}

func (r *Registry) bind(def *config.VariableDefinition, freq string) (*handler, bool) {
	if freq == "" {
		freq = config.DefaultFrequency
	}
	table, raw, ok := def.ForFrequency(freq)
	if !ok {
		return nil, false
	}
	f := freq
	if def.Frequency == config.FixedFrequency {
		f = config.FixedFrequency
	}
	return &handler{
		def:       def,
		freq:      f,
		table:     table,
		raw:       raw,
		transform: r.TransformRegistry[def.Transform],
		contract:  r.DefinitionRegistry[def.Transform],
		reg:       r,
	}, true
}
