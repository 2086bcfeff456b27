package app

import (
	"context"
	"io"

	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/internal/scheduler"
	"github.com/vk/cmipconv/internal/workerproc"
)

// RunWorker is the body of a worker process: it reads one job spec from in,
// runs it against a registry built the same way the parent built its own,
// and writes the result to out. Logs go to errW, which the parent forwards
// into its own log.
func RunWorker(ctx context.Context, in io.Reader, out, errW io.Writer, loader config.Loader, modules ...registry.Module) error {
	if len(modules) == 0 {
		modules = coreModules
	}
	ctx, stop := scheduler.WithInterrupt(ctx)
	defer stop()

	runner := scheduler.RunnerFunc(func(ctx context.Context, spec *model.JobSpec) *model.JobResult {
		logger := newLogger(spec.LogLevel, "text", errW)
		ctx = ctxlog.WithLogger(ctx, logger)
		reg, err := BuildRegistry(ctx, loader, spec.HandlersDir, modules...)
		if err != nil {
			return model.Failed(spec.Variable, err)
		}
		return (&scheduler.Local{Registry: reg}).Run(ctx, spec)
	})
	return workerproc.Serve(ctx, in, out, runner)
}
