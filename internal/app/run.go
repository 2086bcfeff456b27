package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/ledger"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/internal/resolver"
	"github.com/vk/cmipconv/internal/scheduler"
	"github.com/vk/cmipconv/internal/status"
	"github.com/vk/cmipconv/internal/workerproc"
)

// Run executes one conversion run. It returns nil only when every selected
// handler succeeded or was skipped; the console summary is written either
// way.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	cfg := a.config
	a.logger.Debug("App.Run method started.")

	handlers := a.registry.Select(ctx, cfg.Variables, cfg.Frequency, cfg.Realm)
	if cfg.Info {
		return a.writeInfo(ctx, handlers)
	}

	if cfg.PrecheckPath != "" {
		var err error
		if handlers, err = precheck(ctx, cfg.PrecheckPath, handlers); err != nil {
			return err
		}
		if len(handlers) == 0 {
			fmt.Fprintln(a.outW, "All variables previously computed")
			return os.MkdirAll(filepath.Join(cfg.OutputPath, "CMIP6"), 0o755)
		}
	}

	if len(handlers) == 0 {
		st := status.Aggregate(0, nil, nil, nil)
		st.Summary(a.outW)
		return st.Err()
	}
	a.logger.Info("Handlers selected:", "count", len(handlers), "frequency", cfg.Frequency, "mode", cfg.mode())

	metadataPath := ""
	if !cfg.Simple {
		var err error
		if metadataPath, err = copyMetadata(cfg.UserMetadata, cfg.OutputPath); err != nil {
			return err
		}
	}

	// The wall-clock budget covers resolution as well as conversion.
	ctx, cancel := scheduler.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	ctx, stop := scheduler.WithInterrupt(ctx)
	defer stop()

	jobs, err := a.jobs(ctx, handlers, metadataPath)
	if err != nil {
		return err
	}

	observer, finish := a.startLedger(ctx, len(jobs))
	a.logger.Info("🚀 Starting conversion run...", "strategy", cfg.strategy(), "jobs", len(jobs))
	report, runErr := a.scheduler(observer).Schedule(ctx, jobs)
	if report == nil {
		report = &scheduler.Report{}
	}
	st := status.Aggregate(len(handlers), report.Results, report.NotStarted, runErr)
	finish(ctx, st)
	a.logger.Info("🏁 Conversion run finished.",
		"succeeded", len(st.Succeeded), "failed", len(st.Failed), "not_started", len(st.NotStarted))

	st.Summary(a.outW)
	return st.Err()
}

// jobs resolves the inputs of every handler. A resolution failure is kept
// on the job, so it fails in its scheduling slot without running.
func (a *App) jobs(ctx context.Context, handlers []registry.Handler, metadataPath string) ([]*model.JobSpec, error) {
	cfg := a.config
	r, err := resolver.New(ctx, cfg.InputPath, resolver.WithMapPath(cfg.MapPath))
	if err != nil {
		return nil, err
	}
	mode := model.ModeStandard
	if cfg.Simple {
		mode = model.ModeSimple
	}

	jobs := make([]*model.JobSpec, 0, len(handlers))
	for _, h := range handlers {
		var files model.FileSet
		var err error
		// Handlers without simple-mode support skip without reading inputs.
		if !cfg.Simple || h.SupportsSimple() {
			files, err = r.Resolve(ctx, h.Name(), h.Dependencies())
		}
		var missing *model.MissingInputError
		if err != nil && !errors.As(err, &missing) {
			if runErr := scheduler.RunError(ctx); runErr != nil {
				return nil, runErr
			}
			return nil, fmt.Errorf("failed to resolve inputs of %s: %w", h.Name(), err)
		}
		if missing != nil {
			a.logger.Warn("Input files not found.", "variable", h.Name(), "missing", missing.Missing)
		}
		jobs = append(jobs, &model.JobSpec{
			Variable:       h.Name(),
			Files:          files,
			Mode:           mode,
			Frequency:      h.Frequency(),
			OutputDir:      cfg.OutputPath,
			TablesDir:      cfg.TablesPath,
			MetadataPath:   metadataPath,
			CustomMetadata: cfg.CustomMetadata,
			LogDir:         cfg.LogDir,
			HandlersDir:    cfg.HandlersPath,
			LogLevel:       cfg.LogLevel,
			Err:            err,
		})
	}
	return jobs, nil
}

func (a *App) scheduler(observer scheduler.Observer) scheduler.Scheduler {
	cfg := a.config
	if cfg.Serial {
		return &scheduler.Serial{
			Runner:   &scheduler.Local{Registry: a.registry},
			Observer: observer,
		}
	}
	return &scheduler.Pool{
		Runner: &workerproc.Runner{
			Executable: cfg.Executable,
			Args:       cfg.WorkerArgs,
			Env:        cfg.WorkerEnv,
		},
		Workers:  cfg.NumProc,
		Observer: observer,
	}
}

// startLedger records the run in the ledger. A ledger that cannot be opened
// is logged and the run goes on without it.
func (a *App) startLedger(ctx context.Context, jobs int) (scheduler.Observer, func(context.Context, *status.RunStatus)) {
	noop := func(context.Context, *status.RunStatus) {}
	path := a.config.LedgerPath
	if path == "" || path == LedgerDisabled {
		return nil, noop
	}
	l, err := ledger.Open(path)
	if err != nil {
		a.logger.Warn("Run ledger unavailable.", "path", path, "error", err)
		return nil, noop
	}
	runID, err := l.StartRun(ctx, a.config.strategy(), jobs)
	if err != nil {
		a.logger.Warn("Run ledger unavailable.", "path", path, "error", err)
		l.Close()
		return nil, noop
	}
	a.logger.Info("Run recorded in ledger.", "run_id", runID, "path", path)
	return l.Recorder(runID), func(ctx context.Context, st *status.RunStatus) {
		if err := l.FinishRun(context.WithoutCancel(ctx), runID, st.ExitCode(), st.Err()); err != nil {
			a.logger.Warn("Ledger update failed.", "error", err)
		}
		l.Close()
	}
}
