package app

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/modules/manifests"
)

// RunLogName is the JSON log every run writes into its output directory.
const RunLogName = "converter.log"

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	registry *registry.Registry
	config   *Config
	runLog   *os.File
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
// Outside info mode the logger also writes JSON records to RunLogName in the
// output directory.
func NewApp(outW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	a := &App{outW: outW, config: cfg}
	handler := newHandler(cfg.LogLevel, cfg.LogFormat, outW)
	if !cfg.Info && cfg.OutputPath != "" {
		if err := os.MkdirAll(cfg.OutputPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		f, err := os.Create(filepath.Join(cfg.OutputPath, RunLogName))
		if err != nil {
			return nil, fmt.Errorf("failed to create run log: %w", err)
		}
		a.runLog = f
		handler = teeHandler{handler, newHandler(cfg.LogLevel, "json", f)}
	}
	a.logger = slog.New(handler)
	ctx := ctxlog.WithLogger(context.Background(), a.logger)
	a.logger.Debug("Logger configured successfully.")

	if len(modules) == 0 {
		modules = coreModules
	}
	reg, err := BuildRegistry(ctx, loader, cfg.HandlersPath, modules...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = reg
	return a, nil
}

// BuildRegistry registers the Go transforms of modules, loads the built-in
// manifests plus those under handlersPath, and validates that both sides
// agree.
func BuildRegistry(ctx context.Context, loader config.Loader, handlersPath string, modules ...registry.Module) (*registry.Registry, error) {
	logger := ctxlog.FromContext(ctx)
	reg := registry.New()
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	sources := []fs.FS{manifests.FS}
	if handlersPath != "" {
		if _, err := os.Stat(handlersPath); err != nil {
			return nil, fmt.Errorf("handlers path: %w", err)
		}
		sources = append(sources, os.DirFS(handlersPath))
	}
	if err := reg.LoadManifests(ctx, loader, sources...); err != nil {
		return nil, err
	}
	if err := reg.ValidateRegistry(ctx); err != nil {
		return nil, err
	}
	logger.Debug("Registry validation passed.")
	return reg, nil
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Close releases the run log.
func (a *App) Close() error {
	if a.runLog == nil {
		return nil
	}
	err := a.runLog.Close()
	a.runLog = nil
	return err
}
