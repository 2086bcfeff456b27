package registry

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/vk/cmipconv/internal/config"
	"github.com/vk/cmipconv/internal/ctxlog"
)

// LoadManifests reads the variable manifests and transform contracts from
// sources with loader and stores them in the registry. Later sources
// override variables of the same name.
func (r *Registry) LoadManifests(ctx context.Context, loader config.Loader, sources ...fs.FS) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading manifests...", "sources", len(sources))

	model, converter, err := loader.Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to load handler manifests: %w", err)
	}
	if len(model.Variables) == 0 {
		logger.Warn("No variable definitions found in manifests.")
	}
	r.PopulateDefinitionsFromModel(model, converter)

	logger.Info("Registry loaded successfully.", "variables", len(model.Variables), "transforms", len(model.Transforms))
	return nil
}
