package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/fsutil"
	"github.com/vk/cmipconv/internal/registry"
)

// tableID derives the table identifier from a table file name, e.g.
// CMIP6_Amon.json -> Amon.
func tableID(table string) string {
	return strings.TrimSuffix(strings.TrimPrefix(filepath.Base(table), "CMIP6_"), ".json")
}

// precheck drops the handlers whose output already exists under dir.
func precheck(ctx context.Context, dir string, handlers []registry.Handler) ([]registry.Handler, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFilesByExtension(dir, ".nc")
	if err != nil {
		return nil, fmt.Errorf("failed to scan precheck directory %s: %w", dir, err)
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = filepath.Base(f)
	}

	var remaining []registry.Handler
	for _, h := range handlers {
		prefix := h.Name() + "_" + tableID(h.Table()) + "_"
		done := false
		for _, n := range names {
			if strings.HasPrefix(n, prefix) {
				done = true
				break
			}
		}
		if done {
			logger.Info("Variable previously computed, skipping.", "variable", h.Name(), "table", h.Table())
			continue
		}
		remaining = append(remaining, h)
	}
	return remaining, nil
}
