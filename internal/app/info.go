package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vk/cmipconv/internal/registry"
	"github.com/vk/cmipconv/internal/resolver"
	"gopkg.in/yaml.v3"
)

// handlerInfo is one entry of the info report.
type handlerInfo struct {
	Name      string   `yaml:"cmip6_name"`
	Table     string   `yaml:"cmip6_table"`
	Units     string   `yaml:"cmip6_units"`
	Positive  string   `yaml:"positive,omitempty"`
	Raw       []string `yaml:"e3sm_variables"`
	Realm     string   `yaml:"realm,omitempty"`
	Frequency string   `yaml:"frequency"`
	Simple    bool     `yaml:"simple_mode"`
	Available *bool    `yaml:"inputs_available,omitempty"`
}

// writeInfo describes the selected handlers as YAML. With an input path the
// report also says whether every input of each handler was found.
func (a *App) writeInfo(ctx context.Context, handlers []registry.Handler) error {
	var r *resolver.Resolver
	if a.config.InputPath != "" {
		var err error
		if r, err = resolver.New(ctx, a.config.InputPath, resolver.WithMapPath(a.config.MapPath)); err != nil {
			return err
		}
	}

	report := make([]handlerInfo, 0, len(handlers))
	for _, h := range handlers {
		info := handlerInfo{
			Name:      h.Name(),
			Table:     h.Table(),
			Units:     h.Units(),
			Positive:  h.Positive(),
			Raw:       h.Dependencies(),
			Realm:     h.Realm(),
			Frequency: h.Frequency(),
			Simple:    h.SupportsSimple(),
		}
		if r != nil {
			_, err := r.Resolve(ctx, h.Name(), h.Dependencies())
			ok := err == nil
			info.Available = &ok
		}
		report = append(report, info)
	}

	var w io.Writer = a.outW
	if a.config.InfoOut != "" {
		f, err := os.Create(a.config.InfoOut)
		if err != nil {
			return fmt.Errorf("failed to create info output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write info report: %w", err)
	}
	return enc.Close()
}
