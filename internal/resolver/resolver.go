// Package resolver discovers, for each handler, which raw input files satisfy
// its dependencies.
package resolver

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/fsutil"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/rawdata"
)

// auxPatterns lists, per sentinel, the base-name globs tried in order. The
// first glob with any match wins.
var auxPatterns = map[string][]string{
	model.MPASO:        {"mpaso.hist.am.timeSeriesStatsMonthly.*.nc"},
	model.MPASSI:       {"mpassi.hist.am.timeSeriesStatsMonthly.*.nc"},
	model.MPASMesh:     {"mpaso.rst.*.nc", "mpassi.rst.*.nc"},
	model.MPASNamelist: {"mpaso_in", "mpassi_in"},
}

// singleFile lists sentinels that resolve to exactly one file.
var singleFile = map[string]bool{
	model.MPASMesh:     true,
	model.MPASNamelist: true,
}

// Resolver scans an input directory once and answers dependency lookups
// against that listing.
type Resolver struct {
	root    string
	files   []string
	mapPath string
	noPeek  bool

	mu  sync.Mutex
	has map[[2]string]bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMapPath sets the remapping weights file returned for model.MPASMap.
func WithMapPath(path string) Option {
	return func(r *Resolver) { r.mapPath = path }
}

// WithoutHeaderCheck disables the check that a matched file actually
// declares the variable its name promises.
func WithoutHeaderCheck() Option {
	return func(r *Resolver) { r.noPeek = true }
}

// New lists every file under root.
func New(ctx context.Context, root string, opts ...Option) (*Resolver, error) {
	logger := ctxlog.FromContext(ctx)
	files, err := fsutil.FindFiles(root, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory %s: %w", root, err)
	}
	r := &Resolver{
		root:  root,
		files: files,
		has:   make(map[[2]string]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	logger.Debug("Input directory scanned.", "root", root, "files", len(files))
	return r, nil
}

// Resolve builds the FileSet of one handler. Every dependency with zero
// matching files is named in the returned *model.MissingInputError; the
// partial FileSet is returned alongside it.
func (r *Resolver) Resolve(ctx context.Context, variable string, deps []string) (model.FileSet, error) {
	logger := ctxlog.FromContext(ctx)
	fs := make(model.FileSet, len(deps))
	var missing []string
	for _, dep := range deps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var files []string
		if model.IsAuxiliary(dep) {
			files = r.auxiliary(dep)
		} else {
			files = r.timeSeries(dep)
		}
		if len(files) == 0 {
			missing = append(missing, dep)
			continue
		}
		fs[dep] = files
		logger.Debug("Dependency resolved.", "variable", variable, "dependency", dep, "files", len(files))
	}
	if len(missing) > 0 {
		return fs, &model.MissingInputError{Variable: variable, Missing: missing}
	}
	return fs, nil
}

func (r *Resolver) timeSeries(v string) []string {
	re := regexp.MustCompile(`^` + regexp.QuoteMeta(v) + `_\d{6}_\d{6}\.nc$`)
	var out []string
	for _, p := range r.files {
		if !re.MatchString(filepath.Base(p)) {
			continue
		}
		if !r.noPeek && !r.declares(p, v) {
			continue
		}
		out = append(out, p)
	}
	sortByName(out)
	return out
}

// declares reports whether the header of path contains v. Unreadable files
// are treated as not matching.
func (r *Resolver) declares(path, v string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]string{path, v}
	if ok, seen := r.has[key]; seen {
		return ok
	}
	// Header only; the data is read later by the pipeline.
	f, err := rawdata.Open(path)
	if err != nil {
		r.has[key] = false
		return false
	}
	defer f.Close()
	ok := f.HasVariable(v)
	r.has[key] = ok
	return ok
}

func (r *Resolver) auxiliary(dep string) []string {
	if dep == model.MPASMap {
		if r.mapPath != "" && fsutil.Exists(r.mapPath) {
			return []string{r.mapPath}
		}
		return nil
	}
	for _, pattern := range auxPatterns[dep] {
		var out []string
		for _, p := range r.files {
			if ok, _ := filepath.Match(pattern, filepath.Base(p)); ok {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			continue
		}
		sortByName(out)
		if singleFile[dep] {
			return out[:1]
		}
		return out
	}
	return nil
}

// sortByName orders paths by base name so date-stamped names sort in time
// order regardless of the directory they were found in.
func sortByName(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		bi, bj := filepath.Base(paths[i]), filepath.Base(paths[j])
		if bi != bj {
			return bi < bj
		}
		return paths[i] < paths[j]
	})
}
