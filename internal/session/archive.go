package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/ctessum/cdf"
)

// FillValue marks missing data in every output.
const FillValue = 1e20

// Options configures an archival session.
type Options struct {
	TablesDir    string
	LogPath      string
	MetadataPath string
	OutputDir    string
	Policy       FilePolicy
	// Attributes are extra global attributes written into the output.
	Attributes map[string]string
}

// Archive is the NetCDF implementation of Session. The output is staged in a
// temporary file beside its destination and moved into place by Close, so a
// failed conversion never leaves a partial artifact at the final path.
type Archive struct {
	opts    Options
	meta    *Metadata
	log     *slog.Logger
	logFile *os.File

	table *Table
	axes  []AxisSpec
	v     *variable

	out    *output
	steps  int
	last   float64
	closed bool
	final  string
}

type variable struct {
	name     string
	units    string
	positive string
	axes     []AxisID
	timed    bool
	shape    []int // spatial lengths
	size     int
}

type output struct {
	f      *os.File
	nc     *cdf.File
	staged string
	final  string
}

var _ Session = (*Archive)(nil)

// Open starts a session. Only one session may be live per process.
func Open(opts Options) (*Archive, error) {
	if err := acquire(); err != nil {
		return nil, err
	}
	a := &Archive{opts: opts}
	if err := a.openLog(); err != nil {
		release()
		return nil, err
	}
	if opts.MetadataPath == "" {
		a.closeLog()
		release()
		return nil, errors.New("dataset metadata path is required")
	}
	meta, err := ReadMetadata(opts.MetadataPath)
	if err != nil {
		a.closeLog()
		release()
		return nil, err
	}
	a.meta = meta
	a.log.Info("session opened", "tables", opts.TablesDir, "metadata", opts.MetadataPath, "output", opts.OutputDir)
	return a, nil
}

func (a *Archive) openLog() error {
	if a.opts.LogPath == "" {
		a.log = slog.New(slog.NewJSONHandler(io.Discard, nil))
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(a.opts.LogPath), 0o755); err != nil {
		return fmt.Errorf("failed to create session log directory: %w", err)
	}
	f, err := os.Create(a.opts.LogPath)
	if err != nil {
		return fmt.Errorf("failed to create session log: %w", err)
	}
	a.logFile = f
	a.log = slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return nil
}

func (a *Archive) closeLog() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

// LoadTable implements Session.
func (a *Archive) LoadTable(name string) error {
	if a.closed {
		return ErrClosed
	}
	t, err := ReadTable(a.opts.TablesDir, name)
	if err != nil {
		a.log.Error("table load failed", "table", name, "error", err)
		return err
	}
	a.table = t
	a.log.Info("table loaded", "table", name, "table_id", t.ID)
	return nil
}

// DefineAxis implements Session.
func (a *Archive) DefineAxis(spec AxisSpec) (AxisID, error) {
	if a.closed {
		return 0, ErrClosed
	}
	if a.out != nil {
		return 0, errors.New("cannot define an axis after writing has started")
	}
	if spec.Name == "" {
		return 0, errors.New("axis name is required")
	}
	if spec.Units == "" {
		return 0, fmt.Errorf("axis %s: units are required", spec.Name)
	}
	if spec.Name == AxisTime {
		if spec.Length <= 0 {
			return 0, errors.New("time axis: length must be positive")
		}
	} else {
		if len(spec.Values) == 0 {
			return 0, fmt.Errorf("axis %s: no coordinate values", spec.Name)
		}
		if spec.Bounds != nil && len(spec.Bounds) != len(spec.Values) {
			return 0, fmt.Errorf("axis %s: %d bounds for %d values", spec.Name, len(spec.Bounds), len(spec.Values))
		}
	}
	for _, existing := range a.axes {
		if existing.Name == spec.Name {
			return 0, fmt.Errorf("axis %s already defined", spec.Name)
		}
	}
	a.axes = append(a.axes, spec)
	a.log.Info("axis defined", "axis", spec.Name, "units", spec.Units, "length", spec.Len())
	return AxisID(len(a.axes) - 1), nil
}

// DefineVariable implements Session.
func (a *Archive) DefineVariable(name, units string, axes []AxisID, positive string) (VarID, error) {
	if a.closed {
		return 0, ErrClosed
	}
	if a.table == nil {
		return 0, errors.New("no table loaded")
	}
	if a.v != nil {
		return 0, fmt.Errorf("variable %s already defined in this session", a.v.name)
	}
	entry, err := a.table.Entry(name)
	if err != nil {
		return 0, err
	}
	if entry.Units != units {
		return 0, fmt.Errorf("variable %s: units %q do not match table units %q", name, units, entry.Units)
	}
	if entry.Positive != "" && entry.Positive != positive {
		return 0, fmt.Errorf("variable %s: table requires positive=%q, got %q", name, entry.Positive, positive)
	}

	v := &variable{name: name, units: units, positive: positive, axes: axes, size: 1}
	for i, id := range axes {
		if int(id) < 0 || int(id) >= len(a.axes) {
			return 0, fmt.Errorf("variable %s: unknown axis id %d", name, id)
		}
		ax := a.axes[id]
		if ax.Name == AxisTime {
			if i != 0 {
				return 0, fmt.Errorf("variable %s: time must be the first axis", name)
			}
			v.timed = true
			continue
		}
		v.shape = append(v.shape, ax.Len())
		v.size *= ax.Len()
	}
	a.v = v
	a.log.Info("variable defined", "variable", name, "units", units, "positive", positive, "shape", v.shape, "timed", v.timed)
	return 0, nil
}

// WriteTimestep implements Session.
func (a *Archive) WriteTimestep(id VarID, data []float64, t float64, bounds [2]float64) error {
	v, err := a.lookup(id, len(data))
	if err != nil {
		return err
	}
	if !v.timed {
		return fmt.Errorf("variable %s has no time axis", v.name)
	}
	if a.steps > 0 && !(t > a.last) {
		return fmt.Errorf("variable %s: time %v does not follow %v", v.name, t, a.last)
	}
	if a.steps >= a.axes[v.axes[0]].Length {
		return fmt.Errorf("variable %s: more than %d timesteps written", v.name, a.axes[v.axes[0]].Length)
	}
	if err := a.ensureOutput(); err != nil {
		return err
	}

	k := a.steps
	begin := make([]int, len(v.shape)+1)
	begin[0] = k
	end := []int{k}
	for _, n := range v.shape {
		end = append(end, n-1)
	}
	if err := write(a.out.nc.Writer(v.name, begin, end), toFloat32(data)); err != nil {
		return fmt.Errorf("writing %s timestep %d: %w", v.name, k, err)
	}
	if err := write(a.out.nc.Writer("time", []int{k}, []int{k}), []float64{t}); err != nil {
		return fmt.Errorf("writing time %d: %w", k, err)
	}
	if err := write(a.out.nc.Writer("time_bnds", []int{k, 0}, []int{k, 1}), []float64{bounds[0], bounds[1]}); err != nil {
		return fmt.Errorf("writing time bounds %d: %w", k, err)
	}
	a.steps++
	a.last = t
	a.log.Debug("timestep written", "variable", v.name, "index", k, "time", t)
	return nil
}

// Write implements Session.
func (a *Archive) Write(id VarID, data []float64) error {
	v, err := a.lookup(id, len(data))
	if err != nil {
		return err
	}
	if v.timed {
		return fmt.Errorf("variable %s has a time axis; use WriteTimestep", v.name)
	}
	if err := a.ensureOutput(); err != nil {
		return err
	}
	if err := write(a.out.nc.Writer(v.name, nil, nil), toFloat32(data)); err != nil {
		return fmt.Errorf("writing %s: %w", v.name, err)
	}
	a.steps = 1
	a.log.Info("fixed field written", "variable", v.name)
	return nil
}

func (a *Archive) lookup(id VarID, n int) (*variable, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if a.v == nil || id != 0 {
		return nil, fmt.Errorf("unknown variable id %d", id)
	}
	if n != a.v.size {
		return nil, fmt.Errorf("variable %s: got %d values, expected %d", a.v.name, n, a.v.size)
	}
	return a.v, nil
}

// Close implements Session.
func (a *Archive) Close() (string, error) {
	if a.closed {
		if a.final == "" {
			return "", ErrClosed
		}
		return a.final, nil
	}
	a.closed = true
	defer release()
	defer a.closeLog()

	if a.out == nil {
		a.log.Error("session closed without data")
		return "", errors.New("no data was written")
	}
	if a.v.timed && a.steps != a.axes[a.v.axes[0]].Length {
		a.discard()
		return "", fmt.Errorf("variable %s: wrote %d of %d timesteps", a.v.name, a.steps, a.axes[a.v.axes[0]].Length)
	}
	if err := a.out.f.Close(); err != nil {
		os.Remove(a.out.staged)
		return "", fmt.Errorf("failed to flush output: %w", err)
	}
	if a.opts.Policy == Preserve {
		if _, err := os.Stat(a.out.final); err == nil {
			os.Remove(a.out.staged)
			return "", fmt.Errorf("output %s already exists", a.out.final)
		}
	}
	if err := os.Rename(a.out.staged, a.out.final); err != nil {
		os.Remove(a.out.staged)
		return "", fmt.Errorf("failed to move output into place: %w", err)
	}
	a.final = a.out.final
	a.log.Info("session closed", "output", a.final, "timesteps", a.steps)
	return a.final, nil
}

// Abort implements Session.
func (a *Archive) Abort() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.discard()
	a.log.Warn("session aborted")
	a.closeLog()
	release()
	return nil
}

func (a *Archive) discard() {
	if a.out != nil {
		a.out.f.Close()
		os.Remove(a.out.staged)
	}
}

// ensureOutput creates the staged output file once every axis and the
// variable are known.
func (a *Archive) ensureOutput() error {
	if a.out != nil {
		return nil
	}
	v := a.v
	final, err := a.meta.OutputPath(a.opts.OutputDir, a.table.ID, v.name)
	if err != nil {
		return err
	}
	if a.opts.Policy == Preserve {
		if _, err := os.Stat(final); err == nil {
			return fmt.Errorf("output %s already exists", final)
		}
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	h, err := a.header()
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(final), "."+filepath.Base(final)+".*")
	if err != nil {
		return fmt.Errorf("failed to stage output: %w", err)
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("failed to create output: %w", err)
	}
	a.out = &output{f: f, nc: nc, staged: f.Name(), final: final}

	for _, id := range v.axes {
		ax := a.axes[id]
		if ax.Name == AxisTime {
			continue
		}
		if err := write(nc.Writer(ax.Name, nil, nil), ax.Values); err != nil {
			return fmt.Errorf("writing axis %s: %w", ax.Name, err)
		}
		if ax.Bounds != nil {
			flat := make([]float64, 0, 2*len(ax.Bounds))
			for _, b := range ax.Bounds {
				flat = append(flat, b[0], b[1])
			}
			if err := write(nc.Writer(ax.Name+"_bnds", nil, nil), flat); err != nil {
				return fmt.Errorf("writing axis %s bounds: %w", ax.Name, err)
			}
		}
	}
	a.log.Info("output staged", "output", final)
	return nil
}

func (a *Archive) header() (*cdf.Header, error) {
	v := a.v
	var dims []string
	var lengths []int
	var varDims []string
	needBnds := false
	for _, id := range v.axes {
		ax := a.axes[id]
		dims = append(dims, ax.Name)
		varDims = append(varDims, ax.Name)
		if ax.Name == AxisTime {
			lengths = append(lengths, ax.Length)
			needBnds = true
		} else {
			lengths = append(lengths, ax.Len())
			needBnds = needBnds || ax.Bounds != nil
		}
	}
	if needBnds {
		dims = append(dims, "bnds")
		lengths = append(lengths, 2)
	}
	h := cdf.NewHeader(dims, lengths)

	entry, err := a.table.Entry(v.name)
	if err != nil {
		return nil, err
	}
	for _, kv := range a.meta.Attributes() {
		h.AddAttribute("", kv[0], kv[1])
	}
	h.AddAttribute("", "Conventions", "CF-1.7 CMIP-6.2")
	h.AddAttribute("", "table_id", a.table.ID)
	h.AddAttribute("", "variable_id", v.name)
	if entry.Frequency != "" {
		h.AddAttribute("", "frequency", entry.Frequency)
	}
	if realm := a.table.Header("realm"); realm != "" {
		h.AddAttribute("", "realm", realm)
	}
	extra := make([]string, 0, len(a.opts.Attributes))
	for k := range a.opts.Attributes {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		h.AddAttribute("", k, a.opts.Attributes[k])
	}

	for _, id := range v.axes {
		ax := a.axes[id]
		h.AddVariable(ax.Name, []string{ax.Name}, []float64{0})
		h.AddAttribute(ax.Name, "units", ax.Units)
		h.AddAttribute(ax.Name, "standard_name", ax.Name)
		if ax.Name == AxisTime {
			h.AddAttribute(ax.Name, "axis", "T")
			if ax.Calendar != "" {
				h.AddAttribute(ax.Name, "calendar", ax.Calendar)
			}
			h.AddAttribute(ax.Name, "bounds", "time_bnds")
			h.AddVariable("time_bnds", []string{AxisTime, "bnds"}, []float64{0})
			continue
		}
		switch ax.Name {
		case AxisLatitude:
			h.AddAttribute(ax.Name, "axis", "Y")
		case AxisLongitude:
			h.AddAttribute(ax.Name, "axis", "X")
		}
		if ax.Bounds != nil {
			h.AddAttribute(ax.Name, "bounds", ax.Name+"_bnds")
			h.AddVariable(ax.Name+"_bnds", []string{ax.Name, "bnds"}, []float64{0})
		}
	}

	h.AddVariable(v.name, varDims, []float32{0})
	h.AddAttribute(v.name, "units", v.units)
	if v.positive != "" {
		h.AddAttribute(v.name, "positive", v.positive)
	}
	h.AddAttribute(v.name, "missing_value", []float32{FillValue})
	h.AddAttribute(v.name, "_FillValue", []float32{FillValue})
	h.Define()
	return h, nil
}

func toFloat32(data []float64) []float32 {
	out := make([]float32, len(data))
	for i, x := range data {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = FillValue
			continue
		}
		out[i] = float32(x)
	}
	return out
}

// write stores values through w. A cdf writer reports io.EOF once it reaches
// the end of its region, so EOF after a full write is success.
func write(w cdf.Writer, values interface{}) error {
	n, err := w.Write(values)
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if want := length(values); n < want {
		return fmt.Errorf("short write: %d of %d values", n, want)
	}
	return nil
}

func length(values interface{}) int {
	switch v := values.(type) {
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	}
	return 0
}
