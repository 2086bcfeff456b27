package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/ctessum/sparse"
	"github.com/vk/cmipconv/internal/ctxlog"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/rawdata"
	"github.com/vk/cmipconv/internal/session"
)

// timeTolerance is how far apart two streams' time values may be and still
// count as the same timestep.
const timeTolerance = 1e-6

// Options are the run-wide settings a job is executed with.
type Options struct {
	Mode             model.Mode
	OutputDir        string
	TablesDir        string
	MetadataPath     string
	LogDir           string
	CustomAttributes map[string]string
	Policy           session.FilePolicy
}

// Request is one conversion job.
type Request struct {
	Variable  string
	Table     string
	Units     string
	Positive  string
	Deps      []string
	Files     model.FileSet
	Transform *Transform
	Options   *Options
}

// Output describes a written artifact.
type Output struct {
	Path      string
	Timesteps int
}

// opener starts the archival session of a job. Tests replace it.
var opener = func(opts session.Options) (session.Session, error) {
	return session.Open(opts)
}

// Run executes req to completion. Missing inputs are reported before any
// session work starts.
func Run(ctx context.Context, req *Request) (*Output, error) {
	if missing := req.Files.Missing(req.Deps); len(missing) > 0 {
		return nil, &model.MissingInputError{Variable: req.Variable, Missing: missing}
	}
	t := req.Transform
	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", req.Variable, err)
	}
	opts := req.Options
	if opts == nil {
		opts = &Options{Mode: model.ModeStandard}
	}

	streams := t.streams(req.Deps)
	in := &Inputs{
		Variable: req.Variable,
		Deps:     req.Deps,
		Files:    req.Files,
		Series:   make(map[string]*rawdata.Series, len(streams)),
	}
	if len(streams) > 0 {
		in.Lead = streams[0].Key
	} else {
		for _, d := range req.Deps {
			if !model.IsAuxiliary(d) {
				in.Lead = d
				break
			}
		}
	}

	var lead *rawdata.Series
	if t.Step != nil {
		if len(streams) == 0 {
			return nil, fmt.Errorf("%s: a timed transform needs at least one streamed input", req.Variable)
		}
		var err error
		if lead, err = openStreams(ctx, t, in, streams); err != nil {
			return nil, err
		}
	}

	layoutFn := t.Layout
	if layoutFn == nil {
		layoutFn = DefaultLayout
	}
	layout, err := layoutFn(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: building output grid: %w", req.Variable, err)
	}
	layout.Timed = t.Step != nil

	j := &job{req: req, opts: opts, in: in, layout: layout, lead: lead, streams: streams}
	if opts.Mode == model.ModeSimple {
		return j.runSimple(ctx)
	}
	return j.runStandard(ctx)
}

// openStreams opens every stream as a series and checks that they share
// one time axis length. It returns the lead series.
func openStreams(ctx context.Context, t *Transform, in *Inputs, streams []Stream) (*rawdata.Series, error) {
	clock := rawdata.DefaultClock
	if t.Clock != nil {
		c, err := t.Clock(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Variable, err)
		}
		clock = c
	}
	var lead *rawdata.Series
	for _, s := range streams {
		series, err := rawdata.OpenSeries(s.Variable, in.Files.Files(s.Key), clock)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", in.Variable, err)
		}
		if lead == nil {
			lead = series
		} else if series.Len() != lead.Len() {
			return nil, fmt.Errorf("%w: %s: %s has %d timesteps, %s has %d", model.ErrInvalidFileSet,
				in.Variable, s.Variable, series.Len(), lead.Variable(), lead.Len())
		}
		in.Series[s.Variable] = series
	}
	ctxlog.FromContext(ctx).Debug("Input series opened.", "streams", len(streams), "timesteps", lead.Len())
	return lead, nil
}

type job struct {
	req     *Request
	opts    *Options
	in      *Inputs
	layout  *Layout
	lead    *rawdata.Series
	streams []Stream
}

// sink receives computed timesteps.
type sink func(data []float64, t float64, bounds [2]float64) error

func (j *job) runStandard(ctx context.Context) (*Output, error) {
	logger := ctxlog.FromContext(ctx)
	var logPath string
	if j.opts.LogDir != "" {
		logPath = filepath.Join(j.opts.LogDir, j.req.Variable+".log")
	}
	s, err := opener(session.Options{
		TablesDir:    j.opts.TablesDir,
		LogPath:      logPath,
		MetadataPath: j.opts.MetadataPath,
		OutputDir:    j.opts.OutputDir,
		Policy:       j.opts.Policy,
		Attributes:   j.opts.CustomAttributes,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: opening archival session: %w", j.req.Variable, err)
	}
	defer s.Abort()

	if err := s.LoadTable(j.req.Table); err != nil {
		return nil, err
	}
	var axes []session.AxisID
	if j.layout.Timed {
		id, err := s.DefineAxis(session.AxisSpec{
			Name:     session.AxisTime,
			Units:    j.lead.Units(),
			Calendar: j.lead.Calendar(),
			Length:   j.lead.Len(),
		})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", j.req.Variable, err)
		}
		axes = append(axes, id)
	}
	for _, ax := range j.layout.Axes {
		id, err := s.DefineAxis(ax)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", j.req.Variable, err)
		}
		axes = append(axes, id)
	}
	vid, err := s.DefineVariable(j.req.Variable, j.req.Units, axes, j.req.Positive)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.req.Variable, err)
	}

	var steps int
	if j.layout.Timed {
		steps, err = j.stream(ctx, func(data []float64, t float64, b [2]float64) error {
			return s.WriteTimestep(vid, data, t, b)
		})
	} else {
		steps, err = j.fixed(ctx, func(data []float64, _ float64, _ [2]float64) error {
			return s.Write(vid, data)
		})
	}
	if err != nil {
		return nil, err
	}

	path, err := s.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: closing archival session: %w", j.req.Variable, err)
	}
	logger.Debug("Archival output closed.", "path", path, "timesteps", steps)
	return &Output{Path: path, Timesteps: steps}, nil
}

func (j *job) runSimple(ctx context.Context) (*Output, error) {
	r := &session.SimpleResult{
		Variable: j.req.Variable,
		Units:    j.req.Units,
		Positive: j.req.Positive,
		Axes:     j.layout.Axes,
	}
	var steps int
	var err error
	if j.layout.Timed {
		r.TimeUnits, r.Calendar = j.lead.Units(), j.lead.Calendar()
		r.Times = make([]float64, 0, j.lead.Len())
		steps, err = j.stream(ctx, func(data []float64, t float64, b [2]float64) error {
			r.Times = append(r.Times, t)
			r.TimeBounds = append(r.TimeBounds, b)
			r.Data = append(r.Data, data)
			return nil
		})
	} else {
		steps, err = j.fixed(ctx, func(data []float64, _ float64, _ [2]float64) error {
			r.Data = [][]float64{data}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	path := filepath.Join(j.opts.OutputDir, j.req.Variable+".nc")
	if err := session.WriteSimple(path, r); err != nil {
		return nil, fmt.Errorf("%s: writing simple output: %w", j.req.Variable, err)
	}
	return &Output{Path: path, Timesteps: steps}, nil
}

// stream walks the timesteps of the lead series in order and forwards each
// transformed frame to out.
func (j *job) stream(ctx context.Context, out sink) (int, error) {
	size := j.layout.Size()
	prev := math.Inf(-1)
	n := j.lead.Len()
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return i, fmt.Errorf("%s: stopped before timestep %d: %w", j.req.Variable, i, context.Cause(ctx))
		}
		t, bounds := j.lead.Time(i)
		if !(t > prev) {
			return i, &model.TransformError{Variable: j.req.Variable, Step: i,
				Err: fmt.Errorf("time %v does not follow %v", t, prev)}
		}
		prev = t

		f := &Frame{Index: i, Time: t, Bounds: bounds, Data: make(map[string]*sparse.DenseArray, len(j.streams))}
		for _, s := range j.streams {
			series := j.in.Series[s.Variable]
			if st, _ := series.Time(i); math.Abs(st-t) > timeTolerance {
				return i, &model.TransformError{Variable: j.req.Variable, Step: i,
					Err: fmt.Errorf("%s is at time %v while %s is at %v", s.Variable, st, j.lead.Variable(), t)}
			}
			slice, err := series.Slice(i)
			if err != nil {
				return i, fmt.Errorf("%s: %w", j.req.Variable, err)
			}
			f.Data[s.Variable] = slice
		}

		data, err := j.req.Transform.Step(ctx, j.in, f)
		if err != nil {
			if ctx.Err() != nil {
				return i, fmt.Errorf("%s: stopped at timestep %d: %w", j.req.Variable, i, context.Cause(ctx))
			}
			return i, &model.TransformError{Variable: j.req.Variable, Step: i, Err: err}
		}
		if len(data) != size {
			return i, &model.TransformError{Variable: j.req.Variable, Step: i,
				Err: fmt.Errorf("produced %d values, output grid holds %d", len(data), size)}
		}
		if err := out(data, t, bounds); err != nil {
			return i, fmt.Errorf("%s: timestep %d: %w", j.req.Variable, i, err)
		}
	}
	return n, nil
}

func (j *job) fixed(ctx context.Context, out sink) (int, error) {
	if ctx.Err() != nil {
		return 0, fmt.Errorf("%s: %w", j.req.Variable, context.Cause(ctx))
	}
	data, err := j.req.Transform.Fixed(ctx, j.in)
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("%s: %w", j.req.Variable, context.Cause(ctx))
		}
		return 0, &model.TransformError{Variable: j.req.Variable, Step: -1, Err: err}
	}
	if size := j.layout.Size(); len(data) != size {
		return 0, &model.TransformError{Variable: j.req.Variable, Step: -1,
			Err: fmt.Errorf("produced %d values, output grid holds %d", len(data), size)}
	}
	if err := out(data, 0, [2]float64{}); err != nil {
		return 0, fmt.Errorf("%s: %w", j.req.Variable, err)
	}
	return 1, nil
}
