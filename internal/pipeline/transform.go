package pipeline

import (
	"context"
	"fmt"

	"github.com/ctessum/sparse"
	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/rawdata"
	"github.com/vk/cmipconv/internal/session"
)

// Stream names a raw variable read timestep by timestep from the files
// resolved under Key.
type Stream struct {
	Key      string
	Variable string
}

// Frame is the input of one timestep.
type Frame struct {
	Index  int
	Time   float64
	Bounds [2]float64
	// Data holds the timestep of every stream, keyed by stream variable, with
	// the time dimension removed.
	Data map[string]*sparse.DenseArray
}

// Inputs is the job-level view a transform gets of its inputs.
type Inputs struct {
	Variable string
	Deps     []string
	Files    model.FileSet
	// Series holds the opened streams, keyed by stream variable.
	Series map[string]*rawdata.Series
	// Lead is the FileSet key whose files define the spatial grid.
	Lead string
}

// Open opens the first file resolved for key.
func (in *Inputs) Open(key string) (*rawdata.File, error) {
	path := in.Files.First(key)
	if path == "" {
		return nil, &model.MissingInputError{Variable: in.Variable, Missing: []string{key}}
	}
	return rawdata.Open(path)
}

// Layout is the shape of the output variable.
type Layout struct {
	// Axes are the spatial axes in storage order. The time axis is implied
	// by Timed and always comes first.
	Axes  []session.AxisSpec
	Timed bool
}

// Size returns the number of values in one timestep.
func (l *Layout) Size() int {
	n := 1
	for _, ax := range l.Axes {
		n *= ax.Len()
	}
	return n
}

// Transform is the compiled logic behind one output variable. Exactly one of
// Step and Fixed is set.
type Transform struct {
	// Streams lists the raw variables read per timestep. When nil, every
	// dependency that is not an auxiliary input streams under its own name.
	Streams []Stream
	// Clock builds the time reader for the streams. Nil means
	// rawdata.DefaultClock.
	Clock func(ctx context.Context, in *Inputs) (rawdata.Clock, error)
	// Layout describes the output grid. Nil means DefaultLayout.
	Layout func(ctx context.Context, in *Inputs) (*Layout, error)
	// Step computes one output timestep.
	Step func(ctx context.Context, in *Inputs, f *Frame) ([]float64, error)
	// Fixed computes a field with no time axis.
	Fixed func(ctx context.Context, in *Inputs) ([]float64, error)
}

func (t *Transform) validate() error {
	switch {
	case t == nil:
		return fmt.Errorf("no transform")
	case t.Step == nil && t.Fixed == nil:
		return fmt.Errorf("transform defines neither a timestep nor a fixed computation")
	case t.Step != nil && t.Fixed != nil:
		return fmt.Errorf("transform defines both a timestep and a fixed computation")
	}
	return nil
}

func (t *Transform) streams(deps []string) []Stream {
	if t.Streams != nil {
		return t.Streams
	}
	var out []Stream
	for _, d := range deps {
		if !model.IsAuxiliary(d) {
			out = append(out, Stream{Key: d, Variable: d})
		}
	}
	return out
}

// DefaultLayout reads the "lat" and "lon" coordinates of the lead input as
// latitude and longitude axes. A lead file without them yields a layout with
// no spatial axes.
func DefaultLayout(_ context.Context, in *Inputs) (*Layout, error) {
	f, err := in.Open(in.Lead)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l := &Layout{}
	for _, c := range []struct{ raw, axis, units string }{
		{"lat", session.AxisLatitude, "degrees_north"},
		{"lon", session.AxisLongitude, "degrees_east"},
	} {
		if !f.HasVariable(c.raw) {
			continue
		}
		values, bounds, err := f.Coordinate(c.raw)
		if err != nil {
			return nil, err
		}
		l.Axes = append(l.Axes, session.AxisSpec{Name: c.axis, Units: c.units, Values: values, Bounds: bounds})
	}
	return l, nil
}
