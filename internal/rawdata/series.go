package rawdata

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
	"github.com/vk/cmipconv/internal/model"
)

// TimeAxis is the time coordinate of one file.
type TimeAxis struct {
	Values   []float64
	Bounds   [][2]float64
	Units    string
	Calendar string
}

// Clock extracts the time coordinate of a file holding variable v.
type Clock interface {
	Times(f *File, v string) (*TimeAxis, error)
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func(f *File, v string) (*TimeAxis, error)

// Times calls fn.
func (fn ClockFunc) Times(f *File, v string) (*TimeAxis, error) { return fn(f, v) }

// DefaultClock reads the "time" coordinate and its bounds.
var DefaultClock Clock = ClockFunc(func(f *File, _ string) (*TimeAxis, error) {
	values, bounds, err := f.Coordinate("time")
	if err != nil {
		return nil, err
	}
	return &TimeAxis{
		Values:   values,
		Bounds:   bounds,
		Units:    f.Attribute("time", "units"),
		Calendar: f.Attribute("time", "calendar"),
	}, nil
})

// boundTolerance absorbs float32 rounding in stored bounds.
const boundTolerance = 1e-6

type span struct {
	path  string
	times *TimeAxis
	first int
}

// Series is one raw variable spread across ordered, time-contiguous files.
// Data is read one file at a time and only the current file is kept.
type Series struct {
	variable string
	spans    []span
	total    int
	units    string
	calendar string

	cur     int
	curData *sparse.DenseArray
}

// OpenSeries reads the time coordinate of every file and validates that the
// files are in strictly increasing time order and that each file starts where
// the previous one ends. A violation
// is reported as model.ErrInvalidFileSet.
func OpenSeries(variable string, paths []string, clock Clock) (*Series, error) {
	if clock == nil {
		clock = DefaultClock
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s has no input files", model.ErrInvalidFileSet, variable)
	}
	s := &Series{variable: variable, cur: -1}
	for i, p := range paths {
		f, err := Open(p)
		if err != nil {
			return nil, err
		}
		if !f.HasVariable(variable) {
			f.Close()
			return nil, fmt.Errorf("rawdata: %s does not contain %s", p, variable)
		}
		ta, err := clock.Times(f, variable)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("rawdata: time axis of %s: %w", p, err)
		}
		if err := checkIncreasing(ta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrInvalidFileSet, p, err)
		}
		if i == 0 {
			s.units, s.calendar = ta.Units, ta.Calendar
		} else {
			if ta.Units != s.units {
				return nil, fmt.Errorf("%w: %s uses time units %q, expected %q", model.ErrInvalidFileSet, p, ta.Units, s.units)
			}
			prev := s.spans[i-1].times
			if err := checkFollows(prev, ta); err != nil {
				return nil, fmt.Errorf("%w: %s after %s: %v", model.ErrInvalidFileSet, p, s.spans[i-1].path, err)
			}
		}
		s.spans = append(s.spans, span{path: p, times: ta, first: s.total})
		s.total += len(ta.Values)
	}
	return s, nil
}

func checkIncreasing(ta *TimeAxis) error {
	if len(ta.Values) == 0 {
		return fmt.Errorf("empty time axis")
	}
	for i := 1; i < len(ta.Values); i++ {
		if !(ta.Values[i] > ta.Values[i-1]) {
			return fmt.Errorf("time %v at index %d does not follow %v", ta.Values[i], i, ta.Values[i-1])
		}
	}
	return nil
}

func checkFollows(prev, next *TimeAxis) error {
	last := prev.Values[len(prev.Values)-1]
	first := next.Values[0]
	if !(first > last) {
		return fmt.Errorf("first time %v is not after previous last time %v", first, last)
	}
	if len(prev.Bounds) > 0 && len(next.Bounds) > 0 {
		end, start := prev.Bounds[len(prev.Bounds)-1][1], next.Bounds[0][0]
		switch {
		case start < end-boundTolerance:
			return fmt.Errorf("time bounds overlap")
		case start > end+boundTolerance:
			return fmt.Errorf("gap in time: previous file ends at %v, next starts at %v", end, start)
		}
	}
	return nil
}

// Variable returns the raw variable name.
func (s *Series) Variable() string { return s.variable }

// Len returns the total number of timesteps across all files.
func (s *Series) Len() int { return s.total }

// Units returns the time units shared by all files.
func (s *Series) Units() string { return s.units }

// Calendar returns the calendar of the first file.
func (s *Series) Calendar() string { return s.calendar }

// Files returns the ordered file paths.
func (s *Series) Files() []string {
	out := make([]string, len(s.spans))
	for i, sp := range s.spans {
		out[i] = sp.path
	}
	return out
}

// Time returns the time value and bounds at global index i.
func (s *Series) Time(i int) (float64, [2]float64) {
	sp := s.spans[s.locate(i)]
	k := i - sp.first
	var b [2]float64
	if k < len(sp.times.Bounds) {
		b = sp.times.Bounds[k]
	} else {
		b = [2]float64{math.NaN(), math.NaN()}
	}
	return sp.times.Values[k], b
}

// Slice returns the data of timestep i with the time dimension removed. The
// file holding i is read on first access and released when a later file is
// needed.
func (s *Series) Slice(i int) (*sparse.DenseArray, error) {
	if i < 0 || i >= s.total {
		return nil, fmt.Errorf("rawdata: %s: timestep %d out of range [0,%d)", s.variable, i, s.total)
	}
	idx := s.locate(i)
	if idx != s.cur {
		f, err := Open(s.spans[idx].path)
		if err != nil {
			return nil, err
		}
		data, err := f.Read(s.variable)
		f.Close()
		if err != nil {
			return nil, err
		}
		if len(data.Shape) == 0 || data.Shape[0] != len(s.spans[idx].times.Values) {
			return nil, fmt.Errorf("rawdata: %s: %s has %v records, time axis has %d",
				s.spans[idx].path, s.variable, data.Shape, len(s.spans[idx].times.Values))
		}
		s.cur, s.curData = idx, data
	}
	return timestep(s.curData, i-s.spans[idx].first), nil
}

func (s *Series) locate(i int) int {
	for j := len(s.spans) - 1; j >= 0; j-- {
		if i >= s.spans[j].first {
			return j
		}
	}
	return 0
}

// timestep copies record k out of a [time, ...] array.
func timestep(data *sparse.DenseArray, k int) *sparse.DenseArray {
	rest := data.Shape[1:]
	if len(rest) == 0 {
		out := sparse.ZerosDense(1)
		out.Elements[0] = data.Elements[k]
		return out
	}
	out := sparse.ZerosDense(rest...)
	n := len(out.Elements)
	copy(out.Elements, data.Elements[k*n:(k+1)*n])
	return out
}
