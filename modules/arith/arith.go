package arith

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/cmipconv/internal/model"
	"github.com/vk/cmipconv/internal/pipeline"
	"gonum.org/v1/gonum/floats"
)

// field returns the timestep of stream v, or an error naming it.
func field(f *pipeline.Frame, v string) ([]float64, error) {
	a, ok := f.Data[v]
	if !ok || a == nil {
		return nil, fmt.Errorf("no data for %s", v)
	}
	return a.Elements, nil
}

// NewIdentity copies the lead input unchanged.
func NewIdentity(any) (*pipeline.Transform, error) {
	return &pipeline.Transform{
		Step: func(_ context.Context, in *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, err := field(f, in.Lead)
			if err != nil {
				return nil, err
			}
			return slices.Clone(x), nil
		},
	}, nil
}

// ScaleArgs are the arguments of the scale transform.
type ScaleArgs struct {
	Factor float64 `arg:"factor"`
	Offset float64 `arg:"offset"`
}

// NewScale computes lead * factor + offset.
func NewScale(args any) (*pipeline.Transform, error) {
	a, ok := args.(*ScaleArgs)
	if !ok {
		return nil, fmt.Errorf("scale: unexpected arguments %T", args)
	}
	return &pipeline.Transform{
		Step: func(_ context.Context, in *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, err := field(f, in.Lead)
			if err != nil {
				return nil, err
			}
			out := slices.Clone(x)
			floats.Scale(a.Factor, out)
			floats.AddConst(a.Offset, out)
			return out, nil
		},
	}, nil
}

// SumScaleArgs are the arguments of the sum_scale transform.
type SumScaleArgs struct {
	Factor float64 `arg:"factor"`
}

// NewSumScale adds every streamed input and multiplies the sum by factor.
// pr = (PRECC + PRECL) * 1000 is the canonical use.
func NewSumScale(args any) (*pipeline.Transform, error) {
	a, ok := args.(*SumScaleArgs)
	if !ok {
		return nil, fmt.Errorf("sum_scale: unexpected arguments %T", args)
	}
	return &pipeline.Transform{
		Step: func(_ context.Context, in *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			var out []float64
			for _, dep := range in.Deps {
				if model.IsAuxiliary(dep) {
					continue
				}
				x, err := field(f, dep)
				if err != nil {
					return nil, err
				}
				if out == nil {
					out = slices.Clone(x)
					continue
				}
				if len(x) != len(out) {
					return nil, fmt.Errorf("%s has %d values, expected %d", dep, len(x), len(out))
				}
				floats.Add(out, x)
			}
			if out == nil {
				return nil, fmt.Errorf("nothing to sum")
			}
			floats.Scale(a.Factor, out)
			return out, nil
		},
	}, nil
}

// DifferenceArgs are the arguments of the difference transform.
type DifferenceArgs struct {
	Minuend    string `arg:"minuend"`
	Subtrahend string `arg:"subtrahend"`
}

// NewDifference computes minuend - subtrahend, e.g. rsus = FSDS - FSNS.
func NewDifference(args any) (*pipeline.Transform, error) {
	a, ok := args.(*DifferenceArgs)
	if !ok {
		return nil, fmt.Errorf("difference: unexpected arguments %T", args)
	}
	if a.Minuend == "" || a.Subtrahend == "" {
		return nil, fmt.Errorf("difference: minuend and subtrahend are required")
	}
	return &pipeline.Transform{
		Streams: []pipeline.Stream{
			{Key: a.Minuend, Variable: a.Minuend},
			{Key: a.Subtrahend, Variable: a.Subtrahend},
		},
		Step: func(_ context.Context, _ *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, err := field(f, a.Minuend)
			if err != nil {
				return nil, err
			}
			y, err := field(f, a.Subtrahend)
			if err != nil {
				return nil, err
			}
			if len(x) != len(y) {
				return nil, fmt.Errorf("%s has %d values, %s has %d", a.Minuend, len(x), a.Subtrahend, len(y))
			}
			out := make([]float64, len(x))
			floats.SubTo(out, x, y)
			return out, nil
		},
	}, nil
}

// AddScaledArgs are the arguments of the add_scaled transform.
type AddScaledArgs struct {
	Base   string  `arg:"base"`
	Addend string  `arg:"addend"`
	Factor float64 `arg:"factor"`
}

// NewAddScaled computes base + addend * factor. emiso2 adds the column SO2
// production, converted from molecules cm-2 s-1, to the surface flux.
func NewAddScaled(args any) (*pipeline.Transform, error) {
	a, ok := args.(*AddScaledArgs)
	if !ok {
		return nil, fmt.Errorf("add_scaled: unexpected arguments %T", args)
	}
	if a.Base == "" || a.Addend == "" {
		return nil, fmt.Errorf("add_scaled: base and addend are required")
	}
	return &pipeline.Transform{
		Streams: []pipeline.Stream{
			{Key: a.Base, Variable: a.Base},
			{Key: a.Addend, Variable: a.Addend},
		},
		Step: func(_ context.Context, _ *pipeline.Inputs, f *pipeline.Frame) ([]float64, error) {
			x, err := field(f, a.Base)
			if err != nil {
				return nil, err
			}
			y, err := field(f, a.Addend)
			if err != nil {
				return nil, err
			}
			if len(x) != len(y) {
				return nil, fmt.Errorf("%s has %d values, %s has %d", a.Base, len(x), a.Addend, len(y))
			}
			out := make([]float64, len(x))
			floats.AddScaledTo(out, x, a.Factor, y)
			return out, nil
		},
	}, nil
}
