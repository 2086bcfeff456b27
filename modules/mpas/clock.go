package mpas

import (
	"strings"

	"github.com/vk/cmipconv/internal/rawdata"
)

// TimeVariable holds the mid-interval time of each record in days since the
// simulation start.
const TimeVariable = "timeMonthly_avg_daysSinceStartOfSim"

const defaultStart = "0001-01-01 00:00:00"

// Clock reads the monthly time axis of an MPAS history file. Bounds are the
// calendar month holding each record on the 365-day calendar MPAS runs with.
var Clock rawdata.Clock = rawdata.ClockFunc(func(f *rawdata.File, _ string) (*rawdata.TimeAxis, error) {
	values, err := f.ReadFloats(TimeVariable)
	if err != nil {
		return nil, err
	}
	bounds := make([][2]float64, len(values))
	for i, v := range values {
		bounds[i] = rawdata.NoLeapMonthBounds(rawdata.NoLeapMonthIndex(v))
	}
	start := strings.TrimSpace(f.Attribute("", "config_start_time"))
	if start == "" {
		start = defaultStart
	}
	return &rawdata.TimeAxis{
		Values:   values,
		Bounds:   bounds,
		Units:    "days since " + strings.Replace(start, "_", " ", 1),
		Calendar: "noleap",
	}, nil
})
