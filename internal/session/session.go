// Package session defines the archival writer session and its NetCDF
// implementation. A session holds process-global state, so at most one can be
// live in a process at a time; parallel conversions therefore run in separate
// worker processes.
package session

import (
	"errors"
	"sync/atomic"
)

// ErrSessionActive is returned by Open while another session is live in the
// same process.
var ErrSessionActive = errors.New("an archival session is already open in this process")

// ErrClosed is returned by any call on a session after Close or Abort.
var ErrClosed = errors.New("archival session is closed")

// FilePolicy controls what happens when the output artifact already exists.
type FilePolicy int

const (
	// Replace overwrites an existing output.
	Replace FilePolicy = iota
	// Preserve fails rather than overwrite an existing output.
	Preserve
)

// AxisID identifies an axis defined in a session.
type AxisID int

// VarID identifies a variable defined in a session.
type VarID int

// Axis names with special meaning.
const (
	AxisTime      = "time"
	AxisLatitude  = "latitude"
	AxisLongitude = "longitude"
)

// AxisSpec describes an axis. The time axis carries units, calendar, and the
// number of timesteps that will be written; its values arrive with each
// timestep. Other axes carry their coordinate values and, optionally, cell
// bounds.
type AxisSpec struct {
	Name     string
	Units    string
	Calendar string
	Length   int
	Values   []float64
	Bounds   [][2]float64
}

// Len returns the number of points on the axis.
func (a AxisSpec) Len() int {
	if a.Name == AxisTime {
		return a.Length
	}
	return len(a.Values)
}

// Session is the contract of a stateful archival writer.
type Session interface {
	// LoadTable loads the destination table name from the tables directory.
	LoadTable(name string) error
	// DefineAxis registers an axis.
	DefineAxis(spec AxisSpec) (AxisID, error)
	// DefineVariable registers the output variable over previously defined
	// axes. The time axis, when present, must come first.
	DefineVariable(name, units string, axes []AxisID, positive string) (VarID, error)
	// WriteTimestep appends one record. Records must arrive in increasing time.
	WriteTimestep(v VarID, data []float64, t float64, bounds [2]float64) error
	// Write writes a variable that has no time axis.
	Write(v VarID, data []float64) error
	// Close finalizes the output, releases the session, and returns the path
	// of the written artifact.
	Close() (string, error)
	// Abort discards any partial output and releases the session. It is a
	// no-op after Close.
	Abort() error
}

// live guards the single-session-per-process rule.
var live atomic.Bool

func acquire() error {
	if !live.CompareAndSwap(false, true) {
		return ErrSessionActive
	}
	return nil
}

func release() { live.Store(false) }
