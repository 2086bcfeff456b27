// Package pipeline drives a single variable conversion from raw time series
// to one archival output.
//
// A job opens every streamed raw variable as a rawdata.Series, checks that the
// series agree on their time axis, and then walks the timesteps in strictly
// increasing order. Each timestep is handed to the transform as a Frame and
// the transform's output is written through a session.Session before the
// next timestep is read. Only one input file per raw variable is held in
// memory at a time.
//
// The session is scoped to the job: it is opened after the inputs check out
// and released on every exit path, including a failed transform or a
// cancelled context.
package pipeline
