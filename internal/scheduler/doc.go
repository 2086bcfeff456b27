// Package scheduler runs the jobs of a conversion run under one of two
// strategies that share a single Runner contract.
//
// # Strategies
//
// Serial runs jobs one after another in the calling process and stops at
// the first failure. Jobs after the failing one never start and have no
// result.
//
// Pool runs up to a fixed number of jobs at a time, normally through a
// Runner that starts one OS process per job, and waits for all of them. A
// failing job never affects its siblings.
//
// # Cancellation
//
// Both strategies honour the run context. Once it is done no further job is
// started; jobs that never started are reported as such, and the run error
// is the context cause (model.ErrTimeout or model.ErrInterrupted) so callers
// can tell the two apart.
package scheduler
