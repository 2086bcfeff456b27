// Package registry provides the central "glue" between handler manifests and
// the compiled transforms behind them.
//
// The Registry maps the transform names used in manifests (e.g. "sum_scale")
// to the Go code that implements them, and holds the parsed, format-agnostic
// variable definitions loaded from the manifests. Each variable definition
// bound to its transform is a Handler, keyed by output variable name.
//
// During startup the registry is populated and then validated, so that a
// manifest asking for an argument the Go transform does not accept, or with
// the wrong type, fails the run before any job is scheduled.
package registry
