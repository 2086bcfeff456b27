// Package workerproc runs conversion jobs in child processes.
//
// The archival session keeps process-global state, so parallel jobs cannot
// share a process. The parent re-executes its own binary with the hidden
// worker command, writes the JSON job spec to the child's stdin, and reads
// the JSON result from its stdout. Everything the child logs goes to stderr
// and is forwarded line by line into the parent's log.
//
// Each child runs in its own process group. When the job context ends the
// whole group receives SIGINT, and is killed if it has not exited after the
// grace period.
package workerproc
