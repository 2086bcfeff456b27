// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the unit of scheduled work and its outcome.
//
// Why plain data?
//
// A JobSpec is executed either in the calling process (serial strategy) or in
// a freshly started worker process (parallel strategy). Both paths must see
// exactly the same inputs, so the spec carries paths and names only and is
// encoded as JSON when it leaves the process.
package model

import (
	"encoding/json"
	"time"
)

// Mode selects how a job writes its result.
type Mode string

const (
	// ModeStandard writes through the archival session with full metadata.
	ModeStandard Mode = "standard"
	// ModeSimple produces a metadata-free output without the archival session.
	ModeSimple Mode = "simple"
)

// Status is the terminal state of a job.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// JobSpec describes one handler invocation.
type JobSpec struct {
	Variable       string  `json:"variable"`
	Files          FileSet `json:"files"`
	Mode           Mode    `json:"mode"`
	Frequency      string  `json:"frequency"`
	OutputDir      string  `json:"output_dir"`
	TablesDir      string  `json:"tables_dir"`
	MetadataPath   string  `json:"metadata_path"`
	CustomMetadata string  `json:"custom_metadata,omitempty"`
	LogDir         string  `json:"log_dir"`
	HandlersDir    string  `json:"handlers_dir,omitempty"`
	LogLevel       string  `json:"log_level,omitempty"`

	// Err, when set, is a resolution failure recorded before scheduling. The
	// job reports it as its result without running.
	Err error `json:"-"`
}

// JobResult is the outcome of one handler in one run.
type JobResult struct {
	Variable   string        `json:"variable"`
	Status     Status        `json:"status"`
	OutputPath string        `json:"output_path,omitempty"`
	Timesteps  int           `json:"timesteps,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Succeeded builds a successful result.
func Succeeded(variable, outputPath string, timesteps int) *JobResult {
	return &JobResult{Variable: variable, Status: StatusSucceeded, OutputPath: outputPath, Timesteps: timesteps}
}

// Skipped builds a result for a handler that chose not to run.
func Skipped(variable, reason string) *JobResult {
	return &JobResult{Variable: variable, Status: StatusSkipped, Reason: reason}
}

// Failed builds a failed result.
func Failed(variable string, err error) *JobResult {
	return &JobResult{Variable: variable, Status: StatusFailed, Err: err}
}

// OK reports whether the result does not count against the run.
func (r *JobResult) OK() bool {
	return r != nil && r.Status != StatusFailed
}

type jobResultJSON struct {
	Variable   string        `json:"variable"`
	Status     Status        `json:"status"`
	OutputPath string        `json:"output_path,omitempty"`
	Timesteps  int           `json:"timesteps,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Duration   time.Duration `json:"duration"`
	Error      *WireError    `json:"error,omitempty"`
}

// MarshalJSON encodes the result with its error in wire form.
func (r JobResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(jobResultJSON{
		Variable:   r.Variable,
		Status:     r.Status,
		OutputPath: r.OutputPath,
		Timesteps:  r.Timesteps,
		Reason:     r.Reason,
		Duration:   r.Duration,
		Error:      ToWire(r.Err),
	})
}

// UnmarshalJSON decodes a result and rebuilds its error.
func (r *JobResult) UnmarshalJSON(data []byte) error {
	var j jobResultJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	*r = JobResult{
		Variable:   j.Variable,
		Status:     j.Status,
		OutputPath: j.OutputPath,
		Timesteps:  j.Timesteps,
		Reason:     j.Reason,
		Duration:   j.Duration,
		Err:        ErrorFromWire(j.Error),
	}
	return nil
}
