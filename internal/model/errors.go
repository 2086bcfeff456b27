// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the error taxonomy of a conversion run.
//
// Why an error kind?
//
// A job running in a worker process cannot hand a Go error value back to its
// parent. Every error is therefore reduced to a WireError (a kind plus the
// fields needed to rebuild it) and reconstructed on the other side with
// ErrorFromWire. Errors that are not part of the taxonomy travel as KindOther
// and come back as plain errors carrying the original message.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Run-wide sentinels.
var (
	// ErrTimeout is the cause recorded when the run-wide wall-clock budget expires.
	ErrTimeout = errors.New("run exceeded its wall-clock timeout")
	// ErrInterrupted is the cause recorded when the operator interrupts the run.
	ErrInterrupted = errors.New("run interrupted by operator")
	// ErrNoHandlers means no handler matched the requested variables.
	ErrNoHandlers = errors.New("no handlers matched the requested variables")
	// ErrInvalidFileSet means the input files of one raw variable overlap or
	// are out of time order.
	ErrInvalidFileSet = errors.New("input files are not time-contiguous")
)

// MissingInputError reports that a handler's dependencies resolved to zero files.
type MissingInputError struct {
	Variable string
	Missing  []string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("%s: no input files found for %s", e.Variable, strings.Join(e.Missing, ", "))
}

// TableLoadError reports that a destination table could not be loaded or does
// not describe the requested variable.
type TableLoadError struct {
	Table string
	Err   error
}

func (e *TableLoadError) Error() string {
	return fmt.Sprintf("failed to load table %s: %v", e.Table, e.Err)
}

func (e *TableLoadError) Unwrap() error { return e.Err }

// TransformError reports a failure while transforming or writing a timestep.
// Step is the zero-based timestep index, or -1 when the failure was not tied
// to a single timestep.
type TransformError struct {
	Variable string
	Step     int
	Err      error
}

func (e *TransformError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("transform %s: %v", e.Variable, e.Err)
	}
	return fmt.Sprintf("transform %s at timestep %d: %v", e.Variable, e.Step, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Error kinds carried across the worker boundary.
const (
	KindMissingInput = "missing_input"
	KindTableLoad    = "table_load"
	KindTransform    = "transform"
	KindTimeout      = "timeout"
	KindInterrupted  = "interrupted"
	KindInvalidFiles = "invalid_fileset"
	KindOther        = "error"
)

// WireError is the serializable form of an error.
type WireError struct {
	Kind     string   `json:"kind"`
	Message  string   `json:"message"`
	Variable string   `json:"variable,omitempty"`
	Table    string   `json:"table,omitempty"`
	Step     int      `json:"step,omitempty"`
	Missing  []string `json:"missing,omitempty"`
}

// ErrorKind classifies err into one of the Kind constants.
func ErrorKind(err error) string {
	var missing *MissingInputError
	var table *TableLoadError
	var transform *TransformError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrInterrupted):
		return KindInterrupted
	case errors.As(err, &missing):
		return KindMissingInput
	case errors.As(err, &table):
		return KindTableLoad
	case errors.Is(err, ErrInvalidFileSet):
		return KindInvalidFiles
	case errors.As(err, &transform):
		return KindTransform
	}
	return KindOther
}

// ToWire converts err into its serializable form. It returns nil for a nil error.
func ToWire(err error) *WireError {
	if err == nil {
		return nil
	}
	w := &WireError{Kind: ErrorKind(err), Message: err.Error()}

	var missing *MissingInputError
	var table *TableLoadError
	var transform *TransformError
	switch w.Kind {
	case KindMissingInput:
		errors.As(err, &missing)
		w.Variable, w.Missing = missing.Variable, missing.Missing
	case KindTableLoad:
		errors.As(err, &table)
		w.Table, w.Message = table.Table, innerMessage(table.Err)
	case KindTransform:
		errors.As(err, &transform)
		w.Variable, w.Step, w.Message = transform.Variable, transform.Step, innerMessage(transform.Err)
	}
	return w
}

// ErrorFromWire rebuilds an error from its serializable form, preserving the
// taxonomy so errors.As and errors.Is keep working in the parent process.
func ErrorFromWire(w *WireError) error {
	if w == nil {
		return nil
	}
	switch w.Kind {
	case KindMissingInput:
		return &MissingInputError{Variable: w.Variable, Missing: w.Missing}
	case KindTableLoad:
		return &TableLoadError{Table: w.Table, Err: errors.New(w.Message)}
	case KindTransform:
		return &TransformError{Variable: w.Variable, Step: w.Step, Err: errors.New(w.Message)}
	case KindInvalidFiles:
		return wrapped{msg: w.Message, sentinel: ErrInvalidFileSet}
	case KindTimeout:
		return wrapped{msg: w.Message, sentinel: ErrTimeout}
	case KindInterrupted:
		return wrapped{msg: w.Message, sentinel: ErrInterrupted}
	}
	return errors.New(w.Message)
}

func innerMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// wrapped keeps a remote message while still matching a local sentinel.
type wrapped struct {
	msg      string
	sentinel error
}

func (w wrapped) Error() string { return w.msg }

func (w wrapped) Unwrap() error { return w.sentinel }
