// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the runtime vocabulary shared by every stage of a
// conversion run: the per-handler input file sets, the job specification that
// travels to a worker process, the per-job outcome, and the error taxonomy.
//
// # Core Concepts
//
//   - FileSet: for one handler, the ordered list of raw input files per raw
//     variable. Built once by the resolver and read-only afterwards.
//
//   - JobSpec: everything a worker process needs to run one handler. It is
//     plain data so it can cross the process boundary as JSON.
//
//   - JobResult: the outcome of one handler in one run. Exactly one of
//     Succeeded, Skipped, or Failed.
//
//   - Errors: MissingInputError, TableLoadError, and TransformError are typed so
//     callers can use errors.As. Run-wide conditions (timeout, interrupt, no
//     handlers) are sentinels.
//
// Why a separate model package?
//
// The scheduler, the pipeline, the worker protocol, and the status aggregator
// all speak about the same jobs and the same failures. Keeping those types in
// one dependency-free package lets a result produced inside a worker process
// be decoded in the parent into the very same error values, so the summary
// does not care where a job ran.
package model
