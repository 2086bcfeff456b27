// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines FileSet and the sentinel keys for auxiliary inputs.
//
// Why sentinel keys?
//
// Unstructured-grid handlers depend on files that are not named after a raw
// variable at all: a mesh description, a remapping weights file, a namelist.
// Treating them as pseudo-variables in the same FileSet keeps the resolver and
// the pipeline uniform; the resolver simply knows a different lookup rule for
// each sentinel.
package model

import "sort"

// Auxiliary input keys understood by the resolver.
const (
	// MPASO names the ocean monthly time-series history files.
	MPASO = "MPASO"
	// MPASSI names the sea-ice monthly time-series history files.
	MPASSI = "MPASSI"
	// MPASMesh names the restart file carrying the unstructured mesh.
	MPASMesh = "MPAS_mesh"
	// MPASMap names the remapping weights file.
	MPASMap = "MPAS_map"
	// MPASNamelist names the model namelist, e.g. mpaso_in.
	MPASNamelist = "MPAS_namelist"
)

// IsAuxiliary reports whether dep is one of the sentinel keys rather than a
// raw model variable.
func IsAuxiliary(dep string) bool {
	switch dep {
	case MPASO, MPASSI, MPASMesh, MPASMap, MPASNamelist:
		return true
	}
	return false
}

// FileSet maps a raw dependency name to its ordered input files. For raw
// variables the files cover disjoint, time-contiguous spans in ascending order.
type FileSet map[string][]string

// Files returns the files recorded for dep, or nil.
func (fs FileSet) Files(dep string) []string {
	if fs == nil {
		return nil
	}
	return fs[dep]
}

// First returns the first file recorded for dep, or "" when there is none.
func (fs FileSet) First(dep string) string {
	files := fs.Files(dep)
	if len(files) == 0 {
		return ""
	}
	return files[0]
}

// Missing returns, in the order given, every dependency with no files.
func (fs FileSet) Missing(deps []string) []string {
	var missing []string
	for _, dep := range deps {
		if len(fs.Files(dep)) == 0 {
			missing = append(missing, dep)
		}
	}
	return missing
}

// Keys returns the dependency names in sorted order.
func (fs FileSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy.
func (fs FileSet) Clone() FileSet {
	if fs == nil {
		return nil
	}
	out := make(FileSet, len(fs))
	for k, v := range fs {
		out[k] = append([]string(nil), v...)
	}
	return out
}
