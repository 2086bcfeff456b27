// Package manifests embeds the built-in variable manifests and the
// contracts of the built-in transforms.
package manifests

import "embed"

// FS holds every built-in manifest file.
//
//go:embed *.hcl
var FS embed.FS
