// Package hcl provides the concrete HCL implementation for the configuration
// loading and data conversion interfaces defined in the `config` package.
// It is responsible for manifest parsing, HCL-to-model translation, CTY-to-Go
// binding of transform arguments, and reading the optional run file.
package hcl
