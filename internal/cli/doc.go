// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// merges flags, CMIPCONV_* environment variables and an optional HCL run
// file into the application's configuration.
package cli
