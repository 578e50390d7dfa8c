// Package cli is responsible for parsing command-line arguments, loading
// configuration, validating user input, and handling process-level concerns
// like exit codes. It translates flags, environment and config files into
// the application's internal configuration.
package cli
