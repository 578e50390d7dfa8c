// Package catalog provides the read-only component schema catalog.
//
// Every component kind an analysis may use is described by a manifest:
// its named arguments (edges to other nodes), its typed options with
// defaults, and the shape of the value it returns. Manifests are HCL files
// embedded in the binary and may be replaced by a directory at startup.
//
// The catalog is checked against the Go option structs of the propagation
// rules when the application starts, so manifests and code cannot drift
// apart silently.
package catalog
