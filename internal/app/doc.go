// Package app contains the core application logic. It wires configuration,
// logging, the component catalog, datasources, the privacy ledger and
// metrics together and exposes the validate and release flows, decoupled
// from any specific entrypoint like a CLI or server.
package app
