// internal/nodeid/doc.go

/*
Package nodeid provides a type-safe representation for node identifiers
within an analysis graph.

A NodeId is a single identifier segment, e.g. `clamped_income`. Inside an
HCL analysis document other nodes are referenced through the `node` root,
e.g. `data = node.clamped_income`.

This package enforces the identifier schema and centralizes all
formatting and parsing logic.
*/
package nodeid
