// Package dag holds the structure of an analysis graph: nodes keyed by
// NodeId and the dependency edges between them.
//
// It provides cycle detection and a deterministic topological order. The
// validator and the executor both traverse the graph through this package;
// neither mutates it after construction.
package dag
