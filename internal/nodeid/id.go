// internal/nodeid/id.go
package nodeid

import "sort"

// ReferenceRoot is the root name of HCL traversals that point at other nodes.
const ReferenceRoot = "node"

// ID is the unique identifier of a node in an analysis graph.
type ID string

// String returns the canonical form of the identifier.
func (id ID) String() string {
	return string(id)
}

// Reference renders the identifier as an HCL reference, e.g. `node.sum1`.
func (id ID) Reference() string {
	return ReferenceRoot + "." + string(id)
}

// Sort orders identifiers lexically in place and returns the slice.
func Sort(ids []ID) []ID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Strings converts a slice of identifiers into plain strings.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
