// internal/nodeid/parser.go
package nodeid

import (
	"fmt"
	"regexp"

	"github.com/hashicorp/hcl/v2"
)

// idRegex matches a single identifier segment.
var idRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// isReservedName checks for names that would be ambiguous inside references.
func isReservedName(name string) bool {
	return name == ReferenceRoot
}

// Parse validates a raw identifier and returns it as an ID.
func Parse(rawID string) (ID, error) {
	if rawID == "" {
		return "", fmt.Errorf("identifier cannot be empty")
	}
	if !idRegex.MatchString(rawID) {
		return "", fmt.Errorf("invalid identifier format: %q", rawID)
	}
	if isReservedName(rawID) {
		return "", fmt.Errorf("identifier %q is reserved", rawID)
	}
	return ID(rawID), nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(rawID string) ID {
	id, err := Parse(rawID)
	if err != nil {
		panic(err)
	}
	return id
}

// FromTraversal resolves an HCL traversal of the form `node.<id>` into an ID.
func FromTraversal(t hcl.Traversal) (ID, error) {
	if len(t) != 2 {
		return "", fmt.Errorf("node reference must have the form %s.<id>", ReferenceRoot)
	}
	if t.RootName() != ReferenceRoot {
		return "", fmt.Errorf("expected a %q reference, got %q", ReferenceRoot, t.RootName())
	}
	attr, ok := t[1].(hcl.TraverseAttr)
	if !ok {
		return "", fmt.Errorf("node reference must use attribute access, e.g. %s.<id>", ReferenceRoot)
	}
	return Parse(attr.Name)
}
