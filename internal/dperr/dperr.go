// Package dperr defines the error taxonomy shared by validation and release.
//
// Every failure that crosses a validate or release boundary is one of four
// typed errors. All of them are fatal to the enclosing call; none is retried
// internally.
package dperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind identifies the precise failure inside a category.
type Kind string

const (
	KindCycle                Kind = "cycle"
	KindDanglingReference    Kind = "dangling_reference"
	KindDuplicateNode        Kind = "duplicate_node"
	KindUnknownComponent     Kind = "unknown_component"
	KindMissingArgument      Kind = "missing_argument"
	KindUnexpectedArgument   Kind = "unexpected_argument"
	KindInvalidOption        Kind = "invalid_option"
	KindTypeMismatch         Kind = "type_mismatch"
	KindUndefinedSensitivity Kind = "undefined_sensitivity"
	KindBudgetExceeded       Kind = "budget_exceeded"
	KindInvalidPrivacyUsage  Kind = "invalid_privacy_usage"
	KindInvalidDefinition    Kind = "invalid_privacy_definition"
	KindUnprotectedRelease   Kind = "unprotected_release"
	KindRuntime              Kind = "runtime"
	KindUpstreamFailed       Kind = "upstream_failed"
)

// GraphError reports structural problems: cycles, dangling references,
// duplicate node ids.
type GraphError struct {
	Kind    Kind
	NodeIDs []string
	Message string
}

func (e *GraphError) Error() string {
	return formatError("graph error", e.Kind, e.NodeIDs, e.Message, nil)
}

// TypeError reports schema mismatches between a component and the catalog
// or between connected nodes.
type TypeError struct {
	Kind    Kind
	NodeID  string
	Message string
}

func (e *TypeError) Error() string {
	return formatError("type error", e.Kind, ids(e.NodeID), e.Message, nil)
}

// PrivacyError reports undefined or invalid sensitivities, invalid usages
// and exhausted budgets.
type PrivacyError struct {
	Kind    Kind
	NodeIDs []string
	Message string
}

func (e *PrivacyError) Error() string {
	return formatError("privacy error", e.Kind, e.NodeIDs, e.Message, nil)
}

// EvaluationError reports a runtime failure at a specific node.
type EvaluationError struct {
	Kind   Kind
	NodeID string
	Err    error
}

func (e *EvaluationError) Error() string {
	return formatError("evaluation error", e.Kind, ids(e.NodeID), "", e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Graph builds a GraphError.
func Graph(kind Kind, msg string, nodeIDs ...string) *GraphError {
	return &GraphError{Kind: kind, NodeIDs: nodeIDs, Message: msg}
}

// Type builds a TypeError.
func Type(kind Kind, nodeID, format string, args ...any) *TypeError {
	return &TypeError{Kind: kind, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}

// Privacy builds a PrivacyError.
func Privacy(kind Kind, msg string, nodeIDs ...string) *PrivacyError {
	return &PrivacyError{Kind: kind, NodeIDs: nodeIDs, Message: msg}
}

// Evaluation builds an EvaluationError for a runtime failure.
func Evaluation(nodeID string, err error) *EvaluationError {
	return &EvaluationError{Kind: KindRuntime, NodeID: nodeID, Err: err}
}

// List is a non-empty collection of fatal errors produced by one pass.
type List []error

func (l List) Error() string {
	msgs := make([]string, 0, len(l))
	for _, err := range l {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d error(s) occurred:\n- %s", len(l), strings.Join(msgs, "\n- "))
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (l List) Unwrap() []error {
	return l
}

// ErrOrNil returns nil for an empty list and the list otherwise.
func (l List) ErrOrNil() error {
	if len(l) == 0 {
		return nil
	}
	return l
}

// HasKind reports whether err, or any error it wraps, carries the kind.
func HasKind(err error, kind Kind) bool {
	var (
		ge *GraphError
		te *TypeError
		pe *PrivacyError
		ee *EvaluationError
	)
	var list List
	if errors.As(err, &list) {
		for _, e := range list {
			if HasKind(e, kind) {
				return true
			}
		}
		return false
	}
	switch {
	case errors.As(err, &ge):
		return ge.Kind == kind
	case errors.As(err, &te):
		return te.Kind == kind
	case errors.As(err, &pe):
		return pe.Kind == kind
	case errors.As(err, &ee):
		return ee.Kind == kind
	}
	return false
}

func ids(id string) []string {
	if id == "" {
		return nil
	}
	return []string{id}
}

func formatError(category string, kind Kind, nodeIDs []string, msg string, cause error) string {
	var sb strings.Builder
	sb.WriteString(category)
	sb.WriteString(" (")
	sb.WriteString(string(kind))
	sb.WriteString(")")
	if len(nodeIDs) > 0 {
		sorted := append([]string(nil), nodeIDs...)
		sort.Strings(sorted)
		sb.WriteString(" at ")
		sb.WriteString(strings.Join(sorted, ", "))
	}
	if msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	}
	if cause != nil {
		sb.WriteString(": ")
		sb.WriteString(cause.Error())
	}
	return sb.String()
}
