// Package nodestore defines the interface for the mutable evaluation state
// of nodes while an analysis is executed.
//
// The store isolates what changes during evaluation (status, values,
// errors) from what does not: the graph and the properties certified by the
// validator. The executor writes to it; the release builder reads from it
// once every node has finished.
//
// Nodes follow this lifecycle:
//
//	Pending → Running → Completed (with value) OR Failed (with error)
//	Pending → Skipped (an upstream node failed)
package nodestore

import (
	"context"

	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/value"
)

// Status is the evaluation state of a node.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Store holds the evaluation state of the nodes of one execution.
//
// Implementations must be safe for concurrent use: workers evaluate nodes
// in parallel and read the values of upstream nodes while others write.
type Store interface {
	// SetStatus records a lifecycle transition. It does not check that the
	// node exists in the graph.
	SetStatus(ctx context.Context, id nodeid.ID, status Status) error

	// GetStatus returns StatusPending for nodes never written.
	GetStatus(ctx context.Context, id nodeid.ID) (Status, error)

	// SetValue records the value of a completed node.
	SetValue(ctx context.Context, id nodeid.ID, v value.Value) error

	// GetValue returns nil when the node has not completed.
	GetValue(ctx context.Context, id nodeid.ID) (value.Value, error)

	// SetError records why a node failed.
	SetError(ctx context.Context, id nodeid.ID, nodeErr error) error

	// GetError returns nil when the node has not failed.
	GetError(ctx context.Context, id nodeid.ID) (error, error)
}
