// Package inmemorystore provides an ephemeral, thread-safe, in-memory
// implementation of the nodestore.Store interface.
//
// One store is created per execution and discarded with it. State lives in
// sync.Maps: the key space is fixed once the graph is known while values
// change as workers finish, and every node's state is written by exactly one
// worker.
package inmemorystore

import (
	"context"
	"sync"

	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/nodestore"
	"github.com/vk/dpgraph/internal/value"
)

// Store is an in-memory implementation of nodestore.Store.
type Store struct {
	states sync.Map // nodeid.ID -> nodestore.Status
	values sync.Map // nodeid.ID -> value.Value
	errors sync.Map // nodeid.ID -> error
}

// New creates a new, empty in-memory node state store.
func New() *Store {
	return &Store{}
}

var _ nodestore.Store = (*Store)(nil)

func (s *Store) SetStatus(_ context.Context, id nodeid.ID, status nodestore.Status) error {
	s.states.Store(id, status)
	return nil
}

func (s *Store) GetStatus(_ context.Context, id nodeid.ID) (nodestore.Status, error) {
	status, ok := s.states.Load(id)
	if !ok {
		return nodestore.StatusPending, nil
	}
	return status.(nodestore.Status), nil
}

func (s *Store) SetValue(_ context.Context, id nodeid.ID, v value.Value) error {
	s.values.Store(id, v)
	return nil
}

func (s *Store) GetValue(_ context.Context, id nodeid.ID) (value.Value, error) {
	v, ok := s.values.Load(id)
	if !ok {
		return nil, nil
	}
	return v.(value.Value), nil
}

func (s *Store) SetError(_ context.Context, id nodeid.ID, nodeErr error) error {
	s.errors.Store(id, nodeErr)
	return nil
}

func (s *Store) GetError(_ context.Context, id nodeid.ID) (error, error) {
	err, ok := s.errors.Load(id)
	if !ok {
		return nil, nil
	}
	return err.(error), nil
}
