// Package executor evaluates a validated analysis and produces a Release.
//
// Nodes run on a pool of workers. A node becomes ready once every node it
// depends on has completed; independent subgraphs therefore evaluate
// concurrently while sharing only the read-only analysis, the certified
// properties and the entropy source. Execution is all-or-nothing: the first
// failure cancels the run, every dependent is skipped and no Release is
// returned.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/dpgraph/internal/analysis"
	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/dag"
	"github.com/vk/dpgraph/internal/datasource"
	"github.com/vk/dpgraph/internal/inmemorystore"
	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/nodestore"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/release"
	"github.com/vk/dpgraph/internal/sampler"
	"github.com/vk/dpgraph/internal/validator"
	"github.com/vk/dpgraph/internal/value"
)

// DefaultWorkers is used when no positive worker count is configured.
const DefaultWorkers = 4

// Executor runs one validated analysis. It is single-use.
type Executor struct {
	analysis   *analysis.Analysis
	report     *validator.Report
	graph      *dag.Graph
	rule       privacy.NeighboringRule
	sampler    *sampler.Sampler
	store      nodestore.Store
	sources    *datasource.Registry
	numWorkers int

	depCounts map[nodeid.ID]*atomic.Int64
	finished  map[nodeid.ID]*atomic.Bool
	wg        sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		e.numWorkers = n
	}
}

// WithStore replaces the default in-memory node store.
func WithStore(s nodestore.Store) Option {
	return func(e *Executor) {
		e.store = s
	}
}

// WithDatasources sets the datasource loaders. Without it only inline
// datasources can be read.
func WithDatasources(r *datasource.Registry) Option {
	return func(e *Executor) {
		e.sources = r
	}
}

// New prepares the execution of a, which must have been certified by
// report. Noise is drawn from s.
func New(a *analysis.Analysis, report *validator.Report, s *sampler.Sampler, opts ...Option) (*Executor, error) {
	if report == nil {
		return nil, errors.New("an analysis must be validated before it is executed")
	}
	g, err := a.Graph()
	if err != nil {
		return nil, err
	}
	rule, err := privacy.LookupNeighboring(a.Definition.Neighboring)
	if err != nil {
		return nil, err
	}
	for _, id := range report.Order {
		kind := a.Components[id].Kind
		if _, ok := evaluators[kind]; !ok {
			return nil, fmt.Errorf("component '%s': no evaluator", kind)
		}
	}

	e := &Executor{
		analysis:   a,
		report:     report,
		graph:      g,
		rule:       rule,
		sampler:    s,
		store:      inmemorystore.New(),
		sources:    datasource.NewRegistry(),
		numWorkers: DefaultWorkers,
		depCounts:  make(map[nodeid.ID]*atomic.Int64, len(report.Order)),
		finished:   make(map[nodeid.ID]*atomic.Bool, len(report.Order)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.numWorkers <= 0 {
		e.numWorkers = DefaultWorkers
	}
	for _, id := range report.Order {
		deps, err := g.Dependencies(id)
		if err != nil {
			return nil, err
		}
		c := &atomic.Int64{}
		c.Store(int64(len(deps)))
		e.depCounts[id] = c
		e.finished[id] = &atomic.Bool{}
	}
	return e, nil
}

// Execute evaluates every node and returns the values of the release
// points. On failure it returns the root-cause EvaluationError and no
// Release.
func (e *Executor) Execute(ctx context.Context) (*release.Release, error) {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan nodeid.ID, len(e.report.Order))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	roots := 0
	for _, id := range e.report.Order {
		if e.depCounts[id].Load() == 0 {
			logger.Debug("Found root node.", "nodeID", id)
			readyChan <- id
			roots++
		}
	}
	e.wg.Add(len(e.report.Order))

	logger.Debug("Starting worker pool.", "workers", e.numWorkers, "roots", roots)
	for i := 0; i < e.numWorkers; i++ {
		go e.worker(runCtx, readyChan, cancel, i)
	}
	e.wg.Wait()
	close(readyChan)

	if err := e.rootCause(ctx); err != nil {
		logger.Info("Release aborted.", "error", err)
		return nil, err
	}

	r := &release.Release{Values: make(map[nodeid.ID]value.Value), Usage: e.report.Usage}
	for _, id := range e.analysis.ReleaseIDs() {
		v, err := e.store.GetValue(ctx, id)
		if err != nil {
			return nil, err
		}
		r.Values[id] = v
	}
	logger.Info("Release computed.", "values", len(r.Values), "usage", r.Usage.String())
	return r, nil
}

// rootCause returns the first failure in evaluation order that was not
// caused by another failure.
func (e *Executor) rootCause(ctx context.Context) error {
	var skipped error
	for _, id := range e.report.Order {
		status, err := e.store.GetStatus(ctx, id)
		if err != nil {
			return err
		}
		switch status {
		case nodestore.StatusFailed:
			nodeErr, err := e.store.GetError(ctx, id)
			if err != nil {
				return err
			}
			return nodeErr
		case nodestore.StatusSkipped:
			if skipped == nil {
				skipped, _ = e.store.GetError(ctx, id)
			}
		}
	}
	return skipped
}
