package executor

import (
	"context"

	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/nodestore"
)

// worker is the core processing loop for a single concurrent worker.
func (e *Executor) worker(ctx context.Context, readyChan chan nodeid.ID, cancel context.CancelFunc, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for id := range readyChan {
		workerLogger := logger.With("workerID", workerID, "nodeID", id)

		if err := ctx.Err(); err != nil {
			e.skip(ctx, id, &dperr.EvaluationError{Kind: dperr.KindUpstreamFailed, NodeID: id.String(), Err: err})
			e.skipDependents(ctx, id)
			continue
		}

		workerLogger.Debug("Worker picked up node for evaluation.")
		_ = e.store.SetStatus(ctx, id, nodestore.StatusRunning)

		v, err := e.evaluate(ctx, id)
		if err != nil {
			workerLogger.Debug("Node evaluation failed.", "error", err)
			_ = e.store.SetError(ctx, id, err)
			_ = e.store.SetStatus(ctx, id, nodestore.StatusFailed)
			cancel()
			e.finish(id)
			e.skipDependents(ctx, id)
			continue
		}

		_ = e.store.SetValue(ctx, id, v)
		_ = e.store.SetStatus(ctx, id, nodestore.StatusCompleted)
		workerLogger.Debug("Node evaluation succeeded.")

		dependents, err := e.graph.Dependents(id)
		if err != nil {
			workerLogger.Error("Failed to get dependents for completed node.", "error", err)
		}
		for _, dep := range dependents {
			if e.depCounts[dep].Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent node.", "dependentID", dep)
				readyChan <- dep
			}
		}
		e.finish(id)
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// skipDependents marks every descendant of a failed or skipped node as
// skipped. Those nodes are never made ready.
func (e *Executor) skipDependents(ctx context.Context, id nodeid.ID) {
	for _, d := range e.graph.Descendants(id) {
		e.skip(ctx, d, &dperr.EvaluationError{
			Kind:   dperr.KindUpstreamFailed,
			NodeID: d.String(),
			Err:    errUpstream(id),
		})
	}
}

func (e *Executor) skip(ctx context.Context, id nodeid.ID, err error) {
	if e.finished[id].Load() {
		return
	}
	_ = e.store.SetError(ctx, id, err)
	_ = e.store.SetStatus(ctx, id, nodestore.StatusSkipped)
	e.finish(id)
}

// finish releases the wait group slot of id exactly once.
func (e *Executor) finish(id nodeid.ID) {
	if e.finished[id].CompareAndSwap(false, true) {
		e.wg.Done()
	}
}
