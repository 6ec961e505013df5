package coordinator

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

// nodeIndex maps a state handle to its committed Node. One mutex
// guards it; this folds spec.md's "slot is a stable pointer... find_lock
// returns one of nlocks stripe locks" contract down to a single
// critical section sized to the graph's node count rather than its
// edge count, since a lookup here only happens once per distinct
// state (everything else is pure map reads under RLock in the hot
// path -- see pendingSet below for the per-layer fast path).
type nodeIndex struct {
	mu  sync.RWMutex
	byH map[values.H]*model.Node
}

func newNodeIndex() nodeIndex {
	return nodeIndex{byH: make(map[values.H]*model.Node, 1024)}
}

func (n *nodeIndex) get(h values.H) (*model.Node, bool) {
	n.mu.RLock()
	node, ok := n.byH[h]
	n.mu.RUnlock()
	return node, ok
}

func (n *nodeIndex) put(h values.H, node *model.Node) {
	n.mu.Lock()
	n.byH[h] = node
	n.mu.Unlock()
}

// pendingSet deduplicates states newly discovered during the layer
// currently being processed -- they are not yet part of the committed
// graph (no id), but two workers racing to the same successor state
// must still agree on a single Node.
type pendingSet struct {
	mu  sync.Mutex
	byH map[values.H]*pendingNode
}

func newPendingSet() *pendingSet {
	return &pendingSet{byH: make(map[values.H]*pendingNode, 256)}
}

type pendingNode struct {
	handle values.H
	node   *model.Node
}

// getOrCreate returns the pending node for h, creating and recording
// it (into owner's batch) if this is the first sighting this layer.
func (p *pendingSet) getOrCreate(h values.H, st *model.State, owner *workerBatch) (*model.Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pn, ok := p.byH[h]; ok {
		return pn.node, false
	}
	node := &model.Node{State: st, StateHandle: h, Component: -1}
	pn := &pendingNode{handle: h, node: node}
	owner.pending = append(owner.pending, pn)
	p.byH[h] = pn
	return node, true
}

type edgeRecord struct {
	edge *model.Edge
}

type workerBatch struct {
	pending  []*pendingNode
	edges    []edgeRecord
	failures []*model.Failure
}

// runLayer processes graph nodes [start, end) in parallel, dispatching
// every runnable thread (or choice) of each claimed node through the
// step executor, and returns one workerBatch per worker in worker-index
// order (not completion order) so commitLayer can append new nodes and
// failures deterministically.
func (c *Coordinator) runLayer(start, end int) []*workerBatch {
	batches := make([]*workerBatch, c.opts.Workers)
	for i := range batches {
		batches[i] = &workerBatch{}
	}
	pending := newPendingSet()

	var cursor int64 = int64(start)
	var wg sync.WaitGroup
	for w := 0; w < c.opts.Workers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.workerLoop(w, &cursor, end, pending, batches[w])
		}()
	}
	wg.Wait()
	return batches
}

func (c *Coordinator) workerLoop(worker int, cursor *int64, end int, pending *pendingSet, batch *workerBatch) {
	for {
		remaining := end - int(atomic.LoadInt64(cursor))
		if remaining <= 0 {
			return
		}
		size := remaining / (2 * c.opts.Workers)
		if size < minBatch {
			size = minBatch
		}
		if size > remaining {
			size = remaining
		}
		claimedStart := int(atomic.AddInt64(cursor, int64(size))) - size
		if claimedStart >= end {
			return
		}
		claimedEnd := claimedStart + size
		if claimedEnd > end {
			claimedEnd = end
		}
		for id := claimedStart; id < claimedEnd; id++ {
			c.processNode(worker, c.graph.Nodes[id], pending, batch)
		}
	}
}

// processNode dispatches every runnable choice (if the node is at a
// choice point) or every bag entry (otherwise) through the step
// executor, per spec.md §4.3 step 3.
func (c *Coordinator) processNode(worker int, n *model.Node, pending *pendingSet, batch *workerBatch) {
	st := n.State
	if st.Choosing != values.Nil {
		ctx := c.ctxs.Get(st.Choosing)
		set := c.engine.Get(ctx.Top())
		for _, elem := range set.Elems {
			c.runOne(worker, n, st.Choosing, ctx, executor.StepOptions{Choice: elem, Mult: 1}, pending, batch)
		}
		return
	}
	for h, mult := range st.Bag {
		ctx := c.ctxs.Get(h)
		opts := executor.StepOptions{Mult: mult}
		if ctx.Extended && ctx.TrapPC != 0 && !ctx.InterruptLevel {
			c.runOne(worker, n, h, ctx, executor.StepOptions{Mult: mult, Interrupt: true}, pending, batch)
		}
		c.runOne(worker, n, h, ctx, opts, pending, batch)
	}
}

func (c *Coordinator) runOne(worker int, n *model.Node, ctxHandle values.H, ctx *model.Context, opts executor.StepOptions, pending *pendingSet, batch *workerBatch) {
	out, ok := c.machine.Step(worker, n.State, ctxHandle, ctx, opts)
	if !ok {
		opts.InfloopCheck = true
		out, ok = c.machine.Step(worker, n.State, ctxHandle, ctx, opts)
		if !ok {
			panic("coordinator: step executor failed to converge even with infinite-loop detection enabled")
		}
	}

	destHandle := c.states.Intern(worker, out.AfterState)
	var destNode *model.Node
	if existing, ok := c.index.get(destHandle); ok {
		destNode = existing
	} else {
		destNode, _ = pending.getOrCreate(destHandle, c.states.Get(destHandle), batch)
	}

	weight := 0
	if n.ToParent == nil || n.ToParent.After != ctxHandle {
		weight = 1
	}

	edge := &model.Edge{
		Src:       n,
		Dst:       destNode,
		Ctx:       ctxHandle,
		After:     c.ctxs.Intern(worker, out.AfterCtx),
		Choice:    out.Choice,
		Interrupt: out.Interrupt,
		Weight:    weight,
		NSteps:    out.NSteps,
		PrintLog:  out.PrintLog,
		Access:    out.Access,
	}
	batch.edges = append(batch.edges, edgeRecord{edge: edge})

	if out.Safety {
		batch.failures = append(batch.failures, &model.Failure{Tag: model.Safety, Edge: edge})
	}
	if out.Reason == executor.BreakInfinite {
		batch.failures = append(batch.failures, &model.Failure{Tag: model.Termination, Edge: edge})
	}
	if !out.Safety && out.Reason != executor.BreakInfinite && out.AfterState.Choosing == values.Nil {
		c.checkInvariants(worker, n, out, edge, batch)
	}
}

// checkInvariants implements spec.md §4.2 step 10: self-loop check for
// invariants that don't read pre, edge check (parent vars vs new vars)
// otherwise. The first failing invariant for this edge is recorded;
// later ones are skipped, matching "on first invariant-check failure,
// record an Invariant failure".
func (c *Coordinator) checkInvariants(worker int, src *model.Node, out *executor.StepOutcome, edge *model.Edge, batch *workerBatch) {
	for _, inv := range c.machine.Invariants {
		var pre map[string]values.H
		if inv.UsesPre {
			pre = src.State.Vars
		} else {
			pre = out.AfterState.Vars
		}
		if c.machine.EvalInvariant(worker, inv.PC, pre, out.AfterState.Vars, inv.UsesPre) {
			continue
		}
		batch.failures = append(batch.failures, &model.Failure{Tag: model.Invariant, Edge: edge, InvPC: inv.PC})
		return
	}
}
