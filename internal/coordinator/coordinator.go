// Package coordinator implements the worker pool / BFS coordinator of
// spec.md component C4: alternating parallel and sequential phases
// that grow the graph one BFS layer at a time.
//
// A "layer" is the set of nodes whose outgoing edges have not yet been
// computed. Within a layer, graph size is fixed; goroutines claim
// batches from a shared cursor and call the step executor (package
// executor) for every runnable thread or choice in each claimed node.
// States discovered this way are deduplicated against both the
// already-committed graph and the other goroutines' discoveries of the
// same layer, then committed as the next layer in a single
// deterministic pass -- ordered by worker index, not completion order,
// so the resulting graph is the same regardless of how the OS
// scheduled the goroutines (spec.md §8 property 1).
package coordinator

import (
	"sort"
	"time"

	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/htable"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

// minBatch mirrors the design's `max(100, remaining/(2*nworkers))`
// batch-claim size.
const minBatch = 100

// Options configures one Run.
type Options struct {
	Workers  int
	Timeout  time.Duration
	Progress func(states, nodes int, elapsed time.Duration)
}

// Result is everything the rest of the checker (SCC engine, analyzer,
// witness reconstructor) needs from exploration.
type Result struct {
	Graph     *model.Graph
	Diameter  int
	Failures  model.FailureHeap
	TimedOut  bool
}

// Coordinator drives the worker pool across BFS layers.
type Coordinator struct {
	opts    Options
	machine *executor.Machine
	engine  *values.Engine
	states  *model.StateRegistry
	ctxs    *model.ContextRegistry

	graph *model.Graph
	index nodeIndex
}

// New creates a coordinator. machine must already have Prog/Invariants
// populated; engine/states/ctxs must be the same registries the
// machine uses (the coordinator only drives mode transitions and
// dedup bookkeeping, it does not re-intern through a separate path).
func New(opts Options, machine *executor.Machine, engine *values.Engine, states *model.StateRegistry, ctxs *model.ContextRegistry) *Coordinator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Coordinator{
		opts:    opts,
		machine: machine,
		engine:  engine,
		states:  states,
		ctxs:    ctxs,
		graph:   model.NewGraph(),
		index:   newNodeIndex(),
	}
}

// Run explores the full reachable graph from the given initial state,
// returning once a fixpoint is reached, a violation is found (the
// current layer is always finished first so the shortest witness is
// preserved), or the timeout elapses.
func (c *Coordinator) Run(initial *model.State, initialCtx *model.Context) *Result {
	start := time.Now()

	ctxHandle := c.ctxs.Intern(0, initialCtx)
	initial.Bag[ctxHandle]++

	initHandle := c.states.Intern(0, initial)
	root := &model.Node{State: c.states.Get(initHandle), StateHandle: initHandle, Component: -1}
	c.graph.Reserve(1)
	c.graph.Set(0, root)
	c.index.put(initHandle, root)

	var failures model.FailureHeap
	diameter := 0
	layerStart, layerEnd := 0, 1

	for {
		if c.opts.Timeout > 0 && time.Since(start) > c.opts.Timeout {
			return &Result{Graph: c.graph, Diameter: diameter, Failures: failures, TimedOut: true}
		}

		c.engine.Table().SetMode(htable.Concurrent)
		perWorker := c.runLayer(layerStart, layerEnd)
		c.engine.Table().SetMode(htable.Sequential)

		if c.engine.Table().GrowPrepare() {
			for w := 0; w < c.opts.Workers; w++ {
				c.engine.Table().MakeStable(w)
			}
			c.engine.Table().FinishGrow()
		}

		newNodes, newFailures := c.commitLayer(perWorker)
		failures = append(failures, newFailures...)
		diameter++

		if c.opts.Progress != nil {
			c.opts.Progress(c.engine.Table().Len(), c.graph.Len(), time.Since(start))
		}

		if len(failures) > 0 || newNodes == 0 {
			sort.Sort(failures)
			return &Result{Graph: c.graph, Diameter: diameter, Failures: failures}
		}

		layerStart, layerEnd = layerEnd, layerEnd+newNodes
	}
}

// commitLayer appends every worker's pending discoveries as the next
// layer, in worker-index order (not completion order), and returns the
// failure records produced while processing the layer just finished.
func (c *Coordinator) commitLayer(perWorker []*workerBatch) (int, model.FailureHeap) {
	total := 0
	for _, wb := range perWorker {
		total += len(wb.pending)
	}
	base := c.graph.Reserve(total)
	cursor := base
	for _, wb := range perWorker {
		for _, pn := range wb.pending {
			c.graph.Set(cursor, pn.node)
			c.index.put(pn.handle, pn.node)
			cursor++
		}
	}

	var failures model.FailureHeap
	for _, wb := range perWorker {
		for _, e := range wb.edges {
			e.edge.Src.AddForward(e.edge)
			e.edge.Dst.AddBackward(e.edge)
			applyShortestPath(e.edge)
		}
		for _, f := range wb.failures {
			failures = append(failures, f)
		}
	}
	return total, failures
}

// applyShortestPath implements spec.md §4.2 step 9: the idempotent
// monotone merge of (len, steps, to_parent). Because commitLayer runs
// single-threaded between epochs, no lock is needed here even though
// the rule is written as if it guarded a race.
func applyShortestPath(e *model.Edge) {
	dst, src := e.Dst, e.Src
	candLen := src.Len + e.Weight
	candSteps := src.Steps + e.NSteps
	if dst.ToParent == nil || dst.ShouldReparent(candLen, candSteps) {
		dst.Len = candLen
		dst.Steps = candSteps
		dst.ToParent = e
	}
}
