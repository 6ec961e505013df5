package analyzer

import (
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

// busywaitFailures runs the DFS of spec.md §4.5 for every (node,
// context) pair in a multi-node component: for each context c in N's
// bag, follow edges with edge.Ctx == c; a chain that leaves the
// component means c is not busy-waiting. If every chain either returns
// to N itself or runs out of matching edges (including re-entering a
// node already on the current DFS stack, which this implementation
// also treats as exhausted to guarantee termination), c is
// busy-waiting at N.
func busywaitFailures(nodes []*model.Node, comp int, contexts *model.ContextRegistry) model.FailureHeap {
	var out model.FailureHeap
	for _, n := range nodes {
		for h := range n.State.Bag {
			if !busyWaitsAt(n, n, h, comp) {
				continue
			}
			out = append(out, &model.Failure{Tag: model.Busywait, Node: n})
		}
	}
	return out
}

// busyWaitsAt reports whether every outgoing chain of edge.Ctx == ctxHandle
// steps from n, restricted to comp, either returns to start or gets stuck
// (no further matching edge). A chain that leaves the component is genuine
// progress and makes the whole search false -- ctxHandle is the context
// identity as it stood at n, so a recursive call must carry the edge's
// After handle forward, not the identity it had at the previous node. A
// return to start never carries different vars: Node identity is itself a
// hash of the full state including vars, so reaching the same *model.Node
// already guarantees vars match -- there is nothing further to check.
func busyWaitsAt(start, n *model.Node, ctxHandle values.H, comp int) bool {
	if n.Visited {
		return true
	}
	n.Visited = true
	defer func() { n.Visited = false }()

	for _, e := range n.ForwardEdges() {
		if e.Ctx != ctxHandle {
			continue
		}
		if e.Dst.Component != comp {
			return false
		}
		if e.Dst == start {
			continue
		}
		if !busyWaitsAt(start, e.Dst, e.After, comp) {
			return false
		}
	}
	return true
}
