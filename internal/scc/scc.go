// Package scc implements the SCC decomposition engine of spec.md
// component C6: a parallel forward-backward decomposition over the
// committed node array, producing the Component id every node carries
// forward into the analyzer (package analyzer).
//
// Classic (sequential) Tarjan threads a single low-link stack through
// the whole graph and does not parallelize; the forward-backward
// method below -- pick a pivot, compute its forward- and
// backward-reachable sets within the current range, the intersection
// is one SCC, the remainder splits into up to three independent child
// ranges -- is the divide-and-conquer reformulation spec.md §4.4's
// worker-pulled task queue of half-open ranges is built around, and is
// embarrassingly parallel since sibling ranges share no state once
// split.
package scc

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/hvmcheck/internal/model"
)

// Decompose labels every reachable node's Component field with its
// strongly connected component id (0-based, no ordering guarantee) and
// returns the component count. workers goroutines pull ranges from a
// shared queue until it drains.
func Decompose(g *model.Graph, workers int) int {
	n := g.Len()
	if n == 0 {
		return 0
	}
	if workers < 1 {
		workers = 1
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	var compCounter int64
	q := newTaskQueue()
	q.push(0, n)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				t, ok := q.pop()
				if !ok {
					return
				}
				children := processRange(g, order, t.lo, t.hi, &compCounter)
				for _, c := range children {
					q.push(c.lo, c.hi)
				}
				q.finish()
			}
		}()
	}
	wg.Wait()

	return int(atomic.LoadInt64(&compCounter))
}

// processRange runs one forward-backward split over order[lo:hi],
// labelling the pivot's SCC in place and repacking order[lo:hi] into
// (forward-only | backward-only | neither) so the returned ranges are
// contiguous windows a sibling worker can claim independently.
func processRange(g *model.Graph, order []int, lo, hi int, compCounter *int64) []rangeTask {
	if hi-lo <= 0 {
		return nil
	}
	if hi-lo == 1 {
		g.Nodes[order[lo]].Component = int(atomic.AddInt64(compCounter, 1)) - 1
		return nil
	}

	members := make(map[int]bool, hi-lo)
	for i := lo; i < hi; i++ {
		members[order[i]] = true
	}
	pivot := order[lo]

	fwd := reach(g, pivot, members, true)
	bwd := reach(g, pivot, members, false)

	comp := int(atomic.AddInt64(compCounter, 1)) - 1
	for id := range fwd {
		if bwd[id] {
			g.Nodes[id].Component = comp
		}
	}

	var fOnly, bOnly, neither []int
	for i := lo; i < hi; i++ {
		id := order[i]
		switch inF, inB := fwd[id], bwd[id]; {
		case inF && inB:
			// already labelled above
		case inF:
			fOnly = append(fOnly, id)
		case inB:
			bOnly = append(bOnly, id)
		default:
			neither = append(neither, id)
		}
	}

	cursor := lo
	write := func(ids []int) (start, end int) {
		start = cursor
		for _, id := range ids {
			order[cursor] = id
			cursor++
		}
		return start, cursor
	}

	var children []rangeTask
	for _, ids := range [][]int{fOnly, bOnly, neither} {
		if s, e := write(ids); e > s {
			children = append(children, rangeTask{s, e})
		}
	}
	return children
}

// reach computes the set of node ids reachable from start by following
// forward (or backward) edges, restricted to candidates in members.
func reach(g *model.Graph, start int, members map[int]bool, forward bool) map[int]bool {
	visited := map[int]bool{start: true}
	stack := []int{start}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := g.Nodes[id]
		var edges []*model.Edge
		if forward {
			edges = n.ForwardEdges()
		} else {
			edges = n.BackwardEdges()
		}
		for _, e := range edges {
			var nb int
			if forward {
				nb = e.Dst.ID
			} else {
				nb = e.Src.ID
			}
			if !members[nb] || visited[nb] {
				continue
			}
			visited[nb] = true
			stack = append(stack, nb)
		}
	}
	return visited
}
