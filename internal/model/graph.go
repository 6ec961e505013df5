package model

import "github.com/kolkov/hvmcheck/internal/values"

// AccessKind distinguishes the kind of shared-memory access recorded
// for race detection.
type AccessKind uint8

const (
	AccessLoad AccessKind = iota
	AccessStore
	AccessDel
)

// AccessInfo records one load/store/delete emitted during a macrostep,
// for later race analysis.
type AccessInfo struct {
	PC          int
	AtomicDepth int
	Mult        int
	Kind        AccessKind
	Addr        string // variable name touched
}

// Edge is one macrostep: an edge of the Kripke structure.
//
// Edges are allocated in an append-only arena and never freed; Src/Dst
// reference nodes by pointer (the node arena is itself append-only and
// node pointers are stable once published), and FwdNext/BwdNext thread
// the edge into its source's forward list and destination's backward
// list respectively -- singly linked intrusive lists through the edge
// arena, per spec.md §9's re-architecture guidance.
type Edge struct {
	Src, Dst *Node

	Ctx   values.H // thread identity before the step
	After values.H // interned context after the step

	Choice    values.H // value chosen at a choose-point, or 0
	Interrupt bool

	Weight int // 0 if same-thread continuation of parent, else 1
	NSteps int // VM-instruction count in this macrostep

	PrintLog []values.H // values printed during the macrostep
	Access   []AccessInfo

	FwdNext *Edge // next edge in Src.Fwd
	BwdNext *Edge // next edge in Dst.Bwd
}

// Node is one reachable State, plus the bookkeeping the rest of the
// checker threads through it.
type Node struct {
	ID int

	State       *State
	StateHandle values.H

	Len   int // shortest path length (sum of edge weights) from root
	Steps int // VM-instruction count on that shortest path

	ToParent *Edge // incoming edge on the shortest path

	Fwd *Edge // head of outgoing edge list
	Bwd *Edge // head of incoming edge list

	Component int // SCC id, set by the SCC engine; -1 until labelled

	Visited   bool
	Reachable bool
	Final     bool
}

// AddForward links e into n's outgoing list. It takes no lock; the
// coordinator links edges in commitLayer's single-threaded pass
// between layers.
func (n *Node) AddForward(e *Edge) {
	e.FwdNext = n.Fwd
	n.Fwd = e
}

// AddBackward links e into n's incoming list. Like AddForward it takes
// no lock; the caller must have exclusive access to n.
func (n *Node) AddBackward(e *Edge) {
	e.BwdNext = n.Bwd
	n.Bwd = e
}

// ForwardEdges returns the outgoing edges of n as a slice, for callers
// that want a simple range rather than walking the linked list by hand.
func (n *Node) ForwardEdges() []*Edge {
	var out []*Edge
	for e := n.Fwd; e != nil; e = e.FwdNext {
		out = append(out, e)
	}
	return out
}

// BackwardEdges is the incoming-edge analogue of ForwardEdges.
func (n *Node) BackwardEdges() []*Edge {
	var in []*Edge
	for e := n.Bwd; e != nil; e = e.BwdNext {
		in = append(in, e)
	}
	return in
}

// ShouldReparent reports whether a candidate (len, steps) pair improves
// on n's current shortest-path record. Per spec.md's open question,
// ties are last-writer-wins: equal (len, steps) replaces the existing
// parent.
func (n *Node) ShouldReparent(candidateLen, candidateSteps int) bool {
	if candidateLen < n.Len {
		return true
	}
	return candidateLen == n.Len && candidateSteps <= n.Steps
}
