package model

// FailureTag identifies the kind of violation recorded in spec.md §7.
type FailureTag int

const (
	Safety FailureTag = iota
	Invariant
	Termination
	Busywait
	Behavior
	Race
)

func (t FailureTag) String() string {
	switch t {
	case Safety:
		return "Safety"
	case Invariant:
		return "Invariant"
	case Termination:
		return "Termination"
	case Busywait:
		return "Busywait"
	case Behavior:
		return "Behavior"
	case Race:
		return "Race"
	default:
		return "Unknown"
	}
}

// Failure is one recorded violation, ordered in the global min-heap by
// (destination node Len, Steps, ID).
type Failure struct {
	Tag   FailureTag
	Edge  *Edge // the edge whose reaching produced the failure, if any
	Node  *Node // the node at which the failure was detected
	InvPC int   // for Invariant: the pc of the failing invariant

	// RaceA and RaceB are the two access infos of a Race failure pair.
	RaceA, RaceB *AccessInfo
}

// sortKey reports the (len, steps, id) tuple used to order failures.
func (f *Failure) sortKey() (int, int, int) {
	n := f.Node
	if n == nil && f.Edge != nil {
		n = f.Edge.Dst
	}
	return n.Len, n.Steps, n.ID
}

// Less implements the ordering for FailureHeap.
func (f *Failure) Less(g *Failure) bool {
	fl, fs, fi := f.sortKey()
	gl, gs, gi := g.sortKey()
	if fl != gl {
		return fl < gl
	}
	if fs != gs {
		return fs < gs
	}
	return fi < gi
}

// FailureHeap is a container/heap-compatible min-heap of failures,
// ordered by (len, steps, id) as spec.md §7 requires. The coordinator
// is the only mutator, and only between epochs.
type FailureHeap []*Failure

func (h FailureHeap) Len() int            { return len(h) }
func (h FailureHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h FailureHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *FailureHeap) Push(x interface{}) { *h = append(*h, x.(*Failure)) }
func (h *FailureHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
