package model

// Graph is the dense node array of component C5: nodes are appended
// once, in deterministic per-worker id ranges assigned by the
// coordinator between BFS epochs (spec.md §4.3 step 4), never
// reordered or freed afterwards.
type Graph struct {
	Nodes []*Node
}

// NewGraph returns an empty graph with the initial node not yet added.
func NewGraph() *Graph {
	return &Graph{}
}

// Len reports how many nodes have been committed to the graph so far.
func (g *Graph) Len() int { return len(g.Nodes) }

// Reserve grows Nodes to make room for count more entries starting at
// the returned base id, without assigning them yet -- the caller fills
// slots [base, base+count) itself. This lets the coordinator hand each
// worker a contiguous, non-overlapping id range computed from a single
// deterministic pass over per-worker counts (ordered by worker index,
// not completion order), matching the determinism-modulo-worker-count
// property spec.md §8 requires.
func (g *Graph) Reserve(count int) int {
	base := len(g.Nodes)
	g.Nodes = append(g.Nodes, make([]*Node, count)...)
	return base
}

// Set places n at id within a previously Reserve'd range.
func (g *Graph) Set(id int, n *Node) {
	n.ID = id
	g.Nodes[id] = n
}
