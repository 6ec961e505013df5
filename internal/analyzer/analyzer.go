// Package analyzer implements the post-SCC analysis of spec.md
// component C7: component classification (good / final / bad), busy-wait
// detection, behavior-DFA acceptance, and a data-race scan, each
// producing model.Failure records for the coordinator's min-heap.
package analyzer

import (
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

// Acceptor reports whether a behavior-DFA state is accepting. Supplied
// by package automaton when a -B file was loaded; nil otherwise.
type Acceptor interface {
	Accepting(state int) bool
}

// Options configures one analysis pass.
type Options struct {
	Contexts       *model.ContextRegistry
	DFA            Acceptor // nil if no behavior automaton was supplied
	BusywaitDisabled bool
}

// Analyze classifies every component of g and returns the failures it
// finds. Node.Final is set on every node of a final component as a
// side effect.
func Analyze(g *model.Graph, opts Options) model.FailureHeap {
	components := groupByComponent(g)

	var failures model.FailureHeap
	for comp, nodes := range components {
		if comp < 0 {
			continue // unreachable / not yet labelled
		}
		good := isGood(nodes)
		allSame := isAllSame(nodes, opts.Contexts)
		final := allSame && !good

		if final {
			for _, n := range nodes {
				n.Final = true
				if opts.DFA != nil && !opts.DFA.Accepting(n.State.DFAState) {
					failures = append(failures, &model.Failure{Tag: model.Behavior, Node: n})
				}
			}
			continue
		}

		if !good {
			for _, n := range nodes {
				failures = append(failures, &model.Failure{Tag: model.Termination, Node: n})
			}
		}

		if !opts.BusywaitDisabled && len(nodes) > 1 {
			failures = append(failures, busywaitFailures(nodes, comp, opts.Contexts)...)
		}
	}

	for _, n := range g.Nodes {
		failures = append(failures, raceFailures(n)...)
	}

	return failures
}

func groupByComponent(g *model.Graph) map[int][]*model.Node {
	out := make(map[int][]*model.Node)
	for _, n := range g.Nodes {
		out[n.Component] = append(out[n.Component], n)
	}
	return out
}

// isGood reports whether any outgoing edge of any node in the
// component leads outside it.
func isGood(nodes []*model.Node) bool {
	comp := nodes[0].Component
	for _, n := range nodes {
		for _, e := range n.ForwardEdges() {
			if e.Dst.Component != comp {
				return true
			}
		}
	}
	return false
}

// isAllSame reports whether every node shares the same vars and every
// bag/stopbag context is eternal.
func isAllSame(nodes []*model.Node, contexts *model.ContextRegistry) bool {
	base := nodes[0].State.Vars
	for _, n := range nodes {
		if !varsEqual(n.State.Vars, base) {
			return false
		}
		for h := range n.State.Bag {
			if !contexts.Get(h).Eternal() {
				return false
			}
		}
		for h := range n.State.Stopbag {
			if !contexts.Get(h).Eternal() {
				return false
			}
		}
	}
	return true
}

func varsEqual(a, b map[string]values.H) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
