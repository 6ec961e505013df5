package analyzer

import "github.com/kolkov/hvmcheck/internal/model"

// raceFailures implements spec.md §4.5's data-race scan: for each pair
// of distinct-thread outgoing edges of n touching the same address,
// with at least one write and at least one access outside an atomic
// section, record one Race failure. Only the first offending pair per
// node is reported, matching the one-failure-per-trigger granularity
// used elsewhere in the analyzer.
func raceFailures(n *model.Node) model.FailureHeap {
	edges := n.ForwardEdges()
	var out model.FailureHeap
	for i := 0; i < len(edges); i++ {
		for j := i + 1; j < len(edges); j++ {
			ei, ej := edges[i], edges[j]
			if ei.Ctx == ej.Ctx {
				continue
			}
			if a, b, ok := racyPair(ei, ej); ok {
				out = append(out, &model.Failure{Tag: model.Race, Node: n, RaceA: a, RaceB: b})
				return out
			}
		}
	}
	return out
}

func racyPair(ei, ej *model.Edge) (*model.AccessInfo, *model.AccessInfo, bool) {
	for i := range ei.Access {
		ai := &ei.Access[i]
		for j := range ej.Access {
			aj := &ej.Access[j]
			if ai.Addr != aj.Addr {
				continue
			}
			write := ai.Kind != model.AccessLoad || aj.Kind != model.AccessLoad
			unsynced := ai.AtomicDepth == 0 || aj.AtomicDepth == 0
			if write && unsynced {
				return ai, aj, true
			}
		}
	}
	return nil, nil, false
}
