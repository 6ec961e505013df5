// Package witness implements the witness-path reconstructor of
// spec.md component C8: given the earliest recorded failure, it walks
// ToParent back to the root, replays every macrostep with detailed
// per-instruction diffs, and (for invariant failures) appends the
// synthetic predicate-evaluation macrostep spec.md §4.6 describes.
package witness

import (
	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/ops"
	"github.com/kolkov/hvmcheck/internal/values"
)

// Macrostep is one reported scheduled turn, matching spec.md §6's
// output object: id, len, tid, shared, name, optional choice, a
// context summary, an ordered microsteps list, and a ctxbag.
type Macrostep struct {
	ID     int
	Len    int
	Tid    int
	Shared bool
	Name   string

	HasChoice bool
	Choice    values.H

	// Value is the "corresponding value" supplement of SPEC_FULL.md §4
	// (charm.c's macrostep.value): the printed handle, when the last
	// instruction of this macrostep was Print.
	HasValue bool
	Value    values.H

	// Context is the full process-and-callstack snapshot spec.md §6
	// asks for: the context as it stood after this macrostep.
	Context *model.Context

	Microsteps []executor.Microstep

	// CtxBag is the destination state's runnable-context multiset,
	// reported alongside every macrostep per spec.md §6.
	CtxBag map[values.H]int
}

// Witness is the full reconstructed path for one failure.
type Witness struct {
	Tag        model.FailureTag
	InvPC      int
	Macrosteps []Macrostep
}

// Reconstruct replays the shortest path to failure's triggering node
// (or, for edge-anchored failures, the edge itself) and produces the
// ordered macrostep trace spec.md §4.6/§6 describe.
func Reconstruct(machine *executor.Machine, contexts *model.ContextRegistry, failure *model.Failure) *Witness {
	edges := pathEdges(failure)

	w := &Witness{Tag: failure.Tag, InvPC: failure.InvPC}
	tids := newTidAssigner()

	for _, e := range edges {
		w.Macrosteps = append(w.Macrosteps, replayEdge(machine, contexts, e, tids))
	}

	if failure.Tag == model.Invariant {
		w.Macrosteps = append(w.Macrosteps, replayInvariant(machine, failure, tids))
	}

	trimThreadTails(w.Macrosteps)
	for i := range w.Macrosteps {
		w.Macrosteps[i].ID = i + 1
	}
	return w
}

// pathEdges returns, in root-to-failure forward order, the edges on
// the shortest path to the node the failure is attached to. Edge-
// anchored failures (Safety, Invariant, an in-macrostep Termination)
// append the triggering edge itself even though it may not be
// edge.Dst.ToParent (a node can be reached by more than one edge; the
// failure is attached to the specific edge whose execution produced
// it, not necessarily the shortest-path parent of its destination).
func pathEdges(f *model.Failure) []*model.Edge {
	if f.Edge != nil {
		prefix := pathTo(f.Edge.Src)
		return append(prefix, f.Edge)
	}
	return pathTo(f.Node)
}

// pathTo walks n.ToParent back to the root and returns the edges in
// forward (root-to-n) order.
func pathTo(n *model.Node) []*model.Edge {
	var rev []*model.Edge
	for cur := n; cur.ToParent != nil; cur = cur.ToParent.Src {
		rev = append(rev, cur.ToParent)
	}
	out := make([]*model.Edge, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

// replayEdge re-executes the same (ctx, choice, interrupt) the edge
// recorded, this time with StepOptions.Detail set so every
// instruction's effect is captured.
func replayEdge(machine *executor.Machine, contexts *model.ContextRegistry, e *model.Edge, tids *tidAssigner) Macrostep {
	beforeCtx := contexts.Get(e.Ctx)
	mult := e.Src.State.Bag[e.Ctx]
	if mult == 0 {
		mult = 1
	}

	out, ok := machine.Step(0, e.Src.State, e.Ctx, beforeCtx, executor.StepOptions{
		Choice:    e.Choice,
		Interrupt: e.Interrupt,
		Mult:      mult,
		Detail:    true,
	})
	if !ok {
		// The original exploration already resolved any in-macrostep
		// cycle; a replay mismatch here would be a determinism bug,
		// not a recoverable condition.
		out, _ = machine.Step(0, e.Src.State, e.Ctx, beforeCtx, executor.StepOptions{
			Choice: e.Choice, Interrupt: e.Interrupt, Mult: mult, Detail: true, InfloopCheck: true,
		})
	}

	ms := Macrostep{
		ID:         0,
		Len:        e.Dst.Len,
		Tid:        tids.of(e.Ctx),
		Shared:     len(out.Access) > 0,
		Name:       beforeCtx.Name,
		HasChoice:  e.Choice != values.Nil,
		Choice:     e.Choice,
		Context:    out.AfterCtx,
		Microsteps: out.Microsteps,
		CtxBag:     out.AfterState.Bag,
	}
	// The thread's next macrostep starts from this edge's after-context
	// handle, so that handle keeps the same tid.
	if _, ok := tids.byH[e.After]; !ok {
		tids.byH[e.After] = ms.Tid
	}
	if len(out.PrintLog) > 0 {
		ms.HasValue, ms.Value = true, out.PrintLog[len(out.PrintLog)-1]
	}
	return ms
}

// replayInvariant builds the synthetic macrostep of spec.md §4.6: a
// fabricated context at the invariant's entry pc with args (pre, post)
// pushed on its stack, executed so the reconstructed trace shows the
// predicate evaluation that failed.
func replayInvariant(machine *executor.Machine, f *model.Failure, tids *tidAssigner) Macrostep {
	dst := f.Node
	if dst == nil && f.Edge != nil {
		dst = f.Edge.Dst
	}
	var pre map[string]values.H
	if f.Edge != nil {
		pre = f.Edge.Src.State.Vars
	} else {
		pre = dst.State.Vars
	}
	usesPre := invariantUsesPre(machine, f.InvPC)
	_, micro, preHandle, postHandle := machine.ReplayInvariant(0, f.InvPC, pre, dst.State.Vars, usesPre)

	return Macrostep{
		Tid:        tids.of(values.Nil),
		Name:       "invariant",
		Context:    &model.Context{Name: "invariant", PC: f.InvPC, Locals: []values.H{preHandle, postHandle}},
		Microsteps: micro,
	}
}

// trimThreadTails implements spec.md §4.6's path-trimming rule: for
// every thread that is not the thread of the last macrostep, if that
// thread's own final macrostep in the path begins and ends on a
// load/store/print instruction, collapse it to its first microstep.
func trimThreadTails(macrosteps []Macrostep) {
	if len(macrosteps) == 0 {
		return
	}
	lastTid := macrosteps[len(macrosteps)-1].Tid

	lastIdxByTid := make(map[int]int, len(macrosteps))
	for i, ms := range macrosteps {
		lastIdxByTid[ms.Tid] = i
	}

	for tid, idx := range lastIdxByTid {
		if tid == lastTid {
			continue
		}
		ms := &macrosteps[idx]
		if len(ms.Microsteps) < 1 {
			continue
		}
		first, last := ms.Microsteps[0], ms.Microsteps[len(ms.Microsteps)-1]
		if isLoadStorePrint(first.Op) && isLoadStorePrint(last.Op) {
			ms.Microsteps = ms.Microsteps[:1]
		}
	}
}

// invariantUsesPre looks up the registered invariant at pc to find
// whether it was checked against an edge (pre, post) or a self-loop
// (post only) -- the synthetic macrostep must bind the same number of
// locals the real check used, or a LoadLocal index would read the
// wrong argument.
func invariantUsesPre(machine *executor.Machine, pc int) bool {
	for _, inv := range machine.Invariants {
		if inv.PC == pc {
			return inv.UsesPre
		}
	}
	return false
}

func isLoadStorePrint(op ops.Op) bool {
	switch op {
	case ops.LoadShared, ops.StoreShared, ops.Print:
		return true
	default:
		return false
	}
}

// tidAssigner hands out small, stable thread ids in order of first
// appearance along a reconstructed path -- the report's "tid" field is
// for human orientation, not a handle re-export.
type tidAssigner struct {
	next int
	byH  map[values.H]int
}

func newTidAssigner() *tidAssigner {
	return &tidAssigner{byH: make(map[values.H]int)}
}

func (t *tidAssigner) of(h values.H) int {
	if id, ok := t.byH[h]; ok {
		return id
	}
	id := t.next
	t.next++
	t.byH[h] = id
	return id
}
