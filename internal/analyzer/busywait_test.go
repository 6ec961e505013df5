package analyzer

import (
	"testing"

	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

// linkAfter is link (see analyzer_test.go) plus an explicit After handle,
// needed wherever a test exercises busyWaitsAt's context-identity tracking
// across a macrostep rather than just the pre-step Ctx field.
func linkAfter(src, dst *model.Node, ctx, after values.H) *model.Edge {
	e := link(src, dst, ctx)
	e.After = after
	return e
}

// TestBusyWaitsAtPureSpinIsFlagged covers the case busyWaitsAt must still
// catch after the fix: a thread whose every step, restricted to its own
// component, cycles back to a node with identical vars and never leaves.
func TestBusyWaitsAtPureSpinIsFlagged(t *testing.T) {
	eng := values.NewEngine(1)
	vars := map[string]values.H{"locked": eng.InternBool(0, false)}

	s1 := model.NewState()
	s1.Vars = vars
	n1 := &model.Node{State: s1, Component: 0}

	s2 := model.NewState()
	s2.Vars = vars
	n2 := &model.Node{State: s2, Component: 0}

	h := eng.InternString(0, "T1")
	linkAfter(n1, n2, h, h)
	linkAfter(n2, n1, h, h)

	if !busyWaitsAt(n1, n1, h, 0) {
		t.Fatalf("expected a pure 2-node spin with unchanged vars to be flagged as busy-waiting")
	}
}

// TestBusyWaitsAtComponentExitIsNotFlagged is the direct regression test
// for the bug: a context whose chain leaves the component entirely (the
// lock-releasing thread escaping its own wait loop) must NOT be reported
// as busy-waiting, because continue'ing past the component-exit edge made
// the old implementation return true regardless.
func TestBusyWaitsAtComponentExitIsNotFlagged(t *testing.T) {
	eng := values.NewEngine(1)
	vars := map[string]values.H{"locked": eng.InternBool(0, false)}

	s1 := model.NewState()
	s1.Vars = vars
	n1 := &model.Node{State: s1, Component: 0}

	exitVars := map[string]values.H{"locked": eng.InternBool(0, true)}
	s2 := model.NewState()
	s2.Vars = exitVars
	n2 := &model.Node{State: s2, Component: 1} // different component: this edge escapes

	h := eng.InternString(0, "T1")
	after := eng.InternString(0, "T1-done")
	linkAfter(n1, n2, h, after)

	if busyWaitsAt(n1, n1, h, 0) {
		t.Fatalf("expected a component-exit edge to count as progress, not a busy-wait")
	}
}

// TestBusyWaitsAtDeadEndIsFlagged covers the "gets stuck" half of the
// definition: a context with no further matching edge at all (it simply
// has nothing left to do under its own ctx) is vacuously busy-waiting,
// same as spec's "every outgoing chain ... gets stuck" wording.
func TestBusyWaitsAtDeadEndIsFlagged(t *testing.T) {
	eng := values.NewEngine(1)
	s1 := model.NewState()
	s1.Vars = map[string]values.H{"n": eng.InternInt(0, 0)}
	n1 := &model.Node{State: s1, Component: 0}

	h := eng.InternString(0, "T1")

	if !busyWaitsAt(n1, n1, h, 0) {
		t.Fatalf("expected a node with no matching outgoing edge to be vacuously busy-waiting")
	}
}

// TestBusywaitFailuresSkipsGoodComponentEscapingThread exercises
// busywaitFailures (not just busyWaitsAt directly): a two-node component
// where one context (T1) spins in place and a second context (T2) has an
// edge leaving the component. The component as a whole is "good" (it has
// an exit), but T1's own restricted view never sees it, so T1 still gets a
// Busywait record while the component itself draws no Termination failure.
func TestBusywaitFailuresSkipsGoodComponentEscapingThread(t *testing.T) {
	eng := values.NewEngine(1)
	contexts := model.NewContextRegistry(eng)
	vars := map[string]values.H{"locked": eng.InternBool(0, false)}

	t1 := contexts.Intern(0, &model.Context{Name: "T1"})
	t2 := contexts.Intern(0, &model.Context{Name: "T2"})

	s1 := model.NewState()
	s1.Vars = vars
	s1.Bag[t1] = 1
	s1.Bag[t2] = 1
	n1 := &model.Node{State: s1, Component: 0}

	s2 := model.NewState()
	s2.Vars = vars
	s2.Bag[t1] = 1
	s2.Bag[t2] = 1
	n2 := &model.Node{State: s2, Component: 0}

	exitState := model.NewState()
	exitState.Vars = vars
	exitState.Bag[t1] = 1
	n3 := &model.Node{State: exitState, Component: 1}

	g := model.NewGraph()
	g.Reserve(3)
	g.Set(0, n1)
	g.Set(1, n2)
	g.Set(2, n3)

	linkAfter(n1, n2, t1, t1)
	linkAfter(n2, n1, t1, t1)
	linkAfter(n1, n3, t2, t2) // T2 escapes the component from n1
	linkAfter(n2, n3, t2, t2) // and from n2

	failures := Analyze(g, Options{Contexts: contexts})

	var sawBusywait, sawTermination bool
	for _, f := range failures {
		switch f.Tag {
		case model.Busywait:
			sawBusywait = true
		case model.Termination:
			// n3 is its own exit-less, non-final component and draws a
			// Termination of its own; only component 0 is under test.
			if f.Node.Component == 0 {
				sawTermination = true
			}
		}
	}
	if !sawBusywait {
		t.Fatalf("expected T1's restricted-to-component spin to be flagged Busywait, got %+v", failures)
	}
	if sawTermination {
		t.Fatalf("component has an exit (T2's edges), so it is good and must not report Termination, got %+v", failures)
	}
}
