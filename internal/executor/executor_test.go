package executor

import (
	"testing"

	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/ops"
	"github.com/kolkov/hvmcheck/internal/values"
)

func instr(op string, args ...interface{}) []interface{} {
	return append([]interface{}{op}, args...)
}

func mustDecode(t *testing.T, code []interface{}) *ops.Program {
	t.Helper()
	prog, err := ops.Decode(code, nil)
	if err != nil {
		t.Fatalf("ops.Decode: %v", err)
	}
	return prog
}

func newMachine(t *testing.T, code []interface{}) (*Machine, *values.Engine, *model.ContextRegistry) {
	t.Helper()
	prog := mustDecode(t, code)
	eng := values.NewEngine(1)
	contexts := model.NewContextRegistry(eng)
	states := model.NewStateRegistry(eng)
	return NewMachine(prog, eng, contexts, states), eng, contexts
}

func TestStepAssertFailureSetsSafety(t *testing.T) {
	m, _, _ := newMachine(t, []interface{}{
		instr("Push", false),
		instr("Assert"),
		instr("Stop"),
	})
	st := model.NewState()
	ctx := &model.Context{Name: "T0", PC: 0}

	out, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1})
	if !ok {
		t.Fatalf("expected Step to converge")
	}
	if !out.Safety {
		t.Fatalf("expected a Safety failure for Push(false); Assert")
	}
	if out.NSteps != 2 {
		t.Fatalf("expected the macrostep to stop at the failing Assert (2 instructions), got %d", out.NSteps)
	}
}

func TestStepAssertSuccessRunsToStop(t *testing.T) {
	m, _, _ := newMachine(t, []interface{}{
		instr("Push", true),
		instr("Assert"),
		instr("Stop"),
	})
	st := model.NewState()
	ctx := &model.Context{Name: "T0", PC: 0}

	out, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1})
	if !ok {
		t.Fatalf("expected Step to converge")
	}
	if out.Safety {
		t.Fatalf("did not expect a Safety failure")
	}
	if !out.AfterCtx.Stopped {
		t.Fatalf("expected the thread to have stopped")
	}
	if out.NSteps != 3 {
		t.Fatalf("expected all 3 instructions to run in one macrostep, got %d", out.NSteps)
	}
}

// TestStepInfiniteLoopRequiresRetryWithInfloopCheck exercises the
// two-call protocol of spec.md §4.2 step 4: a macrostep that never hits a
// breakable instruction and never terminates must first be rejected with
// (nil, false) so the caller can retry with InfloopCheck set, at which
// point the combo-hash cycle detector converges it to a Termination
// break instead of looping forever.
func TestStepInfiniteLoopRequiresRetryWithInfloopCheck(t *testing.T) {
	m, _, _ := newMachine(t, []interface{}{
		instr("Jump", float64(0)),
	})
	st := model.NewState()
	ctx := &model.Context{Name: "T0", PC: 0}

	_, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1})
	if ok {
		t.Fatalf("expected the first Step call to refuse to converge on a tight infinite loop")
	}

	out, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1, InfloopCheck: true})
	if !ok {
		t.Fatalf("expected the retry with InfloopCheck to converge")
	}
	if out.Reason != BreakInfinite {
		t.Fatalf("expected BreakInfinite, got %v", out.Reason)
	}
}

// TestStepAtomicSectionRollsBackOnUnannouncedBreak covers spec.md §4.2's
// lazy-atomic-section rule: entering AtomicInc mid-macrostep (not as the
// macrostep's first instruction) does not announce the section, so if a
// breakable instruction is reached before the matching AtomicDec, the
// whole macrostep rolls back to the point just before AtomicInc -- on
// retry, AtomicInc will be the first instruction of its own macrostep
// and will announce the section properly.
func TestStepAtomicSectionRollsBackOnUnannouncedBreak(t *testing.T) {
	m, _, _ := newMachine(t, []interface{}{
		instr("Push", true), // 0
		instr("AtomicInc"),  // 1: not firstIter -> snapshot taken before this runs
		instr("Pop"),        // 2
		instr("Load", "x"),  // 3: breakable, and AtomicFlag was never announced -> rollback
		instr("Pop"),        // 4
		instr("Stop"),       // 5
	})
	st := model.NewState()
	st.Vars["x"] = values.Nil
	ctx := &model.Context{Name: "T0", PC: 0}

	out, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1})
	if !ok {
		t.Fatalf("expected Step to converge")
	}
	if out.Reason != BreakBreakable {
		t.Fatalf("expected BreakBreakable, got %v", out.Reason)
	}
	if out.NSteps != 1 {
		t.Fatalf("expected rollback to the point just after Push (1 instruction), got %d", out.NSteps)
	}
	if out.AfterCtx.PC != 1 {
		t.Fatalf("expected PC rolled back to 1 (AtomicInc, to be retried as the next macrostep's first instruction), got %d", out.AfterCtx.PC)
	}
	if out.AfterCtx.AtomicDepth != 0 {
		t.Fatalf("expected AtomicDepth rolled back to 0, got %d", out.AfterCtx.AtomicDepth)
	}
	if len(out.AfterCtx.Stack) != 1 {
		t.Fatalf("expected the Push'd value still on the stack after rollback, got stack of length %d", len(out.AfterCtx.Stack))
	}
}

// TestStepClearsChoosingAfterResolvingChoice is the regression test for
// the stale-Choosing bug: State.Clone copies Choosing verbatim from its
// base state, so the macrostep that actually resolves a choice (the one
// that pops the set and pushes the chosen value) must explicitly clear
// it back to values.Nil when it doesn't itself end on another Choose --
// otherwise every state reachable after a choice point would still look
// like a choice point to the coordinator forever.
func TestStepClearsChoosingAfterResolvingChoice(t *testing.T) {
	m, eng, _ := newMachine(t, []interface{}{
		instr("Nop"),   // 0
		instr("Choose"), // 1
		instr("Stop"),   // 2
	})
	set := eng.InternSet(0, []values.H{eng.InternInt(0, 1)})
	st := model.NewState()
	ctx := &model.Context{Name: "T0", PC: 0, Stack: []values.H{set}}

	out1, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1})
	if !ok {
		t.Fatalf("expected Step to converge")
	}
	if out1.Reason != BreakChoose {
		t.Fatalf("expected BreakChoose, got %v", out1.Reason)
	}
	if out1.AfterState.Choosing == values.Nil {
		t.Fatalf("expected AfterState.Choosing to be set to the paused context")
	}

	choiceCtx := out1.AfterCtx
	out2, ok := m.Step(0, out1.AfterState, out1.AfterState.Choosing, choiceCtx, StepOptions{Choice: eng.InternInt(0, 1), Mult: 1})
	if !ok {
		t.Fatalf("expected the choice-resolving Step to converge")
	}
	if out2.AfterState.Choosing != values.Nil {
		t.Fatalf("expected Choosing to be cleared once the choice was resolved, got %v", out2.AfterState.Choosing)
	}
}

// TestStepAtomicSectionAnnouncedAsFirstInstructionDoesNotRollBack is the
// complementary case: AtomicInc as the very first instruction of a
// macrostep announces the section immediately (AtomicFlag=true), so a
// later breakable instruction still forces a break but without a
// rollback -- the work already done stands.
func TestStepAtomicSectionAnnouncedAsFirstInstructionDoesNotRollBack(t *testing.T) {
	m, _, _ := newMachine(t, []interface{}{
		instr("AtomicInc"), // 0: firstIter -> announced immediately
		instr("Push", true),
		instr("Pop"),
		instr("Load", "x"), // 3: breakable, but AtomicFlag is already true
		instr("Pop"),
		instr("Stop"),
	})
	st := model.NewState()
	st.Vars["x"] = values.Nil
	ctx := &model.Context{Name: "T0", PC: 0}

	out, ok := m.Step(0, st, values.Nil, ctx, StepOptions{Mult: 1})
	if !ok {
		t.Fatalf("expected Step to converge")
	}
	if out.Reason != BreakBreakable {
		t.Fatalf("expected BreakBreakable, got %v", out.Reason)
	}
	if out.NSteps != 3 {
		t.Fatalf("expected no rollback (AtomicInc, Push, Pop all stand), got NSteps %d", out.NSteps)
	}
	if out.AfterCtx.AtomicDepth != 1 {
		t.Fatalf("expected the announced atomic section to still be open, got depth %d", out.AfterCtx.AtomicDepth)
	}
}
