package executor

import (
	"sort"

	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/ops"
	"github.com/kolkov/hvmcheck/internal/values"
)

// invariantBudget bounds a single invariant evaluation's instruction
// count. Invariants are ordinary compiled procedures (spec.md §4.2
// step 10 calls them "registered" at a pc, with no distinct bytecode
// format of their own); a registered invariant that does not terminate
// is a program bug, not a checker concern, so we simply stop crediting
// it rather than hang the worker.
const invariantBudget = 100000

// EvalInvariant runs the procedure at pc as a synthetic, single-thread
// call with Locals bound to (pre, post) -- or just (post) when the
// invariant does not read pre -- and reports whether it held. Holding
// means the procedure ran to normal termination without an Assert
// failure; spec.md's "choose inside invariant is allowed" behavior
// (§9 open question) falls out for free since Choose is handled the
// same way as in Step, just with a synthetic, arbitrarily-picked
// witness element rather than a caller-supplied choice.
func (m *Machine) EvalInvariant(worker int, pc int, pre, post map[string]values.H, usesPre bool) bool {
	held, _, _, _ := m.runInvariant(worker, pc, pre, post, usesPre, false)
	return held
}

// ReplayInvariant re-runs the invariant at pc exactly as EvalInvariant
// does, additionally recording a Microstep per instruction -- this is
// the witness reconstructor's (component C8) synthetic macrostep of
// spec.md §4.6: "a new context is fabricated at the invariant's entry
// pc with args (pre, post) pushed on its stack". It returns the
// interned (pre, post) handles actually pushed so the reconstructor
// can report them without re-deriving dictOf itself.
func (m *Machine) ReplayInvariant(worker int, pc int, pre, post map[string]values.H, usesPre bool) (held bool, micro []Microstep, preHandle, postHandle values.H) {
	return m.runInvariant(worker, pc, pre, post, usesPre, true)
}

func (m *Machine) runInvariant(worker int, pc int, pre, post map[string]values.H, usesPre, detail bool) (held bool, micro []Microstep, preHandle, postHandle values.H) {
	ctx := &model.Context{Name: "invariant", PC: pc, ReadonlyDepth: 1}
	postHandle = m.Engine.Intern(worker, m.dictOf(worker, post))
	if usesPre {
		preHandle = m.Engine.Intern(worker, m.dictOf(worker, pre))
		ctx.Locals = []values.H{preHandle, postHandle}
	} else {
		ctx.Locals = []values.H{postHandle}
	}
	if detail {
		// Only the reconstructor's replay pushes (pre, post) onto the
		// stack: spec.md §4.6 wants them visible to the user as the
		// synthetic macrostep's argument push, but plain evaluation
		// (EvalInvariant) never executes a Frame to consume them, so
		// pushing there would leave stray operands on the stack.
		if usesPre {
			ctx.Push(preHandle)
		}
		ctx.Push(postHandle)
	}

	st := model.NewState()
	for k, v := range post {
		st.Vars[k] = v
	}
	eff := &accessEffects{}

	for n := 0; n < invariantBudget; n++ {
		if ctx.Terminated || ctx.Failed || ctx.Stopped {
			return !ctx.Failed, micro, preHandle, postHandle
		}
		if ctx.PC < 0 || ctx.PC >= len(m.Prog.Code) {
			return true, micro, preHandle, postHandle
		}
		pc := ctx.PC
		inst := m.Prog.Code[pc]
		var ms Microstep
		if detail {
			ms = Microstep{PC: pc, Op: inst.Op, Explain: inst.Pretty}
		}
		if inst.Op == ops.Choose {
			v := m.Engine.Get(ctx.Top())
			if v.Kind != values.KindSet || len(v.Elems) == 0 {
				return false, micro, preHandle, postHandle
			}
			ctx.Pop()
			choice := v.Elems[0]
			if detail {
				ms.HasChoice, ms.Choice = true, choice
			}
			ctx.Push(choice)
			ctx.PC++
			if detail {
				micro = append(micro, ms)
			}
			continue
		}
		runInstrumented(pc, inst, ctx, st, m.Engine, worker, 1, eff, detail, &ms)
		if detail {
			micro = append(micro, ms)
		}
	}
	return true, micro, preHandle, postHandle
}

// dictOf encodes a variable snapshot as a Dict value keyed by interned
// variable-name strings, so two snapshots with the same name/value
// pairs always intern to the same handle regardless of Go map
// iteration order (Value.Encode canonicalises Dict by sorting its
// entries by key handle).
func (m *Machine) dictOf(worker int, vars map[string]values.H) values.Value {
	names := make([]string, 0, len(vars))
	for k := range vars {
		names = append(names, k)
	}
	sort.Strings(names)
	entries := make([]values.H, 0, 2*len(names))
	for _, name := range names {
		entries = append(entries, m.Engine.InternString(worker, name), vars[name])
	}
	return values.Value{Kind: values.KindDict, Entries: entries}
}
