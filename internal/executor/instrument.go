package executor

import (
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/ops"
	"github.com/kolkov/hvmcheck/internal/values"
)

// runInstrumented wraps ops.Exec, additionally filling in ms with the
// instruction's observable effect when detail is requested. This is
// the one place the "collect detailed microsteps?" axis from spec.md
// §9's factored-state-machine guidance is applied: the bulk
// exploration path (detail=false) pays nothing beyond the detail
// check, while the witness reconstructor (detail=true) gets a
// full per-instruction diff.
func runInstrumented(pc int, inst ops.Instruction, ctx *model.Context, st *model.State, eng *values.Engine, worker, mult int, eff *accessEffects, detail bool, ms *Microstep) ops.Outcome {
	if !detail {
		return ops.Exec(pc, inst, ctx, st, eng, worker, mult, eff)
	}
	ms.Op = inst.Op

	var sharedBefore values.H
	hasSharedBefore := false
	if inst.Op == ops.StoreShared || inst.Op == ops.LoadShared {
		sharedBefore, hasSharedBefore = st.Vars[inst.Name]
	}
	var localBefore values.H
	if inst.Op == ops.StoreLocal && inst.Index < len(ctx.Locals) {
		localBefore = ctx.Locals[inst.Index]
	}
	stackLenBefore := len(ctx.Stack)

	out := ops.Exec(pc, inst, ctx, st, eng, worker, mult, eff)

	switch inst.Op {
	case ops.StoreShared:
		ms.HasShared, ms.SharedName = true, inst.Name
		ms.SharedFrom, ms.SharedTo = sharedBefore, st.Vars[inst.Name]
	case ops.LoadShared:
		ms.HasShared, ms.SharedName = true, inst.Name
		if hasSharedBefore {
			ms.SharedFrom = sharedBefore
		}
	case ops.DelShared:
		ms.HasShared, ms.SharedName = true, inst.Name
	case ops.StoreLocal:
		ms.HasLocal, ms.LocalIndex = true, inst.Index
		ms.LocalFrom = localBefore
		if inst.Index < len(ctx.Locals) {
			ms.LocalTo = ctx.Locals[inst.Index]
		}
	case ops.Print:
		if len(eff.printLog) > 0 {
			ms.HasPrint = true
			ms.Print = eff.printLog[len(eff.printLog)-1]
		}
	case ops.AtomicInc:
		ms.Mode = "atomic++"
	case ops.AtomicDec:
		ms.Mode = "atomic--"
	case ops.ReadonlyInc:
		ms.Mode = "readonly++"
	case ops.ReadonlyDec:
		ms.Mode = "readonly--"
	case ops.SetIntLevel:
		ms.Mode = "interruptlevel"
	}

	if len(ctx.Stack) > stackLenBefore {
		ms.HasPush, ms.StackPush = true, ctx.Top()
	} else if len(ctx.Stack) < stackLenBefore {
		// the value has already been popped; nothing observable remains
		// on the stack, so we only record that a pop happened.
		ms.HasPop = true
	}

	return out
}
