package ops

import (
	"fmt"

	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

// Effects receives the side-effects of executing one instruction: the
// step executor uses this to accumulate access-info (for race
// detection) and the macrostep's print log without ops needing to know
// anything about edges or macrosteps.
type Effects interface {
	RecordAccess(pc int, kind model.AccessKind, name string, atomicDepth, mult int)
	RecordPrint(h values.H)
}

// Outcome reports what happened after executing one instruction.
type Outcome struct {
	Spawned *model.Context // non-nil if this instruction spawned a thread
	Failed  bool
	Reason  string
}

// Exec applies the instruction at pc to ctx/st, advancing ctx.PC.
// Choose is never passed here: the step executor special-cases it,
// since the choice comes from outside the instruction stream.
func Exec(pc int, inst Instruction, ctx *model.Context, st *model.State, eng *values.Engine, worker, mult int, eff Effects) Outcome {
	if inst.Op == Choose {
		panic("ops: Choose must be special-cased by the caller")
	}

	next := pc + 1
	var out Outcome

	switch inst.Op {
	case Nop:
		// no-op

	case Push:
		ctx.Push(inst.ConstHandle(eng, worker))

	case Pop:
		ctx.Pop()

	case Dup:
		ctx.Push(ctx.Top())

	case LoadShared:
		h := st.Vars[inst.Name]
		ctx.Push(h)
		eff.RecordAccess(pc, model.AccessLoad, inst.Name, ctx.AtomicDepth, mult)

	case StoreShared:
		v := ctx.Pop()
		st.Vars[inst.Name] = v
		eff.RecordAccess(pc, model.AccessStore, inst.Name, ctx.AtomicDepth, mult)

	case DelShared:
		delete(st.Vars, inst.Name)
		eff.RecordAccess(pc, model.AccessDel, inst.Name, ctx.AtomicDepth, mult)

	case LoadLocal:
		if inst.Index >= 0 && inst.Index < len(ctx.Locals) {
			ctx.Push(ctx.Locals[inst.Index])
		} else {
			ctx.Push(values.Nil)
		}

	case StoreLocal:
		v := ctx.Pop()
		for inst.Index >= len(ctx.Locals) {
			ctx.Locals = append(ctx.Locals, values.Nil)
		}
		ctx.Locals[inst.Index] = v

	case Frame:
		args := make([]values.H, inst.Index)
		for i := inst.Index - 1; i >= 0; i-- {
			args[i] = ctx.Pop()
		}
		ctx.Frames = append(ctx.Frames, next)
		ctx.Locals = append(ctx.Locals, args...)

	case Return:
		if len(ctx.Frames) == 0 {
			ctx.Terminated = true
		} else {
			next = ctx.Frames[len(ctx.Frames)-1]
			ctx.Frames = ctx.Frames[:len(ctx.Frames)-1]
		}

	case Jump:
		next = inst.Index

	case JumpCond:
		v := ctx.Pop()
		if eng.Get(v).Bool {
			next = inst.Index
		}

	case AtomicInc:
		ctx.AtomicDepth++

	case AtomicDec:
		if ctx.AtomicDepth > 0 {
			ctx.AtomicDepth--
		}

	case ReadonlyInc:
		ctx.ReadonlyDepth++

	case ReadonlyDec:
		if ctx.ReadonlyDepth > 0 {
			ctx.ReadonlyDepth--
		}

	case Spawn:
		arg := ctx.Pop()
		out.Spawned = &model.Context{
			Name: fmt.Sprintf("T@%d", inst.Index),
			PC:   inst.Index,
			This: arg,
		}

	case Print:
		v := ctx.Pop()
		eff.RecordPrint(v)

	case Assert:
		v := ctx.Pop()
		if !eng.Get(v).Bool {
			out.Failed = true
			out.Reason = "assertion failed"
		}

	case Stop:
		ctx.Stopped = true

	case SetIntLevel:
		v := ctx.Pop()
		ctx.InterruptLevel = eng.Get(v).Bool

	case Nary:
		execNary(inst, ctx, eng, worker)

	default:
		panic(fmt.Sprintf("ops: unhandled opcode %v", inst.Op))
	}

	ctx.PC = next
	return out
}

func execNary(inst Instruction, ctx *model.Context, eng *values.Engine, worker int) {
	arity := inst.Index
	args := make([]values.Value, arity)
	for i := arity - 1; i >= 0; i-- {
		args[i] = eng.Get(ctx.Pop())
	}

	var result values.Value
	switch inst.Name {
	case "+":
		result = values.Value{Kind: values.KindInt, Int: args[0].Int + args[1].Int}
	case "-":
		if arity == 1 {
			result = values.Value{Kind: values.KindInt, Int: -args[0].Int}
		} else {
			result = values.Value{Kind: values.KindInt, Int: args[0].Int - args[1].Int}
		}
	case "*":
		result = values.Value{Kind: values.KindInt, Int: args[0].Int * args[1].Int}
	case "/":
		result = values.Value{Kind: values.KindInt, Int: args[0].Int / args[1].Int}
	case "%":
		result = values.Value{Kind: values.KindInt, Int: args[0].Int % args[1].Int}
	case "==":
		result = values.Value{Kind: values.KindBool, Bool: string(args[0].Encode()) == string(args[1].Encode()) || (args[0].Kind == values.KindInt && args[1].Kind == values.KindInt && args[0].Int == args[1].Int)}
	case "!=":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Int != args[1].Int}
	case "<":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Int < args[1].Int}
	case "<=":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Int <= args[1].Int}
	case ">":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Int > args[1].Int}
	case ">=":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Int >= args[1].Int}
	case "and":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Bool && args[1].Bool}
	case "or":
		result = values.Value{Kind: values.KindBool, Bool: args[0].Bool || args[1].Bool}
	case "not":
		result = values.Value{Kind: values.KindBool, Bool: !args[0].Bool}
	default:
		panic(fmt.Sprintf("ops: unknown Nary operator %q", inst.Name))
	}
	ctx.Push(eng.Intern(worker, result))
}
