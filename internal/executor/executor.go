// Package executor implements the step executor of spec.md component
// C3: given a (node, thread, optional choice, interrupt flag), it runs
// the VM until a break condition and reports the resulting macrostep.
//
// This corresponds to the design's two near-copies of the C step
// executor (`onestep`/`twostep`/`twostep2`, spec.md §9): here a single
// Machine.Step drives both roles (the coordinator's bulk exploration
// and the witness reconstructor's detailed replay) through the
// detail flag on StepOptions, rather than duplicating the control
// logic.
package executor

import (
	"sync/atomic"

	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/ops"
	"github.com/kolkov/hvmcheck/internal/values"
)

// infloopThreshold is the instruction-count budget a macrostep is given
// before the combo-hash cycle detector engages, per spec.md §4.2 step 4.
const infloopThreshold = 1000

// Invariant is a registered predicate: a procedure entry pc, plus
// whether it reads `pre` (in which case it is checked against the
// edge (parent.Vars, dst.Vars) rather than as a pure self-loop over
// dst.Vars alone).
type Invariant struct {
	PC      int
	UsesPre bool
}

// Behavior is the minimal DFA-stepping interface the executor needs to
// fold printed symbols into dfa_state; implemented by
// internal/automaton.Behavior.
type Behavior interface {
	Step(state int, symbol values.H) int
}

// Machine bundles the decoded program and the interning registries that
// every worker shares read-only during an epoch (the registries
// themselves are internally synchronised; see model.ContextRegistry).
type Machine struct {
	Prog       *ops.Program
	Engine     *values.Engine
	Contexts   *model.ContextRegistry
	States     *model.StateRegistry
	Invariants []Invariant
	DFA        Behavior // nil if no -B file was supplied

	// Profile is the per-pc execution counter of SPEC_FULL.md's
	// charm.h-derived "profile" report field: one atomic counter per
	// instruction, summed across every worker's concurrent Step calls.
	Profile []atomic.Int64
}

// NewMachine allocates a Machine for prog, sizing Profile to the
// program length.
func NewMachine(prog *ops.Program, engine *values.Engine, contexts *model.ContextRegistry, states *model.StateRegistry) *Machine {
	return &Machine{
		Prog:     prog,
		Engine:   engine,
		Contexts: contexts,
		States:   states,
		Profile:  make([]atomic.Int64, len(prog.Code)),
	}
}

// accessEffects implements ops.Effects, accumulating the access and
// print log of one macrostep.
type accessEffects struct {
	access   []model.AccessInfo
	printLog []values.H
}

func (a *accessEffects) RecordAccess(pc int, kind model.AccessKind, name string, atomicDepth, mult int) {
	a.access = append(a.access, model.AccessInfo{PC: pc, AtomicDepth: atomicDepth, Mult: mult, Kind: kind, Addr: name})
}

func (a *accessEffects) RecordPrint(h values.H) { a.printLog = append(a.printLog, h) }

// BreakReason records why a macrostep ended; the coordinator turns
// BreakInfinite into a Termination failure.
type BreakReason int

const (
	BreakTerminal   BreakReason = iota // terminated / failed / stopped
	BreakChoose                        // next instruction is choose
	BreakBreakable                     // next instruction is load/store/print/atomicInc
	BreakInterrupt                     // an interrupt boundary was forced
	BreakInfinite                      // in-macrostep cycle: Termination failure
)

// Microstep is one VM instruction's recorded effect, used only when
// StepOptions.Detail is set (the witness reconstructor's replay path).
type Microstep struct {
	PC      int
	Op      ops.Op
	Explain string

	SharedName string
	SharedFrom values.H
	SharedTo   values.H
	HasShared  bool

	LocalIndex int
	LocalFrom  values.H
	LocalTo    values.H
	HasLocal   bool

	StackPush values.H
	HasPush   bool
	StackPop  values.H
	HasPop    bool

	Print   values.H
	HasPrint bool

	Choice  values.H
	HasChoice bool

	Mode string // "atomic++"/"atomic--"/"readonly++"/"readonly--"/"" etc.

	Failure string
}

// StepOptions configures one Step call.
type StepOptions struct {
	Choice       values.H
	Interrupt    bool
	InfloopCheck bool // retry requested by a previous call; enable cycle detection from instruction 1
	Mult         int  // multiplicity of ctx in the bag, for access-info recording only
	Detail       bool // record Microsteps (used by the witness reconstructor)
}

// StepOutcome is a fully computed macrostep, not yet linked into the
// graph: the coordinator interns AfterState/AfterCtx, performs the
// hash-table insert, and allocates the Node/Edge.
type StepOutcome struct {
	BeforeCtx *model.Context // the context as it stood before this step (input, for bookkeeping)
	AfterState *model.State
	AfterCtx   *model.Context
	Spawned    []*model.Context

	Choice    values.H
	Interrupt bool
	NSteps    int
	PrintLog  []values.H
	Access    []model.AccessInfo

	Reason BreakReason

	Safety     bool
	FailReason string

	Microsteps []Microstep
}

type atomicSnapshot struct {
	state      *model.State
	ctx        *model.Context
	instrCount int
}

// Step runs baseCtx (a copy of a context drawn from baseState's bag or
// choice set) against the program until a break condition, per
// spec.md §4.2. It returns (outcome, true) on success, or (nil, false)
// to ask the caller to retry with opts.InfloopCheck set -- the
// detector must not itself cause skipping of an observable side
// effect (step 4).
func (m *Machine) Step(worker int, baseState *model.State, ctxHandle values.H, baseCtx *model.Context, opts StepOptions) (*StepOutcome, bool) {
	st := baseState.Clone()
	ctx := baseCtx.Clone()
	before := baseCtx.Clone()

	if opts.Interrupt && ctx.Extended && ctx.TrapPC != 0 {
		ctx.Push(ctx.TrapArg)
		ctx.PC = ctx.TrapPC
	}

	eff := &accessEffects{}
	var snapshot *atomicSnapshot
	var seen map[string]struct{}
	if opts.InfloopCheck {
		seen = make(map[string]struct{}, 64)
	}

	var spawned []*model.Context
	var micro []Microstep
	instrCount := 0
	firstIter := true
	reason := BreakTerminal
	safety, failReason := false, ""

loop:
	for {
		if ctx.Terminated || ctx.Failed || ctx.Stopped {
			break
		}
		pc := ctx.PC
		if pc < 0 || pc >= len(m.Prog.Code) {
			ctx.Terminated = true
			break
		}
		inst := m.Prog.Code[pc]
		if m.Profile != nil {
			m.Profile[pc].Add(1)
		}

		if inst.Op == ops.AtomicInc {
			if firstIter {
				ctx.AtomicFlag = true
			} else if ctx.AtomicDepth == 0 {
				snapshot = &atomicSnapshot{state: st.Clone(), ctx: ctx.Clone(), instrCount: instrCount}
			}
		}

		var ms Microstep
		if opts.Detail {
			ms = Microstep{PC: pc, Explain: inst.Pretty}
		}

		if inst.Op == ops.Choose {
			ctx.Pop()
			if opts.Detail {
				ms.HasChoice, ms.Choice = true, opts.Choice
			}
			ctx.Push(opts.Choice)
			ctx.PC = pc + 1
		} else {
			out := runInstrumented(pc, inst, ctx, st, m.Engine, worker, opts.Mult, eff, opts.Detail, &ms)
			if out.Spawned != nil {
				spawned = append(spawned, out.Spawned)
			}
			if out.Failed {
				safety, failReason = true, out.Reason
				ctx.Failed = true
				if opts.Detail {
					ms.Failure = out.Reason
				}
			}
		}

		if inst.Op == ops.AtomicDec && ctx.AtomicDepth == 0 {
			snapshot = nil
		}

		if opts.Detail {
			micro = append(micro, ms)
		}

		instrCount++
		firstIter = false

		if instrCount > infloopThreshold || opts.InfloopCheck {
			if seen == nil {
				seen = make(map[string]struct{}, 64)
			}
			key := string(ctx.Encode()) + string(st.Encode())
			if _, dup := seen[key]; dup {
				if opts.InfloopCheck {
					reason = BreakInfinite
					break loop
				}
				return nil, false
			}
			seen[key] = struct{}{}
		}

		if ctx.Terminated || ctx.Failed || ctx.Stopped {
			break
		}
		if ctx.PC < 0 || ctx.PC >= len(m.Prog.Code) {
			ctx.Terminated = true
			break
		}

		next := m.Prog.Code[ctx.PC]
		switch {
		case next.Op == ops.Choose:
			if !verifyChooseSet(ctx, st, m.Engine) {
				safety, failReason = true, "choose over empty or non-set value"
				break loop
			}
			if snapshot != nil && !ctx.AtomicFlag {
				restoreSnapshot(snapshot, &st, &ctx, &instrCount)
				reason = BreakBreakable
				break loop
			}
			reason = BreakChoose
			break loop
		case next.Op.Breakable():
			if snapshot != nil && !ctx.AtomicFlag {
				restoreSnapshot(snapshot, &st, &ctx, &instrCount)
			}
			reason = BreakBreakable
			break loop
		case ctx.Extended && !ctx.InterruptLevel && isInterruptBoundary(next, ctx):
			reason = BreakInterrupt
			break loop
		}
	}

	for _, h := range eff.printLog {
		if m.DFA != nil {
			st.DFAState = m.DFA.Step(st.DFAState, h)
		}
	}

	// Step 7: remove ctx from the bag, intern the after-context, and
	// place it (or the spawned threads) into the right bucket of the
	// new state.
	st.Pre = copyVars(baseState.Vars)
	if n := st.Bag[ctxHandle]; n > 1 {
		st.Bag[ctxHandle] = n - 1
	} else {
		delete(st.Bag, ctxHandle)
	}

	afterHandle := m.Contexts.Intern(worker, ctx)
	st.Choosing = values.Nil
	switch {
	case reason == BreakChoose:
		st.Choosing = afterHandle
	case ctx.Stopped:
		st.Stopbag[afterHandle]++
	case !ctx.Terminated:
		// A failed context is kept in the bag (per spec, only
		// terminated excludes re-adding): it no longer produces
		// instructions since Step breaks immediately next time, so
		// this never re-reports the same Safety failure.
		st.Bag[afterHandle]++
	}
	for _, sp := range spawned {
		spHandle := m.Contexts.Intern(worker, sp)
		st.Bag[spHandle]++
	}

	return &StepOutcome{
		BeforeCtx:  before,
		AfterState: st,
		AfterCtx:   ctx,
		Spawned:    spawned,
		Choice:     opts.Choice,
		Interrupt:  opts.Interrupt,
		NSteps:     instrCount,
		PrintLog:   eff.printLog,
		Access:     eff.access,
		Reason:     reason,
		Safety:     safety,
		FailReason: failReason,
		Microsteps: micro,
	}, true
}

// verifyChooseSet checks the top-of-stack value is a non-empty set,
// per spec.md §4.2 step 5's "verify the top of stack is a non-empty
// set" rule.
func verifyChooseSet(ctx *model.Context, st *model.State, eng *values.Engine) bool {
	if len(ctx.Stack) == 0 {
		return false
	}
	v := eng.Get(ctx.Top())
	return v.Kind == values.KindSet && len(v.Elems) > 0
}

// isInterruptBoundary reports whether inst is about to raise the
// interrupt level or perform a terminal return -- the two points at
// which spec.md §4.2 step 5 forces a break so the next call can try
// the interrupt handler first.
func isInterruptBoundary(inst ops.Instruction, ctx *model.Context) bool {
	if inst.Op == ops.SetIntLevel {
		return true
	}
	return inst.Op == ops.Return && len(ctx.Frames) == 0
}

func restoreSnapshot(snap *atomicSnapshot, st **model.State, ctx **model.Context, instrCount *int) {
	*st = snap.state
	*ctx = snap.ctx
	*instrCount = snap.instrCount
}

// copyVars is a one-level map copy: handles inside are opaque and
// never mutated in place, only ever reassigned wholesale.
func copyVars(vars map[string]values.H) map[string]values.H {
	cp := make(map[string]values.H, len(vars))
	for k, v := range vars {
		cp[k] = v
	}
	return cp
}
