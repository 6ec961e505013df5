package ops

import (
	"testing"

	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
)

type fakeEffects struct {
	accesses []model.AccessInfo
	prints   []values.H
}

func (f *fakeEffects) RecordAccess(pc int, kind model.AccessKind, name string, atomicDepth, mult int) {
	f.accesses = append(f.accesses, model.AccessInfo{PC: pc, Kind: kind, Addr: name, AtomicDepth: atomicDepth, Mult: mult})
}

func (f *fakeEffects) RecordPrint(h values.H) {
	f.prints = append(f.prints, h)
}

func TestExecPushStoreLoad(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	push := Instruction{Op: Push, ConstKind: ConstInt, ConstInt: 42}
	Exec(0, push, ctx, st, eng, 0, 1, eff)
	if ctx.PC != 1 {
		t.Fatalf("expected pc 1, got %d", ctx.PC)
	}

	store := Instruction{Op: StoreShared, Name: "x"}
	Exec(1, store, ctx, st, eng, 0, 1, eff)
	if len(ctx.Stack) != 0 {
		t.Fatalf("expected empty stack after store")
	}
	if eng.Get(st.Vars["x"]).Int != 42 {
		t.Fatalf("expected x == 42, got %+v", eng.Get(st.Vars["x"]))
	}

	load := Instruction{Op: LoadShared, Name: "x"}
	Exec(2, load, ctx, st, eng, 0, 1, eff)
	if eng.Get(ctx.Top()).Int != 42 {
		t.Fatalf("expected loaded value 42")
	}

	if len(eff.accesses) != 2 {
		t.Fatalf("expected 2 recorded accesses, got %d", len(eff.accesses))
	}
	if eff.accesses[0].Kind != model.AccessStore || eff.accesses[1].Kind != model.AccessLoad {
		t.Fatalf("unexpected access kinds: %+v", eff.accesses)
	}
}

func TestExecFrameAndReturn(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	ctx.Push(eng.InternInt(0, 7))
	frame := Instruction{Op: Frame, Name: "f", Index: 1}
	Exec(5, frame, ctx, st, eng, 0, 1, eff)
	if ctx.PC != 6 {
		t.Fatalf("expected return address 6 recorded, pc=%d", ctx.PC)
	}
	if len(ctx.Frames) != 1 || ctx.Frames[0] != 6 {
		t.Fatalf("expected frame stack [6], got %v", ctx.Frames)
	}
	if len(ctx.Locals) != 1 || eng.Get(ctx.Locals[0]).Int != 7 {
		t.Fatalf("expected bound local 7, got %+v", ctx.Locals)
	}

	ret := Instruction{Op: Return}
	Exec(20, ret, ctx, st, eng, 0, 1, eff)
	if ctx.PC != 6 {
		t.Fatalf("expected return to pc 6, got %d", ctx.PC)
	}
	if len(ctx.Frames) != 0 {
		t.Fatalf("expected empty frame stack after return")
	}

	Exec(6, ret, ctx, st, eng, 0, 1, eff)
	if !ctx.Terminated {
		t.Fatalf("expected termination on return with no enclosing frame")
	}
}

func TestExecJumpCond(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	ctx.Push(eng.InternBool(0, true))
	jc := Instruction{Op: JumpCond, Index: 99}
	Exec(0, jc, ctx, st, eng, 0, 1, eff)
	if ctx.PC != 99 {
		t.Fatalf("expected jump taken to 99, got %d", ctx.PC)
	}

	ctx.Push(eng.InternBool(0, false))
	Exec(10, jc, ctx, st, eng, 0, 1, eff)
	if ctx.PC != 11 {
		t.Fatalf("expected fallthrough to 11, got %d", ctx.PC)
	}
}

func TestExecSpawn(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	ctx.Push(eng.InternInt(0, 3))
	spawn := Instruction{Op: Spawn, Index: 42}
	out := Exec(0, spawn, ctx, st, eng, 0, 1, eff)
	if out.Spawned == nil {
		t.Fatalf("expected a spawned context")
	}
	if out.Spawned.PC != 42 {
		t.Fatalf("expected spawned pc 42, got %d", out.Spawned.PC)
	}
	if eng.Get(out.Spawned.This).Int != 3 {
		t.Fatalf("expected spawned arg 3")
	}
}

func TestExecAssertFailure(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	ctx.Push(eng.InternBool(0, false))
	out := Exec(0, Instruction{Op: Assert}, ctx, st, eng, 0, 1, eff)
	if !out.Failed {
		t.Fatalf("expected assert failure")
	}
}

func TestExecNaryArithmetic(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	ctx.Push(eng.InternInt(0, 3))
	ctx.Push(eng.InternInt(0, 4))
	Exec(0, Instruction{Op: Nary, Name: "+", Index: 2}, ctx, st, eng, 0, 1, eff)
	if eng.Get(ctx.Top()).Int != 7 {
		t.Fatalf("expected 7, got %+v", eng.Get(ctx.Top()))
	}

	ctx.Pop()
	ctx.Push(eng.InternInt(0, 5))
	ctx.Push(eng.InternInt(0, 5))
	Exec(0, Instruction{Op: Nary, Name: "<", Index: 2}, ctx, st, eng, 0, 1, eff)
	if eng.Get(ctx.Top()).Bool {
		t.Fatalf("expected 5 < 5 to be false")
	}
}

func TestExecPrintRecordsValue(t *testing.T) {
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	eff := &fakeEffects{}

	h := eng.InternInt(0, 99)
	ctx.Push(h)
	Exec(0, Instruction{Op: Print}, ctx, st, eng, 0, 1, eff)
	if len(eff.prints) != 1 || eff.prints[0] != h {
		t.Fatalf("expected print log to contain %v, got %v", h, eff.prints)
	}
}

func TestExecChoosePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Exec to panic on Choose")
		}
	}()
	eng := values.NewEngine(1)
	st := model.NewState()
	ctx := &model.Context{}
	Exec(0, Instruction{Op: Choose}, ctx, st, eng, 0, 1, &fakeEffects{})
}
