// Package ops implements the VM opcode set that spec.md §1 treats as an
// out-of-scope collaborator ("the VM opcode implementations
// themselves"): the execution core only needs *an* instruction set to
// drive the step executor against, not the full semantics of any real
// source language. This package supplies a small, Harmony-flavoured
// instruction set sufficient to exercise every break condition, atomic
// rule, and failure kind spec.md §4.2 and §7 describe.
package ops

import "fmt"

// Op is a VM opcode. Naming follows the instruction names spec.md
// itself uses (Frame, Choose, AtomicInc/Dec, Load/Store/Del/Print,
// SetIntLevel, Return) and the original Harmony implementation's
// terminology where spec.md is silent (see SPEC_FULL.md §1).
type Op int32

const (
	Nop Op = iota

	Push // push a constant value: Push Const
	Pop  // discard top of stack
	Dup  // duplicate top of stack

	LoadShared  // push the value of a shared (global) variable: Load Name
	StoreShared // pop a value, store into a shared variable: Store Name
	DelShared   // delete a shared variable: Del Name

	LoadLocal  // push the value of a thread-local variable: LoadLocal Index
	StoreLocal // pop a value, store into a thread-local variable: StoreLocal Index

	Frame  // push a call frame, binding Index locals from the stack: Frame Name Index
	Return // pop the call frame and return to the caller, or terminate if none

	Jump     // unconditional jump: Jump Index (target pc)
	JumpCond // pop a bool; jump to Index if true

	Choose // pop a set, push the externally supplied choice

	AtomicInc // enter an atomic section
	AtomicDec // leave an atomic section

	ReadonlyInc // enter a read-only section (used while evaluating invariants)
	ReadonlyDec // leave a read-only section

	Spawn // pop an argument value, spawn a new thread at Index with that argument

	Print  // pop a value and append it to the macrostep's print log
	Assert // pop a bool; a false value is a Safety failure

	Stop // the thread voluntarily stops (distinct from falling off the end)

	SetIntLevel // pop a bool, set the thread's interrupt level

	Nary // apply a built-in N-ary operator: Nary Name Index(=arity)
)

// Breakable reports whether the scheduler may switch threads at the
// boundary *before* executing this instruction -- spec.md's "load,
// store, print, an eager atomicInc, or a global-address load" rule.
// Thread-local loads use the separate LoadLocal opcode, which is not
// breakable.
func (op Op) Breakable() bool {
	switch op {
	case LoadShared, StoreShared, DelShared, Print, AtomicInc:
		return true
	default:
		return false
	}
}

func (op Op) String() string {
	switch op {
	case Nop:
		return "Nop"
	case Push:
		return "Push"
	case Pop:
		return "Pop"
	case Dup:
		return "Dup"
	case LoadShared:
		return "Load"
	case StoreShared:
		return "Store"
	case DelShared:
		return "Del"
	case LoadLocal:
		return "LoadLocal"
	case StoreLocal:
		return "StoreLocal"
	case Frame:
		return "Frame"
	case Return:
		return "Return"
	case Jump:
		return "Jump"
	case JumpCond:
		return "JumpCond"
	case Choose:
		return "Choose"
	case AtomicInc:
		return "AtomicInc"
	case AtomicDec:
		return "AtomicDec"
	case ReadonlyInc:
		return "ReadonlyInc"
	case ReadonlyDec:
		return "ReadonlyDec"
	case Spawn:
		return "Spawn"
	case Print:
		return "Print"
	case Assert:
		return "Assert"
	case Stop:
		return "Stop"
	case SetIntLevel:
		return "SetIntLevel"
	case Nary:
		return "Nary"
	default:
		return fmt.Sprintf("Op(%d)", int32(op))
	}
}

// opcodeNames maps the JSON instruction mnemonic (first element of each
// `code` entry) to an Op, for decode.go.
var opcodeNames = map[string]Op{
	"Nop": Nop, "Push": Push, "Pop": Pop, "Dup": Dup,
	"Load": LoadShared, "Store": StoreShared, "Del": DelShared,
	"LoadLocal": LoadLocal, "StoreLocal": StoreLocal,
	"Frame": Frame, "Return": Return,
	"Jump": Jump, "JumpCond": JumpCond,
	"Choose":      Choose,
	"AtomicInc":   AtomicInc,
	"AtomicDec":   AtomicDec,
	"ReadonlyInc": ReadonlyInc,
	"ReadonlyDec": ReadonlyDec,
	"Spawn":       Spawn,
	"Print":       Print,
	"Assert":      Assert,
	"Stop":        Stop,
	"SetIntLevel": SetIntLevel,
	"Nary":        Nary,
}
