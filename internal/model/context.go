// Package model implements the data model of spec.md §3: the per-thread
// Context, the global State S, and the Kripke-structure Node/Edge arena
// that the rest of the checker is built on.
package model

import (
	"encoding/binary"

	"github.com/kolkov/hvmcheck/internal/values"
)

// Context is the full execution state of one VM thread.
type Context struct {
	Name string // thread/process name, for reporting only

	PC int
	SP int

	Stack  []values.H // operand stack
	Locals []values.H // local variables
	Frames []int      // return-address stack, pushed by Frame/popped by Return

	AtomicDepth   int
	ReadonlyDepth int

	InterruptLevel bool
	AtomicFlag     bool // an atomic section has already been announced
	Extended       bool // unlocks trap/interrupt fields below

	TrapPC  int
	TrapArg values.H

	This values.H

	Terminated bool
	Failed     bool
	Stopped    bool
	Failure    string
}

// Clone returns a deep copy suitable for speculative execution: the
// step executor always mutates a worker-local copy, never the
// interned original.
func (c *Context) Clone() *Context {
	cp := *c
	cp.Stack = append([]values.H(nil), c.Stack...)
	cp.Locals = append([]values.H(nil), c.Locals...)
	cp.Frames = append([]int(nil), c.Frames...)
	return &cp
}

// Encode produces the canonical byte encoding used to intern a context.
// Field order is fixed; two contexts that differ in any field encode
// differently.
func (c *Context) Encode() []byte {
	buf := make([]byte, 0, 64+8*(len(c.Stack)+len(c.Locals)))
	buf = appendString(buf, c.Name)
	buf = appendInt(buf, c.PC)
	buf = appendInt(buf, c.SP)
	buf = appendHSlice(buf, c.Stack)
	buf = appendHSlice(buf, c.Locals)
	buf = appendIntSlice(buf, c.Frames)
	buf = appendInt(buf, c.AtomicDepth)
	buf = appendInt(buf, c.ReadonlyDepth)
	buf = appendBool(buf, c.InterruptLevel)
	buf = appendBool(buf, c.AtomicFlag)
	buf = appendBool(buf, c.Extended)
	buf = appendInt(buf, c.TrapPC)
	buf = appendU64(buf, uint64(c.TrapArg))
	buf = appendU64(buf, uint64(c.This))
	buf = appendBool(buf, c.Terminated)
	buf = appendBool(buf, c.Failed)
	buf = appendBool(buf, c.Stopped)
	buf = appendString(buf, c.Failure)
	return buf
}

// Eternal reports whether the context will never take another step.
// A failed context is not eternal: per spec it is left in the bag
// (step 7 only tests terminated), it simply never produces another
// observable effect since Step breaks before executing any instruction
// once Failed is set.
func (c *Context) Eternal() bool {
	return c.Terminated || c.Stopped
}

// Push/Pop/Top are small stack helpers shared by the opcode executor.
func (c *Context) Push(h values.H) {
	c.Stack = append(c.Stack, h)
	c.SP = len(c.Stack)
}

func (c *Context) Pop() values.H {
	n := len(c.Stack)
	h := c.Stack[n-1]
	c.Stack = c.Stack[:n-1]
	c.SP = len(c.Stack)
	return h
}

func (c *Context) Top() values.H {
	return c.Stack[len(c.Stack)-1]
}

func appendU64(buf []byte, u uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], u)
	return append(buf, tmp[:]...)
}

func appendInt(buf []byte, n int) []byte { return appendU64(buf, uint64(int64(n))) }

func appendBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendString(buf []byte, s string) []byte {
	buf = appendInt(buf, len(s))
	return append(buf, s...)
}

func appendHSlice(buf []byte, hs []values.H) []byte {
	buf = appendInt(buf, len(hs))
	for _, h := range hs {
		buf = appendU64(buf, uint64(h))
	}
	return buf
}

func appendIntSlice(buf []byte, ns []int) []byte {
	buf = appendInt(buf, len(ns))
	for _, n := range ns {
		buf = appendInt(buf, n)
	}
	return buf
}
