package values

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/kolkov/hvmcheck/internal/htable"
)

// Engine interns Values (and raw context and state byte encodings, see
// InternKeyed) under stable 64-bit handles, backed by C1's lock-striped
// hash table. It is the concrete stand-in for spec.md's external C2
// collaborator.
type Engine struct {
	table *htable.Table
	seq   atomic.Uint64

	decodeMu sync.RWMutex
	decode   map[H]Value
}

// NewEngine creates an engine sized for nworkers concurrent callers.
func NewEngine(nworkers int) *Engine {
	return &Engine{
		table:  htable.New(nworkers, 1024),
		decode: make(map[H]Value, 1024),
	}
}

// Table exposes the underlying hash table, e.g. so the coordinator can
// flip it between Sequential and Concurrent mode between epochs.
func (e *Engine) Table() *htable.Table { return e.table }

// Intern assigns (or looks up) the handle for v.
func (e *Engine) Intern(worker int, v Value) H {
	if v.Kind == KindNil {
		return Nil
	}
	key := v.Encode()
	var assigned H
	slot, isNew := e.table.Insert(worker, key, 8, func(payload []byte) {
		id := e.seq.Add(1)
		assigned = makeHandle(v.Kind, id)
		binary.LittleEndian.PutUint64(payload, uint64(assigned))
	})
	if isNew {
		e.rememberDecoded(assigned, v)
		return assigned
	}
	h := H(binary.LittleEndian.Uint64(slot.Bytes))
	return h
}

func (e *Engine) rememberDecoded(h H, v Value) {
	e.decodeMu.Lock()
	e.decode[h] = v
	e.decodeMu.Unlock()
}

// Get decodes a previously interned handle back to its Value. Panics if
// h was never interned by this engine -- a programmer error, since
// handles are never passed between engines.
func (e *Engine) Get(h H) Value {
	if h == Nil {
		return Value{Kind: KindNil}
	}
	e.decodeMu.RLock()
	v, ok := e.decode[h]
	e.decodeMu.RUnlock()
	if !ok {
		panic("values: handle not known to this engine")
	}
	return v
}

// InternInt, InternBool, InternString are convenience wrappers for the
// common scalar kinds used throughout the opcode set.
func (e *Engine) InternInt(worker int, n int64) H {
	return e.Intern(worker, Value{Kind: KindInt, Int: n})
}

func (e *Engine) InternBool(worker int, b bool) H {
	return e.Intern(worker, Value{Kind: KindBool, Bool: b})
}

func (e *Engine) InternString(worker int, s string) H {
	return e.Intern(worker, Value{Kind: KindString, Str: s})
}

func (e *Engine) InternSet(worker int, elems []H) H {
	return e.Intern(worker, Value{Kind: KindSet, Elems: elems})
}

// InternKeyed interns a raw, already-encoded key under the given kind,
// for callers (contexts, global states) that own their own canonical
// encoding instead of going through Value. The kind byte is folded into
// the table key so that a Context and a Value that happen to encode to
// the same bytes never collide.
func (e *Engine) InternKeyed(worker int, kind Kind, key []byte) H {
	full := make([]byte, 1+len(key))
	full[0] = byte(kind)
	copy(full[1:], key)

	var assigned H
	slot, isNew := e.table.Insert(worker, full, 8, func(payload []byte) {
		id := e.seq.Add(1)
		assigned = makeHandle(kind, id)
		binary.LittleEndian.PutUint64(payload, uint64(assigned))
	})
	if isNew {
		return assigned
	}
	return H(binary.LittleEndian.Uint64(slot.Bytes))
}
