package model

import (
	"sort"

	"github.com/kolkov/hvmcheck/internal/values"
)

// State is the immutable-once-interned global state S of spec.md §3.
type State struct {
	Vars map[string]values.H // the shared memory
	Pre  map[string]values.H // snapshot of Vars at the start of the current macrostep

	Choosing values.H // context handle at a choice point, or 0

	Bag     map[values.H]int // multiset of runnable contexts
	Stopbag map[values.H]int // multiset of stopped contexts

	DFAState int // current behavior-DFA state, 0 if no DFA is loaded
}

// NewState returns an empty state ready to be populated by the initial
// thread spawn.
func NewState() *State {
	return &State{
		Vars:    make(map[string]values.H),
		Pre:     make(map[string]values.H),
		Bag:     make(map[values.H]int),
		Stopbag: make(map[values.H]int),
	}
}

// Clone performs a deep-enough copy for speculative execution: maps are
// copied, handles within them are not (they are opaque 64-bit values).
func (s *State) Clone() *State {
	cp := &State{
		Vars:     make(map[string]values.H, len(s.Vars)),
		Pre:      make(map[string]values.H, len(s.Pre)),
		Bag:      make(map[values.H]int, len(s.Bag)),
		Stopbag:  make(map[values.H]int, len(s.Stopbag)),
		Choosing: s.Choosing,
		DFAState: s.DFAState,
	}
	for k, v := range s.Vars {
		cp.Vars[k] = v
	}
	for k, v := range s.Pre {
		cp.Pre[k] = v
	}
	for k, v := range s.Bag {
		cp.Bag[k] = v
	}
	for k, v := range s.Stopbag {
		cp.Stopbag[k] = v
	}
	return cp
}

// Encode produces the canonical byte key used to intern a state. Map
// iteration order is not stable in Go, so every map is flattened into a
// sorted slice of entries first.
func (s *State) Encode() []byte {
	var buf []byte
	buf = appendVarMap(buf, s.Vars)
	buf = appendVarMap(buf, s.Pre)
	buf = appendU64(buf, uint64(s.Choosing))
	buf = appendMultiset(buf, s.Bag)
	buf = appendMultiset(buf, s.Stopbag)
	buf = appendInt(buf, s.DFAState)
	return buf
}

func appendVarMap(buf []byte, m map[string]values.H) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = appendInt(buf, len(keys))
	for _, k := range keys {
		buf = appendString(buf, k)
		buf = appendU64(buf, uint64(m[k]))
	}
	return buf
}

func appendMultiset(buf []byte, m map[values.H]int) []byte {
	type kv struct {
		h values.H
		n int
	}
	entries := make([]kv, 0, len(m))
	for h, n := range m {
		entries = append(entries, kv{h, n})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].h < entries[j].h })
	buf = appendInt(buf, len(entries))
	for _, e := range entries {
		buf = appendU64(buf, uint64(e.h))
		buf = appendInt(buf, e.n)
	}
	return buf
}

// Runnable reports whether any thread in Bag can still take a step, or
// a choice is pending.
func (s *State) Runnable() bool {
	return s.Choosing != values.Nil || len(s.Bag) > 0
}
