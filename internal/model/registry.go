package model

import (
	"sync"

	"github.com/kolkov/hvmcheck/internal/values"
)

// ContextRegistry interns Context values under handles (contexts are
// value-typed per spec.md §3: interned whenever used as a map key or
// bag member) while keeping a decodable copy around for replay and
// reporting.
type ContextRegistry struct {
	engine *values.Engine
	mu     sync.RWMutex
	byH    map[values.H]*Context
}

func NewContextRegistry(engine *values.Engine) *ContextRegistry {
	return &ContextRegistry{engine: engine, byH: make(map[values.H]*Context, 1024)}
}

// Intern returns the stable handle for c, recording a decodable copy on
// first insertion only (later callers get the canonical copy back).
func (r *ContextRegistry) Intern(worker int, c *Context) values.H {
	h := r.engine.InternKeyed(worker, values.KindContext, c.Encode())
	r.mu.RLock()
	_, known := r.byH[h]
	r.mu.RUnlock()
	if !known {
		r.mu.Lock()
		if _, known = r.byH[h]; !known {
			r.byH[h] = c.Clone()
		}
		r.mu.Unlock()
	}
	return h
}

// Get decodes a previously interned context handle.
func (r *ContextRegistry) Get(h values.H) *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byH[h]
	if !ok {
		panic("model: context handle not known to this registry")
	}
	return c
}

// StateRegistry is the State analogue of ContextRegistry.
type StateRegistry struct {
	engine *values.Engine
	mu     sync.RWMutex
	byH    map[values.H]*State
}

func NewStateRegistry(engine *values.Engine) *StateRegistry {
	return &StateRegistry{engine: engine, byH: make(map[values.H]*State, 1024)}
}

func (r *StateRegistry) Intern(worker int, s *State) values.H {
	h := r.engine.InternKeyed(worker, values.KindState, s.Encode())
	r.mu.RLock()
	_, known := r.byH[h]
	r.mu.RUnlock()
	if !known {
		r.mu.Lock()
		if _, known = r.byH[h]; !known {
			r.byH[h] = s.Clone()
		}
		r.mu.Unlock()
	}
	return h
}

func (r *StateRegistry) Get(h values.H) *State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byH[h]
	if !ok {
		panic("model: state handle not known to this registry")
	}
	return s
}
