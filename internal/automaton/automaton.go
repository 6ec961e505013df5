package automaton

import (
	"fmt"

	"github.com/coregx/coregex"

	"github.com/kolkov/hvmcheck/internal/values"
)

// Behavior wraps a compiled DFA with the value engine needed to turn a
// printed value handle into the DFA's byte alphabet, implementing
// executor.Behavior's Step(state int, symbol values.H) int without
// executor importing this package (it only declares the method it
// needs).
type Behavior struct {
	engine *values.Engine
	dfa    *DFA
}

// Step folds the printed value named by symbol into state. A printed
// value that isn't a single-byte string can never match this
// checker's symbol alphabet, so it is treated as a non-match (trap
// state) rather than a hard error -- the DFA only judges acceptance at
// final nodes, so an unexpected symbol just dooms that one run to a
// Behavior failure, which is the correct outcome.
func (b *Behavior) Step(state int, symbol values.H) int {
	v := b.engine.Get(symbol)
	if v.Kind != values.KindString || len(v.Str) != 1 {
		return b.dfa.dead
	}
	return b.dfa.stepByte(state, v.Str[0])
}

// Accepting reports whether state is accepting.
func (b *Behavior) Accepting(state int) bool {
	return b.dfa.Accepting(state)
}

// Load parses pattern -- a single regular expression over print-log
// symbols, per spec.md §8's `ab*` example -- into a ready-to-step
// Behavior. The pattern is first validated with coregex, reusing the
// teacher's own regex diagnostics, before this package's own
// Thompson/subset-construction pipeline builds the actual stepping
// automaton (coregex's Regexp has no steppable integer-state API to
// fold into S's interned hash key).
func Load(engine *values.Engine, pattern string) (*Behavior, error) {
	if _, err := coregex.Compile(pattern); err != nil {
		return nil, fmt.Errorf("invalid behavior pattern %q: %w", pattern, err)
	}
	tree, err := parsePattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid behavior pattern %q: %w", pattern, err)
	}
	dfa := determinize(build(tree))
	return &Behavior{engine: engine, dfa: dfa}, nil
}
