package automaton

import (
	"testing"

	"github.com/kolkov/hvmcheck/internal/values"
)

func sym(eng *values.Engine, s string) values.H {
	return eng.Intern(0, values.Value{Kind: values.KindString, Str: s})
}

func TestBehaviorAcceptsMatchingSequence(t *testing.T) {
	eng := values.NewEngine(1)
	b, err := Load(eng, "ab*")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	state := 0
	for _, s := range []string{"a", "b", "b", "b"} {
		state = b.Step(state, sym(eng, s))
	}
	if !b.Accepting(state) {
		t.Fatalf("expected %q to be accepted by ab*", "abbb")
	}
}

func TestBehaviorRejectsWrongOrder(t *testing.T) {
	eng := values.NewEngine(1)
	b, err := Load(eng, "ab*")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	state := 0
	for _, s := range []string{"b", "a"} {
		state = b.Step(state, sym(eng, s))
	}
	if b.Accepting(state) {
		t.Fatalf("expected %q to be rejected by ab*", "ba")
	}
}

func TestLoadRejectsInvalidPattern(t *testing.T) {
	eng := values.NewEngine(1)
	if _, err := Load(eng, "a("); err == nil {
		t.Fatalf("expected an error for an unbalanced group")
	}
}

func TestBehaviorAlternationAndGrouping(t *testing.T) {
	eng := values.NewEngine(1)
	b, err := Load(eng, "(ab|cd)+")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	run := func(seq ...string) bool {
		state := 0
		for _, s := range seq {
			state = b.Step(state, sym(eng, s))
		}
		return b.Accepting(state)
	}

	if !run("a", "b", "c", "d", "a", "b") {
		t.Fatalf("expected ab cd ab to be accepted by (ab|cd)+")
	}
	if run("a", "b", "c") {
		t.Fatalf("expected a partial cd to be rejected by (ab|cd)+")
	}
}
