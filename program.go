package hvmcheck

import (
	"fmt"
	"sort"

	"github.com/kolkov/hvmcheck/internal/analyzer"
	"github.com/kolkov/hvmcheck/internal/automaton"
	"github.com/kolkov/hvmcheck/internal/coordinator"
	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/jsonio"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/ops"
	"github.com/kolkov/hvmcheck/internal/scc"
	"github.com/kolkov/hvmcheck/internal/values"
	"github.com/kolkov/hvmcheck/internal/witness"
)

// Program represents a decoded VM program ready for checking. It is
// safe for concurrent use; each call to Check explores its own
// independent value engine and graph.
type Program struct {
	prog *ops.Program
	hvm  *jsonio.InputDoc
}

// Check explores the full reachable state space of p under config,
// decomposes it into strongly connected components, classifies every
// component, and returns a Report: either a clean exploration or the
// shortest witness to the first violation found.
//
// If config is nil, default configuration is used.
func (p *Program) Check(config *Config) (*Report, error) {
	if config == nil {
		config = &Config{}
	}
	config.applyDefaults()

	for _, inv := range config.Invariants {
		if inv.PC < 0 || inv.PC >= len(p.prog.Code) {
			return nil, &ArgumentError{Message: fmt.Sprintf("invariant PC %d is out of range for a %d-instruction program", inv.PC, len(p.prog.Code))}
		}
	}

	engine := values.NewEngine(config.Workers)
	contexts := model.NewContextRegistry(engine)
	states := model.NewStateRegistry(engine)
	machine := executor.NewMachine(p.prog, engine, contexts, states)

	for _, inv := range config.Invariants {
		machine.Invariants = append(machine.Invariants, executor.Invariant{PC: inv.PC, UsesPre: inv.UsesPre})
	}

	var dfa *automaton.Behavior
	if config.Behavior != "" {
		var err error
		dfa, err = automaton.Load(engine, config.Behavior)
		if err != nil {
			return nil, &ParseError{Message: err.Error()}
		}
		machine.DFA = dfa
	}

	coord := coordinator.New(coordinator.Options{
		Workers:  config.Workers,
		Timeout:  config.Timeout,
		Progress: config.ProgressFunc,
	}, machine, engine, states, contexts)

	initial := model.NewState()
	initCtx := &model.Context{Name: "main"}
	result := coord.Run(initial, initCtx)

	if result.TimedOut {
		return nil, &RuntimeError{Message: "exploration timed out before reaching a fixpoint"}
	}

	scc.Decompose(result.Graph, config.Workers)

	analyzeOpts := analyzer.Options{Contexts: contexts, BusywaitDisabled: config.DisableBusywait}
	if dfa != nil {
		analyzeOpts.DFA = dfa
	}
	failures := append(result.Failures, analyzer.Analyze(result.Graph, analyzeOpts)...)

	if len(failures) == 0 {
		return &Report{
			hvm:     p.hvm,
			engine:  engine,
			graph:   result.Graph,
			machine: machine,
		}, nil
	}

	sort.Sort(failures)
	w := witness.Reconstruct(machine, contexts, failures[0])

	return &Report{
		hvm:     p.hvm,
		engine:  engine,
		witness: w,
	}, nil
}

// Source returns the input document this program was compiled from.
func (p *Program) Source() *jsonio.InputDoc {
	return p.hvm
}
