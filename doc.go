// Package hvmcheck implements a parallel explicit-state model checker
// core for a small concurrent virtual machine.
//
// hvmcheck explores the full reachable state space of a compiled VM
// program by BFS, decomposes the resulting graph into strongly
// connected components, and reports the first violation found --
// safety assertions, registered invariants, non-terminating
// components, busy-waits, behavior-automaton rejections, and data
// races -- together with the shortest witness path that reaches it.
//
// # Quick Start
//
// For simple one-off checking:
//
//	report, err := hvmcheck.Run(jsonFile, nil)
//
// With configuration:
//
//	report, err := hvmcheck.Run(jsonFile, &hvmcheck.Config{
//	    Workers:  8,
//	    Behavior: "ab*",
//	})
//
// # Compiled Programs
//
// For repeated checking of the same program under different configs:
//
//	prog, err := hvmcheck.Compile(jsonFile)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := prog.Check(&hvmcheck.Config{Workers: 4})
//
// # Configuration
//
// The [Config] type controls the exploration: worker count, wall-clock
// timeout, busy-wait detection, a behavior DFA pattern, and registered
// invariants.
//
// # Error Handling
//
// Errors are returned as specific types for detailed handling:
//   - [ArgumentError]: an invalid Config value
//   - [ParseError]: a malformed input document or behavior pattern
//   - [RuntimeError]: exploration could not complete (e.g. timeout)
//
// A completed exploration that finds a violation is not an error: it
// is reported through [Report.HasIssue] and [Report.Issue], exactly as
// "No issues" and a named violation both describe a successful run of
// the checker.
//
// # Thread Safety
//
// A compiled [Program] is safe for concurrent use; each call to
// [Program.Check] explores its own independent value engine and graph.
package hvmcheck
