package hvmcheck

import "fmt"

// ArgumentError reports an invalid Config value or CLI flag.
type ArgumentError struct {
	Message string // Error description
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument error: %s", e.Message)
}

// ParseError reports a syntax error in the compiled-program JSON
// document, or in a behavior DFA pattern supplied via Config.Behavior
// -- the two surfaces spec.md §6 and §7 both call "parse failure".
type ParseError struct {
	Message string // Error description
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s", e.Message)
}

// RuntimeError reports that exploration could not run to completion,
// e.g. a wall-clock timeout was reached before a fixpoint.
type RuntimeError struct {
	Message string // Error description
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s", e.Message)
}
