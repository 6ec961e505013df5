package hvmcheck

import (
	"io"

	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/jsonio"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
	"github.com/kolkov/hvmcheck/internal/witness"
)

// Report is the outcome of a completed Check: either a clean
// exploration of the full reachable graph, or the shortest witness to
// the first violation found. Both are successful runs of the checker
// in the sense of spec.md §7 -- HasIssue distinguishes them.
type Report struct {
	hvm    *jsonio.InputDoc
	engine *values.Engine

	graph   *model.Graph
	machine *executor.Machine

	witness *witness.Witness
}

// HasIssue reports whether Check found a violation.
func (r *Report) HasIssue() bool { return r.witness != nil }

// Issue returns the human-readable violation tag, or "No issues".
func (r *Report) Issue() string {
	if r.witness == nil {
		return "No issues"
	}
	return r.witness.Tag.String()
}

// WriteJSON encodes the report in the wire format spec.md §6
// describes: the success shape (symbols/nodes/profile) when no
// violation was found, or the failure shape (macrosteps) otherwise.
func (r *Report) WriteJSON(w io.Writer) error {
	if r.witness == nil {
		return jsonio.EncodeSuccess(w, r.hvm, r.engine, r.graph, r.machine)
	}
	return jsonio.EncodeFailure(w, r.hvm, r.engine, r.witness)
}
