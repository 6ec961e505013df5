// Package jsonio implements the JSON input/output boundary of spec.md
// §6: decoding the compiled-program input format and encoding the
// success/failure report formats. It is listed in spec.md §1 as an
// out-of-scope collaborator for the core value/graph engine, but the
// wire format itself is specified in full, so it lives here as a thin
// serialization layer around the core types.
package jsonio

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/kolkov/hvmcheck/internal/ops"
)

// InputDoc is the top-level input object of spec.md §6: an ordered
// list of VM instructions (`code`) plus parallel display strings
// (`pretty`).
type InputDoc struct {
	Code   []interface{} `json:"code"`
	Pretty []string      `json:"pretty"`
}

// DecodeInput reads and decodes the compiled-program JSON document,
// returning both the decoded Program the checker runs and the raw
// document (echoed back verbatim as the report's "hvm" field).
func DecodeInput(r io.Reader) (*ops.Program, *InputDoc, error) {
	var doc InputDoc
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("jsonio: decode input: %w", err)
	}
	prog, err := ops.Decode(doc.Code, doc.Pretty)
	if err != nil {
		return nil, nil, err
	}
	return prog, &doc, nil
}
