package hvmcheck

import (
	"io"

	"github.com/kolkov/hvmcheck/internal/jsonio"
)

// Version is the hvmcheck version string.
const Version = "0.1.0"

// Compile decodes the code/pretty JSON document read from r into a
// Program. The returned Program can be checked multiple times under
// different configurations.
//
// Example:
//
//	prog, err := hvmcheck.Compile(f)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := prog.Check(nil)
func Compile(r io.Reader) (*Program, error) {
	prog, doc, err := jsonio.DecodeInput(r)
	if err != nil {
		return nil, &ParseError{Message: err.Error()}
	}
	return &Program{prog: prog, hvm: doc}, nil
}

// MustCompile is like Compile but panics if r cannot be decoded. It
// simplifies initialization of global program variables.
func MustCompile(r io.Reader) *Program {
	p, err := Compile(r)
	if err != nil {
		panic(err)
	}
	return p
}

// Run decodes r and checks it in one call, using config (or defaults
// if nil). This is a convenience wrapper around Compile followed by
// Program.Check.
//
// Example:
//
//	report, err := hvmcheck.Run(f, nil)
func Run(r io.Reader, config *Config) (*Report, error) {
	prog, err := Compile(r)
	if err != nil {
		return nil, err
	}
	return prog.Check(config)
}
