package ops

import (
	"fmt"

	"github.com/kolkov/hvmcheck/internal/values"
)

// ConstKind tags the literal embedded in a Push instruction.
type ConstKind uint8

const (
	ConstNone ConstKind = iota
	ConstBool
	ConstInt
	ConstStr
)

// Instruction is one decoded VM instruction.
type Instruction struct {
	Op Op

	Name  string // variable / procedure / operator name, where applicable
	Index int    // local slot, jump target, spawn entry pc, or arity

	ConstKind ConstKind
	ConstBool bool
	ConstInt  int64
	ConstStr  string

	Pretty string // parallel "pretty" display string from the input
}

// Program is a decoded VM program: an ordered instruction sequence plus
// its display strings, per spec.md §6's input format.
type Program struct {
	Code   []Instruction
	Pretty []string
}

// Decode parses the JSON-decoded `code` array (each entry a
// []interface{} whose first element is the opcode name) into a
// Program. rawPretty parallels code one-for-one; it may be nil, in
// which case the opcode mnemonic is used as the display string.
func Decode(rawCode []interface{}, rawPretty []string) (*Program, error) {
	prog := &Program{Code: make([]Instruction, len(rawCode))}
	for i, entry := range rawCode {
		args, ok := entry.([]interface{})
		if !ok || len(args) == 0 {
			return nil, fmt.Errorf("ops: instruction %d is not a non-empty list", i)
		}
		name, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("ops: instruction %d opcode is not a string", i)
		}
		op, ok := opcodeNames[name]
		if !ok {
			return nil, fmt.Errorf("ops: instruction %d has unknown opcode %q", i, name)
		}
		inst := Instruction{Op: op}
		rest := args[1:]
		var err error
		switch op {
		case Push:
			err = decodeConst(&inst, rest)
		case LoadShared, StoreShared, DelShared:
			inst.Name, err = argString(rest, 0, name)
		case LoadLocal, StoreLocal:
			inst.Index, err = argInt(rest, 0, name)
		case Frame:
			if inst.Name, err = argString(rest, 0, name); err == nil {
				inst.Index, err = argInt(rest, 1, name)
			}
		case Jump, JumpCond:
			inst.Index, err = argInt(rest, 0, name)
		case Spawn:
			inst.Index, err = argInt(rest, 0, name)
		case Nary:
			if inst.Name, err = argString(rest, 0, name); err == nil {
				inst.Index, err = argInt(rest, 1, name)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("ops: instruction %d (%s): %w", i, name, err)
		}
		if rawPretty != nil && i < len(rawPretty) {
			inst.Pretty = rawPretty[i]
		} else {
			inst.Pretty = name
		}
		prog.Code[i] = inst
	}
	prog.Pretty = rawPretty
	return prog, nil
}

func decodeConst(inst *Instruction, rest []interface{}) error {
	if len(rest) == 0 {
		return fmt.Errorf("Push requires one argument")
	}
	switch v := rest[0].(type) {
	case bool:
		inst.ConstKind, inst.ConstBool = ConstBool, v
	case float64:
		inst.ConstKind, inst.ConstInt = ConstInt, int64(v)
	case string:
		inst.ConstKind, inst.ConstStr = ConstStr, v
	default:
		return fmt.Errorf("unsupported Push constant type %T", v)
	}
	return nil
}

func argString(rest []interface{}, idx int, op string) (string, error) {
	if idx >= len(rest) {
		return "", fmt.Errorf("%s requires argument %d", op, idx)
	}
	s, ok := rest[idx].(string)
	if !ok {
		return "", fmt.Errorf("%s argument %d must be a string", op, idx)
	}
	return s, nil
}

func argInt(rest []interface{}, idx int, op string) (int, error) {
	if idx >= len(rest) {
		return 0, fmt.Errorf("%s requires argument %d", op, idx)
	}
	f, ok := rest[idx].(float64)
	if !ok {
		return 0, fmt.Errorf("%s argument %d must be a number", op, idx)
	}
	return int(f), nil
}

// ConstHandle interns the instruction's literal constant, if any.
func (inst Instruction) ConstHandle(eng *values.Engine, worker int) values.H {
	switch inst.ConstKind {
	case ConstBool:
		return eng.InternBool(worker, inst.ConstBool)
	case ConstInt:
		return eng.InternInt(worker, inst.ConstInt)
	case ConstStr:
		return eng.InternString(worker, inst.ConstStr)
	default:
		return values.Nil
	}
}
