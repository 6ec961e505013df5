package jsonio

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/values"
	"github.com/kolkov/hvmcheck/internal/witness"
)

// successReport is the "No issues" shape of spec.md §6.
type successReport struct {
	Issue   string                 `json:"issue"`
	HVM     *InputDoc              `json:"hvm"`
	Symbols map[string]interface{} `json:"symbols"`
	Nodes   []nodeReport           `json:"nodes"`
	Profile []int64                `json:"profile"`
}

type nodeReport struct {
	Idx         int                `json:"idx"`
	Component   int                `json:"component"`
	Transitions map[string][]int   `json:"transitions"`
	Type        string             `json:"type"`
}

// symbolTable assigns dense integer ids, in order of first sighting,
// to the distinct printed values crossing the graph's edges -- the
// report's "symbols" map and each edge's transition grouping key are
// both expressed in terms of these ids rather than raw handles.
type symbolTable struct {
	ids   map[values.H]int
	order []values.H
}

func newSymbolTable() *symbolTable {
	return &symbolTable{ids: make(map[values.H]int)}
}

func (s *symbolTable) id(h values.H) int {
	if id, ok := s.ids[h]; ok {
		return id
	}
	id := len(s.order)
	s.ids[h] = id
	s.order = append(s.order, h)
	return id
}

func (s *symbolTable) sequence(hs []values.H) string {
	if len(hs) == 0 {
		return ""
	}
	parts := make([]string, len(hs))
	for i, h := range hs {
		parts[i] = strconv.Itoa(s.id(h))
	}
	return strings.Join(parts, ",")
}

// EncodeSuccess writes the "No issues" report for a fully explored,
// violation-free graph.
func EncodeSuccess(w io.Writer, hvm *InputDoc, engine *values.Engine, graph *model.Graph, machine *executor.Machine) error {
	symbols := newSymbolTable()
	nodes := make([]nodeReport, graph.Len())
	for i, n := range graph.Nodes {
		nodes[i] = buildNodeReport(n, symbols)
	}

	symOut := make(map[string]interface{}, len(symbols.order))
	for id, h := range symbols.order {
		symOut[strconv.Itoa(id)] = decodeValue(engine, h)
	}

	profile := make([]int64, len(machine.Profile))
	for i := range machine.Profile {
		profile[i] = machine.Profile[i].Load()
	}

	return json.NewEncoder(w).Encode(successReport{
		Issue:   "No issues",
		HVM:     hvm,
		Symbols: symOut,
		Nodes:   nodes,
		Profile: profile,
	})
}

func buildNodeReport(n *model.Node, symbols *symbolTable) nodeReport {
	byDest := make(map[string][]int)
	var keys []string
	for e := n.Fwd; e != nil; e = e.FwdNext {
		key := symbols.sequence(e.PrintLog)
		if _, ok := byDest[key]; !ok {
			keys = append(keys, key)
		}
		byDest[key] = append(byDest[key], e.Dst.ID)
	}
	sort.Strings(keys)
	trans := make(map[string][]int, len(byDest))
	for _, k := range keys {
		ids := byDest[k]
		sort.Ints(ids)
		trans[k] = ids
	}

	return nodeReport{
		Idx:         n.ID,
		Component:   n.Component,
		Transitions: trans,
		Type:        nodeType(n),
	}
}

func nodeType(n *model.Node) string {
	switch {
	case n.ID == 0:
		return "initial"
	case n.Fwd == nil:
		return "terminal"
	default:
		return "normal"
	}
}

// failureReport is the violation shape of spec.md §6.
type failureReport struct {
	Issue      string             `json:"issue"`
	HVM        *InputDoc          `json:"hvm"`
	Macrosteps []macrostepReport  `json:"macrosteps"`
}

type macrostepReport struct {
	ID         int                `json:"id"`
	Len        int                `json:"len"`
	Tid        int                `json:"tid"`
	Shared     bool               `json:"shared"`
	Name       string             `json:"name"`
	Choice     interface{}        `json:"choice,omitempty"`
	Context    contextReport      `json:"context"`
	Microsteps []microstepReport  `json:"microsteps"`
	Ctxbag     map[string]int     `json:"ctxbag"`
}

type contextReport struct {
	Name           string        `json:"name"`
	PC             int           `json:"pc"`
	SP             int           `json:"sp"`
	Stack          []interface{} `json:"stack"`
	Locals         []interface{} `json:"locals"`
	Frames         []int         `json:"frames"`
	Atomic         int           `json:"atomic"`
	Readonly       int           `json:"readonly"`
	InterruptLevel bool          `json:"interruptlevel"`
	Terminated     bool          `json:"terminated"`
	Failed         bool          `json:"failed"`
	Stopped        bool          `json:"stopped"`
	Failure        string        `json:"failure,omitempty"`
}

type microstepReport struct {
	Code       string      `json:"code"`
	Explain    string      `json:"explain"`
	PC         int         `json:"pc"`
	NPC        int         `json:"npc"`
	Shared     string      `json:"shared,omitempty"`
	SharedFrom interface{} `json:"shared_from,omitempty"`
	SharedTo   interface{} `json:"shared_to,omitempty"`
	Local      int         `json:"local,omitempty"`
	HasLocal   bool        `json:"-"`
	This       interface{} `json:"this,omitempty"`
	StackPush  interface{} `json:"stack_push,omitempty"`
	StackPop   bool        `json:"stack_pop,omitempty"`
	Choose     interface{} `json:"choose,omitempty"`
	Print      interface{} `json:"print,omitempty"`
	Failure    string      `json:"failure,omitempty"`
	Mode       string      `json:"mode,omitempty"`
}

// EncodeFailure writes the reconstructed-witness report for the
// earliest failure found.
func EncodeFailure(w io.Writer, hvm *InputDoc, engine *values.Engine, wit *witness.Witness) error {
	steps := make([]macrostepReport, len(wit.Macrosteps))
	for i, ms := range wit.Macrosteps {
		steps[i] = buildMacrostepReport(ms, engine)
	}
	return json.NewEncoder(w).Encode(failureReport{
		Issue:      wit.Tag.String(),
		HVM:        hvm,
		Macrosteps: steps,
	})
}

func buildMacrostepReport(ms witness.Macrostep, engine *values.Engine) macrostepReport {
	var choice interface{}
	if ms.HasChoice {
		choice = decodeValue(engine, ms.Choice)
	}

	ctxbag := make(map[string]int, len(ms.CtxBag))
	for h, mult := range ms.CtxBag {
		ctxbag[strconv.FormatUint(uint64(h), 10)] = mult
	}

	micro := make([]microstepReport, len(ms.Microsteps))
	for i, m := range ms.Microsteps {
		npc := m.PC + 1
		if i+1 < len(ms.Microsteps) {
			npc = ms.Microsteps[i+1].PC
		} else if ms.Context != nil {
			npc = ms.Context.PC
		}
		mr := microstepReport{
			Code:    m.Op.String(),
			Explain: m.Explain,
			PC:      m.PC,
			NPC:     npc,
			Mode:    m.Mode,
			Failure: m.Failure,
		}
		if m.HasShared {
			mr.Shared = m.SharedName
			mr.SharedFrom = decodeValue(engine, m.SharedFrom)
			mr.SharedTo = decodeValue(engine, m.SharedTo)
		}
		if m.HasLocal {
			mr.HasLocal, mr.Local = true, m.LocalIndex
		}
		if m.HasPush {
			mr.StackPush = decodeValue(engine, m.StackPush)
		}
		if m.HasPop {
			mr.StackPop = true
		}
		if m.HasChoice {
			mr.Choose = decodeValue(engine, m.Choice)
		}
		if m.HasPrint {
			mr.Print = decodeValue(engine, m.Print)
		}
		micro[i] = mr
	}

	return macrostepReport{
		ID:         ms.ID,
		Len:        ms.Len,
		Tid:        ms.Tid,
		Shared:     ms.Shared,
		Name:       ms.Name,
		Choice:     choice,
		Context:    buildContextReport(ms.Context, engine),
		Microsteps: micro,
		Ctxbag:     ctxbag,
	}
}

func buildContextReport(ctx *model.Context, engine *values.Engine) contextReport {
	if ctx == nil {
		return contextReport{}
	}
	stack := make([]interface{}, len(ctx.Stack))
	for i, h := range ctx.Stack {
		stack[i] = decodeValue(engine, h)
	}
	locals := make([]interface{}, len(ctx.Locals))
	for i, h := range ctx.Locals {
		locals[i] = decodeValue(engine, h)
	}
	frames := append([]int(nil), ctx.Frames...)

	return contextReport{
		Name:           ctx.Name,
		PC:             ctx.PC,
		SP:             ctx.SP,
		Stack:          stack,
		Locals:         locals,
		Frames:         frames,
		Atomic:         ctx.AtomicDepth,
		Readonly:       ctx.ReadonlyDepth,
		InterruptLevel: ctx.InterruptLevel,
		Terminated:     ctx.Terminated,
		Failed:         ctx.Failed,
		Stopped:        ctx.Stopped,
		Failure:        ctx.Failure,
	}
}
