package jsonio

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kolkov/hvmcheck/internal/coordinator"
	"github.com/kolkov/hvmcheck/internal/executor"
	"github.com/kolkov/hvmcheck/internal/model"
	"github.com/kolkov/hvmcheck/internal/scc"
	"github.com/kolkov/hvmcheck/internal/values"
)

func TestDecodeInputRoundTrip(t *testing.T) {
	doc := `{"code": [["Push", true], ["Assert"]], "pretty": ["push true", "assert"]}`
	prog, hvm, err := DecodeInput(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("DecodeInput: %v", err)
	}
	if len(prog.Code) != 2 {
		t.Fatalf("len(prog.Code) = %d, want 2", len(prog.Code))
	}
	if len(hvm.Pretty) != 2 || hvm.Pretty[1] != "assert" {
		t.Errorf("hvm.Pretty = %v, want the echoed pretty strings", hvm.Pretty)
	}
}

func TestDecodeInputRejectsMalformed(t *testing.T) {
	if _, _, err := DecodeInput(strings.NewReader(`{not json`)); err == nil {
		t.Fatal("DecodeInput: expected an error for malformed JSON")
	}
}

func TestEncodeSuccess(t *testing.T) {
	hvm := &InputDoc{Code: []interface{}{}}
	engine := values.NewEngine(1)
	contexts := model.NewContextRegistry(engine)
	states := model.NewStateRegistry(engine)
	prog, _, err := DecodeInput(strings.NewReader(`{"code": [["Push", true], ["Assert"]]}`))
	if err != nil {
		t.Fatalf("DecodeInput: %v", err)
	}
	machine := executor.NewMachine(prog, engine, contexts, states)

	coord := coordinator.New(coordinator.Options{Workers: 1}, machine, engine, states, contexts)
	initial := model.NewState()
	result := coord.Run(initial, &model.Context{Name: "main"})
	scc.Decompose(result.Graph, 1)

	var buf bytes.Buffer
	if err := EncodeSuccess(&buf, hvm, engine, result.Graph, machine); err != nil {
		t.Fatalf("EncodeSuccess: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded["issue"] != "No issues" {
		t.Errorf(`decoded["issue"] = %v, want "No issues"`, decoded["issue"])
	}
	if _, ok := decoded["nodes"]; !ok {
		t.Error("decoded output is missing the nodes field")
	}
	if _, ok := decoded["profile"]; !ok {
		t.Error("decoded output is missing the profile field")
	}
}
