package hvmcheck_test

import (
	"strings"
	"testing"

	"github.com/kolkov/hvmcheck"
)

func TestRun(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		config    *hvmcheck.Config
		wantIssue string
	}{
		{
			name:      "passing assertion has no issues",
			doc:       `{"code": [["Push", true], ["Assert"]]}`,
			wantIssue: "No issues",
		},
		{
			name:      "failing assertion is a safety violation",
			doc:       `{"code": [["Push", false], ["Assert"]]}`,
			wantIssue: "Safety",
		},
		{
			name:      "busywait detection can be disabled",
			doc:       `{"code": [["Push", true], ["Assert"]]}`,
			config:    &hvmcheck.Config{DisableBusywait: true},
			wantIssue: "No issues",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := hvmcheck.Run(strings.NewReader(tt.doc), tt.config)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if got := report.Issue(); got != tt.wantIssue {
				t.Errorf("Issue() = %q, want %q", got, tt.wantIssue)
			}
			if got, want := report.HasIssue(), tt.wantIssue != "No issues"; got != want {
				t.Errorf("HasIssue() = %v, want %v", got, want)
			}
		})
	}
}

func TestProgramCheckReusable(t *testing.T) {
	prog, err := hvmcheck.Compile(strings.NewReader(`{"code": [["Push", true], ["Assert"]]}`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	for i := 0; i < 2; i++ {
		report, err := prog.Check(nil)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if report.HasIssue() {
			t.Errorf("Check() iteration %d reported an issue: %s", i, report.Issue())
		}
	}
}

func TestCheckRejectsOutOfRangeInvariant(t *testing.T) {
	prog, err := hvmcheck.Compile(strings.NewReader(`{"code": [["Push", true], ["Assert"]]}`))
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	_, err = prog.Check(&hvmcheck.Config{Invariants: []hvmcheck.Invariant{{PC: 99}}})
	if err == nil {
		t.Fatal("Check: expected an error for an out-of-range invariant PC")
	}
	if _, ok := err.(*hvmcheck.ArgumentError); !ok {
		t.Errorf("Check: error type = %T, want *hvmcheck.ArgumentError", err)
	}
}

func TestCompileRejectsMalformedInput(t *testing.T) {
	_, err := hvmcheck.Compile(strings.NewReader(`not json`))
	if err == nil {
		t.Fatal("Compile: expected an error for malformed JSON")
	}
	if _, ok := err.(*hvmcheck.ParseError); !ok {
		t.Errorf("Compile: error type = %T, want *hvmcheck.ParseError", err)
	}
}

func TestReportWriteJSON(t *testing.T) {
	report, err := hvmcheck.Run(strings.NewReader(`{"code": [["Push", true], ["Assert"]]}`), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var buf strings.Builder
	if err := report.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"issue":"No issues"`) {
		t.Errorf("WriteJSON output missing issue field: %s", buf.String())
	}
}
