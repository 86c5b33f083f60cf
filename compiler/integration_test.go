package compiler

import (
	"strings"
	"testing"

	"github.com/nako4/nako4/vm"
)

func TestRunEndToEnd(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"add", "3 + 5を表示", "8\n"},
		{"add without spaces", "3+5を表示", "8\n"},
		{"sub", "10 - 3を表示", "7\n"},
		{"mul", "6 * 7を表示", "42\n"},
		{"div", "20 / 4を表示", "5\n"},
		{"fraction", "1 / 4を表示", "0.25\n"},
		{"negative", "3 - 10を表示", "-7\n"},
		{"precedence", "2+3*4を表示", "14\n"},
		{"parens", "(2+3)*4を表示", "20\n"},
		{"double quotes", `"こんにちは"を表示`, "こんにちは\n"},
		{"corner brackets", "「こんにちは」を表示", "こんにちは\n"},
		{"assign then read", "A=30; Aを表示", "30\n"},
		{"wa assignment", "名前は「くじら」。名前を表示", "くじら\n"},
		{"reassign", "A=1。A=A+1。Aを表示", "2\n"},
		{"multiple prints", "1を表示\n2を表示", "1\n2\n"},
		{"full width", "３＋４を表示", "7\n"},
		{"inflected print", "5を表示する", "5\n"},
		{"string arithmetic", `"12" * 3を表示`, "36\n"},
		{"unset variable", "Xを表示", "None\n"},
		{"comment", "# 足し算\n1+1を表示", "2\n"},
		{"escape", `"a\tb"を表示`, "a\tb\n"},
	}

	for _, tc := range tests {
		if got := Run(tc.input, Options{}); got != tc.want {
			t.Errorf("%s: Run(%q) = %q, want %q", tc.name, tc.input, got, tc.want)
		}
	}
}

func TestRunRuntimeErrors(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"10 / 0を表示", "Division by zero"},
		{"10 / (5-5)を表示", "Division by zero"},
		{`"abc" - 1を表示`, "SUB operation requires numeric values"},
		{"表示", "Stack underflow on PRINT operation"},
	}

	for _, tc := range tests {
		got := Run(tc.input, Options{})
		if !strings.Contains(got, tc.want) {
			t.Errorf("Run(%q) = %q, want error containing %q", tc.input, got, tc.want)
		}
	}
}

func TestRunKeepsOutputBeforeFault(t *testing.T) {
	res := Execute("1を表示\n1/0を表示\n2を表示", Options{})
	if res.Error != "Division by zero" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Output != "1\n" {
		t.Errorf("Output = %q, want %q", res.Output, "1\n")
	}
	if res.Line != 1 {
		t.Errorf("Line = %d, want 1 (last completed statement)", res.Line)
	}
	if res.Text() != "Division by zero" {
		t.Errorf("Text = %q", res.Text())
	}
}

func TestRunStrictRefusesErrors(t *testing.T) {
	res := Execute("1を表示。(2を表示", Options{Strict: true})
	if res.Output != "" {
		t.Errorf("strict mode executed the program: %q", res.Output)
	}
	if !strings.Contains(res.Error, "unmatched") {
		t.Errorf("Error = %q, want the parse error", res.Error)
	}

	// Warnings alone do not block execution.
	res = Execute("@1を表示", Options{Strict: true})
	if res.Output != "1\n" || res.Error != "" {
		t.Errorf("warning blocked execution: %+v", res)
	}
}

func TestRunBestEffortWithoutStrict(t *testing.T) {
	res := Execute("1を表示。(2を表示", Options{})
	if res.Output != "1\n" {
		t.Errorf("Output = %q", res.Output)
	}
	if !res.Diagnostics.HasErrors() {
		t.Error("expected diagnostics")
	}
}

func TestDebugDoesNotChangeProgram(t *testing.T) {
	src := "A=2+3*4。Aを表示"
	plain, _ := Compile(src, Options{})

	var sb strings.Builder
	debug, _ := Compile(src, Options{Debug: true, Trace: &vm.WriterTracer{W: &sb}})

	if plain.Disassemble() != debug.Disassemble() {
		t.Errorf("debug changed program:\n%s\nvs\n%s", plain.Disassemble(), debug.Disassemble())
	}
	trace := sb.String()
	for _, want := range []string{"-- tokens --", "-- ast --", "-- code --", "Let A", "PUSH_CONST"} {
		if !strings.Contains(trace, want) {
			t.Errorf("trace missing %q:\n%s", want, trace)
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	src := "A=1。B=「x」。A+2を表示。Bを表示"
	a, _ := Compile(src, Options{})
	b, _ := Compile(src, Options{})
	if a.Disassemble() != b.Disassemble() {
		t.Error("two compilations of the same source differ")
	}
}

func TestTraceReceivesVMEvents(t *testing.T) {
	var sb strings.Builder
	out := Run("A=5。Aを表示", Options{Trace: &vm.WriterTracer{W: &sb}})
	if out != "5\n" {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(sb.String(), "STORE: A[0] = 5") {
		t.Errorf("trace = %q", sb.String())
	}
}

func TestSessionKeepsVariables(t *testing.T) {
	s := NewSession(Options{})
	if res := s.Execute("A=10"); res.Error != "" {
		t.Fatalf("A=10: %s", res.Error)
	}
	if res := s.Execute("A*2を表示"); res.Output != "20\n" {
		t.Errorf("A*2 = %q, want 20", res.Output)
	}
	if res := s.Execute("B=A+1。Bを表示"); res.Output != "11\n" {
		t.Errorf("B = %q, want 11", res.Output)
	}
	if v, _ := s.Vars().GetByName("B"); !v.Equal(vm.NumberValue(11)) {
		t.Errorf("B in session = %v", v)
	}

	s.Reset()
	if res := s.Execute("Aを表示"); res.Output != "None\n" {
		t.Errorf("after reset A = %q, want None", res.Output)
	}
}
