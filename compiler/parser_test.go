package compiler

import (
	"strconv"
	"strings"
	"testing"
)

func parseString(t *testing.T, input string) (*Sequence, Diagnostics) {
	t.Helper()
	return Parse(Tokenize(input))
}

// render prints an expression tree in fully parenthesized form.
func render(n Node) string {
	switch n := n.(type) {
	case *NumberLit:
		return strconv.FormatFloat(n.Value, 'f', -1, 64)
	case *StringLit:
		return "\"" + n.Value + "\""
	case *VarRef:
		return n.Name
	case *BinaryOp:
		return "(" + render(n.Left) + " " + n.Op.String() + " " + render(n.Right) + ")"
	case *Print:
		return "print " + render(n.Arg)
	case *Let:
		return "let " + n.Var.Name + " " + render(n.Value)
	case *EOS:
		return ";"
	case *NoOp:
		return "nop"
	case *Comment:
		return "comment"
	}
	return "?"
}

func renderSeq(seq *Sequence) string {
	parts := make([]string, len(seq.Children))
	for i, c := range seq.Children {
		parts[i] = render(c)
	}
	return strings.Join(parts, " | ")
}

func TestParserPrecedence(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"3 + 5を表示", "print (3 + 5)"},
		{"3+5を表示", "print (3 + 5)"},
		{"2+3*4を表示", "print (2 + (3 * 4))"},
		{"2*3+4を表示", "print ((2 * 3) + 4)"},
		{"1-2-3を表示", "print ((1 - 2) - 3)"},
		{"8/4/2を表示", "print ((8 / 4) / 2)"},
		{"1+2*3-4を表示", "print ((1 + (2 * 3)) - 4)"},
		{"1*2+3*4を表示", "print ((1 * 2) + (3 * 4))"},
		{"1+2*3*4+5を表示", "print ((1 + ((2 * 3) * 4)) + 5)"},
	}

	for _, tc := range tests {
		seq, diags := parseString(t, tc.input)
		if diags.HasErrors() {
			t.Errorf("Parse(%q): unexpected errors %v", tc.input, diags)
			continue
		}
		if got := renderSeq(seq); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserParentheses(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"(2+3)*4を表示", "print ((2 + 3) * 4)"},
		{"2*(3+4)を表示", "print (2 * (3 + 4))"},
		{"((1+2))を表示", "print (1 + 2)"},
		{"(1+2)*(3+4)を表示", "print ((1 + 2) * (3 + 4))"},
		{"2*(3+4)*5を表示", "print ((2 * (3 + 4)) * 5)"},
	}

	for _, tc := range tests {
		seq, diags := parseString(t, tc.input)
		if diags.HasErrors() {
			t.Errorf("Parse(%q): unexpected errors %v", tc.input, diags)
			continue
		}
		if got := renderSeq(seq); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserParticleClosesExpression(t *testing.T) {
	// The particle on 3 ends the expression; the following operator does
	// not fold onto it.
	seq, diags := parseString(t, "3を+5")
	if !diags.HasErrors() {
		t.Errorf("expected an error for the stray operator, got %v", diags)
	}
	for _, c := range seq.Children {
		if _, ok := c.(*BinaryOp); ok {
			t.Errorf("operator folded across a particle: %s", renderSeq(seq))
		}
	}

	seq, _ = parseString(t, "1+2を表示")
	if got := renderSeq(seq); got != "print (1 + 2)" {
		t.Errorf("got %s", got)
	}

	// The closing paren's particle closes the group.
	seq, diags = parseString(t, "(2+3)を表示")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors %v", diags)
	}
	if got := renderSeq(seq); got != "print (2 + 3)" {
		t.Errorf("got %s", got)
	}
}

func TestParserStatements(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"A=30; Aを表示", "let A 30 | ; | print A"},
		{"名前は「くじら」。名前を表示", "let 名前 \"くじら\" | ; | print 名前"},
		{"A＝1+2\nAを表示", "let A (1 + 2) | ; | print A"},
		{`"こんにちは"を表示`, "print \"こんにちは\""},
		{"# hello\n1を表示", "comment | ; | print 1"},
		{"5\nを表示", "; | nop | print 5"},
		{"表示する", "print nop"},
	}

	for _, tc := range tests {
		seq, _ := parseString(t, tc.input)
		if got := renderSeq(seq); got != tc.want {
			t.Errorf("Parse(%q) = %s, want %s", tc.input, got, tc.want)
		}
	}
}

func TestParserOperandStackPersistsAcrossStatements(t *testing.T) {
	// A value left by one statement is consumed by a later print.
	seq, diags := parseString(t, "7。表示")
	if diags.HasErrors() {
		t.Fatalf("unexpected errors %v", diags)
	}
	if got := renderSeq(seq); got != "; | print 7" {
		t.Errorf("got %s", got)
	}
}

func TestParserDiagnostics(t *testing.T) {
	tests := []struct {
		input    string
		severity Severity
		message  string
	}{
		{"(1+2を表示", SeverityError, "unmatched"},
		{"1+2)を表示", SeverityError, "unmatched"},
		{"3+", SeverityError, "requires two operands"},
		{"A=", SeverityError, "malformed assignment"},
		{"A=1 2", SeverityError, "after assignment"},
		{"表示", SeverityError, "requires a value"},
		{"()を表示", SeverityError, "exactly one value"},
		{"(1 2)を表示", SeverityError, "exactly one value"},
		{"@", SeverityWarning, "unrecognized character"},
		{"1+2", SeverityWarning, "left unused"},
		{"=5", SeverityError, "unexpected"},
	}

	for _, tc := range tests {
		_, diags := parseString(t, tc.input)
		found := false
		for _, d := range diags {
			if d.Severity == tc.severity && strings.Contains(d.Message, tc.message) {
				found = true
			}
		}
		if !found {
			t.Errorf("Parse(%q): diagnostics %v, want %s containing %q", tc.input, diags, tc.severity, tc.message)
		}
	}
}

func TestParserRecoversAtNextStatement(t *testing.T) {
	seq, diags := parseString(t, "=5。2を表示")
	if !diags.HasErrors() {
		t.Fatal("expected an error")
	}
	got := renderSeq(seq)
	if !strings.HasSuffix(got, "print 2") {
		t.Errorf("statement after error not parsed: %s", got)
	}
}

func TestParserPositions(t *testing.T) {
	seq, _ := parseString(t, "A=1\n  Aを表示")
	if len(seq.Children) != 3 {
		t.Fatalf("children = %s", renderSeq(seq))
	}
	let := seq.Children[0].(*Let)
	if let.Pos() != (Position{1, 1}) {
		t.Errorf("let pos = %v", let.Pos())
	}
	pr := seq.Children[2].(*Print)
	if pr.Pos() != (Position{2, 5}) {
		t.Errorf("print pos = %v, want 2:5", pr.Pos())
	}
	if pr.Arg.Pos() != (Position{2, 3}) {
		t.Errorf("arg pos = %v, want 2:3", pr.Arg.Pos())
	}
}

func TestDiagnosticsError(t *testing.T) {
	ds := Diagnostics{
		{Pos: Position{1, 2}, Severity: SeverityWarning, Message: "w"},
		{Pos: Position{3, 4}, Severity: SeverityError, Message: "e"},
	}
	if !ds.HasErrors() {
		t.Error("HasErrors = false")
	}
	if got := ds.Error(); got != "1:2: warning: w\n3:4: error: e" {
		t.Errorf("Error() = %q", got)
	}
	if err := ds.Err(); err == nil || err.Error() != "3:4: error: e" {
		t.Errorf("Err() = %v", err)
	}
	if (Diagnostics{{Severity: SeverityWarning}}).Err() != nil {
		t.Error("warnings only should not be an error")
	}
}

func TestDumpTree(t *testing.T) {
	seq, _ := parseString(t, "1+2を表示")
	want := "Sequence @1:1\n" +
		"  Print @1:5\n" +
		"    Binary + @1:2\n" +
		"      Number 1 @1:1\n" +
		"      Number 2 @1:3\n"
	if got := Dump(seq); got != want {
		t.Errorf("Dump =\n%s\nwant\n%s", got, want)
	}
}
