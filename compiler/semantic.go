package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Semantic Analyzer: Pre-codegen semantic checks
// ---------------------------------------------------------------------------

// SemanticAnalyzer walks a parsed program in execution order and reports
// warnings that do not prevent code generation: variables read before any
// assignment and division by a literal zero.
type SemanticAnalyzer struct {
	diags    Diagnostics
	assigned map[string]bool
	reported map[string]bool
}

// NewSemanticAnalyzer creates an analyzer that treats known names as
// already assigned.
func NewSemanticAnalyzer(known ...string) *SemanticAnalyzer {
	s := &SemanticAnalyzer{
		assigned: make(map[string]bool),
		reported: make(map[string]bool),
	}
	for _, name := range known {
		s.assigned[name] = true
	}
	return s
}

// Diagnostics returns the warnings recorded so far.
func (s *SemanticAnalyzer) Diagnostics() Diagnostics {
	return s.diags
}

func (s *SemanticAnalyzer) warnAt(node Node, format string, args ...any) {
	s.diags = append(s.diags, Diagnostic{
		Pos:      node.Pos(),
		Severity: SeverityWarning,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Analyze checks n and its children.
func (s *SemanticAnalyzer) Analyze(n Node) {
	switch n := n.(type) {
	case *Sequence:
		for _, c := range n.Children {
			s.Analyze(c)
		}
	case *Print:
		s.Analyze(n.Arg)
	case *Let:
		s.Analyze(n.Value)
		s.assigned[n.Var.Name] = true
	case *BinaryOp:
		s.Analyze(n.Left)
		s.Analyze(n.Right)
		if n.Op == ArithDiv {
			if lit, ok := n.Right.(*NumberLit); ok && lit.Value == 0 {
				s.warnAt(n, "division by zero")
			}
		}
	case *VarRef:
		s.checkVariableAssigned(n)
	}
}

// checkVariableAssigned warns once per name about reads before assignment.
func (s *SemanticAnalyzer) checkVariableAssigned(v *VarRef) {
	if s.assigned[v.Name] || s.reported[v.Name] {
		return
	}
	s.reported[v.Name] = true
	s.warnAt(v, "variable %s is used before it is assigned", v.Name)
}

// Analyze is a convenience function that runs the semantic checks on root.
func Analyze(root Node, known []string) Diagnostics {
	s := NewSemanticAnalyzer(known...)
	s.Analyze(root)
	return s.Diagnostics()
}
