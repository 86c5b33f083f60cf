package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// AST: Abstract Syntax Tree for Nako statements
// ---------------------------------------------------------------------------

// Node is the interface implemented by all AST nodes. The set of node types
// is closed; every consumer switches over the concrete types below.
type Node interface {
	Pos() Position
	node() // marker method
}

// NoOp is a statement that does nothing, produced for unrecognized input.
type NoOp struct {
	PosVal Position
	Text   string
}

// Comment carries a source comment verbatim.
type Comment struct {
	PosVal Position
	Text   string
}

// Sequence is an ordered list of statements. The parser's root is a Sequence.
type Sequence struct {
	PosVal   Position
	Children []Node
}

// NumberLit is a numeric literal.
type NumberLit struct {
	PosVal Position
	Value  float64
}

// StringLit is a string literal.
type StringLit struct {
	PosVal Position
	Value  string
}

// VarRef names a variable.
type VarRef struct {
	PosVal Position
	Name   string
}

// Print renders its argument followed by a newline.
type Print struct {
	PosVal Position
	Arg    Node
}

// ArithOp identifies a binary arithmetic operator.
type ArithOp int

const (
	ArithAdd ArithOp = iota
	ArithSub
	ArithMul
	ArithDiv
)

func (o ArithOp) String() string {
	switch o {
	case ArithAdd:
		return "+"
	case ArithSub:
		return "-"
	case ArithMul:
		return "*"
	case ArithDiv:
		return "/"
	}
	return fmt.Sprintf("ArithOp(%d)", o)
}

// Precedence returns the binding strength of o: * and / bind tighter than
// + and -.
func (o ArithOp) Precedence() int {
	if o == ArithMul || o == ArithDiv {
		return 2
	}
	return 1
}

// arithOpFor maps an operator token to its ArithOp.
func arithOpFor(t TokenType) (ArithOp, bool) {
	switch t {
	case TokenPlus:
		return ArithAdd, true
	case TokenMinus:
		return ArithSub, true
	case TokenStar:
		return ArithMul, true
	case TokenSlash:
		return ArithDiv, true
	}
	return 0, false
}

// BinaryOp applies Op to Left and Right.
type BinaryOp struct {
	PosVal Position
	Op     ArithOp
	Left   Node
	Right  Node
}

// Let assigns Value to Var.
type Let struct {
	PosVal Position
	Var    *VarRef
	Value  Node
}

// EOS marks the end of a statement. Its line is recorded when it executes.
type EOS struct {
	PosVal Position
}

func (n *NoOp) Pos() Position      { return n.PosVal }
func (n *Comment) Pos() Position   { return n.PosVal }
func (n *Sequence) Pos() Position  { return n.PosVal }
func (n *NumberLit) Pos() Position { return n.PosVal }
func (n *StringLit) Pos() Position { return n.PosVal }
func (n *VarRef) Pos() Position    { return n.PosVal }
func (n *Print) Pos() Position     { return n.PosVal }
func (n *BinaryOp) Pos() Position  { return n.PosVal }
func (n *Let) Pos() Position       { return n.PosVal }
func (n *EOS) Pos() Position       { return n.PosVal }

func (n *NoOp) node()      {}
func (n *Comment) node()   {}
func (n *Sequence) node()  {}
func (n *NumberLit) node() {}
func (n *StringLit) node() {}
func (n *VarRef) node()    {}
func (n *Print) node()     {}
func (n *BinaryOp) node()  {}
func (n *Let) node()       {}
func (n *EOS) node()       {}

// isValue reports whether n can stand as an operand.
func isValue(n Node) bool {
	switch n.(type) {
	case *NumberLit, *StringLit, *VarRef, *BinaryOp:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Tree dump
// ---------------------------------------------------------------------------

// Dump renders n as an indented tree, one node per line.
func Dump(n Node) string {
	var sb strings.Builder
	dump(&sb, n, 0)
	return sb.String()
}

func dump(sb *strings.Builder, n Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := n.(type) {
	case nil:
		fmt.Fprintf(sb, "%s<nil>\n", indent)
	case *NoOp:
		fmt.Fprintf(sb, "%sNoOp %q @%s\n", indent, n.Text, n.PosVal)
	case *Comment:
		fmt.Fprintf(sb, "%sComment %q @%s\n", indent, n.Text, n.PosVal)
	case *Sequence:
		fmt.Fprintf(sb, "%sSequence @%s\n", indent, n.PosVal)
		for _, c := range n.Children {
			dump(sb, c, depth+1)
		}
	case *NumberLit:
		fmt.Fprintf(sb, "%sNumber %s @%s\n", indent, strconv.FormatFloat(n.Value, 'f', -1, 64), n.PosVal)
	case *StringLit:
		fmt.Fprintf(sb, "%sString %q @%s\n", indent, n.Value, n.PosVal)
	case *VarRef:
		fmt.Fprintf(sb, "%sVar %s @%s\n", indent, n.Name, n.PosVal)
	case *Print:
		fmt.Fprintf(sb, "%sPrint @%s\n", indent, n.PosVal)
		dump(sb, n.Arg, depth+1)
	case *BinaryOp:
		fmt.Fprintf(sb, "%sBinary %s @%s\n", indent, n.Op, n.PosVal)
		dump(sb, n.Left, depth+1)
		dump(sb, n.Right, depth+1)
	case *Let:
		fmt.Fprintf(sb, "%sLet %s @%s\n", indent, n.Var.Name, n.PosVal)
		dump(sb, n.Value, depth+1)
	case *EOS:
		fmt.Fprintf(sb, "%sEOS @%s\n", indent, n.PosVal)
	default:
		fmt.Fprintf(sb, "%s%T\n", indent, n)
	}
}
