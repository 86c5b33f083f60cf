package compiler

import (
	"fmt"
	"strconv"
)

// ---------------------------------------------------------------------------
// Parser: statement parser with an explicit operand stack
// ---------------------------------------------------------------------------

// Parser turns a token stream into a Sequence of statements. Values are
// pushed onto an operand stack that lives for the whole program; statements
// such as 表示 pop their arguments from it. Parsing never stops early:
// problems are recorded as diagnostics and the parser skips to the next
// end-of-statement token.
type Parser struct {
	tokens []Token
	index  int
	stack  []Node
	diags  Diagnostics
}

// NewParser creates a parser over tokens.
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses tokens into a Sequence.
func Parse(tokens []Token) (*Sequence, Diagnostics) {
	p := NewParser(tokens)
	seq := p.Parse()
	return seq, p.Diagnostics()
}

// Diagnostics returns the diagnostics recorded so far.
func (p *Parser) Diagnostics() Diagnostics {
	return p.diags
}

// atEnd reports whether all tokens have been consumed.
func (p *Parser) atEnd() bool {
	return p.index >= len(p.tokens)
}

// cur returns the current token. Callers check atEnd first.
func (p *Parser) cur() Token {
	if p.atEnd() {
		return Token{}
	}
	return p.tokens[p.index]
}

// curIs checks if the current token is of the given type.
func (p *Parser) curIs(t TokenType) bool {
	return !p.atEnd() && p.tokens[p.index].Type == t
}

// peekIs checks if the token after the current one is of the given type.
func (p *Parser) peekIs(t TokenType) bool {
	return p.index+1 < len(p.tokens) && p.tokens[p.index+1].Type == t
}

func (p *Parser) next() {
	if !p.atEnd() {
		p.index++
	}
}

// lastPos returns the position of the current token, or of the last token
// at end of input.
func (p *Parser) lastPos() Position {
	if !p.atEnd() {
		return p.tokens[p.index].Pos
	}
	if len(p.tokens) > 0 {
		return p.tokens[len(p.tokens)-1].Pos
	}
	return Position{Line: 1, Column: 1}
}

func (p *Parser) errorf(pos Position, format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{Pos: pos, Severity: SeverityError, Message: fmt.Sprintf(format, args...)})
}

func (p *Parser) warnf(pos Position, format string, args ...any) {
	p.diags = append(p.diags, Diagnostic{Pos: pos, Severity: SeverityWarning, Message: fmt.Sprintf(format, args...)})
}

// errorCount returns the number of error diagnostics recorded so far.
func (p *Parser) errorCount() int {
	return len(p.diags.Errors())
}

// skipStatement advances to the next end-of-statement token without
// consuming it.
func (p *Parser) skipStatement() {
	for !p.atEnd() && !p.curIs(TokenEOS) {
		p.next()
	}
}

func (p *Parser) push(n Node) {
	p.stack = append(p.stack, n)
}

func (p *Parser) pop() (Node, bool) {
	if len(p.stack) == 0 {
		return nil, false
	}
	n := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return n, true
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// Parse parses every remaining token. Values still on the operand stack at
// the end are reported and dropped.
func (p *Parser) Parse() *Sequence {
	seq := &Sequence{PosVal: p.lastPos()}
	for !p.atEnd() {
		start := p.index
		seq.Children = append(seq.Children, p.parseStatement()...)
		if p.index == start {
			tok := p.cur()
			if tok.Type == TokenRParen {
				p.errorf(tok.Pos, "unmatched %q", tok.Literal)
			} else {
				p.errorf(tok.Pos, "unexpected %s %q", tok.Type, tok.Literal)
			}
			p.next()
			p.skipStatement()
		}
	}
	if len(p.stack) > 0 {
		p.warnf(p.stack[0].Pos(), "%d value(s) left unused", len(p.stack))
		p.stack = nil
	}
	return seq
}

// parseStatement parses one statement and returns the nodes it produced.
func (p *Parser) parseStatement() []Node {
	tok := p.cur()
	switch tok.Type {
	case TokenNop:
		p.next()
		p.warnf(tok.Pos, "unrecognized character %q", tok.Literal)
		return []Node{&NoOp{PosVal: tok.Pos, Text: tok.Literal}}

	case TokenComment:
		p.next()
		return []Node{&Comment{PosVal: tok.Pos, Text: tok.Literal}}

	case TokenEOS:
		p.next()
		return []Node{&EOS{PosVal: tok.Pos}}

	case TokenWord:
		if p.peekIs(TokenAssign) || tok.Josi == "は" {
			return p.parseLet()
		}
	}

	errs := p.errorCount()
	var out []Node
	for p.parseValue() {
	}
	if p.curIs(TokenPrint) {
		out = append(out, p.parsePrint())
	}
	if p.errorCount() > errs {
		p.skipStatement()
	}
	if p.curIs(TokenEOS) {
		out = append(out, &EOS{PosVal: p.cur().Pos})
		p.next()
	}
	return out
}

// parsePrint pops the print argument from the operand stack.
func (p *Parser) parsePrint() Node {
	tok := p.cur()
	p.next()
	arg, ok := p.pop()
	if !ok {
		p.errorf(tok.Pos, "%s requires a value to print", tok.Literal)
		arg = &NoOp{PosVal: tok.Pos}
	}
	return &Print{PosVal: tok.Pos, Arg: arg}
}

// parseLet parses `name = value` or `nameは value`. The value is parsed on a
// fresh operand stack so pending values of the enclosing program are not
// consumed.
func (p *Parser) parseLet() []Node {
	nameTok := p.cur()
	p.next()
	if p.curIs(TokenAssign) {
		p.next()
	}

	saved := p.stack
	p.stack = nil
	p.parseValue()
	parsed := p.stack
	p.stack = saved

	var out []Node
	if len(parsed) == 1 && isValue(parsed[0]) {
		out = append(out, &Let{
			PosVal: nameTok.Pos,
			Var:    &VarRef{PosVal: nameTok.Pos, Name: nameTok.Literal},
			Value:  parsed[0],
		})
		if !p.atEnd() && !p.curIs(TokenEOS) {
			tok := p.cur()
			p.errorf(tok.Pos, "unexpected %s %q after assignment to %s", tok.Type, tok.Literal, nameTok.Literal)
			p.skipStatement()
		}
	} else {
		p.errorf(nameTok.Pos, "malformed assignment to %s", nameTok.Literal)
		p.skipStatement()
	}

	if p.curIs(TokenEOS) {
		out = append(out, &EOS{PosVal: p.cur().Pos})
		p.next()
	}
	return out
}

// ---------------------------------------------------------------------------
// Values and expression folding
// ---------------------------------------------------------------------------

// parseValue parses one value and any infix operators that follow it,
// leaving the result on the operand stack. It reports whether a value was
// parsed.
func (p *Parser) parseValue() bool {
	if p.atEnd() {
		return false
	}
	tok := p.cur()
	if tok.Type == TokenLParen {
		n, closeTok, ok := p.parseGroup()
		if !ok {
			return false
		}
		p.pushValue(n, closeTok.HasJosi())
		return true
	}
	n, ok := p.literal(tok)
	if !ok {
		return false
	}
	p.next()
	p.pushValue(n, tok.HasJosi())
	return true
}

// literal converts a number, string or word token to its node.
func (p *Parser) literal(tok Token) (Node, bool) {
	switch tok.Type {
	case TokenNumber:
		v, err := strconv.ParseFloat(tok.Literal, 64)
		if err != nil {
			p.errorf(tok.Pos, "invalid number %q", tok.Literal)
		}
		return &NumberLit{PosVal: tok.Pos, Value: v}, true
	case TokenString:
		return &StringLit{PosVal: tok.Pos, Value: tok.Literal}, true
	case TokenWord:
		return &VarRef{PosVal: tok.Pos, Name: tok.Literal}, true
	}
	return nil, false
}

// pushValue pushes n. A value closed by a particle ends the expression;
// otherwise any following operators are folded onto it.
func (p *Parser) pushValue(n Node, closed bool) {
	p.push(n)
	if closed {
		return
	}
	p.climb(0)
}

// peekOperator returns the operator at the cursor, if any.
func (p *Parser) peekOperator() (ArithOp, bool) {
	if p.atEnd() {
		return 0, false
	}
	return arithOpFor(p.cur().Type)
}

// climb folds operators binding tighter than minPrec onto the value on top
// of the stack. When the next operator binds tighter than the current one
// it is folded first, so 2+3*4 becomes 2+(3*4). It reports whether an
// operand carrying a particle closed the expression.
func (p *Parser) climb(minPrec int) bool {
	for {
		op, ok := p.peekOperator()
		if !ok || op.Precedence() <= minPrec {
			return false
		}
		opTok := p.cur()
		p.next()

		closed, ok := p.parseOperand()
		if !ok {
			p.errorf(opTok.Pos, "operator %s requires two operands", op)
			return false
		}
		for !closed {
			next, ok := p.peekOperator()
			if !ok || next.Precedence() <= op.Precedence() {
				break
			}
			closed = p.climb(op.Precedence())
		}
		p.fold(op, opTok.Pos)
		if closed {
			return true
		}
	}
}

// parseOperand pushes the right-hand operand of an operator without folding
// anything onto it. It reports whether the operand carried a particle.
func (p *Parser) parseOperand() (closed, ok bool) {
	if p.atEnd() {
		return false, false
	}
	tok := p.cur()
	if tok.Type == TokenLParen {
		n, closeTok, ok := p.parseGroup()
		if !ok {
			return false, false
		}
		p.push(n)
		return closeTok.HasJosi(), true
	}
	n, ok := p.literal(tok)
	if !ok {
		return false, false
	}
	p.next()
	p.push(n)
	return tok.HasJosi(), true
}

// fold pops the right then the left operand and pushes their BinaryOp.
func (p *Parser) fold(op ArithOp, pos Position) {
	right, ok1 := p.pop()
	left, ok2 := p.pop()
	if !ok1 || !ok2 {
		p.errorf(pos, "operator %s requires two operands", op)
		return
	}
	p.push(&BinaryOp{PosVal: pos, Op: op, Left: left, Right: right})
}

// parseGroup consumes a parenthesized group and parses its contents as an
// independent expression. It returns the single resulting value and the
// closing token, whose particle closes the group.
func (p *Parser) parseGroup() (Node, Token, bool) {
	open := p.cur()
	p.next()

	depth := 1
	start := p.index
	for !p.atEnd() && !p.curIs(TokenEOS) {
		switch p.cur().Type {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		}
		if depth == 0 {
			break
		}
		p.next()
	}
	if depth != 0 {
		p.errorf(open.Pos, "unmatched %q", open.Literal)
		return nil, Token{}, false
	}
	inner := p.tokens[start:p.index]
	closeTok := p.cur()
	p.next()

	sub := NewParser(inner)
	for sub.parseValue() {
	}
	if !sub.atEnd() {
		tok := sub.cur()
		sub.errorf(tok.Pos, "unexpected %s %q in parentheses", tok.Type, tok.Literal)
	}
	p.diags = append(p.diags, sub.diags...)

	if len(sub.stack) != 1 {
		p.errorf(open.Pos, "parentheses must contain exactly one value, found %d", len(sub.stack))
		return nil, closeTok, false
	}
	return sub.stack[0], closeTok, true
}
