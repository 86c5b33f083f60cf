package compiler

import (
	"strings"

	"golang.org/x/text/width"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Nako source text
// ---------------------------------------------------------------------------

// Lexer tokenizes Nako source code. It never aborts: characters it cannot
// classify become TokenNop tokens carrying the raw character.
type Lexer struct {
	src   *Source
	diags Diagnostics
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{src: NewSource(input)}
}

// NewLexerAt creates a lexer whose token positions start at base.
func NewLexerAt(input string, base Position) *Lexer {
	return &Lexer{src: NewSourceAt(input, base)}
}

// Diagnostics returns the warnings collected while lexing.
func (l *Lexer) Diagnostics() Diagnostics {
	return l.diags
}

// fold maps full-width ASCII variants and the ideographic space to their
// narrow forms. Other characters are returned unchanged.
func fold(r rune) rune {
	switch r {
	case '　':
		return ' '
	case '×':
		return '*'
	case '÷':
		return '/'
	}
	if p := width.LookupRune(r); p.Kind() == width.EastAsianFullwidth {
		if n := p.Narrow(); n != 0 {
			return n
		}
	}
	return r
}

// peek returns the folded next character.
func (l *Lexer) peek() rune {
	return fold(l.src.Peek())
}

// NextToken returns the next token, or false at end of input.
func (l *Lexer) NextToken() (Token, bool) {
	tok, ok := l.scan()
	if ok {
		tok.End = l.src.Pos()
	}
	return tok, ok
}

func (l *Lexer) scan() (Token, bool) {
	for !l.src.EOF() {
		if r := l.peek(); r == ' ' || r == '\t' || r == '\r' {
			l.src.Next()
			continue
		}
		break
	}
	if l.src.EOF() {
		return Token{}, false
	}

	pos := l.src.Pos()
	ch := l.peek()

	switch {
	case ch == '#':
		text := l.src.ReadWhile(func(r rune) bool { return r != '\n' })
		return Token{Type: TokenComment, Literal: text, Pos: pos}, true

	case IsDigit(ch):
		return l.withJosi(l.readNumber(pos)), true

	case IsLetter(ch) || ch == '_':
		return l.withJosi(l.readIdentifier(pos)), true

	case ch == '"':
		return l.withJosi(l.readString(pos, '"')), true

	case ch == '「':
		return l.withJosi(l.readString(pos, '」')), true

	case ch == '。' || ch == ';' || ch == '\n':
		lit := string(l.src.Next())
		return Token{Type: TokenEOS, Literal: lit, Pos: pos}, true

	case ch == '+':
		l.src.Next()
		return Token{Type: TokenPlus, Literal: "+", Pos: pos}, true
	case ch == '-':
		l.src.Next()
		return Token{Type: TokenMinus, Literal: "-", Pos: pos}, true
	case ch == '*':
		l.src.Next()
		return Token{Type: TokenStar, Literal: "*", Pos: pos}, true
	case ch == '/':
		l.src.Next()
		return Token{Type: TokenSlash, Literal: "/", Pos: pos}, true
	case ch == '(':
		l.src.Next()
		return Token{Type: TokenLParen, Literal: "(", Pos: pos}, true
	case ch == ')':
		l.src.Next()
		return l.withJosi(Token{Type: TokenRParen, Literal: ")", Pos: pos}), true
	case ch == '=':
		l.src.Next()
		return Token{Type: TokenAssign, Literal: "=", Pos: pos}, true

	case IsJapanese(ch):
		if tok, ok := l.readWord(pos); ok {
			return l.withJosi(tok), true
		}
	}

	lit := string(l.src.Next())
	return Token{Type: TokenNop, Literal: lit, Pos: pos}, true
}

// withJosi attaches a particle that immediately follows tok.
func (l *Lexer) withJosi(tok Token) Token {
	tok.Josi = readJosi(l.src)
	return tok
}

// readNumber reads a maximal run of digits.
func (l *Lexer) readNumber(pos Position) Token {
	var sb strings.Builder
	for !l.src.EOF() && IsDigit(l.peek()) {
		sb.WriteRune(l.peek())
		l.src.Next()
	}
	return Token{Type: TokenNumber, Literal: sb.String(), Pos: pos}
}

// readIdentifier reads an ASCII identifier: a letter or underscore followed
// by letters, digits and underscores.
func (l *Lexer) readIdentifier(pos Position) Token {
	var sb strings.Builder
	for !l.src.EOF() {
		r := l.peek()
		if !IsLetter(r) && !IsDigit(r) && r != '_' {
			break
		}
		sb.WriteRune(r)
		l.src.Next()
	}
	lit := sb.String()
	return Token{Type: TokenWord, Literal: lit, Raw: lit, Pos: pos}
}

// readString reads a string delimited by the opening character at the cursor
// and closer. Escapes \n \t \\ \" are decoded; any other escaped character is
// kept without its backslash.
func (l *Lexer) readString(pos Position, closer rune) Token {
	l.src.Next() // opening delimiter
	var sb strings.Builder
	closed := false
	for !l.src.EOF() {
		r := l.src.Next()
		if fold(r) == closer {
			closed = true
			break
		}
		if r == '\\' && !l.src.EOF() {
			switch esc := l.src.Next(); esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			default:
				sb.WriteRune(esc)
			}
			continue
		}
		sb.WriteRune(r)
	}
	if !closed {
		l.diags = append(l.diags, Diagnostic{
			Pos:      pos,
			Severity: SeverityWarning,
			Message:  "unterminated string literal",
		})
	}
	return Token{Type: TokenString, Literal: sb.String(), Pos: pos}
}

// readWord extracts a Japanese word. Hiragana following kanji or katakana is
// inflection: it is dropped from the literal and kept in Okurigana.
func (l *Lexer) readWord(pos Position) (Token, bool) {
	var lit, okuri, raw strings.Builder
	first := l.src.Peek()

	// okurigana consumes hiragana that does not start a particle.
	okurigana := func() {
		for !l.src.EOF() && IsHiragana(l.src.Peek()) && matchJosi(l.src) == "" {
			r := l.src.Next()
			okuri.WriteRune(r)
			raw.WriteRune(r)
		}
	}

	switch {
	case IsKanji(first):
		for !l.src.EOF() && IsKanji(l.src.Peek()) {
			for !l.src.EOF() && IsKanji(l.src.Peek()) {
				r := l.src.Next()
				lit.WriteRune(r)
				raw.WriteRune(r)
			}
			okurigana()
		}

	case IsHiragana(first):
		for !l.src.EOF() && IsHiragana(l.src.Peek()) && matchJosi(l.src) == "" {
			r := l.src.Next()
			lit.WriteRune(r)
			raw.WriteRune(r)
		}

	case IsKatakana(first):
		for !l.src.EOF() && IsKatakana(l.src.Peek()) {
			r := l.src.Next()
			lit.WriteRune(r)
			raw.WriteRune(r)
		}
		okurigana()
	}

	if lit.Len() == 0 {
		return Token{}, false
	}
	tok := Token{
		Type:      TokenWord,
		Literal:   lit.String(),
		Raw:       raw.String(),
		Okurigana: okuri.String(),
		Pos:       pos,
	}
	if tok.Literal == PrintKeyword {
		tok.Type = TokenPrint
	}
	return tok, true
}

// Tokenize returns all tokens in input.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok, ok := l.NextToken()
		if !ok {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}
