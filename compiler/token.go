package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	TokenNop     TokenType = iota // unrecognized character, carried verbatim
	TokenComment                  // # ... end of line
	TokenEOS                      // 。 ; newline

	// Literals
	TokenNumber // 42
	TokenString // "hello" 「hello」
	TokenWord   // A, 名前, カウンタ

	// Keywords
	TokenPrint // 表示

	// Operators and delimiters
	TokenPlus   // + ＋
	TokenMinus  // - －
	TokenStar   // * ＊ ×
	TokenSlash  // / ／ ÷
	TokenLParen // ( （
	TokenRParen // ) ）
	TokenAssign // = ＝
)

var tokenNames = map[TokenType]string{
	TokenNop:     "NOP",
	TokenComment: "COMMENT",
	TokenEOS:     "EOS",
	TokenNumber:  "NUMBER",
	TokenString:  "STRING",
	TokenWord:    "WORD",
	TokenPrint:   "PRINT",
	TokenPlus:    "+",
	TokenMinus:   "-",
	TokenStar:    "*",
	TokenSlash:   "/",
	TokenLParen:  "(",
	TokenRParen:  ")",
	TokenAssign:  "=",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Token(%d)", t)
}

// PrintKeyword is the word that reads as the print statement.
const PrintKeyword = "表示"

// Token represents a lexical token. Tokens are never modified after lexing.
type Token struct {
	Type    TokenType
	Literal string   // canonical text
	Pos     Position // start position
	End     Position // position just past the token and its particle

	// Josi is the particle that immediately followed the token, if any.
	// A token with a particle is grammatically closed.
	Josi string

	// Okurigana holds the hiragana suffix dropped from a word literal
	// (書き込む -> 書込 + "きむ"). Raw is the exact source text of a word.
	Okurigana string
	Raw       string
}

// HasJosi reports whether the token carries a trailing particle.
func (t Token) HasJosi() bool {
	return t.Josi != ""
}

// IsOperator reports whether the token is one of + - * /.
func (t Token) IsOperator() bool {
	switch t.Type {
	case TokenPlus, TokenMinus, TokenStar, TokenSlash:
		return true
	}
	return false
}

func (t Token) String() string {
	lit := t.Literal
	if len([]rune(lit)) > 20 {
		lit = string([]rune(lit)[:20]) + "..."
	}
	s := fmt.Sprintf("%s(%q)", t.Type, lit)
	if t.Josi != "" {
		s += "+" + t.Josi
	}
	return s
}
