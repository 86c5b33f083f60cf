package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Source: code-point cursor with line/column tracking
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Shift translates p, a position inside an embedded region, into the
// coordinates of the enclosing text where the region starts at base.
func (p Position) Shift(base Position) Position {
	if base.Line == 0 {
		return p
	}
	if p.Line <= 1 {
		return Position{Line: base.Line, Column: base.Column + p.Column - 1}
	}
	return Position{Line: base.Line + p.Line - 1, Column: p.Column}
}

// Source walks a sequence of code points. Every consuming method is safe past
// the end of input: it returns 0 or "" and leaves the cursor where it is.
type Source struct {
	runes []rune
	index int
	line  int
	col   int
	base  Position
}

// NewSource creates a cursor at line 1, column 1.
func NewSource(text string) *Source {
	return &Source{runes: []rune(text), line: 1, col: 1}
}

// NewSourceAt creates a cursor whose reported positions are shifted so the
// first character sits at base.
func NewSourceAt(text string, base Position) *Source {
	s := NewSource(text)
	s.base = base
	return s
}

// Pos returns the position of the next character.
func (s *Source) Pos() Position {
	return Position{Line: s.line, Column: s.col}.Shift(s.base)
}

// Len returns the number of code points in the source.
func (s *Source) Len() int {
	return len(s.runes)
}

// EOF reports whether all input has been consumed.
func (s *Source) EOF() bool {
	return s.index >= len(s.runes)
}

// Peek returns the next character without consuming it, or 0 at end of input.
func (s *Source) Peek() rune {
	if s.index >= len(s.runes) {
		return 0
	}
	return s.runes[s.index]
}

// Next consumes and returns the next character, or 0 at end of input.
func (s *Source) Next() rune {
	if s.index >= len(s.runes) {
		return 0
	}
	r := s.runes[s.index]
	s.index++
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

// Prev steps back one character. Crossing a newline backward restores the
// line but not the column of the previous line's end.
func (s *Source) Prev() {
	if s.index == 0 {
		return
	}
	s.index--
	if s.runes[s.index] == '\n' {
		if s.line > 1 {
			s.line--
		}
		return
	}
	if s.col > 1 {
		s.col--
	}
}

// Take consumes up to n characters and returns them.
func (s *Source) Take(n int) string {
	var sb strings.Builder
	for i := 0; i < n && !s.EOF(); i++ {
		sb.WriteRune(s.Next())
	}
	return sb.String()
}

// Preview returns up to n characters without consuming them.
func (s *Source) Preview(n int) string {
	end := s.index + n
	if end > len(s.runes) {
		end = len(s.runes)
	}
	if s.index >= end {
		return ""
	}
	return string(s.runes[s.index:end])
}

// ReadUntil consumes characters up to and including delim and returns the
// text before it. At end of input it returns what was read.
func (s *Source) ReadUntil(delim rune) string {
	var sb strings.Builder
	for !s.EOF() {
		r := s.Next()
		if r == delim {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ReadWhile consumes characters while pred holds and returns them.
func (s *Source) ReadWhile(pred func(rune) bool) string {
	var sb strings.Builder
	for !s.EOF() && pred(s.Peek()) {
		sb.WriteRune(s.Next())
	}
	return sb.String()
}

// HasPrefix reports whether the unconsumed input starts with prefix.
func (s *Source) HasPrefix(prefix string) bool {
	i := s.index
	for _, r := range prefix {
		if i >= len(s.runes) || s.runes[i] != r {
			return false
		}
		i++
	}
	return true
}
