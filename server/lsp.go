package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/nako4/nako4/compiler"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "nako4-lsp"

// LspServer bridges LSP editor features to the Nako front end. Every open
// document is re-analyzed on change; no code is generated or run.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]*document // URI → analyzed document

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// document is one open text with its front-end analysis.
type document struct {
	text     string
	lines    []string
	analysis compiler.Analysis
}

func newDocument(text string) *document {
	return &document{
		text:     text,
		lines:    strings.Split(text, "\n"),
		analysis: compiler.Check(text, nil),
	}
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]*document),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	commonlog.NewInfoMessage(0, "Nako LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := s.open(params.TextDocument.URI, params.TextDocument.Text)
	s.publishDiagnostics(ctx, params.TextDocument.URI, doc)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			doc := s.open(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, doc)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) open(uri protocol.DocumentUri, text string) *document {
	doc := newDocument(text)
	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()
	return doc
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return doc.complete(extractPrefix(doc.text, params.Position)), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	tok, ok := doc.tokenAt(params.Position)
	if !ok {
		return nil, nil
	}
	return doc.hover(tok), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	doc, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	tok, ok := doc.tokenAt(params.Position)
	if !ok || tok.Type != compiler.TokenWord {
		return nil, nil
	}
	let := doc.definition(tok.Literal)
	if let == nil {
		return nil, nil
	}
	return []protocol.Location{{
		URI:   uri,
		Range: doc.nameRange(let.Var.PosVal, let.Var.Name),
	}}, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	doc, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	tok, ok := doc.tokenAt(params.Position)
	if !ok || tok.Type != compiler.TokenWord {
		return nil, nil
	}
	var locations []protocol.Location
	for _, t := range doc.analysis.Tokens {
		if t.Type == compiler.TokenWord && t.Literal == tok.Literal {
			locations = append(locations, protocol.Location{
				URI:   uri,
				Range: doc.nameRange(t.Pos, t.Raw),
			})
		}
	}
	return locations, nil
}

// --- Document queries ---

// complete offers every assigned variable and the print keyword.
func (d *document) complete(prefix string) []protocol.CompletionItem {
	seen := map[string]bool{}
	var names []string
	for _, n := range d.analysis.AST.Children {
		if let, ok := n.(*compiler.Let); ok && !seen[let.Var.Name] {
			seen[let.Var.Name] = true
			names = append(names, let.Var.Name)
		}
	}
	sort.Strings(names)

	var items []protocol.CompletionItem
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		kind := protocol.CompletionItemKindVariable
		detail := "variable"
		nameCopy := name
		items = append(items, protocol.CompletionItem{
			Label:      name,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &nameCopy,
		})
	}
	if strings.HasPrefix(compiler.PrintKeyword, prefix) {
		kind := protocol.CompletionItemKindKeyword
		detail := "print the value before it"
		keyword := compiler.PrintKeyword
		items = append(items, protocol.CompletionItem{
			Label:      keyword,
			Kind:       &kind,
			Detail:     &detail,
			InsertText: &keyword,
		})
	}
	return items
}

// definition returns the first assignment to name.
func (d *document) definition(name string) *compiler.Let {
	for _, n := range d.analysis.AST.Children {
		if let, ok := n.(*compiler.Let); ok && let.Var.Name == name {
			return let
		}
	}
	return nil
}

func (d *document) hover(tok compiler.Token) *protocol.Hover {
	var b strings.Builder
	switch tok.Type {
	case compiler.TokenWord:
		fmt.Fprintf(&b, "**%s** variable", tok.Literal)
		if let := d.definition(tok.Literal); let != nil {
			fmt.Fprintf(&b, ", assigned at line %d", let.Var.PosVal.Line)
		}
	case compiler.TokenPrint:
		fmt.Fprintf(&b, "**%s** prints the value before it", tok.Literal)
	case compiler.TokenNumber:
		fmt.Fprintf(&b, "number `%s`", tok.Literal)
	case compiler.TokenString:
		fmt.Fprintf(&b, "string %q", tok.Literal)
	default:
		fmt.Fprintf(&b, "`%s` %s", tok.Literal, tok.Type)
	}
	b.WriteString("\n\n")
	if tok.Josi != "" {
		fmt.Fprintf(&b, "particle: %s\n\n", tok.Josi)
	}
	if tok.Okurigana != "" {
		fmt.Fprintf(&b, "inflection: %s (written %s)\n\n", tok.Okurigana, tok.Raw)
	}

	rng := protocol.Range{Start: d.lspPosition(tok.Pos), End: d.lspPosition(tok.End)}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: strings.TrimRight(b.String(), "\n"),
		},
		Range: &rng,
	}
}

// tokenAt returns the token whose span, particle included, covers p.
func (d *document) tokenAt(p protocol.Position) (compiler.Token, bool) {
	at := d.nakoPosition(p)
	for _, tok := range d.analysis.Tokens {
		if tok.Type == compiler.TokenEOS || tok.Type == compiler.TokenComment {
			continue
		}
		if !before(at, tok.Pos) && before(at, tok.End) {
			return tok, true
		}
	}
	return compiler.Token{}, false
}

func before(a, b compiler.Position) bool {
	return a.Line < b.Line || (a.Line == b.Line && a.Column < b.Column)
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, doc *document) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: doc.diagnostics(),
	})
}

func (d *document) diagnostics() []protocol.Diagnostic {
	diagnostics := []protocol.Diagnostic{}
	source := lspName
	for _, diag := range d.analysis.Diagnostics {
		severity := protocol.DiagnosticSeverityError
		if diag.Severity == compiler.SeverityWarning {
			severity = protocol.DiagnosticSeverityWarning
		}
		rng := protocol.Range{Start: d.lspPosition(diag.Pos), End: d.lspPosition(diag.Pos)}
		for _, tok := range d.analysis.Tokens {
			if tok.Pos == diag.Pos {
				rng.End = d.lspPosition(tok.End)
				break
			}
		}
		diagnostics = append(diagnostics, protocol.Diagnostic{
			Range:    rng,
			Severity: &severity,
			Source:   &source,
			Message:  diag.Message,
		})
	}
	return diagnostics
}

// --- Position conversion ---
//
// Compiler positions are 1-based and count code points. LSP positions are
// 0-based and count UTF-16 code units.

func (d *document) lspPosition(p compiler.Position) protocol.Position {
	line := max(p.Line-1, 0)
	ch := 0
	if line < len(d.lines) {
		runes := []rune(d.lines[line])
		for i := 0; i < p.Column-1 && i < len(runes); i++ {
			ch += utf16.RuneLen(runes[i])
		}
	}
	return protocol.Position{Line: protocol.UInteger(line), Character: protocol.UInteger(ch)}
}

func (d *document) nakoPosition(p protocol.Position) compiler.Position {
	col := 1
	if int(p.Line) < len(d.lines) {
		units := 0
		for _, r := range d.lines[p.Line] {
			if units >= int(p.Character) {
				break
			}
			units += utf16.RuneLen(r)
			col++
		}
	}
	return compiler.Position{Line: int(p.Line) + 1, Column: col}
}

// nameRange spans text starting at p on one line.
func (d *document) nameRange(p compiler.Position, text string) protocol.Range {
	end := p
	end.Column += len([]rune(text))
	return protocol.Range{Start: d.lspPosition(p), End: d.lspPosition(end)}
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := []rune(lines[pos.Line])

	// Walk to the cursor in UTF-16 units
	col, units := 0, 0
	for col < len(line) && units < int(pos.Character) {
		units += utf16.RuneLen(line[col])
		col++
	}

	// Walk backwards from cursor to find the start of the word
	start := col
	for start > 0 && isWordRune(line[start-1]) {
		start--
	}
	return string(line[start:col])
}

func isWordRune(r rune) bool {
	return compiler.IsLetter(r) || compiler.IsDigit(r) || r == '_' ||
		compiler.IsKanji(r) || compiler.IsKatakana(r) || compiler.IsHiragana(r)
}

func boolPtr(b bool) *bool {
	return &b
}
