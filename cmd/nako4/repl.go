package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nako4/nako4/compiler"
	"github.com/nako4/nako4/server"
	"github.com/nako4/nako4/store"
	"github.com/nako4/nako4/vm"
)

// ---------------------------------------------------------------------------
// Evaluators: where REPL input runs
// ---------------------------------------------------------------------------

type evalResult struct {
	output string
	err    string
	line   int
	notes  []string // diagnostics and debug trace
}

type evaluator interface {
	eval(source string) (evalResult, error)
	reset() error
	vars() []string
	names() []string
	label() string
	Close() error
}

func newEvaluator(ctx context.Context, remote string, opts compiler.Options) (evaluator, error) {
	if remote == "" {
		return newLocalEvaluator(opts), nil
	}
	return newRemoteEvaluator(ctx, remote)
}

// localEvaluator runs input in an in-process session.
type localEvaluator struct {
	session *compiler.Session
	debug   bool
}

func newLocalEvaluator(opts compiler.Options) *localEvaluator {
	// Trace output is captured per input rather than written to the terminal.
	debug := opts.Debug
	opts.Trace = nil
	return &localEvaluator{session: compiler.NewSession(opts), debug: debug}
}

func (e *localEvaluator) eval(source string) (evalResult, error) {
	var trace strings.Builder
	if e.debug {
		e.session.Options.Trace = &vm.WriterTracer{W: &trace}
	}
	res := e.session.Execute(source)

	r := evalResult{output: res.Output, err: res.Error, line: res.Line}
	if !e.debug {
		for _, d := range res.Diagnostics {
			r.notes = append(r.notes, d.String())
		}
	}
	if trace.Len() > 0 {
		r.notes = append(r.notes, strings.Split(strings.TrimRight(trace.String(), "\n"), "\n")...)
	}
	return r, nil
}

func (e *localEvaluator) reset() error {
	e.session.Reset()
	return nil
}

func (e *localEvaluator) vars() []string {
	t := e.session.Vars()
	lines := make([]string, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		v, _ := t.Get(i)
		lines = append(lines, fmt.Sprintf("%s = %s", t.Name(i), v))
	}
	return lines
}

func (e *localEvaluator) names() []string {
	t := e.session.Vars()
	out := make([]string, t.Len())
	for i := range out {
		out[i] = t.Name(i)
	}
	return out
}

func (e *localEvaluator) label() string { return "local" }

func (e *localEvaluator) Close() error { return nil }

// remoteEvaluator runs input in a session on an evaluation server.
type remoteEvaluator struct {
	ctx     context.Context
	addr    string
	client  *server.Client
	session string
}

func newRemoteEvaluator(ctx context.Context, addr string) (*remoteEvaluator, error) {
	client, err := server.Dial(addr)
	if err != nil {
		return nil, err
	}
	id, err := client.CreateSession(ctx, "repl")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create remote session: %w", err)
	}
	return &remoteEvaluator{ctx: ctx, addr: addr, client: client, session: id}, nil
}

func (e *remoteEvaluator) eval(source string) (evalResult, error) {
	reply, err := e.client.SessionRun(e.ctx, e.session, source)
	if err != nil {
		return evalResult{}, err
	}
	return evalResult{output: reply.Output, err: reply.Error, line: reply.Line, notes: reply.Diagnostics}, nil
}

func (e *remoteEvaluator) reset() error {
	if err := e.client.DestroySession(e.ctx, e.session); err != nil {
		return err
	}
	id, err := e.client.CreateSession(e.ctx, "repl")
	if err != nil {
		return err
	}
	e.session = id
	return nil
}

func (e *remoteEvaluator) vars() []string { return nil }

func (e *remoteEvaluator) names() []string { return nil }

func (e *remoteEvaluator) label() string { return e.addr }

func (e *remoteEvaluator) Close() error {
	e.client.DestroySession(e.ctx, e.session)
	return e.client.Close()
}

// ---------------------------------------------------------------------------
// Presentation
// ---------------------------------------------------------------------------

// theme holds the lipgloss styles of the REPL screen.
type theme struct {
	prompt lipgloss.Style
	output lipgloss.Style
	fault  lipgloss.Style
	note   lipgloss.Style
	title  lipgloss.Style
	key    lipgloss.Style
	frame  lipgloss.Style
}

func newTheme() theme {
	accent := lipgloss.Color("#3B82F6")
	return theme{
		prompt: lipgloss.NewStyle().Foreground(accent).Bold(true),
		output: lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")),
		fault:  lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")),
		note:   lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
		title:  lipgloss.NewStyle().Foreground(accent).Bold(true).Padding(0, 1),
		key:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
		frame:  lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1),
	}
}

var styles = newTheme()

var (
	keyQuit     = key.NewBinding(key.WithKeys("ctrl+c", "ctrl+d"), key.WithHelp("ctrl+c", "quit"))
	keyClear    = key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear"))
	keyVars     = key.NewBinding(key.WithKeys("ctrl+v"), key.WithHelp("ctrl+v", "vars"))
	keyHelp     = key.NewBinding(key.WithKeys("ctrl+k"), key.WithHelp("ctrl+k", "help"))
	keyPrev     = key.NewBinding(key.WithKeys("up"), key.WithHelp("↑", "previous input"))
	keyNext     = key.NewBinding(key.WithKeys("down"), key.WithHelp("↓", "next input"))
	keyComplete = key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "complete a name"))
	keyRun      = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run"))
)

// ---------------------------------------------------------------------------
// Input history
// ---------------------------------------------------------------------------

// inputHistory holds earlier inputs for recall with the arrow keys. pos is
// the recalled entry; pos == len(entries) means a fresh input line.
type inputHistory struct {
	entries []string
	pos     int
}

func newInputHistory(seed []string) inputHistory {
	return inputHistory{entries: seed, pos: len(seed)}
}

// add appends s unless it repeats the newest entry, and returns to a fresh line.
func (h *inputHistory) add(s string) {
	if n := len(h.entries); n == 0 || h.entries[n-1] != s {
		h.entries = append(h.entries, s)
	}
	h.rewind()
}

func (h *inputHistory) rewind() {
	h.pos = len(h.entries)
}

// prev moves to the next older entry, stopping at the oldest.
func (h *inputHistory) prev() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	if h.pos > 0 {
		h.pos--
	}
	return h.entries[h.pos], true
}

// next moves to the next newer entry. Moving past the newest yields an empty
// line; ok is false when already on a fresh line.
func (h *inputHistory) next() (string, bool) {
	if h.pos >= len(h.entries) {
		return "", false
	}
	h.pos++
	if h.pos == len(h.entries) {
		return "", true
	}
	return h.entries[h.pos], true
}

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type historyEntry struct {
	input  string
	output string
	notes  []string
	isErr  bool
}

type replModel struct {
	textInput   textinput.Model
	ev          evaluator
	runs        *store.Store
	history     []historyEntry
	inputs      inputHistory
	width       int
	height      int
	showHelp    bool
	showVars    bool
	quitting    bool
	initialized bool
}

// historyLimit bounds how many earlier inputs are loaded from the store.
const historyLimit = 200

func newREPLModel(ev evaluator, runs *store.Store) replModel {
	ti := textinput.New()
	ti.Placeholder = "3 + 5を表示"
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60
	ti.PromptStyle = styles.prompt
	ti.Prompt = "なこ> "

	var seed []string
	if runs != nil {
		inputs, err := runs.Inputs(context.Background(), store.OriginREPL, historyLimit)
		if err != nil {
			log.Warningf("cannot load input history: %s", err)
		}
		seed = inputs
	}
	return replModel{
		textInput: ti,
		ev:        ev,
		runs:      runs,
		inputs:    newInputHistory(seed),
	}
}

func (m replModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tea.EnterAltScreen)
}

func (m replModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.textInput.Width = msg.Width - 10
		m.initialized = true
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keyClear):
			m.history = nil
		case key.Matches(msg, keyVars):
			m.showVars = !m.showVars
		case key.Matches(msg, keyHelp):
			m.showHelp = !m.showHelp
		case key.Matches(msg, keyPrev):
			if s, ok := m.inputs.prev(); ok {
				m.setInput(s)
			}
		case key.Matches(msg, keyNext):
			if s, ok := m.inputs.next(); ok {
				m.setInput(s)
			}
		case key.Matches(msg, keyComplete):
			m = m.complete()
		case key.Matches(msg, keyRun):
			return m.submit()
		default:
			var cmd tea.Cmd
			m.textInput, cmd = m.textInput.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m *replModel) setInput(s string) {
	m.textInput.SetValue(s)
	m.textInput.CursorEnd()
}

// submit runs the input line as a command (":name", or the full-width
// "：name") or as Nako code.
func (m replModel) submit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textInput.Value())
	if input == "" {
		return m, nil
	}
	m.textInput.SetValue("")

	if rest, ok := strings.CutPrefix(input, "："); ok {
		input = ":" + rest
	}
	if strings.HasPrefix(input, ":") {
		m.inputs.rewind()
		return m.runCommand(input)
	}

	m.history = append(m.history, m.evaluate(input))
	m.inputs.add(input)
	return m, nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

type replCommand struct {
	names []string
	help  string
	run   func(m replModel, input string) (replModel, tea.Cmd)
}

func commandTable() []replCommand {
	return []replCommand{
		{[]string{":help", ":h"}, "Toggle this help", func(m replModel, _ string) (replModel, tea.Cmd) {
			m.showHelp = !m.showHelp
			return m, nil
		}},
		{[]string{":vars", ":v"}, "Toggle the variable table", func(m replModel, _ string) (replModel, tea.Cmd) {
			m.showVars = !m.showVars
			return m, nil
		}},
		{[]string{":reset", ":r"}, "Forget all variables", func(m replModel, input string) (replModel, tea.Cmd) {
			entry := historyEntry{input: input, output: "Variables reset"}
			if err := m.ev.reset(); err != nil {
				entry = historyEntry{input: input, output: err.Error(), isErr: true}
			}
			m.history = append(m.history, entry)
			return m, nil
		}},
		{[]string{":history"}, "Show recently recorded runs", func(m replModel, input string) (replModel, tea.Cmd) {
			m.history = append(m.history, m.recentRuns(input))
			return m, nil
		}},
		{[]string{":clear", ":c"}, "Clear the screen", func(m replModel, _ string) (replModel, tea.Cmd) {
			m.history = nil
			return m, nil
		}},
		{[]string{":quit", ":q"}, "Leave the REPL", func(m replModel, _ string) (replModel, tea.Cmd) {
			m.quitting = true
			return m, tea.Quit
		}},
	}
}

func (m replModel) runCommand(input string) (tea.Model, tea.Cmd) {
	name := strings.Fields(input)[0]
	for _, c := range commandTable() {
		for _, n := range c.names {
			if n == name {
				return c.run(m, input)
			}
		}
	}
	m.history = append(m.history, historyEntry{
		input:  input,
		output: fmt.Sprintf("Unknown command: %s", name),
		isErr:  true,
	})
	return m, nil
}

func (m replModel) recentRuns(input string) historyEntry {
	if m.runs == nil {
		return historyEntry{input: input, output: "History is disabled (run with -history)", isErr: true}
	}
	runs, err := m.runs.Recent(context.Background(), 10)
	if err != nil {
		return historyEntry{input: input, output: err.Error(), isErr: true}
	}
	if len(runs) == 0 {
		return historyEntry{input: input, output: "No runs recorded"}
	}
	var lines []string
	for _, r := range runs {
		status := "ok"
		if r.Failed() {
			status = "error"
		}
		lines = append(lines, fmt.Sprintf("%s  %-6s %-5s %s",
			r.Started.Format("2006-01-02 15:04:05"), r.Origin, status, firstLine(r.Source)))
	}
	return historyEntry{input: input, output: fmt.Sprintf("%d recent runs", len(runs)), notes: lines}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " …"
	}
	return s
}

// ---------------------------------------------------------------------------
// Completion
// ---------------------------------------------------------------------------

// isNameRune reports whether r can continue a variable name. Hiragana is
// excluded because it marks a particle or an inflection, so "Aを表" ends in
// the word "表".
func isNameRune(r rune) bool {
	return compiler.IsLetter(r) || compiler.IsDigit(r) || compiler.IsKanji(r) ||
		compiler.IsKatakana(r) || r == '_'
}

// trailingWord returns the name being typed at the end of input.
func trailingWord(input string) string {
	runes := []rune(input)
	i := len(runes)
	for i > 0 && isNameRune(runes[i-1]) {
		i--
	}
	return string(runes[i:])
}

// complete extends the trailing word to a known variable name or the print
// keyword. Ambiguous prefixes list the candidates instead.
func (m replModel) complete() replModel {
	input := m.textInput.Value()
	word := trailingWord(input)
	if word == "" {
		return m
	}

	var matches []string
	for _, name := range append(m.ev.names(), compiler.PrintKeyword) {
		if name != word && strings.HasPrefix(name, word) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 0:
	case 1:
		m.setInput(strings.TrimSuffix(input, word) + matches[0])
	default:
		m.history = append(m.history, historyEntry{output: "Completions: " + strings.Join(matches, ", ")})
	}
	return m
}

// ---------------------------------------------------------------------------
// Evaluation
// ---------------------------------------------------------------------------

// evaluate runs input and records it in the run history.
func (m replModel) evaluate(input string) historyEntry {
	start := time.Now()
	res, err := m.ev.eval(input)
	if err != nil {
		return historyEntry{input: input, output: err.Error(), isErr: true}
	}

	if m.runs != nil {
		_, err := m.runs.Record(context.Background(), store.Run{
			Origin:   store.OriginREPL,
			Source:   input,
			Output:   res.output,
			Error:    res.err,
			Started:  start,
			Duration: time.Since(start),
		})
		if err != nil {
			log.Warningf("cannot record run: %s", err)
		}
	}

	entry := historyEntry{
		input:  input,
		output: strings.TrimRight(res.output, "\n"),
		notes:  res.notes,
	}
	if res.err != "" {
		msg := res.err
		if res.line > 0 {
			msg = fmt.Sprintf("after line %d: %s", res.line, res.err)
		}
		if entry.output != "" {
			msg = entry.output + "\n" + msg
		}
		entry.output = msg
		entry.isErr = true
	}
	return entry
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

func (m replModel) View() string {
	if !m.initialized {
		return "Loading..."
	}
	if m.quitting {
		return styles.note.Render("さようなら\n")
	}

	var b strings.Builder
	b.WriteString(styles.title.Render("Nako4 REPL") + " " + styles.note.Render(m.ev.label()) + "\n")
	b.WriteString(styles.note.Render(strings.Repeat("─", max(min(m.width-2, 60), 0))) + "\n\n")

	vars := m.ev.vars()
	reserved := 8
	if m.showHelp {
		reserved += len(commandTable()) + 4
	}
	if m.showVars {
		reserved += len(vars) + 3
	}
	shown := m.history
	if room := max(m.height-reserved, 0); len(shown) > room {
		shown = shown[len(shown)-room:]
	}

	for _, e := range shown {
		if e.input != "" {
			b.WriteString(styles.note.Render("  › ") + e.input + "\n")
		}
		for _, note := range e.notes {
			b.WriteString("    " + styles.note.Render(note) + "\n")
		}
		switch {
		case e.isErr:
			b.WriteString("  " + styles.fault.Render("✗ "+e.output) + "\n")
		case e.output != "":
			b.WriteString("  " + styles.output.Render("→ "+e.output) + "\n")
		}
		b.WriteString("\n")
	}

	if m.showVars {
		b.WriteString(renderVars(vars) + "\n")
	}
	if m.showHelp {
		b.WriteString(renderHelp() + "\n")
	}

	b.WriteString(m.textInput.View() + "\n\n")
	b.WriteString(renderFooter(keyHelp, keyVars, keyClear, keyQuit))
	return b.String()
}

func renderVars(vars []string) string {
	if len(vars) == 0 {
		return styles.frame.Render(styles.note.Render("No variables defined"))
	}
	lines := []string{styles.title.Render("Variables")}
	for _, v := range vars {
		name, val, _ := strings.Cut(v, " = ")
		lines = append(lines, fmt.Sprintf("  %s = %s", styles.key.Render(name), val))
	}
	return styles.frame.Render(strings.Join(lines, "\n"))
}

// renderHelp lists the key bindings and the command table.
func renderHelp() string {
	lines := []string{styles.title.Render("Help")}
	row := func(k, desc string) {
		lines = append(lines, fmt.Sprintf("  %s  %s", styles.key.Render(fmt.Sprintf("%-10s", k)), styles.note.Render(desc)))
	}
	for _, b := range []key.Binding{keyPrev, keyNext, keyComplete, keyRun} {
		row(b.Help().Key, b.Help().Desc)
	}
	for _, c := range commandTable() {
		row(c.names[0], c.help)
	}
	return styles.frame.Render(strings.Join(lines, "\n"))
}

func renderFooter(bindings ...key.Binding) string {
	parts := make([]string, len(bindings))
	for i, b := range bindings {
		parts[i] = styles.key.Render(b.Help().Key) + styles.note.Render(" "+b.Help().Desc)
	}
	return strings.Join(parts, "  ")
}

func runREPL(ev evaluator, runs *store.Store) error {
	p := tea.NewProgram(newREPLModel(ev, runs), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
