package compiler

import (
	"strings"

	"github.com/nako4/nako4/vm"
	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// Pipeline: source text -> tokens -> AST -> program -> output
// ---------------------------------------------------------------------------

var log = commonlog.GetLogger("nako4.compiler")

// Options controls compilation and execution.
type Options struct {
	// Debug traces tokens, the AST and the disassembly. It never changes the
	// compiled program.
	Debug bool

	// Strict refuses to execute a program whose diagnostics contain errors.
	Strict bool

	// Trace receives debug and VM trace lines. When nil, debug output goes
	// to the nako4.compiler logger and the VM trace is discarded.
	Trace vm.Tracer
}

func (o Options) tracer() vm.Tracer {
	if o.Trace != nil {
		return o.Trace
	}
	if o.Debug {
		return vm.NewLogTracer("nako4.compiler")
	}
	return vm.NopTracer{}
}

// Result is the outcome of compiling and running one program.
type Result struct {
	Output      string
	Error       string
	Line        int
	Diagnostics Diagnostics
	Program     *vm.Program
}

// Text returns the error message when there is one, otherwise the output.
func (r Result) Text() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Output
}

// Compile compiles src into a fresh program. The returned diagnostics may
// contain errors; the program is still usable as a best-effort translation.
func Compile(src string, opts Options) (*vm.Program, Diagnostics) {
	return compile(src, nil, opts)
}

// Analysis is what the front end learns about a source text.
type Analysis struct {
	Tokens      []Token
	AST         *Sequence
	Diagnostics Diagnostics
}

// Check lexes, parses and analyzes src without generating code. Names in
// known count as already assigned.
func Check(src string, known []string) Analysis {
	lx := NewLexer(src)
	var tokens []Token
	for {
		tok, ok := lx.NextToken()
		if !ok {
			break
		}
		tokens = append(tokens, tok)
	}
	diags := append(Diagnostics(nil), lx.Diagnostics()...)

	seq, parseDiags := Parse(tokens)
	diags = append(diags, parseDiags...)
	diags = append(diags, Analyze(seq, known)...)

	return Analysis{Tokens: tokens, AST: seq, Diagnostics: diags}
}

func compile(src string, vars *vm.VarTable, opts Options) (*vm.Program, Diagnostics) {
	var known []string
	if vars != nil {
		known = vars.Names
	}
	a := Check(src, known)
	tokens, seq, diags := a.Tokens, a.AST, a.Diagnostics

	prog := Generate(seq, vars)

	if opts.Debug {
		tr := opts.tracer()
		tr.Tracef("-- tokens --")
		for _, tok := range tokens {
			tr.Tracef("%s %s", tok.Pos, tok)
		}
		tr.Tracef("-- ast --")
		for _, line := range strings.Split(strings.TrimRight(Dump(seq), "\n"), "\n") {
			tr.Tracef("%s", line)
		}
		tr.Tracef("-- code --")
		for _, line := range strings.Split(strings.TrimRight(prog.Disassemble(), "\n"), "\n") {
			tr.Tracef("%s", line)
		}
		for _, d := range diags {
			tr.Tracef("%s", d)
		}
	}

	log.Debugf("compiled %d tokens into %d instructions (%d diagnostics)", len(tokens), len(prog.Code), len(diags))
	return prog, diags
}

// Execute compiles and runs src.
func Execute(src string, opts Options) Result {
	prog, diags := Compile(src, opts)
	return execute(prog, diags, opts)
}

// ExecuteProgram runs an already compiled program, such as one decoded from
// a transport chunk.
func ExecuteProgram(prog *vm.Program, opts Options) Result {
	return execute(prog, nil, opts)
}

func execute(prog *vm.Program, diags Diagnostics, opts Options) Result {
	res := Result{Diagnostics: diags, Program: prog}
	if opts.Strict && diags.HasErrors() {
		res.Error = diags.Errors().Error()
		return res
	}

	m := vm.New(prog, vm.WithTracer(opts.tracer()))
	if err := m.Run(); err != nil {
		log.Debugf("run failed at line %d: %s", m.Line(), err)
	}
	res.Output = m.Output()
	res.Error = m.Err()
	res.Line = m.Line()
	return res
}

// Run compiles and runs src. It returns the error message when execution
// fails, otherwise everything the program printed.
func Run(src string, opts Options) string {
	return Execute(src, opts).Text()
}

// ---------------------------------------------------------------------------
// Session: variables that survive across runs
// ---------------------------------------------------------------------------

// Session compiles every input against one variable table, so a name
// assigned in one run is visible in the next. A Session is not safe for
// concurrent use.
type Session struct {
	Options Options
	vars    *vm.VarTable
}

// NewSession creates a session with an empty variable table.
func NewSession(opts Options) *Session {
	return &Session{Options: opts, vars: vm.NewVarTable()}
}

// Vars returns the session's variable table.
func (s *Session) Vars() *vm.VarTable {
	return s.vars
}

// Execute compiles and runs src in the session.
func (s *Session) Execute(src string) Result {
	prog, diags := compile(src, s.vars, s.Options)
	return execute(prog, diags, s.Options)
}

// Reset forgets all variables.
func (s *Session) Reset() {
	s.vars = vm.NewVarTable()
}
