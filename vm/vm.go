package vm

import (
	"fmt"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("nako4.vm")

// ---------------------------------------------------------------------------
// VM: linear stack machine
// ---------------------------------------------------------------------------

// RuntimeError is a fatal execution fault. Message is surfaced verbatim.
type RuntimeError struct {
	PC      int    // index of the faulting instruction
	Line    int    // last source line recorded by EOS
	Op      Opcode // faulting opcode
	Message string
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// VM executes one Program. It has no call stack and no jumps: the program
// counter only moves forward, and the first fault ends the run.
type VM struct {
	prog  *Program
	stack []Value
	pc    int
	line  int

	out strings.Builder
	err *RuntimeError

	trace Tracer
}

// Option configures a VM.
type Option func(*VM)

// WithTracer routes PRINT and STORE_VAR trace lines to t.
func WithTracer(t Tracer) Option {
	return func(m *VM) {
		if t != nil {
			m.trace = t
		}
	}
}

// New creates a VM that owns prog.
func New(prog *Program, opts ...Option) *VM {
	if prog.Vars == nil {
		prog.Vars = NewVarTable()
	}
	m := &VM{
		prog:  prog,
		stack: make([]Value, 0, 16),
		trace: NopTracer{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Program returns the program being executed.
func (m *VM) Program() *Program {
	return m.prog
}

// Output returns everything printed so far.
func (m *VM) Output() string {
	return m.out.String()
}

// Err returns the fault message, or "" if the run has not failed.
func (m *VM) Err() string {
	if m.err == nil {
		return ""
	}
	return m.err.Message
}

// Line returns the source line of the most recent end-of-statement.
func (m *VM) Line() int {
	return m.line
}

// StackDepth returns the number of values on the operand stack.
func (m *VM) StackDepth() int {
	return len(m.stack)
}

// Run executes the program from the start with an empty operand stack and
// output. Output produced before a fault is kept; the returned error is a
// *RuntimeError. Variable values written by an earlier run stay in the
// program's table.
func (m *VM) Run() error {
	m.pc = 0
	m.line = 0
	m.err = nil
	m.stack = m.stack[:0]
	m.out.Reset()
	code := m.prog.Code
	for m.pc < len(code) {
		if err := m.step(code[m.pc]); err != nil {
			log.Debugf("fault at pc %d (%s, line %d): %s", err.PC, err.Op, err.Line, err.Message)
			m.err = err
			return err
		}
		m.pc++
	}
	return nil
}

func (m *VM) step(in Instruction) *RuntimeError {
	switch in.Op {
	case OpNOP:
		return nil
	case OpEOS:
		m.line = in.A
		return nil
	case OpPushConst:
		return m.execPushConst(in)
	case OpPushVariable:
		return m.execPushVariable(in)
	case OpStoreVar:
		return m.execStore(in)
	case OpPrint:
		return m.execPrint(in)
	case OpAdd, OpSub, OpMul, OpDiv:
		return m.execArith(in)
	default:
		return m.fault(in, "Unknown opcode: 0x%02X", byte(in.Op))
	}
}

func (m *VM) fault(in Instruction, format string, args ...any) *RuntimeError {
	return &RuntimeError{
		PC:      m.pc,
		Line:    m.line,
		Op:      in.Op,
		Message: fmt.Sprintf(format, args...),
	}
}

func (m *VM) push(v Value) {
	m.stack = append(m.stack, v)
}

func (m *VM) pop() (Value, bool) {
	n := len(m.stack)
	if n == 0 {
		return None, false
	}
	v := m.stack[n-1]
	m.stack = m.stack[:n-1]
	return v, true
}

func (m *VM) execPushConst(in Instruction) *RuntimeError {
	if in.A < 0 || in.A >= len(m.prog.Constants) {
		return m.fault(in, "Invalid constant index: %d", in.A)
	}
	m.push(m.prog.Constants[in.A].Clone())
	return nil
}

func (m *VM) execPushVariable(in Instruction) *RuntimeError {
	v, ok := m.prog.Vars.Get(in.A)
	if !ok {
		return m.fault(in, "Invalid variable index: %d", in.A)
	}
	m.push(v.Clone())
	return nil
}

func (m *VM) execStore(in Instruction) *RuntimeError {
	v, ok := m.pop()
	if !ok {
		return m.fault(in, "Stack underflow on STORE operation")
	}
	m.prog.Vars.Set(in.A, v)
	m.trace.Tracef("STORE: %s[%d] = %s", m.prog.Vars.Name(in.A), in.A, v)
	return nil
}

func (m *VM) execPrint(in Instruction) *RuntimeError {
	v, ok := m.pop()
	if !ok {
		return m.fault(in, "Stack underflow on PRINT operation")
	}
	text := v.String()
	m.trace.Tracef("PRINT: %s", text)
	m.out.WriteString(text)
	m.out.WriteByte('\n')
	return nil
}

func (m *VM) execArith(in Instruction) *RuntimeError {
	if len(m.stack) < 2 {
		return m.fault(in, "Stack underflow on %s operation", in.Op.Name())
	}
	right, _ := m.pop()
	left, _ := m.pop()
	l, lok := left.ToNumber()
	r, rok := right.ToNumber()
	if !lok || !rok {
		return m.fault(in, "%s operation requires numeric values", in.Op.Name())
	}

	var result float64
	switch in.Op {
	case OpAdd:
		result = l + r
	case OpSub:
		result = l - r
	case OpMul:
		result = l * r
	case OpDiv:
		if r == 0 {
			return m.fault(in, "Division by zero")
		}
		result = l / r
	}
	m.push(NumberValue(result))
	return nil
}
