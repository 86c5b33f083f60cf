package vm

import (
	"errors"
	"strings"
	"testing"
)

// program builds a Program from constants and code.
func program(consts []Value, code ...Instruction) *Program {
	p := NewProgram()
	p.Constants = consts
	p.Code = code
	return p
}

func TestVMArithmetic(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b float64
		want string
	}{
		{OpAdd, 3, 5, "8"},
		{OpSub, 10, 3, "7"},
		{OpMul, 6, 7, "42"},
		{OpDiv, 20, 4, "5"},
		{OpDiv, 1, 4, "0.25"},
		{OpSub, 3, 10, "-7"},
	}

	for _, tc := range tests {
		p := program([]Value{NumberValue(tc.a), NumberValue(tc.b)},
			Inst(OpPushConst, 0),
			Inst(OpPushConst, 1),
			Inst(tc.op, 0),
			Inst(OpPrint, 0),
		)
		m := New(p)
		if err := m.Run(); err != nil {
			t.Errorf("%s %v %v: unexpected error %v", tc.op, tc.a, tc.b, err)
			continue
		}
		if got := m.Output(); got != tc.want+"\n" {
			t.Errorf("%s %v %v = %q, want %q", tc.op, tc.a, tc.b, got, tc.want+"\n")
		}
	}
}

func TestVMOperandOrder(t *testing.T) {
	// First pop is the right operand.
	p := program([]Value{NumberValue(2), NumberValue(8)},
		Inst(OpPushConst, 1),
		Inst(OpPushConst, 0),
		Inst(OpDiv, 0),
		Inst(OpPrint, 0),
	)
	m := New(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Output() != "4\n" {
		t.Errorf("8/2 = %q, want 4", m.Output())
	}
}

func TestVMStringCoercion(t *testing.T) {
	p := program([]Value{StringValue("12"), NumberValue(3)},
		Inst(OpPushConst, 0),
		Inst(OpPushConst, 1),
		Inst(OpMul, 0),
		Inst(OpPrint, 0),
	)
	m := New(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Output() != "36\n" {
		t.Errorf("output = %q, want 36", m.Output())
	}
}

func TestVMFaults(t *testing.T) {
	tests := []struct {
		name   string
		prog   *Program
		want   string
		output string
	}{
		{
			name: "division by zero",
			prog: program([]Value{NumberValue(10), NumberValue(0)},
				Inst(OpPushConst, 0), Inst(OpPushConst, 1), Inst(OpDiv, 0), Inst(OpPrint, 0)),
			want: "Division by zero",
		},
		{
			name: "invalid constant",
			prog: program(nil, Inst(OpPushConst, 3)),
			want: "Invalid constant index: 3",
		},
		{
			name: "invalid variable",
			prog: program(nil, Inst(OpPushVariable, 0)),
			want: "Invalid variable index: 0",
		},
		{
			name: "print underflow",
			prog: program(nil, Inst(OpPrint, 0)),
			want: "Stack underflow on PRINT operation",
		},
		{
			name: "store underflow",
			prog: program(nil, Inst(OpStoreVar, 0)),
			want: "Stack underflow on STORE operation",
		},
		{
			name: "add underflow",
			prog: program([]Value{NumberValue(1)}, Inst(OpPushConst, 0), Inst(OpAdd, 0)),
			want: "Stack underflow on ADD operation",
		},
		{
			name: "non numeric",
			prog: program([]Value{StringValue("abc"), NumberValue(1)},
				Inst(OpPushConst, 0), Inst(OpPushConst, 1), Inst(OpSub, 0)),
			want: "SUB operation requires numeric values",
		},
		{
			name: "output kept before fault",
			prog: program([]Value{StringValue("first")},
				Inst(OpPushConst, 0), Inst(OpPrint, 0), Inst(OpPrint, 0)),
			want:   "Stack underflow on PRINT operation",
			output: "first\n",
		},
		{
			name: "unknown opcode",
			prog: program(nil, Instruction{Op: Opcode(0xEE)}),
			want: "Unknown opcode: 0xEE",
		},
	}

	for _, tc := range tests {
		m := New(tc.prog)
		err := m.Run()
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		var rerr *RuntimeError
		if !errors.As(err, &rerr) {
			t.Errorf("%s: error type = %T, want *RuntimeError", tc.name, err)
			continue
		}
		if rerr.Message != tc.want {
			t.Errorf("%s: message = %q, want %q", tc.name, rerr.Message, tc.want)
		}
		if m.Err() != tc.want {
			t.Errorf("%s: Err() = %q, want %q", tc.name, m.Err(), tc.want)
		}
		if m.Output() != tc.output {
			t.Errorf("%s: output = %q, want %q", tc.name, m.Output(), tc.output)
		}
	}
}

func TestVMDivisionByZeroPushesNothing(t *testing.T) {
	p := program([]Value{NumberValue(10), NumberValue(0)},
		Inst(OpPushConst, 0), Inst(OpPushConst, 1), Inst(OpDiv, 0))
	m := New(p)
	if err := m.Run(); err == nil {
		t.Fatal("expected division by zero")
	}
	if m.StackDepth() != 0 {
		t.Errorf("stack depth = %d, want 0", m.StackDepth())
	}
}

func TestVMStoreAndLoad(t *testing.T) {
	p := NewProgram()
	idx := p.Vars.Resolve("A")
	c := p.AddConstant(NumberValue(30))
	p.Emit(Inst(OpPushConst, c))
	p.Emit(Inst(OpStoreVar, idx))
	p.Emit(Inst(OpEOS, 1))
	p.Emit(Inst(OpPushVariable, idx))
	p.Emit(Inst(OpPrint, 0))
	p.Emit(Inst(OpEOS, 2))

	m := New(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Output() != "30\n" {
		t.Errorf("output = %q, want 30", m.Output())
	}
	if m.Line() != 2 {
		t.Errorf("line = %d, want 2", m.Line())
	}
	if v, _ := p.Vars.GetByName("A"); !v.Equal(NumberValue(30)) {
		t.Errorf("A = %v, want 30", v)
	}
}

func TestVMStoreGrowsTable(t *testing.T) {
	p := program([]Value{StringValue("x")}, Inst(OpPushConst, 0), Inst(OpStoreVar, 4))
	m := New(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if p.Vars.Len() != 5 {
		t.Fatalf("var table len = %d, want 5", p.Vars.Len())
	}
	if v, _ := p.Vars.Get(4); v.Str != "x" {
		t.Errorf("slot 4 = %v, want x", v)
	}
	if v, _ := p.Vars.Get(2); !v.IsNone() {
		t.Errorf("padding slot = %v, want None", v)
	}
}

func TestVMTracer(t *testing.T) {
	var sb strings.Builder
	p := NewProgram()
	idx := p.Vars.Resolve("名前")
	c := p.AddConstant(StringValue("くじら"))
	p.Emit(Inst(OpPushConst, c))
	p.Emit(Inst(OpStoreVar, idx))
	p.Emit(Inst(OpPushVariable, idx))
	p.Emit(Inst(OpPrint, 0))

	m := New(p, WithTracer(&WriterTracer{W: &sb}))
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	trace := sb.String()
	if !strings.Contains(trace, "STORE: 名前[0] = くじら") {
		t.Errorf("trace missing STORE line: %q", trace)
	}
	if !strings.Contains(trace, "PRINT: くじら") {
		t.Errorf("trace missing PRINT line: %q", trace)
	}
	if m.Output() != "くじら\n" {
		t.Errorf("output = %q", m.Output())
	}
}

func TestVMPrintArray(t *testing.T) {
	arr := ArrayValue(NumberValue(1), StringValue("a"), ArrayValue(NumberValue(2.5), None))
	p := program([]Value{arr}, Inst(OpPushConst, 0), Inst(OpPrint, 0))
	m := New(p)
	if err := m.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if m.Output() != "[1, a, [2.5, None]]\n" {
		t.Errorf("output = %q", m.Output())
	}
}

func TestProgramCloneIsolatesVariables(t *testing.T) {
	p := NewProgram()
	idx := p.Vars.Resolve("A")
	p.Emit(Inst(OpPushConst, p.AddConstant(NumberValue(1))))
	p.Emit(Inst(OpStoreVar, idx))

	c := p.Clone()
	if err := New(c).Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if v, _ := p.Vars.Get(idx); !v.IsNone() {
		t.Errorf("original program mutated: %v", v)
	}
	if v, _ := c.Vars.Get(idx); !v.Equal(NumberValue(1)) {
		t.Errorf("clone A = %v, want 1", v)
	}
}

func TestVMRunTwiceStartsClean(t *testing.T) {
	// The first PRINT leaves one operand behind.
	p := program([]Value{NumberValue(1), NumberValue(2)},
		Inst(OpPushConst, 0), Inst(OpPushConst, 1), Inst(OpPrint, 0), Inst(OpEOS, 1))
	m := New(p)
	for i := 0; i < 2; i++ {
		if err := m.Run(); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if m.Output() != "2\n" {
			t.Errorf("run %d: output = %q, want %q", i+1, m.Output(), "2\n")
		}
		if m.StackDepth() != 1 {
			t.Errorf("run %d: stack depth = %d, want 1", i+1, m.StackDepth())
		}
	}

	fail := New(program([]Value{NumberValue(1), NumberValue(0)},
		Inst(OpPushConst, 0), Inst(OpPushConst, 1), Inst(OpDiv, 0)))
	fail.Run()
	fail.prog.Constants[1] = NumberValue(1)
	if err := fail.Run(); err != nil {
		t.Fatalf("rerun after fault: %v", err)
	}
	if fail.Err() != "" || fail.Line() != 0 {
		t.Errorf("fault state survived: err = %q, line = %d", fail.Err(), fail.Line())
	}
}
