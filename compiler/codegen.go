package compiler

import (
	"fmt"

	"github.com/nako4/nako4/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Generator walks an AST once in pre-order and emits instructions that mirror
// it. Every literal gets its own constant pool entry; variables are resolved
// to stable slots in the program's variable table.
type Generator struct {
	prog *vm.Program
}

// NewGenerator creates a generator emitting into a program that uses vars as
// its variable table. A nil vars starts a fresh table.
func NewGenerator(vars *vm.VarTable) *Generator {
	prog := vm.NewProgram()
	if vars != nil {
		prog.Vars = vars
	}
	return &Generator{prog: prog}
}

// Generate compiles root into a new program.
func Generate(root Node, vars *vm.VarTable) *vm.Program {
	g := NewGenerator(vars)
	g.Gen(root)
	return g.Program()
}

// Program returns the program built so far.
func (g *Generator) Program() *vm.Program {
	return g.prog
}

// Gen emits the instructions for n and its children.
func (g *Generator) Gen(n Node) {
	switch n := n.(type) {
	case nil:
		g.prog.Emit(vm.Inst(vm.OpNOP, 0))
	case *NoOp, *Comment:
		g.prog.Emit(vm.Inst(vm.OpNOP, 0))
	case *Sequence:
		for _, c := range n.Children {
			g.Gen(c)
		}
	case *NumberLit:
		idx := g.prog.AddConstant(vm.NumberValue(n.Value))
		g.prog.Emit(vm.Inst(vm.OpPushConst, idx))
	case *StringLit:
		idx := g.prog.AddConstant(vm.StringValue(n.Value))
		g.prog.Emit(vm.Inst(vm.OpPushConst, idx))
	case *VarRef:
		g.prog.Emit(vm.Inst(vm.OpPushVariable, g.prog.Vars.Resolve(n.Name)))
	case *Print:
		g.Gen(n.Arg)
		g.prog.Emit(vm.Inst(vm.OpPrint, 0))
	case *BinaryOp:
		g.Gen(n.Left)
		g.Gen(n.Right)
		g.prog.Emit(vm.Inst(arithOpcode(n.Op), 0))
	case *Let:
		g.Gen(n.Value)
		g.prog.Emit(vm.Inst(vm.OpStoreVar, g.prog.Vars.Resolve(n.Var.Name)))
	case *EOS:
		g.prog.Emit(vm.Inst(vm.OpEOS, n.PosVal.Line))
	default:
		panic(fmt.Sprintf("codegen: unhandled node %T", n))
	}
}

func arithOpcode(op ArithOp) vm.Opcode {
	switch op {
	case ArithAdd:
		return vm.OpAdd
	case ArithSub:
		return vm.OpSub
	case ArithMul:
		return vm.OpMul
	case ArithDiv:
		return vm.OpDiv
	}
	panic(fmt.Sprintf("codegen: unhandled operator %v", op))
}
