package vm

import "fmt"

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single VM instruction kind.
type Opcode byte

// Control
const (
	OpNOP Opcode = 0x00 // no operation
	OpEOS Opcode = 0x01 // end of statement (A = source line)
)

// Stack and variables
const (
	OpPushConst    Opcode = 0x10 // push constant (A = pool index)
	OpPushVariable Opcode = 0x11 // push variable (A = variable index)
	OpStoreVar     Opcode = 0x12 // pop and store into variable (A = variable index)
)

// Output
const (
	OpPrint Opcode = 0x20 // pop and print
)

// Arithmetic
const (
	OpAdd Opcode = 0x30 // pop b, pop a, push a+b
	OpSub Opcode = 0x31 // pop b, pop a, push a-b
	OpMul Opcode = 0x32 // pop b, pop a, push a*b
	OpDiv Opcode = 0x33 // pop b, pop a, push a/b
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string // human-readable name
	Operands    int    // number of meaningful operands
	StackEffect int    // net effect on stack
}

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP: {"NOP", 0, 0},
	OpEOS: {"EOS", 1, 0},

	OpPushConst:    {"PUSH_CONST", 1, 1},
	OpPushVariable: {"PUSH_VAR", 1, 1},
	OpStoreVar:     {"STORE_VAR", 1, -1},

	OpPrint: {"PRINT", 0, -1},

	OpAdd: {"ADD", 0, -1},
	OpSub: {"SUB", 0, -1},
	OpMul: {"MUL", 0, -1},
	OpDiv: {"DIV", 0, -1},
}

// Info returns metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodeTable[op]
	return ok
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Instruction
// ---------------------------------------------------------------------------

// Instruction is one opcode with up to three integer operands.
type Instruction struct {
	Op Opcode `cbor:"1,keyasint"`
	A  int    `cbor:"2,keyasint,omitempty"`
	B  int    `cbor:"3,keyasint,omitempty"`
	C  int    `cbor:"4,keyasint,omitempty"`
}

// Inst builds an instruction with a single operand.
func Inst(op Opcode, a int) Instruction {
	return Instruction{Op: op, A: a}
}

func (in Instruction) String() string {
	switch in.Op.Info().Operands {
	case 0:
		return in.Op.Name()
	default:
		return fmt.Sprintf("%s %d", in.Op.Name(), in.A)
	}
}
