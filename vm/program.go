package vm

// ---------------------------------------------------------------------------
// Program: instructions, constant pool and variable table
// ---------------------------------------------------------------------------

// Program is the output of code generation and the input of one VM run.
// A Program is owned by a single VM; running mutates its variable table.
type Program struct {
	Code      []Instruction `cbor:"1,keyasint"`
	Constants []Value       `cbor:"2,keyasint"`
	Vars      *VarTable     `cbor:"3,keyasint"`
}

// NewProgram returns an empty program with a fresh variable table.
func NewProgram() *Program {
	return &Program{Vars: NewVarTable()}
}

// Emit appends an instruction and returns its index.
func (p *Program) Emit(in Instruction) int {
	p.Code = append(p.Code, in)
	return len(p.Code) - 1
}

// AddConstant appends v to the constant pool and returns its index.
// Entries are never deduplicated.
func (p *Program) AddConstant(v Value) int {
	p.Constants = append(p.Constants, v)
	return len(p.Constants) - 1
}

// Clone returns a deep copy, so a compiled program can be executed more than
// once without runs observing each other's variable writes.
func (p *Program) Clone() *Program {
	c := &Program{
		Code:      make([]Instruction, len(p.Code)),
		Constants: make([]Value, len(p.Constants)),
	}
	copy(c.Code, p.Code)
	for i, v := range p.Constants {
		c.Constants[i] = v.Clone()
	}
	if p.Vars != nil {
		c.Vars = p.Vars.Clone()
	} else {
		c.Vars = NewVarTable()
	}
	return c
}
