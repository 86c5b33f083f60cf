package dist

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/nako4/nako4/vm"
)

// cborEncMode uses canonical options so equal programs encode to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalChunk serializes a Chunk to CBOR bytes.
func MarshalChunk(c *Chunk) ([]byte, error) {
	return cborEncMode.Marshal(c)
}

// UnmarshalChunk deserializes a Chunk from CBOR bytes and checks its version
// and structure.
func UnmarshalChunk(data []byte) (*Chunk, error) {
	var c Chunk
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("dist: unmarshal chunk: %w", err)
	}
	if c.Version != FormatVersion {
		return nil, fmt.Errorf("dist: unsupported chunk version %d (want %d)", c.Version, FormatVersion)
	}
	if c.Program == nil {
		return nil, fmt.Errorf("dist: chunk has no program")
	}
	if c.Program.Vars == nil {
		c.Program.Vars = vm.NewVarTable()
	}
	if err := ValidateProgram(c.Program); err != nil {
		return nil, err
	}
	return &c, nil
}

// MarshalProgram serializes a bare Program.
func MarshalProgram(p *vm.Program) ([]byte, error) {
	return cborEncMode.Marshal(p)
}

// UnmarshalProgram deserializes a bare Program.
func UnmarshalProgram(data []byte) (*vm.Program, error) {
	var p vm.Program
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("dist: unmarshal program: %w", err)
	}
	if p.Vars == nil {
		p.Vars = vm.NewVarTable()
	}
	if err := ValidateProgram(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ValidateProgram rejects decoded programs whose opcodes are unknown or
// whose variable table columns disagree. Operand ranges are left to the VM,
// which faults on them at run time.
func ValidateProgram(p *vm.Program) error {
	for i, in := range p.Code {
		if !in.Op.Valid() {
			return fmt.Errorf("dist: instruction %d: unknown opcode 0x%02X", i, byte(in.Op))
		}
	}
	if len(p.Vars.Names) != len(p.Vars.Values) {
		return fmt.Errorf("dist: variable table has %d names and %d values",
			len(p.Vars.Names), len(p.Vars.Values))
	}
	return nil
}

// VerifyChunk recompiles the chunk's source and checks that the content hash,
// the instruction stream, the constant pool and the variable table all match
// what the chunk declares.
//
// The compile function is injected so this package does not depend on the
// compiler package.
func VerifyChunk(c *Chunk, compile func(source string) (*vm.Program, error)) error {
	if HashSource(c.Source) != c.Hash {
		return fmt.Errorf("dist: hash mismatch: declared %x", c.Hash)
	}
	prog, err := compile(c.Source)
	if err != nil {
		return fmt.Errorf("dist: compile failed: %w", err)
	}
	if len(prog.Code) != len(c.Program.Code) {
		return fmt.Errorf("dist: program has %d instructions, source compiles to %d",
			len(c.Program.Code), len(prog.Code))
	}
	for i := range prog.Code {
		if prog.Code[i] != c.Program.Code[i] {
			return fmt.Errorf("dist: instruction %d differs: %s vs %s", i, c.Program.Code[i], prog.Code[i])
		}
	}
	if err := compareConstants(c.Program.Constants, prog.Constants); err != nil {
		return err
	}
	return compareVars(c.Program.Vars, prog.Vars)
}

func compareConstants(got, want []vm.Value) error {
	if len(got) != len(want) {
		return fmt.Errorf("dist: program has %d constants, source compiles to %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			return fmt.Errorf("dist: constant %d differs: %s vs %s", i, got[i], want[i])
		}
	}
	return nil
}

func compareVars(got, want *vm.VarTable) error {
	if got.Len() != want.Len() || len(got.Names) != len(want.Names) {
		return fmt.Errorf("dist: program has %d variables, source compiles to %d", got.Len(), want.Len())
	}
	for i := range want.Names {
		if got.Names[i] != want.Names[i] {
			return fmt.Errorf("dist: variable %d is %q, source compiles to %q", i, got.Names[i], want.Names[i])
		}
		if !got.Values[i].Equal(want.Values[i]) {
			return fmt.Errorf("dist: variable %s has a preloaded value %s", got.Names[i], got.Values[i])
		}
	}
	return nil
}
