// Package vm implements the Nako4 bytecode virtual machine.
//
// This package contains:
//   - The tagged runtime Value (none, number, string, array)
//   - Opcodes, instructions and the Program container
//   - The variable table shared by code generation and execution
//   - A linear stack interpreter with fatal runtime faults
//   - A disassembler and injectable trace sinks
package vm
