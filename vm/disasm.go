package vm

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of the program.
func (p *Program) Disassemble() string {
	var sb strings.Builder

	if len(p.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range p.Constants {
			display := c.String()
			if r := []rune(display); len(r) > 40 {
				display = string(r[:37]) + "..."
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %-6s %q\n", i, c.Kind, display))
		}
	}

	if p.Vars != nil && p.Vars.Len() > 0 {
		sb.WriteString("; Variables:\n")
		for i := 0; i < p.Vars.Len(); i++ {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, p.Vars.Name(i)))
		}
	}

	sb.WriteString("; Code:\n")
	for i, in := range p.Code {
		sb.WriteString(fmt.Sprintf("%04d  %-10s", i, in.Op.Name()))
		switch in.Op {
		case OpPushConst:
			if in.A >= 0 && in.A < len(p.Constants) {
				sb.WriteString(fmt.Sprintf(" %d ; %s", in.A, p.Constants[in.A]))
			} else {
				sb.WriteString(fmt.Sprintf(" %d ; <invalid>", in.A))
			}
		case OpPushVariable, OpStoreVar:
			sb.WriteString(fmt.Sprintf(" %d ; %s", in.A, p.Vars.Name(in.A)))
		case OpEOS:
			sb.WriteString(fmt.Sprintf(" ; line %d", in.A))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
