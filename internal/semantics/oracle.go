// Package semantics adapts instruction decoders to the IR: an Oracle decodes
// exactly one instruction and describes its effect as primitive operations.
package semantics

import (
	"errors"
	"fmt"

	"ouroboros/internal/ir"
)

var (
	// ErrInvalid is returned when the bytes at an address do not encode an
	// instruction.
	ErrInvalid = errors.New("invalid instruction encoding")
	// ErrUnsupportedArch is returned by ForArch for unknown identifiers.
	ErrUnsupportedArch = errors.New("unsupported architecture")
)

// Architecture identifiers produced by the loader.
const (
	ArchX86    = "x86:LE:32:default"
	ArchX86_64 = "x86:LE:64:default"
)

// Flow classifies how control leaves an instruction.
type Flow uint8

const (
	FlowNext Flow = iota
	FlowJump
	FlowBranch
	FlowCall
	FlowReturn
	FlowIndirect
	FlowHalt
)

// Falls reports whether execution may continue at the next instruction.
func (f Flow) Falls() bool {
	return f == FlowNext || f == FlowBranch || f == FlowCall
}

// Instruction is one decoded instruction.
type Instruction struct {
	Addr  ir.Address
	Next  ir.Address
	Len   int
	Bytes []byte
	Text  string
	Flow  Flow
	// Target is the statically known destination of a jump, branch or call.
	Target    ir.Address
	HasTarget bool
	Ops       []ir.Operation
}

// Convention describes how the target passes arguments and results.
type Convention struct {
	Return       *ir.Reg
	Params       []*ir.Reg
	StackPointer string
	FramePointer string
	WordSize     ir.InstructionSize
}

// IsParam returns the index of the parameter register with the given base.
func (c Convention) IsParam(base string) (int, bool) {
	for i, p := range c.Params {
		if p.Base == base {
			return i, true
		}
	}
	return 0, false
}

// Oracle decodes one instruction at a time.
type Oracle interface {
	Arch() string
	Decode(code []byte, addr ir.Address) (Instruction, error)
	Convention() Convention
}

// ForArch returns the oracle for an architecture identifier.
func ForArch(id string) (Oracle, error) {
	switch id {
	case ArchX86_64:
		return NewX86(64), nil
	case ArchX86:
		return NewX86(32), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedArch, id)
}
