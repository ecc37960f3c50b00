// Package lift turns raw bytes into decoded instructions and keeps the global
// IR store: every lifted instruction by address, partitioned into basic
// blocks with their symbolic register state.
package lift

import (
	"errors"
	"fmt"

	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

// ErrDecode is wrapped by every DecodeError.
var ErrDecode = errors.New("decode failure")

// DecodeError reports the address at which decoding failed.
type DecodeError struct {
	Addr ir.Address
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode at %s: %v", e.Addr, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// Decode decodes code, which is mapped at start, one instruction at a time.
// It stops at the end of code, after limit instructions when limit is
// positive, or after an instruction without fallthrough once no forward
// branch target inside code is still pending. A failure before the stop
// discards everything decoded so far.
func Decode(code []byte, start ir.Address, oracle semantics.Oracle, limit int) ([]semantics.Instruction, error) {
	end := start + ir.Address(len(code))
	var (
		out     []semantics.Instruction
		pending ir.Address
	)
	for pc := start; pc < end; {
		if limit > 0 && len(out) >= limit {
			break
		}
		inst, err := oracle.Decode(code[pc-start:], pc)
		if err != nil {
			return nil, &DecodeError{Addr: pc, Err: err}
		}
		out = append(out, inst)

		forward := inst.Flow == semantics.FlowBranch || inst.Flow == semantics.FlowJump
		if forward && inst.HasTarget && inst.Target > pc && inst.Target < end {
			pending = max(pending, inst.Target)
		}
		pc = inst.Next
		if !inst.Flow.Falls() && pc > pending {
			break
		}
	}
	return out, nil
}
