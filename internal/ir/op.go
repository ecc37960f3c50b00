package ir

import "fmt"

// OpKind is the kind of a primitive operation.
type OpKind uint8

const (
	// OpAssign writes Src to the register Dest.
	OpAssign OpKind = iota
	// OpStore writes Src to the memory location Dest.
	OpStore
	// OpBranch transfers control to Target, when Cond holds if Cond is set.
	OpBranch
	// OpCall calls Target and resumes at the next instruction.
	OpCall
	// OpReturn leaves the function.
	OpReturn
	// OpIntrinsic is an effect the oracle does not model, named by Name.
	OpIntrinsic
)

// Operation is one primitive effect of a decoded instruction.
type Operation struct {
	Kind   OpKind
	Dest   Expr
	Src    Expr
	Cond   Expr
	Target Expr
	Name   string
}

func Assign(dst *Reg, src Expr) Operation {
	return Operation{Kind: OpAssign, Dest: dst, Src: src}
}

func Store(dst *Mem, src Expr) Operation {
	return Operation{Kind: OpStore, Dest: dst, Src: src}
}

func Jump(target Expr) Operation {
	return Operation{Kind: OpBranch, Target: target}
}

func CondJump(cond, target Expr) Operation {
	return Operation{Kind: OpBranch, Cond: cond, Target: target}
}

func CallOp(target Expr) Operation {
	return Operation{Kind: OpCall, Target: target}
}

func Ret() Operation {
	return Operation{Kind: OpReturn}
}

func Intrinsic(name string) Operation {
	return Operation{Kind: OpIntrinsic, Name: name}
}

// IsTerminator reports whether the operation ends a basic block.
func (o Operation) IsTerminator() bool {
	switch o.Kind {
	case OpBranch, OpCall, OpReturn:
		return true
	}
	return false
}

// WritesFlag reports whether the operation only updates a condition flag.
func (o Operation) WritesFlag() bool {
	r, ok := o.Dest.(*Reg)
	return o.Kind == OpAssign && ok && r.Class == RegFlag
}

func (o Operation) String() string {
	switch o.Kind {
	case OpAssign, OpStore:
		return fmt.Sprintf("%s = %s", o.Dest, o.Src)
	case OpBranch:
		if o.Cond != nil {
			return fmt.Sprintf("if (%s) goto %s", o.Cond, o.Target)
		}
		return fmt.Sprintf("goto %s", o.Target)
	case OpCall:
		return fmt.Sprintf("call %s", o.Target)
	case OpReturn:
		return "return"
	default:
		return o.Name
	}
}
