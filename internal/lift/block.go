package lift

import (
	"fmt"

	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

// NextKind is how control leaves a basic block.
type NextKind uint8

const (
	NextFallthrough NextKind = iota
	NextBranch
	NextCall
	NextReturn
	NextIndirect
)

var nextKinds = [...]string{
	NextFallthrough: "fallthrough",
	NextBranch:      "branch",
	NextCall:        "call",
	NextReturn:      "return",
	NextIndirect:    "indirect",
}

func (k NextKind) String() string {
	if int(k) < len(nextKinds) {
		return nextKinds[k]
	}
	return fmt.Sprintf("NextKind<%d>", k)
}

// Destination is a control transfer target: a concrete address, or the
// expression computing it.
type Destination struct {
	Concrete bool
	Addr     ir.Address
	Expr     ir.Expr
}

func Concrete(a ir.Address) Destination { return Destination{Concrete: true, Addr: a} }

func Unknown(e ir.Expr) Destination { return Destination{Expr: e} }

func (d Destination) String() string {
	if d.Concrete {
		return d.Addr.String()
	}
	if d.Expr == nil {
		return "?"
	}
	return d.Expr.String()
}

// NextBlock is the edge that terminates a basic block.
//
// A NextBranch without Cond is an unconditional jump. A conditional branch
// continues at Fallthrough when Cond is false. A call resumes at ReturnSite.
type NextBlock struct {
	Kind        NextKind
	Destination Destination
	Cond        ir.Expr
	Fallthrough ir.Address
	ReturnSite  ir.Address
}

// Conditional reports whether the edge is a two-way branch.
func (n NextBlock) Conditional() bool {
	return n.Kind == NextBranch && n.Cond != nil
}

func (n NextBlock) String() string {
	switch n.Kind {
	case NextFallthrough:
		return "fallthrough " + n.Fallthrough.String()
	case NextBranch:
		if n.Cond != nil {
			return fmt.Sprintf("if (%s) goto %s else %s", n.Cond, n.Destination, n.Fallthrough)
		}
		return "goto " + n.Destination.String()
	case NextCall:
		return fmt.Sprintf("call %s then %s", n.Destination, n.ReturnSite)
	case NextReturn:
		return "return"
	default:
		return "goto *" + n.Destination.String()
	}
}

// BasicBlock is a maximal straight-line run of lifted instructions.
type BasicBlock struct {
	ID           int
	Addr         ir.Address
	End          ir.Address
	Instructions []*semantics.Instruction
	// Ops are the block's operations with register reads replaced by their
	// in-block values.
	Ops []ir.Operation
	// Registers holds the value of every register base written in the block.
	Registers map[string]ir.Expr
	Next      NextBlock
}

func (b *BasicBlock) Interval() ir.Interval {
	return ir.Interval{Start: b.Addr, End: b.End}
}

// Writes reports whether the block assigns the register base.
func (b *BasicBlock) Writes(base string) bool {
	_, ok := b.Registers[base]
	return ok
}

// regState is the symbolic register file of one block, keyed by register
// base and stored at the base's full width.
type regState struct {
	word    ir.InstructionSize
	values  map[string]ir.Expr
	written map[string]bool
}

func newRegState(word ir.InstructionSize) *regState {
	return &regState{word: word, values: map[string]ir.Expr{}, written: map[string]bool{}}
}

func (s *regState) read(r *ir.Reg) (ir.Expr, bool) {
	v, ok := s.values[r.Base]
	if !ok {
		return nil, false
	}
	switch {
	case v.Width() == r.Size:
		return v, true
	case v.Width() > r.Size:
		return ir.NewCast(ir.Trunc, v, r.Size), true
	}
	return nil, false
}

func (s *regState) write(r *ir.Reg, v ir.Expr) {
	s.written[r.Base] = true
	switch {
	case r.Name == r.Base || r.Size == s.word:
		s.values[r.Base] = v
	case r.Size == ir.Size32 && s.word == ir.Size64:
		s.values[r.Base] = ir.NewCast(ir.ZExt, v, s.word)
	default:
		// A partial write leaves the upper bits of the base unknown.
		delete(s.values, r.Base)
	}
}

func (s *regState) subst(e ir.Expr) ir.Expr {
	return ir.Rewrite(e, func(n ir.Expr) (ir.Expr, bool) {
		if r, ok := n.(*ir.Reg); ok {
			return s.read(r)
		}
		return nil, false
	})
}

func (s *regState) registers() map[string]ir.Expr {
	out := make(map[string]ir.Expr, len(s.written))
	for base := range s.written {
		if v, ok := s.values[base]; ok {
			out[base] = v
			continue
		}
		out[base] = nil
	}
	return out
}

// evaluate runs the block's operations over a fresh register state.
func (b *BasicBlock) evaluate(word ir.InstructionSize) {
	st := newRegState(word)
	b.Ops = b.Ops[:0]
	var last ir.Operation
	for _, inst := range b.Instructions {
		for _, op := range inst.Ops {
			eff := op
			switch op.Kind {
			case ir.OpAssign:
				eff.Src = st.subst(op.Src)
				st.write(op.Dest.(*ir.Reg), eff.Src)
			case ir.OpStore:
				m := op.Dest.(*ir.Mem)
				eff.Dest = ir.NewMem(st.subst(m.Addr), m.Size)
				eff.Src = st.subst(op.Src)
			case ir.OpBranch, ir.OpCall:
				eff.Cond = st.subst(op.Cond)
				eff.Target = st.subst(op.Target)
			}
			b.Ops = append(b.Ops, eff)
			last = eff
		}
	}
	b.Registers = st.registers()

	term := b.Instructions[len(b.Instructions)-1]
	switch term.Flow {
	case semantics.FlowBranch:
		b.Next = NextBlock{Kind: NextBranch, Destination: Concrete(term.Target), Cond: last.Cond, Fallthrough: b.End}
	case semantics.FlowJump:
		b.Next = NextBlock{Kind: NextBranch, Destination: Concrete(term.Target)}
	case semantics.FlowCall:
		dst := Unknown(last.Target)
		if term.HasTarget {
			dst = Concrete(term.Target)
		}
		b.Next = NextBlock{Kind: NextCall, Destination: dst, ReturnSite: b.End}
	case semantics.FlowReturn, semantics.FlowHalt:
		b.Next = NextBlock{Kind: NextReturn}
	case semantics.FlowIndirect:
		b.Next = NextBlock{Kind: NextIndirect, Destination: Unknown(last.Target)}
	default:
		b.Next = NextBlock{Kind: NextFallthrough, Fallthrough: b.End}
	}
}
