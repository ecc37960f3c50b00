package structure

import (
	"ouroboros/internal/ir"
)

// Simplify folds the flag expressions a branch condition is built from into
// plain comparisons where a known identity applies. It is best effort: the
// overflow form produced by increments and decrements is left as is.
func Simplify(e ir.Expr) ir.Expr {
	return simplify(e, 0)
}

// maxRewrites bounds how often one node is rewritten.
const maxRewrites = 16

func simplify(e ir.Expr, depth int) ir.Expr {
	switch n := e.(type) {
	case *ir.Unary:
		x := simplify(n.X, depth)
		switch n.Op {
		case ir.ZExt, ir.SExt, ir.Trunc:
			e = ir.NewCast(n.Op, x, n.Size)
		default:
			e = ir.NewUnary(n.Op, x)
		}
	case *ir.Binary:
		e = ir.NewBinary(n.Op, simplify(n.X, depth), simplify(n.Y, depth))
	case *ir.Mem:
		return ir.NewMem(simplify(n.Addr, depth), n.Size)
	case *ir.Func:
		args := make([]ir.Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = simplify(a, depth)
		}
		return ir.NewFunc(n.Name, n.Size, args...)
	default:
		return e
	}
	if depth >= maxRewrites {
		return e
	}
	if next, ok := rewrite(e); ok {
		return simplify(next, depth+1)
	}
	return e
}

func binary(e ir.Expr, ops ...ir.BinaryOp) (*ir.Binary, bool) {
	b, ok := e.(*ir.Binary)
	if !ok {
		return nil, false
	}
	for _, op := range ops {
		if b.Op == op {
			return b, true
		}
	}
	return nil, false
}

func isBoolConst(e ir.Expr) (bool, bool) {
	c, ok := ir.AsConst(e)
	if !ok || c.Size != ir.SizeBool {
		return false, false
	}
	return c.Value != 0, true
}

// sameOperands reports whether a and b compare the same pair. Equality tests
// match in either operand order.
func sameOperands(a, b *ir.Binary) bool {
	if ir.Equal(a.X, b.X) && ir.Equal(a.Y, b.Y) {
		return true
	}
	symmetric := func(op ir.BinaryOp) bool { return op == ir.Eq || op == ir.Ne }
	return (symmetric(a.Op) || symmetric(b.Op)) && ir.Equal(a.X, b.Y) && ir.Equal(a.Y, b.X)
}

// pairs are the two-comparison combinations that collapse into one.
var pairs = []struct {
	join      ir.BinaryOp
	a, b, out ir.BinaryOp
}{
	{ir.LAnd, ir.Ne, ir.Sge, ir.Sgt},
	{ir.LOr, ir.Eq, ir.Slt, ir.Sle},
	{ir.LAnd, ir.Uge, ir.Ne, ir.Ugt},
	{ir.LOr, ir.Ult, ir.Eq, ir.Ule},
	{ir.LAnd, ir.Ne, ir.Sle, ir.Slt},
	{ir.LOr, ir.Eq, ir.Sgt, ir.Sge},
	{ir.LAnd, ir.Ne, ir.Ule, ir.Ult},
	{ir.LOr, ir.Eq, ir.Ugt, ir.Uge},
}

// orderedOperands returns the operands of the ordering comparison of a pair.
func orderedOperands(x, y *ir.Binary) (ir.Expr, ir.Expr) {
	if x.Op == ir.Eq || x.Op == ir.Ne {
		return y.X, y.Y
	}
	return x.X, x.Y
}

func rewrite(e ir.Expr) (ir.Expr, bool) {
	switch n := e.(type) {
	case *ir.Unary:
		// De Morgan, so negated conjunctions expose their comparisons.
		if b, ok := binary(n.X, ir.LAnd, ir.LOr); ok && n.Op == ir.LNot {
			op := ir.LOr
			if b.Op == ir.LOr {
				op = ir.LAnd
			}
			return ir.NewBinary(op, ir.Negate(b.X), ir.Negate(b.Y)), true
		}
	case *ir.Binary:
		return rewriteBinary(n)
	}
	return nil, false
}

func rewriteBinary(n *ir.Binary) (ir.Expr, bool) {
	switch n.Op {
	case ir.Eq, ir.Ne:
		// b == false, b != true and friends.
		if v, ok := isBoolConst(n.Y); ok && n.X.Width() == ir.SizeBool {
			if (n.Op == ir.Ne) != v {
				return n.X, true
			}
			return ir.Negate(n.X), true
		}
		// (x - y) == 0 and (x - c) == d.
		if sub, ok := binary(n.X, ir.Sub); ok {
			if c, ok := ir.AsConst(n.Y); ok {
				if c.Value == 0 {
					return ir.NewBinary(n.Op, sub.X, sub.Y), true
				}
				if sc, ok := ir.AsConst(sub.Y); ok {
					return ir.NewBinary(n.Op, sub.X, ir.NewConst(sc.Value+c.Value, sc.Size)), true
				}
			}
		}
		// ((x - y) < 0) != sborrow(x, y) is x < y, the == form is x >= y.
		for _, side := range [2][2]ir.Expr{{n.X, n.Y}, {n.Y, n.X}} {
			if x, y, ok := signedBorrow(side[0], side[1]); ok {
				if n.Op == ir.Ne {
					return ir.NewBinary(ir.Slt, x, y), true
				}
				return ir.NewBinary(ir.Sge, x, y), true
			}
		}
	case ir.LAnd, ir.LOr:
		x, xok := n.X.(*ir.Binary)
		y, yok := n.Y.(*ir.Binary)
		if !xok || !yok || !sameOperands(x, y) {
			break
		}
		for _, p := range pairs {
			if p.join != n.Op {
				continue
			}
			if (x.Op == p.a && y.Op == p.b) || (x.Op == p.b && y.Op == p.a) {
				a, b := orderedOperands(x, y)
				return ir.NewBinary(p.out, a, b), true
			}
		}
	}
	return nil, false
}

// signedBorrow matches sign == sborrow(x, y) where sign is (x - y) < 0.
func signedBorrow(sign, borrow ir.Expr) (ir.Expr, ir.Expr, bool) {
	lt, ok := binary(sign, ir.Slt)
	if !ok {
		return nil, nil, false
	}
	if c, ok := ir.AsConst(lt.Y); !ok || c.Value != 0 {
		return nil, nil, false
	}
	sub, ok := binary(lt.X, ir.Sub)
	if !ok {
		return nil, nil, false
	}
	f, ok := borrow.(*ir.Func)
	if !ok || f.Name != ir.FuncSBorrow || len(f.Args) != 2 {
		return nil, nil, false
	}
	if !ir.Equal(f.Args[0], sub.X) || !ir.Equal(f.Args[1], sub.Y) {
		return nil, nil, false
	}
	return sub.X, sub.Y, true
}
