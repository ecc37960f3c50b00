package ir

// NewUnary returns op applied to x, folded where possible. Casts go through
// NewCast.
func NewUnary(op UnaryOp, x Expr) Expr {
	switch op {
	case ZExt, SExt, Trunc:
		return NewCast(op, x, x.Width())
	}
	if c, ok := x.(*Const); ok {
		switch op {
		case Neg:
			return NewConst(-c.Value, c.Size)
		case Not:
			return NewConst(^c.Value, c.Size)
		case LNot:
			return NewBool(c.Value == 0)
		}
	}
	if u, ok := x.(*Unary); ok && u.Op == op && (op == Neg || op == Not || op == LNot) {
		return u.X
	}
	if op == LNot {
		if b, ok := x.(*Binary); ok {
			if inv, ok := b.Op.Inverse(); ok {
				return &Binary{Op: inv, X: b.X, Y: b.Y}
			}
		}
	}
	size := x.Width()
	if op == LNot {
		size = SizeBool
	}
	return &Unary{Op: op, X: x, Size: size}
}

// NewCast converts x to size with zero extension, sign extension or
// truncation.
func NewCast(op UnaryOp, x Expr, size InstructionSize) Expr {
	if x.Width() == size {
		return x
	}
	if c, ok := x.(*Const); ok {
		switch op {
		case SExt:
			return NewConst(uint64(c.Signed()), size)
		default:
			return NewConst(c.Value, size)
		}
	}
	if u, ok := x.(*Unary); ok {
		switch {
		case op == Trunc && (u.Op == ZExt || u.Op == SExt):
			inner := u.X.Width()
			if inner == size {
				return u.X
			}
			if inner < size {
				return NewCast(u.Op, u.X, size)
			}
			return NewCast(Trunc, u.X, size)
		case op == Trunc && u.Op == Trunc:
			return NewCast(Trunc, u.X, size)
		case op == ZExt && u.Op == ZExt:
			return NewCast(ZExt, u.X, size)
		}
	}
	if op == ZExt && x.Width() == SizeBool {
		// Booleans widen without changing meaning.
		return &Unary{Op: ZExt, X: x, Size: size}
	}
	return &Unary{Op: op, X: x, Size: size}
}

// NewBinary returns op applied to x and y, with constants folded and trivial
// identities removed.
func NewBinary(op BinaryOp, x, y Expr) Expr {
	if op.commutative() {
		if _, ok := x.(*Const); ok {
			if _, ok := y.(*Const); !ok {
				x, y = y, x
			}
		}
	}

	cx, xok := x.(*Const)
	cy, yok := y.(*Const)
	if xok && yok {
		return foldBinary(op, cx, cy)
	}

	switch op {
	case Add:
		if isConst(y, 0) {
			return x
		}
		if yok {
			if b, ok := x.(*Binary); ok {
				if c, ok := b.Y.(*Const); ok && b.Op == Add {
					return NewBinary(Add, b.X, NewConst(c.Value+cy.Value, c.Size))
				}
				if c, ok := b.Y.(*Const); ok && b.Op == Sub {
					return NewBinary(Add, b.X, NewConst(cy.Value-c.Value, c.Size))
				}
			}
		}
	case Sub:
		if isConst(y, 0) {
			return x
		}
		if Equal(x, y) {
			return NewConst(0, x.Width())
		}
		if yok {
			if b, ok := x.(*Binary); ok {
				if c, ok := b.Y.(*Const); ok && b.Op == Sub {
					return NewBinary(Sub, b.X, NewConst(c.Value+cy.Value, c.Size))
				}
				if c, ok := b.Y.(*Const); ok && b.Op == Add {
					return NewBinary(Add, b.X, NewConst(c.Value-cy.Value, c.Size))
				}
			}
		}
	case Mul:
		if isConst(y, 0) {
			return NewConst(0, x.Width())
		}
		if isConst(y, 1) {
			return x
		}
	case And:
		if isConst(y, 0) {
			return NewConst(0, x.Width())
		}
		if yok && cy.Value == x.Width().Mask() {
			return x
		}
		if Equal(x, y) {
			return x
		}
	case Or:
		if isConst(y, 0) || Equal(x, y) {
			return x
		}
	case Xor:
		if isConst(y, 0) {
			return x
		}
		if Equal(x, y) {
			return NewConst(0, x.Width())
		}
	case Shl, Shr, Sar:
		if isConst(y, 0) {
			return x
		}
	case Eq, Sle, Sge, Ule, Uge:
		if Equal(x, y) {
			return NewBool(true)
		}
	case Ne, Slt, Sgt, Ult, Ugt:
		if Equal(x, y) {
			return NewBool(false)
		}
	case LAnd:
		if yok {
			if cy.Value == 0 {
				return NewBool(false)
			}
			return x
		}
		if Equal(x, y) {
			return x
		}
	case LOr:
		if yok {
			if cy.Value != 0 {
				return NewBool(true)
			}
			return x
		}
		if Equal(x, y) {
			return x
		}
	}
	return &Binary{Op: op, X: x, Y: y}
}

func foldBinary(op BinaryOp, x, y *Const) Expr {
	size := x.Size
	a, b := x.Value, y.Value
	sa, sb := x.Signed(), y.Signed()
	switch op {
	case Add:
		return NewConst(a+b, size)
	case Sub:
		return NewConst(a-b, size)
	case Mul:
		return NewConst(a*b, size)
	case And, LAnd:
		if op == LAnd {
			return NewBool(a != 0 && b != 0)
		}
		return NewConst(a&b, size)
	case Or, LOr:
		if op == LOr {
			return NewBool(a != 0 || b != 0)
		}
		return NewConst(a|b, size)
	case Xor:
		return NewConst(a^b, size)
	case Shl:
		if b >= uint64(size) {
			return NewConst(0, size)
		}
		return NewConst(a<<b, size)
	case Shr:
		if b >= uint64(size) {
			return NewConst(0, size)
		}
		return NewConst(a>>b, size)
	case Sar:
		if b >= uint64(size) {
			b = uint64(size) - 1
		}
		return NewConst(uint64(sa>>b), size)
	case Eq:
		return NewBool(a == b)
	case Ne:
		return NewBool(a != b)
	case Ult:
		return NewBool(a < b)
	case Ule:
		return NewBool(a <= b)
	case Ugt:
		return NewBool(a > b)
	case Uge:
		return NewBool(a >= b)
	case Slt:
		return NewBool(sa < sb)
	case Sle:
		return NewBool(sa <= sb)
	case Sgt:
		return NewBool(sa > sb)
	case Sge:
		return NewBool(sa >= sb)
	}
	return &Binary{Op: op, X: x, Y: y}
}

// NewFunc returns the intrinsic name applied to args. The flag intrinsics
// fold on constant operands.
func NewFunc(name string, size InstructionSize, args ...Expr) Expr {
	if len(args) == 2 {
		x, y := args[0], args[1]
		cy, yok := y.(*Const)
		if yok && cy.Value == 0 {
			switch name {
			case FuncSBorrow, FuncSCarry, FuncCarry:
				return NewBool(false)
			}
		}
		if cx, ok := x.(*Const); ok && yok {
			w := cx.Size
			sign := func(v uint64) bool { return signExtend(v, w) < 0 }
			switch name {
			case FuncSBorrow:
				r := (cx.Value - cy.Value) & w.Mask()
				return NewBool(sign(cx.Value) != sign(cy.Value) && sign(r) != sign(cx.Value))
			case FuncSCarry:
				r := (cx.Value + cy.Value) & w.Mask()
				return NewBool(sign(cx.Value) == sign(cy.Value) && sign(r) != sign(cx.Value))
			case FuncCarry:
				r := (cx.Value + cy.Value) & w.Mask()
				return NewBool(r < cx.Value)
			}
		}
	}
	return &Func{Name: name, Args: args, Size: size}
}

// Negate returns the logical negation of a boolean expression.
func Negate(cond Expr) Expr {
	return NewUnary(LNot, cond)
}
