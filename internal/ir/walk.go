package ir

// Equal reports whether a and b are structurally identical.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch a := a.(type) {
	case *Const:
		b, ok := b.(*Const)
		return ok && a.Value == b.Value && a.Size == b.Size
	case *Reg:
		b, ok := b.(*Reg)
		return ok && a.Name == b.Name && a.Size == b.Size
	case *Mem:
		b, ok := b.(*Mem)
		return ok && a.Size == b.Size && Equal(a.Addr, b.Addr)
	case *Unary:
		b, ok := b.(*Unary)
		return ok && a.Op == b.Op && a.Size == b.Size && Equal(a.X, b.X)
	case *Binary:
		b, ok := b.(*Binary)
		return ok && a.Op == b.Op && Equal(a.X, b.X) && Equal(a.Y, b.Y)
	case *Func:
		b, ok := b.(*Func)
		if !ok || a.Name != b.Name || a.Size != b.Size || len(a.Args) != len(b.Args) {
			return false
		}
		for i := range a.Args {
			if !Equal(a.Args[i], b.Args[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Walk calls fn for e and each of its sub-expressions in pre-order. Returning
// false from fn skips the node's children.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case *Mem:
		Walk(e.Addr, fn)
	case *Unary:
		Walk(e.X, fn)
	case *Binary:
		Walk(e.X, fn)
		Walk(e.Y, fn)
	case *Func:
		for _, a := range e.Args {
			Walk(a, fn)
		}
	}
}

// Rewrite rebuilds e bottom-up through the folding constructors. fn is
// consulted first for every node; when it returns a replacement the node's
// children are not visited.
func Rewrite(e Expr, fn func(Expr) (Expr, bool)) Expr {
	if e == nil {
		return nil
	}
	if r, ok := fn(e); ok {
		return r
	}
	switch e := e.(type) {
	case *Mem:
		return NewMem(Rewrite(e.Addr, fn), e.Size)
	case *Unary:
		x := Rewrite(e.X, fn)
		switch e.Op {
		case ZExt, SExt, Trunc:
			return NewCast(e.Op, x, e.Size)
		}
		return NewUnary(e.Op, x)
	case *Binary:
		return NewBinary(e.Op, Rewrite(e.X, fn), Rewrite(e.Y, fn))
	case *Func:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = Rewrite(a, fn)
		}
		return NewFunc(e.Name, e.Size, args...)
	}
	return e
}

// Registers returns the distinct registers e reads, in first-use order.
func Registers(e Expr) []*Reg {
	var out []*Reg
	seen := map[string]bool{}
	Walk(e, func(n Expr) bool {
		if r, ok := n.(*Reg); ok && !seen[r.Name] {
			seen[r.Name] = true
			out = append(out, r)
		}
		return true
	})
	return out
}
