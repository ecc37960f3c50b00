// Package structure turns a function's control-flow graph into a nested
// statement tree.
package structure

import (
	"errors"
	"fmt"

	"ouroboros/internal/ast"
	"ouroboros/internal/cfg"
	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
)

// ErrEmptyFunction is returned for a function without blocks.
var ErrEmptyFunction = errors.New("function has no blocks")

// Stats counts what structuring could not nest cleanly.
type Stats struct {
	Loops int
	Ifs   int
	// Gotos counts jumps to blocks emitted elsewhere in the tree.
	Gotos int
	// Residue counts regions appended after the body because the structured
	// walk never reached them.
	Residue int
}

type structurer struct {
	hf      *cfg.HighFunction
	g       *graph
	loops   map[int]*naturalLoop
	stack   []*naturalLoop
	emitted []bool
	stats   Stats
}

// Structure builds the statement tree of hf.
func Structure(hf *cfg.HighFunction) (*ast.Function, error) {
	fn, _, err := StructureStats(hf)
	return fn, err
}

// StructureStats is Structure that also reports the residue it produced.
func StructureStats(hf *cfg.HighFunction) (*ast.Function, Stats, error) {
	if hf == nil || hf.Blocks.Len() == 0 {
		return nil, Stats{}, ErrEmptyFunction
	}
	g := newGraph(hf)
	s := &structurer{
		hf:      hf,
		g:       g,
		loops:   g.findLoops(),
		emitted: make([]bool, len(g.nodes)),
	}
	body := &ast.Block{}
	s.sequence(body, 0, nil)
	for v := range g.nodes {
		if !s.emitted[v] {
			s.stats.Residue++
			s.sequence(body, v, nil)
		}
	}
	return &ast.Function{Entry: hf.Entry, Body: body}, s.stats, nil
}

func (s *structurer) innermost() *naturalLoop {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *structurer) addr(v int) ir.Address { return s.g.nodes[v].block.Addr }

func (s *structurer) jump(blk *ast.Block, target ir.Address) {
	s.stats.Gotos++
	blk.Append(&ast.Goto{Target: target})
}

func contains(set []int, v int) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

// sequence structures the nodes from cur until it reaches a node in stop or
// leaves the current region.
func (s *structurer) sequence(blk *ast.Block, cur int, stop []int) {
	for cur != none {
		if lp := s.innermost(); lp != nil {
			if cur == lp.header {
				blk.Append(&ast.Continue{})
				return
			}
			if !lp.contains(cur) {
				if cur == lp.follow {
					blk.Append(&ast.Break{})
				} else {
					s.jump(blk, s.addr(cur))
				}
				return
			}
		}
		if contains(stop, cur) {
			return
		}
		if s.emitted[cur] {
			s.jump(blk, s.addr(cur))
			return
		}
		if lp, ok := s.loops[cur]; ok && !lp.active {
			cur = s.loop(blk, lp)
			continue
		}
		cur = s.basic(blk, cur, stop)
	}
}

func (s *structurer) region(cur int, addr ir.Address, stop []int) *ast.Block {
	blk := &ast.Block{}
	if cur == none {
		s.jump(blk, addr)
		return blk
	}
	s.sequence(blk, cur, stop)
	return blk
}

// visibleOps drops flag updates and the terminating transfer, which the tree
// expresses structurally.
func visibleOps(b *lift.BasicBlock) []ir.Operation {
	var out []ir.Operation
	for _, op := range b.Ops {
		if op.WritesFlag() {
			continue
		}
		switch op.Kind {
		case ir.OpBranch:
			if b.Next.Kind != lift.NextIndirect {
				continue
			}
		case ir.OpCall, ir.OpReturn:
			continue
		}
		out = append(out, op)
	}
	return out
}

func (s *structurer) emitBasic(blk *ast.Block, v int) {
	s.emitted[v] = true
	b := s.g.nodes[v].block
	blk.Append(&ast.Basic{Addr: b.Addr, Ops: visibleOps(b)})
}

// follow returns the merge point of a conditional node, restricted to the
// body of the loop being structured.
func (s *structurer) follow(v int) int {
	f := s.g.ipdom[v]
	if lp := s.innermost(); lp != nil && (f == lp.header || !lp.contains(f)) {
		return none
	}
	return f
}

// basic emits one block and returns the node structuring continues with.
func (s *structurer) basic(blk *ast.Block, v int, stop []int) int {
	n := s.g.nodes[v]
	next := n.block.Next
	s.emitBasic(blk, v)

	// The condition of a post-tested loop sits on the loop itself.
	if lp := s.innermost(); lp != nil && lp.kind == ast.PostTested && v == lp.latch {
		return none
	}

	switch next.Kind {
	case lift.NextReturn:
		blk.Append(&ast.Return{Result: s.result(n.block)})
		return none
	case lift.NextIndirect:
		return none
	case lift.NextCall:
		blk.Append(s.call(n.block))
		return s.edge(blk, next.ReturnSite)
	case lift.NextFallthrough:
		return s.edge(blk, next.Fallthrough)
	}
	if !n.conditional() {
		if next.Cond != nil {
			return s.edge(blk, next.Fallthrough)
		}
		if !next.Destination.Concrete {
			return none
		}
		return s.edge(blk, next.Destination.Addr)
	}

	follow := s.follow(v)
	inner := append(append([]int(nil), stop...), follow)
	cond := Simplify(ir.Negate(next.Cond))
	then := s.region(n.fall, next.Fallthrough, inner)
	els := s.region(n.taken, next.Destination.Addr, inner)
	s.stats.Ifs++
	switch {
	case len(then.Stmts) == 0 && len(els.Stmts) == 0:
	case len(then.Stmts) == 0:
		blk.Append(&ast.If{Cond: Simplify(ir.Negate(cond)), Then: els})
	case len(els.Stmts) == 0:
		blk.Append(&ast.If{Cond: cond, Then: then})
	default:
		blk.Append(&ast.If{Cond: cond, Then: then, Else: els})
	}
	return follow
}

// edge resolves an in-function successor address, emitting a jump when the
// target is not part of the graph.
func (s *structurer) edge(blk *ast.Block, target ir.Address) int {
	if slot, ok := s.hf.Blocks.SlotByAddress(target); ok {
		for i, n := range s.g.nodes {
			if n.slot == slot {
				return i
			}
		}
	}
	s.jump(blk, target)
	return none
}

func (s *structurer) loop(blk *ast.Block, lp *naturalLoop) int {
	lp.active = true
	s.stack = append(s.stack, lp)
	s.stats.Loops++
	defer func() {
		lp.active = false
		s.stack = s.stack[:len(s.stack)-1]
	}()

	h := s.g.nodes[lp.header]
	body := &ast.Block{}
	out := &ast.Loop{Kind: lp.kind, Body: body}

	switch lp.kind {
	case ast.PreTested:
		stayFall := lp.contains(h.fall)
		inBody, exitAddr := h.taken, h.block.Next.Fallthrough
		stay := h.block.Next.Cond
		if stayFall {
			inBody, exitAddr = h.fall, h.block.Next.Destination.Addr
			stay = ir.Negate(stay)
		}
		if len(visibleOps(h.block)) == 0 && lp.follow != none {
			// The header only sets flags; it stays in the body so its
			// address keeps the loop's coverage.
			s.emitBasic(body, lp.header)
			out.Cond = Simplify(stay)
			s.sequence(body, inBody, nil)
			break
		}
		// The header does work before its exit test.
		out.Kind = ast.Endless
		s.emitBasic(body, lp.header)
		exit := &ast.Block{}
		if lp.follow != none {
			exit.Append(&ast.Break{})
		} else {
			s.jump(exit, exitAddr)
		}
		body.Append(&ast.If{Cond: Simplify(ir.Negate(stay)), Then: exit})
		s.sequence(body, inBody, nil)
	case ast.PostTested:
		l := s.g.nodes[lp.latch]
		stay := l.block.Next.Cond
		if l.fall == lp.header {
			stay = ir.Negate(stay)
		}
		out.Cond = Simplify(stay)
		if lp.header == lp.latch {
			s.emitBasic(body, lp.header)
			break
		}
		s.sequence(body, s.basic(body, lp.header, nil), nil)
	default:
		s.sequence(body, s.basic(body, lp.header, nil), nil)
	}

	if n := len(body.Stmts); n > 0 {
		if _, ok := body.Stmts[n-1].(*ast.Continue); ok {
			body.Stmts = body.Stmts[:n-1]
		}
	}
	blk.Append(out)
	return lp.follow
}

// result is the value a returning block hands back: its own write of the
// return register, else the register itself when any block writes it.
func (s *structurer) result(b *lift.BasicBlock) ir.Expr {
	ret := s.hf.Convention.Return
	if ret == nil {
		return nil
	}
	if v, ok := b.Registers[ret.Base]; ok && v != nil {
		return narrow(v)
	}
	if s.hf.WritesRegister(ret.Base) {
		return ret
	}
	return nil
}

// narrow drops the implicit zero extension of 32-bit register writes.
func narrow(e ir.Expr) ir.Expr {
	if u, ok := e.(*ir.Unary); ok && u.Op == ir.ZExt {
		return u.X
	}
	return e
}

func (s *structurer) call(b *lift.BasicBlock) *ast.Call {
	c := &ast.Call{}
	if d := b.Next.Destination; d.Concrete {
		c.Direct, c.Addr = true, d.Addr
		c.Target = ir.NewConst(uint64(d.Addr), s.hf.Convention.WordSize)
	} else {
		c.Target = d.Expr
	}
	for _, p := range s.hf.Convention.Params {
		v, ok := b.Registers[p.Base]
		if !ok {
			break
		}
		if v == nil {
			v = p
		}
		c.Args = append(c.Args, narrow(v))
	}
	return c
}

func (st Stats) String() string {
	return fmt.Sprintf("loops=%d ifs=%d gotos=%d residue=%d", st.Loops, st.Ifs, st.Gotos, st.Residue)
}
