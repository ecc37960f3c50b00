// Package graph exports the session's control-flow and call graphs as DOT.
package graph

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zboralski/lattice"
	"github.com/zboralski/lattice/render"

	"ouroboros/internal/analysis"
	"ouroboros/internal/cfg"
	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
)

// maxLabel bounds string literals shown on CFG nodes.
const maxLabel = 50

// FuncCFG converts one function's graph. Blocks are numbered in reverse
// post-order and their instruction ranges index the function's instructions
// in that order. Calls and referenced strings become call sites.
func FuncCFG(s *analysis.Session, fn *analysis.Function) *lattice.FuncCFG {
	hf := fn.High
	order := hf.Blocks.IterFunction()
	ids := make(map[cfg.Slot]int, len(order))
	for i, slot := range order {
		ids[slot] = i
	}

	out := &lattice.FuncCFG{Name: s.Symbols.Name(hf.Entry)}
	idx := 0
	for i, slot := range order {
		b := hf.Block(slot).Block
		lb := &lattice.BasicBlock{ID: i, Start: idx, End: idx + len(b.Instructions)}
		idx = lb.End

		for _, e := range edges(b.Next) {
			if t, ok := hf.Blocks.SlotByAddress(e.to); ok {
				lb.Succs = append(lb.Succs, lattice.Successor{BlockID: ids[t], Cond: e.cond})
			}
		}
		lb.Term = len(lb.Succs) == 0

		lb.Calls = append(lb.Calls, stringRefs(s, b, lb.Start)...)
		if b.Next.Kind == lift.NextCall {
			lb.Calls = append(lb.Calls, lattice.CallSite{Offset: lb.End - 1, Callee: callee(s, b.Next.Destination)})
		}
		out.Blocks = append(out.Blocks, lb)
	}
	return out
}

type edge struct {
	to   ir.Address
	cond string
}

// edges lists the successors of a block, taken side first for branches.
func edges(n lift.NextBlock) []edge {
	switch n.Kind {
	case lift.NextFallthrough:
		return []edge{{to: n.Fallthrough}}
	case lift.NextCall:
		return []edge{{to: n.ReturnSite}}
	case lift.NextBranch:
		if !n.Destination.Concrete {
			return nil
		}
		if n.Conditional() {
			return []edge{{to: n.Destination.Addr, cond: "T"}, {to: n.Fallthrough, cond: "F"}}
		}
		return []edge{{to: n.Destination.Addr}}
	}
	return nil
}

func callee(s *analysis.Session, d lift.Destination) string {
	if d.Concrete {
		return s.Symbols.Name(d.Addr)
	}
	if d.Expr != nil {
		return d.Expr.String()
	}
	return "?"
}

// stringRefs returns a call site for each string constant the block uses.
func stringRefs(s *analysis.Session, b *lift.BasicBlock, start int) []lattice.CallSite {
	var out []lattice.CallSite
	seen := map[ir.Address]bool{}
	for _, op := range b.Ops {
		for _, e := range []ir.Expr{op.Src, op.Dest, op.Cond} {
			ir.Walk(e, func(x ir.Expr) bool {
				c, ok := ir.AsConst(x)
				if !ok || seen[ir.Address(c.Value)] {
					return true
				}
				if str, ok := s.StringAt(ir.Address(c.Value)); ok {
					seen[ir.Address(c.Value)] = true
					if len(str) > maxLabel {
						str = str[:maxLabel-4] + `..."`
					}
					out = append(out, lattice.CallSite{Offset: start, Callee: str})
				}
				return true
			})
		}
	}
	return out
}

// CFG converts every defined function, in address order.
func CFG(s *analysis.Session) *lattice.CFGGraph {
	g := &lattice.CFGGraph{}
	for _, info := range s.Functions() {
		fn, _ := s.Function(info.Entry)
		g.Funcs = append(g.Funcs, FuncCFG(s, fn))
	}
	return g
}

// CallGraph has a node per defined function and an edge per direct call.
func CallGraph(s *analysis.Session) *lattice.Graph {
	g := &lattice.Graph{}
	for _, info := range s.Functions() {
		g.Nodes = append(g.Nodes, info.Name)
		fn, _ := s.Function(info.Entry)
		for _, c := range fn.High.Calls {
			g.Edges = append(g.Edges, lattice.Edge{Caller: info.Name, Callee: s.Symbols.Name(c)})
		}
	}
	g.Dedup()
	return g
}

// FunctionDOT renders one function's CFG.
func FunctionDOT(s *analysis.Session, fn *analysis.Function) string {
	lcfg := FuncCFG(s, fn)
	return render.DOTCFG(&lattice.CFGGraph{Funcs: []*lattice.FuncCFG{lcfg}}, lcfg.Name)
}

// CallGraphDOT renders the call graph.
func CallGraphDOT(s *analysis.Session) string {
	return render.DOT(CallGraph(s), "callgraph")
}

// WriteDir writes callgraph.dot and one cfg/<entry>.dot per function with
// more than one block. It returns the number of CFG files written.
func WriteDir(s *analysis.Session, dir string) (int, error) {
	cfgDir := filepath.Join(dir, "cfg")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return 0, fmt.Errorf("mkdir cfg: %w", err)
	}
	n := 0
	for _, info := range s.Functions() {
		if info.Blocks < 2 {
			continue
		}
		fn, _ := s.Function(info.Entry)
		path := filepath.Join(cfgDir, fmt.Sprintf("%x.dot", uint64(info.Entry)))
		if err := os.WriteFile(path, []byte(FunctionDOT(s, fn)), 0o644); err != nil {
			return n, fmt.Errorf("write cfg dot %s: %w", info.Name, err)
		}
		n++
	}
	path := filepath.Join(dir, "callgraph.dot")
	if err := os.WriteFile(path, []byte(CallGraphDOT(s)), 0o644); err != nil {
		return n, fmt.Errorf("write callgraph.dot: %w", err)
	}
	return n, nil
}
