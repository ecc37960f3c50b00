package structure

import (
	"gonum.org/v1/gonum/graph/flow"
	"gonum.org/v1/gonum/graph/simple"

	"ouroboros/internal/cfg"
	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
)

// none marks a missing node index.
const none = -1

// node is one block of the function, indexed by its reverse post-order
// position.
type node struct {
	slot  cfg.Slot
	block *lift.BasicBlock
	succs []int
	preds []int
	// fall and taken are the two sides of a conditional branch.
	fall, taken int
}

func (n *node) conditional() bool {
	return n.block.Next.Conditional() && n.fall != n.taken
}

type graph struct {
	nodes []*node
	idom  []int
	ipdom []int
}

func newGraph(hf *cfg.HighFunction) *graph {
	rpo := hf.Blocks.IterFunction()
	pos := make(map[cfg.Slot]int, len(rpo))
	for i, s := range rpo {
		pos[s] = i
	}
	index := func(a ir.Address) int {
		if s, ok := hf.Blocks.SlotByAddress(a); ok {
			return pos[s]
		}
		return none
	}

	g := &graph{nodes: make([]*node, len(rpo))}
	for i, s := range rpo {
		cb := hf.Block(s)
		n := &node{slot: s, block: cb.Block, fall: none, taken: none}
		for _, succ := range cb.Succs {
			n.succs = append(n.succs, pos[succ])
		}
		for _, p := range cb.Preds {
			n.preds = append(n.preds, pos[p])
		}
		if next := cb.Block.Next; next.Conditional() {
			n.fall = index(next.Fallthrough)
			if next.Destination.Concrete {
				n.taken = index(next.Destination.Addr)
			}
		}
		g.nodes[i] = n
	}
	g.idom = g.dominators()
	g.ipdom = g.postDominators()
	return g
}

// immediate returns the immediate dominator of each of the n nodes of dg
// seen from root. The root dominates itself; nodes it cannot reach keep
// none.
func immediate(dg *simple.DirectedGraph, root int64, n int) []int {
	tree := flow.Dominators(simple.Node(root), dg)
	idom := make([]int, n)
	for i := range idom {
		idom[i] = none
		if d := tree.DominatorOf(int64(i)); d != nil {
			idom[i] = int(d.ID())
		}
	}
	if root < int64(n) {
		idom[root] = int(root)
	}
	return idom
}

// edge adds u->v to dg. Self loops never change dominance and simple graphs
// reject them.
func edge(dg *simple.DirectedGraph, u, v int) {
	if u != v {
		dg.SetEdge(simple.Edge{F: simple.Node(u), T: simple.Node(v)})
	}
}

// dominators computes immediate dominators from the entry, node 0.
func (g *graph) dominators() []int {
	dg := simple.NewDirectedGraph()
	for i := range g.nodes {
		dg.AddNode(simple.Node(i))
	}
	for i, nd := range g.nodes {
		for _, s := range nd.succs {
			edge(dg, i, s)
		}
	}
	return immediate(dg, 0, len(g.nodes))
}

// postDominators returns the immediate post-dominator of every node, or none
// when it is the virtual exit or the node cannot reach an exit. The exits
// all flow into one virtual exit node, the root of the reverse graph.
func (g *graph) postDominators() []int {
	n := len(g.nodes)
	exit := n
	dg := simple.NewDirectedGraph()
	for i := 0; i <= n; i++ {
		dg.AddNode(simple.Node(i))
	}
	for i, nd := range g.nodes {
		if len(nd.succs) == 0 {
			edge(dg, exit, i)
		}
		for _, s := range nd.succs {
			edge(dg, s, i)
		}
	}
	ipdom := immediate(dg, int64(exit), n+1)[:n]
	for i, d := range ipdom {
		if d == exit {
			ipdom[i] = none
		}
	}
	return ipdom
}

// dominates reports whether a dominates b.
func (g *graph) dominates(a, b int) bool {
	for {
		if a == b {
			return true
		}
		if b == 0 || g.idom[b] == none {
			return false
		}
		b = g.idom[b]
	}
}
