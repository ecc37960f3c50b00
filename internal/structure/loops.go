package structure

import (
	"ouroboros/internal/ast"
)

// naturalLoop is a loop found from the back edges into header.
type naturalLoop struct {
	header int
	latch  int
	body   []bool
	size   int
	kind   ast.LoopKind
	follow int
	active bool
}

func (l *naturalLoop) contains(v int) bool { return v != none && l.body[v] }

// findLoops returns the natural loops keyed by header. A back edge is an edge
// whose target dominates its source; irreducible cycles have none and are
// left to the residue handling.
func (g *graph) findLoops() map[int]*naturalLoop {
	loops := map[int]*naturalLoop{}
	for v, n := range g.nodes {
		for _, h := range n.succs {
			if !g.dominates(h, v) {
				continue
			}
			lp, ok := loops[h]
			if !ok {
				lp = &naturalLoop{header: h, latch: v, body: make([]bool, len(g.nodes)), follow: none}
				lp.body[h] = true
				lp.size = 1
				loops[h] = lp
			}
			lp.latch = max(lp.latch, v)
			g.collectBody(lp, v)
		}
	}
	for _, lp := range loops {
		g.classify(lp)
	}
	return loops
}

// collectBody adds every node that reaches latch without passing the header.
func (g *graph) collectBody(lp *naturalLoop, latch int) {
	work := []int{latch}
	for len(work) > 0 {
		v := work[len(work)-1]
		work = work[:len(work)-1]
		if lp.body[v] {
			continue
		}
		lp.body[v] = true
		lp.size++
		work = append(work, g.nodes[v].preds...)
	}
}

func (g *graph) classify(lp *naturalLoop) {
	h, l := g.nodes[lp.header], g.nodes[lp.latch]
	switch {
	case lp.header == lp.latch && h.conditional():
		lp.kind = ast.PostTested
		lp.follow = other(h, lp.header)
	case h.conditional() && lp.contains(h.fall) != lp.contains(h.taken):
		lp.kind = ast.PreTested
		lp.follow = h.fall
		if lp.contains(h.fall) {
			lp.follow = h.taken
		}
	case l.conditional() && (l.fall == lp.header || l.taken == lp.header) && !lp.contains(other(l, lp.header)):
		lp.kind = ast.PostTested
		lp.follow = other(l, lp.header)
	default:
		lp.kind = ast.Endless
		lp.follow = g.endlessFollow(lp)
	}
}

// other returns the side of a conditional node that is not v.
func other(n *node, v int) int {
	if n.fall == v {
		return n.taken
	}
	return n.fall
}

// endlessFollow picks the exit target earliest in reverse post-order among
// the conditional nodes of the body.
func (g *graph) endlessFollow(lp *naturalLoop) int {
	follow := none
	for v, in := range lp.body {
		if !in || !g.nodes[v].conditional() {
			continue
		}
		for _, s := range []int{g.nodes[v].fall, g.nodes[v].taken} {
			if s != none && !lp.contains(s) && (follow == none || s < follow) {
				follow = s
			}
		}
	}
	return follow
}
