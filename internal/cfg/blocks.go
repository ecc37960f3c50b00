// Package cfg assembles the lifted basic blocks reachable from a function
// entry into that function's control-flow graph.
package cfg

import (
	"slices"

	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
)

// Slot is a handle to a composed block in a ComposedBlocks arena.
type Slot int

// ComposedBlock is a basic block placed in one function's graph.
type ComposedBlock struct {
	Slot  Slot
	Block *lift.BasicBlock
	Succs []Slot
	Preds []Slot
}

func (c *ComposedBlock) Addr() ir.Address    { return c.Block.Addr }
func (c *ComposedBlock) Kind() lift.NextKind { return c.Block.Next.Kind }

// ComposedBlocks is the arena of one function's blocks. Slot 0 is the entry.
type ComposedBlocks struct {
	blocks []*ComposedBlock
	byAddr map[ir.Address]Slot
	rpo    []Slot
}

func newComposedBlocks() *ComposedBlocks {
	return &ComposedBlocks{byAddr: make(map[ir.Address]Slot)}
}

func (c *ComposedBlocks) add(b *lift.BasicBlock) Slot {
	s := Slot(len(c.blocks))
	c.blocks = append(c.blocks, &ComposedBlock{Slot: s, Block: b})
	c.byAddr[b.Addr] = s
	return s
}

func (c *ComposedBlocks) link(from, to Slot) {
	f, t := c.blocks[from], c.blocks[to]
	if slices.Contains(f.Succs, to) {
		return
	}
	f.Succs = append(f.Succs, to)
	t.Preds = append(t.Preds, from)
}

// Get returns the block behind a handle.
func (c *ComposedBlocks) Get(s Slot) *ComposedBlock { return c.blocks[s] }

func (c *ComposedBlocks) Len() int { return len(c.blocks) }

// SlotByAddress returns the handle of the block starting at a.
func (c *ComposedBlocks) SlotByAddress(a ir.Address) (Slot, bool) {
	s, ok := c.byAddr[a]
	return s, ok
}

// IterFunction returns the handles in reverse post-order from the entry,
// visiting successors in edge order.
func (c *ComposedBlocks) IterFunction() []Slot {
	if c.rpo != nil || len(c.blocks) == 0 {
		return c.rpo
	}
	type frame struct {
		s Slot
		i int
	}
	visited := make([]bool, len(c.blocks))
	visited[0] = true
	stack := []frame{{s: 0}}
	var post []Slot
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := c.blocks[top.s].Succs
		if top.i < len(succs) {
			next := succs[top.i]
			top.i++
			if !visited[next] {
				visited[next] = true
				stack = append(stack, frame{s: next})
			}
			continue
		}
		post = append(post, top.s)
		stack = stack[:len(stack)-1]
	}
	slices.Reverse(post)
	c.rpo = post
	return c.rpo
}
