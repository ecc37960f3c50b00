package cfg

import (
	"errors"
	"fmt"
	"slices"

	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
	"ouroboros/internal/memory"
	"ouroboros/internal/semantics"
	"ouroboros/internal/symbols"
)

// ErrNoBlock is returned when no lifted block starts at a function entry.
var ErrNoBlock = errors.New("no lifted block at entry")

// Lookup finds the lifted block starting at an address. *lift.Store
// implements it.
type Lookup interface {
	GetByAddress(a ir.Address) (*lift.BasicBlock, bool)
}

// Options controls Build.
type Options struct {
	// Stop reports addresses owned by other functions. The walk treats them
	// as exits.
	Stop func(ir.Address) bool
	// TailCall reports a jump from a block at from to to that leaves the
	// function, such as a jump into an import stub or another section.
	TailCall   func(from, to ir.Address) bool
	Convention semantics.Convention
}

// HighFunction is the control-flow graph of one function.
type HighFunction struct {
	Entry  ir.Address
	Blocks *ComposedBlocks
	// Span is the hull of the blocks; Ranges is their union, as sorted
	// disjoint runs.
	Span       ir.Interval
	Ranges     []ir.Interval
	Convention semantics.Convention
	// Unresolved lists in-function targets that have no lifted block yet.
	Unresolved []ir.Address
	// Calls lists the concrete call targets, sorted.
	Calls []ir.Address
	// TailCalls lists the jump targets treated as exits, sorted.
	TailCalls []ir.Address
}

// successors returns the in-function targets of an edge, fallthrough first.
func successors(n lift.NextBlock) []ir.Address {
	switch n.Kind {
	case lift.NextFallthrough:
		return []ir.Address{n.Fallthrough}
	case lift.NextBranch:
		if !n.Destination.Concrete {
			return nil
		}
		if n.Cond != nil {
			return []ir.Address{n.Fallthrough, n.Destination.Addr}
		}
		return []ir.Address{n.Destination.Addr}
	case lift.NextCall:
		return []ir.Address{n.ReturnSite}
	}
	return nil
}

// Build walks the lifted blocks reachable from entry. Calls are followed to
// their return site only.
func Build(entry ir.Address, lookup Lookup, opts Options) (*HighFunction, error) {
	root, ok := lookup.GetByAddress(entry)
	if !ok {
		return nil, fmt.Errorf("build %s: %w", entry, ErrNoBlock)
	}
	hf := &HighFunction{Entry: entry, Blocks: newComposedBlocks(), Convention: opts.Convention}
	blocks := hf.Blocks
	unresolved := map[ir.Address]bool{}
	calls := map[ir.Address]bool{}
	tails := map[ir.Address]bool{}

	work := []Slot{blocks.add(root)}
	for len(work) > 0 {
		s := work[0]
		work = work[1:]
		b := blocks.Get(s).Block
		if b.Next.Kind == lift.NextCall && b.Next.Destination.Concrete {
			calls[b.Next.Destination.Addr] = true
		}
		for _, target := range successors(b.Next) {
			if target != entry && opts.Stop != nil && opts.Stop(target) {
				continue
			}
			if b.Next.Kind == lift.NextBranch && target == b.Next.Destination.Addr &&
				opts.TailCall != nil && opts.TailCall(b.Addr, target) {
				tails[target] = true
				continue
			}
			next, ok := blocks.SlotByAddress(target)
			if !ok {
				tb, found := lookup.GetByAddress(target)
				if !found {
					unresolved[target] = true
					continue
				}
				next = blocks.add(tb)
				work = append(work, next)
			}
			blocks.link(s, next)
		}
	}
	hf.Unresolved = sortedKeys(unresolved)
	hf.Calls = sortedKeys(calls)
	hf.TailCalls = sortedKeys(tails)
	ivs := make([]ir.Interval, 0, len(blocks.blocks))
	for _, b := range blocks.blocks {
		ivs = append(ivs, b.Block.Interval())
	}
	hf.Ranges = ir.Union(ivs)
	if n := len(hf.Ranges); n > 0 {
		hf.Span = ir.Interval{Start: hf.Ranges[0].Start, End: hf.Ranges[n-1].End}
	}
	return hf, nil
}

func sortedKeys(m map[ir.Address]bool) []ir.Address {
	out := make([]ir.Address, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	slices.Sort(out)
	return out
}

// TakeIntervalOwnership claims every run of the function's blocks in the
// navigation index. It fails with a *memory.OverlapError when another
// function already owns part of them, and then claims nothing.
func (hf *HighFunction) TakeIntervalOwnership(space *memory.Space) error {
	return space.ClaimSpan(hf.Entry, hf.Ranges...)
}

// FillGlobalSymbols registers the entry and every direct call target.
func (hf *HighFunction) FillGlobalSymbols(table *symbols.Table) {
	table.Add(hf.Entry, hf.Span.Len(), "")
	for _, c := range hf.Calls {
		table.Add(c, 0, "")
	}
}

// Block returns the composed block behind s.
func (hf *HighFunction) Block(s Slot) *ComposedBlock { return hf.Blocks.Get(s) }

// WritesRegister reports whether any block assigns the register base.
func (hf *HighFunction) WritesRegister(base string) bool {
	for _, b := range hf.Blocks.blocks {
		if b.Block.Writes(base) {
			return true
		}
	}
	return false
}
