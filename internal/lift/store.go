package lift

import (
	"slices"
	"sort"

	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

// Store is the global IR store: every lifted instruction keyed by address
// and the basic-block partition derived from them.
type Store struct {
	word   ir.InstructionSize
	instrs map[ir.Address]*semantics.Instruction
	addrs  []ir.Address
	blocks []*BasicBlock
	starts map[ir.Address]int
}

// NewStore returns an empty store for a target whose registers are word
// bits wide.
func NewStore(word ir.InstructionSize) *Store {
	return &Store{
		word:   word,
		instrs: make(map[ir.Address]*semantics.Instruction),
		starts: make(map[ir.Address]int),
	}
}

// Merge records instrs, replacing any instruction already stored at the same
// address, and rebuilds the block partition.
func (s *Store) Merge(instrs []semantics.Instruction) {
	for i := range instrs {
		inst := instrs[i]
		if _, ok := s.instrs[inst.Addr]; !ok {
			s.addrs = append(s.addrs, inst.Addr)
		}
		s.instrs[inst.Addr] = &inst
	}
	slices.Sort(s.addrs)
	s.rebuild()
}

func (s *Store) leaders() map[ir.Address]bool {
	leaders := make(map[ir.Address]bool)
	var prev *semantics.Instruction
	for _, a := range s.addrs {
		inst := s.instrs[a]
		if prev == nil || prev.Next != a || prev.Flow != semantics.FlowNext {
			leaders[a] = true
		}
		if inst.HasTarget {
			if _, ok := s.instrs[inst.Target]; ok {
				leaders[inst.Target] = true
			}
		}
		if inst.Flow != semantics.FlowNext {
			if _, ok := s.instrs[inst.Next]; ok {
				leaders[inst.Next] = true
			}
		}
		prev = inst
	}
	return leaders
}

func (s *Store) rebuild() {
	leaders := s.leaders()
	s.blocks = s.blocks[:0]
	clear(s.starts)

	var cur *BasicBlock
	for _, a := range s.addrs {
		inst := s.instrs[a]
		if cur == nil || leaders[a] {
			cur = &BasicBlock{ID: len(s.blocks), Addr: a}
			s.starts[a] = len(s.blocks)
			s.blocks = append(s.blocks, cur)
		}
		cur.Instructions = append(cur.Instructions, inst)
		cur.End = inst.Next
	}
	for _, b := range s.blocks {
		b.evaluate(s.word)
	}
}

// GetByAddress returns the block starting at a.
func (s *Store) GetByAddress(a ir.Address) (*BasicBlock, bool) {
	i, ok := s.starts[a]
	if !ok {
		return nil, false
	}
	return s.blocks[i], true
}

// BlockAt returns the block containing a.
func (s *Store) BlockAt(a ir.Address) (*BasicBlock, bool) {
	i := sort.Search(len(s.blocks), func(i int) bool { return s.blocks[i].End > a })
	if i < len(s.blocks) && s.blocks[i].Addr <= a {
		return s.blocks[i], true
	}
	return nil, false
}

// Blocks returns every block in address order.
func (s *Store) Blocks() []*BasicBlock { return s.blocks }

// Instruction returns the instruction decoded at a.
func (s *Store) Instruction(a ir.Address) (*semantics.Instruction, bool) {
	inst, ok := s.instrs[a]
	return inst, ok
}

// Has reports whether an instruction starts at a.
func (s *Store) Has(a ir.Address) bool {
	_, ok := s.instrs[a]
	return ok
}

// Len returns the number of stored instructions.
func (s *Store) Len() int { return len(s.addrs) }
