package analysis

import (
	"slices"

	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
)

// Candidate is a function entry proposed by a Discoverer.
type Candidate struct {
	Addr ir.Address
	// From is the block that references Addr.
	From   ir.Address
	Reason string
}

// Discoverer proposes function entries from the session's IR.
type Discoverer interface {
	Discover(s *Session) []Candidate
}

// DiscoveryChain runs multiple discoverers in sequence and keeps the first
// candidate for each address.
type DiscoveryChain struct {
	discoverers []Discoverer
}

func NewDiscoveryChain(discoverers ...Discoverer) *DiscoveryChain {
	return &DiscoveryChain{discoverers: discoverers}
}

// Discover returns the new candidates in address order. Known functions and
// entries that already failed are skipped.
func (dc *DiscoveryChain) Discover(s *Session) []Candidate {
	seen := map[ir.Address]bool{}
	var out []Candidate
	for _, d := range dc.discoverers {
		for _, c := range d.Discover(s) {
			if seen[c.Addr] || s.known(c.Addr) {
				continue
			}
			seen[c.Addr] = true
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b Candidate) int { return compareAddr(a.Addr, b.Addr) })
	return out
}

func compareAddr(a, b ir.Address) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// CallTargets proposes the concrete destination of every lifted call.
type CallTargets struct{}

func (CallTargets) Discover(s *Session) []Candidate {
	var out []Candidate
	for _, b := range s.IR.Blocks() {
		d := b.Next.Destination
		if b.Next.Kind != lift.NextCall || !d.Concrete {
			continue
		}
		out = append(out, Candidate{Addr: d.Addr, From: b.Addr, Reason: "call"})
	}
	return out
}

// TailTargets proposes the exits of defined functions that jump into other
// sections. Import stubs are not proposed.
type TailTargets struct{}

func (TailTargets) Discover(s *Session) []Candidate {
	var out []Candidate
	for entry, fn := range s.functions {
		for _, t := range fn.High.TailCalls {
			if s.isImport(t) || !(s.IR.Has(t) || s.Space.IsExecutableData(t)) {
				continue
			}
			out = append(out, Candidate{Addr: t, From: entry, Reason: "tail call"})
		}
	}
	return out
}

// ParamPointers proposes constants held in parameter registers at the end of
// a block when they point at lifted code or at undecoded executable bytes.
// Callbacks handed to other functions are found this way.
type ParamPointers struct {
	Registers []string
}

func (pp ParamPointers) Discover(s *Session) []Candidate {
	var out []Candidate
	for _, b := range s.IR.Blocks() {
		for _, reg := range pp.Registers {
			v, ok := b.Registers[reg]
			if !ok || v == nil {
				continue
			}
			c, ok := ir.AsConst(narrowExt(v))
			if !ok || c.Value == 0 {
				continue
			}
			a := ir.Address(c.Value)
			if s.IR.Has(a) || s.Space.IsExecutableData(a) {
				out = append(out, Candidate{Addr: a, From: b.Addr, Reason: "pointer in " + reg})
			}
		}
	}
	return out
}

func narrowExt(e ir.Expr) ir.Expr {
	if u, ok := e.(*ir.Unary); ok && u.Op == ir.ZExt {
		return u.X
	}
	return e
}
