package memory

import (
	"errors"
	"fmt"

	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

// ErrAlreadyDecoded is returned when marking an address that is already
// covered by an Instruction literal.
var ErrAlreadyDecoded = errors.New("address already decoded")

// LiteralKind tells Data from Instruction literals.
type LiteralKind uint8

const (
	LiteralData LiteralKind = iota
	LiteralInstruction
)

func (k LiteralKind) String() string {
	if k == LiteralInstruction {
		return "instruction"
	}
	return "data"
}

// LiteralState is the payload of one interval of the address space. A Data
// literal becomes an Instruction literal at most once.
type LiteralState struct {
	Kind         LiteralKind
	Section      string
	Exec         bool
	Bytes        []byte
	Instructions []semantics.Instruction
}

// Section is a loaded section as it was added to the space.
type Section struct {
	Name string
	Base ir.Address
	Size uint64
	Exec bool
}

// DecodeFunc decodes instructions from code, which starts at start.
type DecodeFunc func(code []byte, start ir.Address) ([]semantics.Instruction, error)

// Space is the address-space model: the literal partition, the loaded
// sections and the navigation index of claimed function spans.
type Space struct {
	literals IntervalMap[*LiteralState]
	sections []Section
	spans    IntervalMap[ir.Address]
	claims   map[ir.Address][]ir.Interval
}

func NewSpace() *Space {
	return &Space{claims: make(map[ir.Address][]ir.Interval)}
}

// AddSection inserts the section bytes as a Data literal. Empty sections are
// skipped.
func (s *Space) AddSection(name string, base ir.Address, data []byte, exec bool) error {
	if len(data) == 0 {
		return nil
	}
	iv := ir.Span(base, uint64(len(data)))
	lit := &LiteralState{Kind: LiteralData, Section: name, Exec: exec, Bytes: data}
	if err := s.literals.InsertStrict(iv, lit); err != nil {
		return fmt.Errorf("add section %s: %w", name, err)
	}
	s.sections = append(s.sections, Section{Name: name, Base: base, Size: uint64(len(data)), Exec: exec})
	return nil
}

func (s *Space) Sections() []Section { return s.sections }

// Literals returns the partition in address order.
func (s *Space) Literals() []Entry[*LiteralState] { return s.literals.Entries() }

// Covered returns the union of all literal intervals.
func (s *Space) Covered() []ir.Interval { return s.literals.Covered() }

// LiteralAt returns the literal containing a.
func (s *Space) LiteralAt(a ir.Address) (ir.Interval, *LiteralState, bool) {
	e, err := s.literals.GetAtPoint(a)
	if err != nil {
		return ir.Interval{}, nil, false
	}
	return e.Interval, e.Value, true
}

// IsExecutableData reports whether a lies in a not yet decoded literal of an
// executable section.
func (s *Space) IsExecutableData(a ir.Address) bool {
	_, lit, ok := s.LiteralAt(a)
	return ok && lit.Kind == LiteralData && lit.Exec
}

// ReadData returns up to n bytes of Data starting at a. The result stops at
// the end of the containing literal.
func (s *Space) ReadData(a ir.Address, n int) ([]byte, bool) {
	iv, lit, ok := s.LiteralAt(a)
	if !ok || lit.Kind != LiteralData {
		return nil, false
	}
	off := int(a - iv.Start)
	end := min(off+n, len(lit.Bytes))
	return lit.Bytes[off:end], true
}

// MarkInstructions decodes from addr to the end of its Data literal and
// splits the literal into leading Data, the decoded Instruction range and
// trailing Data. Nothing changes when decoding fails.
func (s *Space) MarkInstructions(addr ir.Address, decode DecodeFunc) (ir.Interval, []semantics.Instruction, error) {
	e, err := s.literals.GetAtPoint(addr)
	if err != nil {
		return ir.Interval{}, nil, fmt.Errorf("mark %s: %w", addr, err)
	}
	data, lit := e.Interval, e.Value
	if lit.Kind != LiteralData {
		return ir.Interval{}, nil, fmt.Errorf("mark %s: %w", addr, ErrAlreadyDecoded)
	}

	off := uint64(addr - data.Start)
	instrs, err := decode(lit.Bytes[off:], addr)
	if err != nil {
		return ir.Interval{}, nil, err
	}
	if len(instrs) == 0 {
		return ir.Interval{}, nil, fmt.Errorf("mark %s: %w", addr, ErrEmptyInterval)
	}
	end := min(instrs[len(instrs)-1].Next, data.End)
	cut := uint64(end - data.Start)

	s.literals.RemoveOverlapping(data)
	parts := []Entry[*LiteralState]{
		{
			Interval: ir.Interval{Start: data.Start, End: addr},
			Value:    &LiteralState{Kind: LiteralData, Section: lit.Section, Exec: lit.Exec, Bytes: lit.Bytes[:off]},
		},
		{
			Interval: ir.Interval{Start: addr, End: end},
			Value:    &LiteralState{Kind: LiteralInstruction, Section: lit.Section, Exec: lit.Exec, Bytes: lit.Bytes[off:cut], Instructions: instrs},
		},
		{
			Interval: ir.Interval{Start: end, End: data.End},
			Value:    &LiteralState{Kind: LiteralData, Section: lit.Section, Exec: lit.Exec, Bytes: lit.Bytes[cut:]},
		},
	}
	for _, p := range parts {
		if p.Interval.Empty() {
			continue
		}
		if err := s.literals.InsertStrict(p.Interval, p.Value); err != nil {
			return ir.Interval{}, nil, fmt.Errorf("mark %s: %w", addr, err)
		}
	}
	return ir.Interval{Start: addr, End: end}, instrs, nil
}

// ClaimSpan records runs as the span owned by the function at entry, one
// navigation entry per run. A new claim by the same entry replaces its old
// one. The claim is all or nothing: on overlap the previous claim stays.
func (s *Space) ClaimSpan(entry ir.Address, runs ...ir.Interval) error {
	old := s.claims[entry]
	s.ReleaseSpan(entry)
	var claimed []ir.Interval
	for _, iv := range runs {
		if err := s.spans.InsertStrict(iv, entry); err != nil {
			for _, c := range claimed {
				s.spans.RemoveOverlapping(c)
			}
			s.restore(entry, old)
			return fmt.Errorf("claim span for %s: %w", entry, err)
		}
		claimed = append(claimed, iv)
	}
	s.claims[entry] = claimed
	return nil
}

func (s *Space) restore(entry ir.Address, runs []ir.Interval) {
	if len(runs) == 0 {
		return
	}
	for _, iv := range runs {
		_ = s.spans.InsertStrict(iv, entry)
	}
	s.claims[entry] = runs
}

// ReleaseSpan drops every run claimed by the function at entry.
func (s *Space) ReleaseSpan(entry ir.Address) {
	for _, iv := range s.claims[entry] {
		s.spans.RemoveOverlapping(iv)
	}
	delete(s.claims, entry)
}

// FunctionAt returns the entry of the function whose span contains a.
func (s *Space) FunctionAt(a ir.Address) (ir.Address, bool) {
	e, err := s.spans.GetAtPoint(a)
	if err != nil {
		return 0, false
	}
	return e.Value, true
}

// SpanOf returns the runs claimed by the function at entry.
func (s *Space) SpanOf(entry ir.Address) ([]ir.Interval, bool) {
	runs, ok := s.claims[entry]
	return runs, ok
}

// Spans returns the navigation index in address order.
func (s *Space) Spans() []Entry[ir.Address] { return s.spans.Entries() }
