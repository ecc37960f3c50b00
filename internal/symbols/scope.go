package symbols

import (
	"fmt"
	"sort"

	"ouroboros/internal/ast"
	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

// SlotKind tells where a local variable lives.
type SlotKind uint8

const (
	SlotRegister SlotKind = iota
	// SlotFrame is addressed relative to the frame pointer.
	SlotFrame
	// SlotStack is addressed relative to the stack pointer.
	SlotStack
)

// Slot identifies a local variable within one function.
type Slot struct {
	Kind   SlotKind
	Reg    string
	Offset int64
}

func RegSlot(base string) Slot { return Slot{Kind: SlotRegister, Reg: base} }

func FrameSlot(off int64) Slot { return Slot{Kind: SlotFrame, Offset: off} }

func StackSlot(off int64) Slot { return Slot{Kind: SlotStack, Offset: off} }

func (s Slot) String() string {
	switch s.Kind {
	case SlotFrame:
		return fmt.Sprintf("frame%+d", s.Offset)
	case SlotStack:
		return fmt.Sprintf("sp%+d", s.Offset)
	default:
		return s.Reg
	}
}

func abs(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}

func defaultName(s Slot, conv semantics.Convention) string {
	switch s.Kind {
	case SlotFrame:
		if s.Offset < 0 {
			return fmt.Sprintf("local_%x", abs(s.Offset))
		}
		return fmt.Sprintf("stack_%x", s.Offset)
	case SlotStack:
		if s.Offset < 0 {
			return fmt.Sprintf("spill_%x", abs(s.Offset))
		}
		return fmt.Sprintf("stack_%x", s.Offset)
	}
	if i, ok := conv.IsParam(s.Reg); ok {
		return fmt.Sprintf("arg%d", i)
	}
	if conv.Return != nil && conv.Return.Base == s.Reg {
		return "result"
	}
	return "var_" + s.Reg
}

// VariableDefinition is a local variable owned by one scope section.
type VariableDefinition struct {
	Slot Slot
	Name string
	Type ir.VariableType
	Size ir.InstructionSize
}

// SectionID is a handle to a scope section. The function body is RootSection.
type SectionID int

const (
	RootSection SectionID = 0
	noSection   SectionID = -1
)

// Section is one lexical region of a function: its body, an If branch or a
// Loop body.
type Section struct {
	ID       SectionID
	Parent   SectionID
	Children []SectionID
	Vars     map[Slot]*VariableDefinition
}

// Scope is the variable scope tree of one function.
type Scope struct {
	Entry    ir.Address
	sections []*Section
	owner    map[Slot]SectionID
	blocks   map[*ast.Block]SectionID
}

// Section returns the section behind id.
func (sc *Scope) Section(id SectionID) *Section { return sc.sections[id] }

func (sc *Scope) Sections() []*Section { return sc.sections }

// SectionOf returns the section opened by an AST block.
func (sc *Scope) SectionOf(b *ast.Block) (SectionID, bool) {
	id, ok := sc.blocks[b]
	return id, ok
}

// FindOwningSection returns the section that defines slot.
func (sc *Scope) FindOwningSection(slot Slot) (SectionID, bool) {
	id, ok := sc.owner[slot]
	return id, ok
}

// GetSymbolMut returns the definition of slot in section, or nil.
func (sc *Scope) GetSymbolMut(section SectionID, slot Slot) *VariableDefinition {
	if section < 0 || int(section) >= len(sc.sections) {
		return nil
	}
	return sc.sections[section].Vars[slot]
}

// Rename sets the display name of slot and reports whether it changed.
func (sc *Scope) Rename(slot Slot, name string) bool {
	id, ok := sc.FindOwningSection(slot)
	if !ok {
		return false
	}
	v := sc.GetSymbolMut(id, slot)
	if v == nil || name == "" || v.Name == name {
		return false
	}
	v.Name = name
	return true
}

// Name returns the display name of slot, or "" when the function never uses
// it.
func (sc *Scope) Name(slot Slot) string {
	id, ok := sc.owner[slot]
	if !ok {
		return ""
	}
	return sc.sections[id].Vars[slot].Name
}

// Lookup finds a variable by display name.
func (sc *Scope) Lookup(name string) (Slot, bool) {
	for _, v := range sc.Variables() {
		if v.Name == name {
			return v.Slot, true
		}
	}
	return Slot{}, false
}

// Variables returns every definition ordered by section, then slot.
func (sc *Scope) Variables() []*VariableDefinition {
	var out []*VariableDefinition
	for _, sec := range sc.sections {
		vars := make([]*VariableDefinition, 0, len(sec.Vars))
		for _, v := range sec.Vars {
			vars = append(vars, v)
		}
		sort.Slice(vars, func(i, j int) bool { return vars[i].Slot.String() < vars[j].Slot.String() })
		out = append(out, vars...)
	}
	return out
}

// SlotOf maps an expression to the local slot it denotes: a general purpose
// register, or a memory access relative to the frame or stack pointer.
func SlotOf(e ir.Expr, conv semantics.Convention) (Slot, bool) {
	switch e := e.(type) {
	case *ir.Reg:
		if e.Class == ir.RegGeneral {
			return RegSlot(e.Base), true
		}
	case *ir.Mem:
		base, off, ok := stackAddress(e.Addr)
		if !ok {
			break
		}
		switch base {
		case conv.FramePointer:
			return FrameSlot(off), true
		case conv.StackPointer:
			return StackSlot(off), true
		}
	}
	return Slot{}, false
}

func stackAddress(e ir.Expr) (string, int64, bool) {
	switch e := e.(type) {
	case *ir.Reg:
		if e.Class == ir.RegStack {
			return e.Base, 0, true
		}
	case *ir.Binary:
		r, ok := e.X.(*ir.Reg)
		c, cok := e.Y.(*ir.Const)
		if !ok || !cok || r.Class != ir.RegStack {
			break
		}
		switch e.Op {
		case ir.Add:
			return r.Base, c.Signed(), true
		case ir.Sub:
			return r.Base, -c.Signed(), true
		}
	}
	return "", 0, false
}

type occurrence struct {
	sections []SectionID
	typ      ir.VariableType
	size     ir.InstructionSize
}

type scopeBuilder struct {
	sc    *Scope
	conv  semantics.Convention
	stack []SectionID
	seen  map[Slot]*occurrence
	order []Slot
}

func (b *scopeBuilder) current() SectionID {
	if len(b.stack) == 0 {
		return RootSection
	}
	return b.stack[len(b.stack)-1]
}

func (b *scopeBuilder) use(e ir.Expr) {
	ir.Walk(e, func(n ir.Expr) bool {
		slot, ok := SlotOf(n, b.conv)
		if !ok {
			return true
		}
		occ, ok := b.seen[slot]
		if !ok {
			occ = &occurrence{typ: n.Type(), size: n.Width()}
			b.seen[slot] = occ
			b.order = append(b.order, slot)
		}
		if occ.typ == ir.Unknown {
			occ.typ = n.Type()
		}
		occ.size = max(occ.size, n.Width())
		occ.sections = append(occ.sections, b.current())
		// A frame slot's address register is not a use of that register.
		_, isMem := n.(*ir.Mem)
		return !isMem
	})
}

func (b *scopeBuilder) Enter(s ast.Statement, _ int) bool {
	switch s := s.(type) {
	case *ast.Block:
		id := SectionID(len(b.sc.sections))
		parent := noSection
		if len(b.stack) > 0 {
			parent = b.current()
			b.sc.sections[parent].Children = append(b.sc.sections[parent].Children, id)
		}
		b.sc.sections = append(b.sc.sections, &Section{ID: id, Parent: parent, Vars: map[Slot]*VariableDefinition{}})
		b.sc.blocks[s] = id
		b.stack = append(b.stack, id)
	case *ast.Basic:
		for _, op := range s.Ops {
			b.use(op.Dest)
			b.use(op.Src)
			b.use(op.Cond)
			b.use(op.Target)
		}
	case *ast.If:
		b.use(s.Cond)
	case *ast.Loop:
		b.use(s.Cond)
	case *ast.Return:
		b.use(s.Result)
	case *ast.Call:
		if !s.Direct {
			b.use(s.Target)
		}
		for _, a := range s.Args {
			b.use(a)
		}
	}
	return true
}

func (b *scopeBuilder) Leave(s ast.Statement, _ int) {
	if _, ok := s.(*ast.Block); ok {
		b.stack = b.stack[:len(b.stack)-1]
	}
}

func (sc *Scope) depth(id SectionID) int {
	d := 0
	for id != RootSection && id != noSection {
		id = sc.sections[id].Parent
		d++
	}
	return d
}

// commonAncestor returns the deepest section enclosing both a and b.
func (sc *Scope) commonAncestor(a, b SectionID) SectionID {
	da, db := sc.depth(a), sc.depth(b)
	for da > db {
		a = sc.sections[a].Parent
		da--
	}
	for db > da {
		b = sc.sections[b].Parent
		db--
	}
	for a != b {
		a, b = sc.sections[a].Parent, sc.sections[b].Parent
	}
	return a
}

// BuildScope collects every local slot used in fn and places each variable in
// the deepest section that encloses all of its uses.
func BuildScope(fn *ast.Function, conv semantics.Convention) *Scope {
	sc := &Scope{Entry: fn.Entry, owner: map[Slot]SectionID{}, blocks: map[*ast.Block]SectionID{}}
	b := &scopeBuilder{sc: sc, conv: conv, seen: map[Slot]*occurrence{}}
	ast.Walk(fn, b)
	if len(sc.sections) == 0 {
		sc.sections = append(sc.sections, &Section{ID: RootSection, Parent: noSection, Vars: map[Slot]*VariableDefinition{}})
	}

	for _, slot := range b.order {
		occ := b.seen[slot]
		owner := occ.sections[0]
		for _, s := range occ.sections[1:] {
			owner = sc.commonAncestor(owner, s)
		}
		sc.owner[slot] = owner
		sc.sections[owner].Vars[slot] = &VariableDefinition{
			Slot: slot,
			Name: defaultName(slot, conv),
			Type: occ.typ,
			Size: occ.size,
		}
	}
	return sc
}
