package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouroboros/internal/ast"
	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

var conv = semantics.NewX86(64).Convention()

func reg32(name, base string) *ir.Reg { return ir.NewReg(name, base, ir.Size32, ir.RegGeneral) }

var (
	eax = reg32("eax", "rax")
	ecx = reg32("ecx", "rcx")
	edx = reg32("edx", "rdx")
	edi = reg32("edi", "rdi")
	rbp = ir.NewReg("rbp", "rbp", ir.Size64, ir.RegStack)
	rsp = ir.NewReg("rsp", "rsp", ir.Size64, ir.RegStack)
)

// scoped builds
//
//	*(rbp - 8) = edi
//	if (eax > 0) { ecx = 1; edx = ecx } else { edx = 2 }
//	return eax
func scoped() (*ast.Function, *ast.Block, *ast.Block) {
	local := ir.NewMem(ir.NewBinary(ir.Sub, rbp, ir.NewConst(8, ir.Size64)), ir.Size32)
	then := &ast.Block{Stmts: []ast.Statement{&ast.Basic{Addr: 0x20, Ops: []ir.Operation{
		ir.Assign(ecx, ir.NewConst(1, ir.Size32)),
		ir.Assign(edx, ecx),
	}}}}
	els := &ast.Block{Stmts: []ast.Statement{&ast.Basic{Addr: 0x30, Ops: []ir.Operation{
		ir.Assign(edx, ir.NewConst(2, ir.Size32)),
	}}}}
	fn := &ast.Function{Entry: 0x10, Body: &ast.Block{Stmts: []ast.Statement{
		&ast.Basic{Addr: 0x10, Ops: []ir.Operation{ir.Store(local, edi)}},
		&ast.If{Cond: ir.NewBinary(ir.Sgt, eax, ir.NewConst(0, ir.Size32)), Then: then, Else: els},
		&ast.Return{Result: eax},
	}}}
	return fn, then, els
}

func TestBuildScopeOwnership(t *testing.T) {
	fn, then, els := scoped()
	sc := BuildScope(fn, conv)

	require.Len(t, sc.Sections(), 3)
	root := sc.Section(RootSection)
	thenID, ok := sc.SectionOf(then)
	require.True(t, ok)
	elseID, ok := sc.SectionOf(els)
	require.True(t, ok)
	assert.Equal(t, []SectionID{thenID, elseID}, root.Children)
	assert.Equal(t, RootSection, sc.Section(thenID).Parent)

	tests := []struct {
		slot  Slot
		owner SectionID
		name  string
	}{
		{RegSlot("rcx"), thenID, "var_rcx"},
		{RegSlot("rdx"), RootSection, "arg2"},
		{RegSlot("rdi"), RootSection, "arg0"},
		{RegSlot("rax"), RootSection, "result"},
		{FrameSlot(-8), RootSection, "local_8"},
	}
	for _, tt := range tests {
		t.Run(tt.slot.String(), func(t *testing.T) {
			id, ok := sc.FindOwningSection(tt.slot)
			require.True(t, ok)
			assert.Equal(t, tt.owner, id)
			assert.Equal(t, tt.name, sc.Name(tt.slot))
			require.NotNil(t, sc.GetSymbolMut(id, tt.slot))
		})
	}

	_, ok = sc.FindOwningSection(RegSlot("rbp"))
	assert.False(t, ok, "frame pointer is an address base, not a variable")
	assert.Len(t, sc.Variables(), len(tests))
}

func TestScopeRename(t *testing.T) {
	fn, _, _ := scoped()
	sc := BuildScope(fn, conv)

	assert.True(t, sc.Rename(RegSlot("rcx"), "counter"))
	assert.False(t, sc.Rename(RegSlot("rcx"), "counter"))
	assert.False(t, sc.Rename(RegSlot("r12"), "unused"))

	slot, ok := sc.Lookup("counter")
	require.True(t, ok)
	assert.Equal(t, RegSlot("rcx"), slot)
	_, ok = sc.Lookup("var_rcx")
	assert.False(t, ok)
	assert.Equal(t, "", sc.Name(RegSlot("r12")))
}

func TestBuildScopeEmptyFunction(t *testing.T) {
	sc := BuildScope(&ast.Function{Entry: 0x10, Body: &ast.Block{}}, conv)
	require.Len(t, sc.Sections(), 1)
	assert.Empty(t, sc.Variables())
}

func TestSlotOf(t *testing.T) {
	tests := []struct {
		name string
		in   ir.Expr
		want Slot
		ok   bool
	}{
		{"register", ecx, RegSlot("rcx"), true},
		{"frame local", ir.NewMem(ir.NewBinary(ir.Sub, rbp, ir.NewConst(0x10, ir.Size64)), ir.Size64), FrameSlot(-0x10), true},
		{"frame argument", ir.NewMem(ir.NewBinary(ir.Add, rbp, ir.NewConst(0x10, ir.Size64)), ir.Size64), FrameSlot(0x10), true},
		{"stack top", ir.NewMem(rsp, ir.Size64), StackSlot(0), true},
		{"global", ir.NewMem(ir.NewConst(0x404000, ir.Size64), ir.Size32), Slot{}, false},
		{"flag", ir.NewReg("zf", "zf", ir.SizeBool, ir.RegFlag), Slot{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SlotOf(tt.in, conv)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		slot Slot
		want string
	}{
		{FrameSlot(-0x14), "local_14"},
		{FrameSlot(0x10), "stack_10"},
		{StackSlot(-8), "spill_8"},
		{StackSlot(0x20), "stack_20"},
		{RegSlot("rsi"), "arg1"},
		{RegSlot("rax"), "result"},
		{RegSlot("rbx"), "var_rbx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, defaultName(tt.slot, conv), tt.slot.String())
	}
}
