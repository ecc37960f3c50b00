package lift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
)

var (
	ifCode = []byte{
		0x83, 0xff, 0x00, // cmp edi, 0
		0x7e, 0x07, // jle 0x100c
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov eax, 1
		0xeb, 0x05, // jmp 0x1011
		0xb8, 0x02, 0x00, 0x00, 0x00, // mov eax, 2
		0xc3, // ret
	}
	loopCode = []byte{
		0x31, 0xc0, // xor eax, eax
		0x39, 0xf8, // cmp eax, edi
		0x7d, 0x04, // jge 0x200a
		0xff, 0xc0, // inc eax
		0xeb, 0xf8, // jmp 0x2002
		0xc3, // ret
	}
)

func lifted(t *testing.T, code []byte, start ir.Address) *Store {
	t.Helper()
	instrs, err := Decode(code, start, semantics.NewX86(64), 0)
	require.NoError(t, err)
	s := NewStore(ir.Size64)
	s.Merge(instrs)
	return s
}

func TestDecodeStops(t *testing.T) {
	oracle := semantics.NewX86(64)
	tests := []struct {
		name  string
		code  []byte
		limit int
		count int
		end   ir.Address
	}{
		{"forward jump keeps going", ifCode, 0, 6, 0x1012},
		{"return ends", append([]byte{0x31, 0xc0, 0xc3}, 0xcc, 0xcc), 0, 2, 0x1003},
		{"limit", ifCode, 2, 2, 0x1005},
		{"exhausted", []byte{0x90, 0x90}, 0, 2, 0x1002},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			instrs, err := Decode(tt.code, 0x1000, oracle, tt.limit)
			require.NoError(t, err)
			require.Len(t, instrs, tt.count)
			assert.Equal(t, tt.end, instrs[len(instrs)-1].Next)
		})
	}
}

func TestDecodeFailureYieldsNothing(t *testing.T) {
	instrs, err := Decode([]byte{0x31, 0xc0, 0xb8, 0x01}, 0x1000, semantics.NewX86(64), 0)
	assert.Nil(t, instrs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)
	assert.ErrorIs(t, err, semantics.ErrInvalid)

	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, ir.Address(0x1002), de.Addr)
}

func TestStoreBlocks(t *testing.T) {
	s := lifted(t, ifCode, 0x1000)
	assert.Equal(t, 6, s.Len())

	var starts []ir.Address
	for _, b := range s.Blocks() {
		starts = append(starts, b.Addr)
	}
	assert.Equal(t, []ir.Address{0x1000, 0x1005, 0x100c, 0x1011}, starts)

	entry, ok := s.GetByAddress(0x1000)
	require.True(t, ok)
	assert.True(t, entry.Next.Conditional())
	assert.Equal(t, Concrete(0x100c), entry.Next.Destination)
	assert.Equal(t, ir.Address(0x1005), entry.Next.Fallthrough)
	assert.Equal(t, "(edi == 0) || ((edi < 0) != false)", entry.Next.Cond.String())

	then, ok := s.BlockAt(0x1007)
	require.True(t, ok)
	assert.Equal(t, ir.Address(0x1005), then.Addr)
	assert.Equal(t, NextBranch, then.Next.Kind)
	assert.Nil(t, then.Next.Cond)
	assert.Equal(t, "1", then.Registers["rax"].String())

	merge, ok := s.GetByAddress(0x100c)
	require.True(t, ok)
	assert.Equal(t, NextFallthrough, merge.Next.Kind)
	assert.Equal(t, ir.Address(0x1011), merge.Next.Fallthrough)

	ret, ok := s.GetByAddress(0x1011)
	require.True(t, ok)
	assert.Equal(t, NextReturn, ret.Next.Kind)

	_, ok = s.GetByAddress(0x1003)
	assert.False(t, ok)
}

func TestStoreSubstitutesRegisters(t *testing.T) {
	s := lifted(t, loopCode, 0x2000)

	head, ok := s.GetByAddress(0x2002)
	require.True(t, ok)
	assert.Equal(t, "((eax - edi) < 0) == sborrow(eax, edi)", head.Next.Cond.String())

	body, ok := s.GetByAddress(0x2006)
	require.True(t, ok)
	assert.Equal(t, "(u64)(eax + 1)", body.Registers["rax"].String())
	assert.Equal(t, Concrete(0x2002), body.Next.Destination)

	init, ok := s.GetByAddress(0x2000)
	require.True(t, ok)
	assert.Equal(t, "0", init.Registers["rax"].String())
	assert.Equal(t, "true", init.Registers["zf"].String())
}

func TestStoreMergeKeepsEarlierCode(t *testing.T) {
	s := lifted(t, ifCode, 0x1000)
	callee, err := Decode([]byte{0x8d, 0x47, 0x01, 0xc3}, 0x4000, semantics.NewX86(64), 0)
	require.NoError(t, err)
	s.Merge(callee)

	assert.Equal(t, 8, s.Len())
	assert.Len(t, s.Blocks(), 5)
	b, ok := s.GetByAddress(0x4000)
	require.True(t, ok)
	assert.Equal(t, NextReturn, b.Next.Kind)
	assert.Equal(t, "(u64)(u32)(rdi + 1)", b.Registers["rax"].String())
}

func TestCallBlock(t *testing.T) {
	s := lifted(t, []byte{
		0xbf, 0x05, 0x00, 0x00, 0x00, // mov edi, 5
		0xe8, 0xf6, 0x0f, 0x00, 0x00, // call 0x4000
		0xc3,
	}, 0x3000)
	b, ok := s.GetByAddress(0x3000)
	require.True(t, ok)
	assert.Equal(t, NextCall, b.Next.Kind)
	assert.Equal(t, Concrete(0x4000), b.Next.Destination)
	assert.Equal(t, ir.Address(0x300a), b.Next.ReturnSite)
	assert.Equal(t, "5", b.Registers["rdi"].String())
	assert.Equal(t, "call 0x4000 then 0x300a", b.Next.String())
}

func TestStoreOpaqueFlagsReachBranch(t *testing.T) {
	s := lifted(t, []byte{
		0x39, 0xf8, // cmp eax, edi
		0x0f, 0xba, 0xe0, 0x03, // bt eax, 3
		0x72, 0x01, // jc 0x3009
		0xc3, // ret
		0xc3, // ret
	}, 0x3000)
	b, ok := s.GetByAddress(0x3000)
	require.True(t, ok)
	require.True(t, b.Next.Conditional())
	assert.Equal(t, Concrete(0x3009), b.Next.Destination)
	assert.Equal(t, "bt_cf(eax, 3)", b.Next.Cond.String())
	assert.False(t, b.Writes("rax"))
}
