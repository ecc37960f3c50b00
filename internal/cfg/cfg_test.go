package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouroboros/internal/ir"
	"ouroboros/internal/lift"
	"ouroboros/internal/memory"
	"ouroboros/internal/semantics"
	"ouroboros/internal/symbols"
)

var oracle = semantics.NewX86(64)

func store(t *testing.T, chunks map[ir.Address][]byte) *lift.Store {
	t.Helper()
	s := lift.NewStore(ir.Size64)
	for addr, code := range chunks {
		instrs, err := lift.Decode(code, addr, oracle, 0)
		require.NoError(t, err)
		s.Merge(instrs)
	}
	return s
}

var callerCode = []byte{
	0xbf, 0x05, 0x00, 0x00, 0x00, // mov edi, 5
	0xe8, 0xf6, 0x0f, 0x00, 0x00, // call 0x4000
	0xc3,
}

var calleeCode = []byte{0x8d, 0x47, 0x01, 0xc3}

func addrs(hf *HighFunction, slots []Slot) []ir.Address {
	out := make([]ir.Address, len(slots))
	for i, s := range slots {
		out[i] = hf.Block(s).Addr()
	}
	return out
}

func TestBuildLoop(t *testing.T) {
	s := store(t, map[ir.Address][]byte{0x2000: {
		0x31, 0xc0, 0x39, 0xf8, 0x7d, 0x04, 0xff, 0xc0, 0xeb, 0xf8, 0xc3,
	}})
	hf, err := Build(0x2000, s, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, hf.Blocks.Len())
	assert.Equal(t, []ir.Address{0x2000, 0x2002, 0x200a, 0x2006}, addrs(hf, hf.Blocks.IterFunction()))
	assert.Equal(t, ir.Interval{Start: 0x2000, End: 0x200b}, hf.Span)
	assert.Empty(t, hf.Unresolved)

	head, ok := hf.Blocks.SlotByAddress(0x2002)
	require.True(t, ok)
	assert.Len(t, hf.Block(head).Preds, 2)
	assert.Equal(t, []ir.Address{0x2006, 0x200a}, addrs(hf, hf.Block(head).Succs))
}

func TestBuildStopsAtCalls(t *testing.T) {
	s := store(t, map[ir.Address][]byte{0x3000: callerCode, 0x4000: calleeCode})
	hf, err := Build(0x3000, s, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, hf.Blocks.Len())
	assert.Equal(t, []ir.Address{0x4000}, hf.Calls)
	assert.Equal(t, lift.NextCall, hf.Block(0).Kind())
	assert.Equal(t, ir.Interval{Start: 0x3000, End: 0x300b}, hf.Span)

	table := symbols.NewTable()
	hf.FillGlobalSymbols(table)
	assert.Equal(t, "sub_3000", table.Name(0x3000))
	_, ok := table.Resolve(0x4000)
	assert.True(t, ok)
}

func TestBuildReportsUnresolvedTargets(t *testing.T) {
	// jne 0x1010 followed by ret; the branch target was never lifted.
	s := store(t, map[ir.Address][]byte{0x1000: {0x75, 0x0e, 0xc3}})
	hf, err := Build(0x1000, s, Options{})
	require.NoError(t, err)
	assert.Equal(t, []ir.Address{0x1010}, hf.Unresolved)
	assert.Equal(t, 2, hf.Blocks.Len())
}

func TestBuildHonoursStop(t *testing.T) {
	s := store(t, map[ir.Address][]byte{0x2000: {
		0x31, 0xc0, 0x39, 0xf8, 0x7d, 0x04, 0xff, 0xc0, 0xeb, 0xf8, 0xc3,
	}})
	hf, err := Build(0x2000, s, Options{Stop: func(a ir.Address) bool { return a == 0x200a }})
	require.NoError(t, err)
	assert.Equal(t, 3, hf.Blocks.Len())
	_, ok := hf.Blocks.SlotByAddress(0x200a)
	assert.False(t, ok)
	assert.Empty(t, hf.Unresolved)
}

func TestBuildTailCall(t *testing.T) {
	s := store(t, map[ir.Address][]byte{
		0x5000: {0xe9, 0xfb, 0x0f, 0x00, 0x00}, // jmp 0x6000
		0x6000: {0xc3},
	})
	whole, err := Build(0x5000, s, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, whole.Blocks.Len())

	hf, err := Build(0x5000, s, Options{TailCall: func(_, to ir.Address) bool { return to >= 0x6000 }})
	require.NoError(t, err)
	assert.Equal(t, 1, hf.Blocks.Len())
	assert.Equal(t, []ir.Address{0x6000}, hf.TailCalls)
	assert.Empty(t, hf.Unresolved)
	assert.Equal(t, []ir.Interval{{Start: 0x5000, End: 0x5005}}, hf.Ranges)
}

func TestBuildMissingEntry(t *testing.T) {
	_, err := Build(0x9000, lift.NewStore(ir.Size64), Options{})
	assert.ErrorIs(t, err, ErrNoBlock)
}

func TestTakeIntervalOwnership(t *testing.T) {
	s := store(t, map[ir.Address][]byte{0x3000: callerCode, 0x4000: calleeCode})
	space := memory.NewSpace()

	caller, err := Build(0x3000, s, Options{})
	require.NoError(t, err)
	callee, err := Build(0x4000, s, Options{})
	require.NoError(t, err)

	require.NoError(t, caller.TakeIntervalOwnership(space))
	require.NoError(t, callee.TakeIntervalOwnership(space))
	require.NoError(t, caller.TakeIntervalOwnership(space))

	// A function entered in the middle of the caller overlaps its span.
	inner, err := Build(0x300a, s, Options{})
	require.NoError(t, err)
	err = inner.TakeIntervalOwnership(space)
	assert.ErrorIs(t, err, memory.ErrOverlap)

	spans := space.Spans()
	require.Len(t, spans, 2)
	for i := 1; i < len(spans); i++ {
		assert.False(t, spans[i-1].Interval.Overlaps(spans[i].Interval))
	}
}

func TestInterleavedFunctionsBothClaim(t *testing.T) {
	// a: 1000 jmp 0x1010 ; 1010 ret
	// b: 1008 xor eax, eax ; ret
	s := store(t, map[ir.Address][]byte{
		0x1000: {0xeb, 0x0e},
		0x1008: {0x31, 0xc0, 0xc3},
		0x1010: {0xc3},
	})
	space := memory.NewSpace()

	a, err := Build(0x1000, s, Options{})
	require.NoError(t, err)
	assert.Equal(t, ir.Interval{Start: 0x1000, End: 0x1011}, a.Span)
	assert.Equal(t, []ir.Interval{{Start: 0x1000, End: 0x1002}, {Start: 0x1010, End: 0x1011}}, a.Ranges)
	b, err := Build(0x1008, s, Options{})
	require.NoError(t, err)

	require.NoError(t, a.TakeIntervalOwnership(space))
	require.NoError(t, b.TakeIntervalOwnership(space))
	assert.Len(t, space.Spans(), 3)

	owner, ok := space.FunctionAt(0x1009)
	require.True(t, ok)
	assert.Equal(t, ir.Address(0x1008), owner)
	owner, ok = space.FunctionAt(0x1010)
	require.True(t, ok)
	assert.Equal(t, ir.Address(0x1000), owner)
	_, ok = space.FunctionAt(0x1004)
	assert.False(t, ok)
}
