package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rax = NewReg("rax", "rax", Size64, RegGeneral)
	eax = NewReg("eax", "rax", Size32, RegGeneral)
	zf  = NewReg("zf", "zf", SizeBool, RegFlag)
)

func c64(v uint64) *Const { return NewConst(v, Size64) }

func TestIntervalOverlaps(t *testing.T) {
	a := Interval{Start: 0x10, End: 0x20}
	tests := []struct {
		name string
		b    Interval
		want bool
	}{
		{"disjoint before", Interval{0x0, 0x10}, false},
		{"disjoint after", Interval{0x20, 0x30}, false},
		{"inside", Interval{0x12, 0x14}, true},
		{"straddles start", Interval{0x8, 0x11}, true},
		{"empty", Interval{0x15, 0x15}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(a))
		})
	}
	assert.Equal(t, Interval{0x8, 0x30}, a.Hull(Interval{0x8, 0x9}).Hull(Interval{0x2f, 0x30}))
	assert.True(t, a.Contains(0x1f))
	assert.False(t, a.Contains(0x20))
	assert.Equal(t, "[0x10, 0x20)", a.String())
}

func TestIntervalUnion(t *testing.T) {
	iv := func(a, b Address) Interval { return Interval{Start: a, End: b} }
	got := Union([]Interval{iv(0x20, 0x28), iv(0x0, 0x8), iv(0x8, 0x10), iv(0x30, 0x30), iv(0x24, 0x2c)})
	assert.Equal(t, []Interval{iv(0x0, 0x10), iv(0x20, 0x2c)}, got)
	assert.Empty(t, Union(nil))
}

func TestNewBinaryFolds(t *testing.T) {
	tests := []struct {
		name string
		got  Expr
		want string
	}{
		{"constants", NewBinary(Add, c64(2), c64(3)), "5"},
		{"add zero", NewBinary(Add, rax, c64(0)), "rax"},
		{"constant moves right", NewBinary(Add, c64(5), rax), "rax + 5"},
		{"chained adds", NewBinary(Add, NewBinary(Add, rax, c64(8)), c64(8)), "rax + 0x10"},
		{"negative offset", NewBinary(Add, rax, c64(^uint64(7))), "rax - 0x8"},
		{"sub self", NewBinary(Sub, rax, rax), "0"},
		{"xor self", NewBinary(Xor, eax, eax), "0"},
		{"and self", NewBinary(And, eax, eax), "eax"},
		{"mul one", NewBinary(Mul, rax, c64(1)), "rax"},
		{"sub then add", NewBinary(Add, NewBinary(Sub, rax, c64(4)), c64(4)), "rax"},
		{"compare self", NewBinary(Eq, rax, rax), "true"},
		{"logical and true", NewBinary(LAnd, zf, NewBool(true)), "zf"},
		{"logical or true", NewBinary(LOr, zf, NewBool(true)), "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got.String())
		})
	}
}

func TestConstantComparisons(t *testing.T) {
	minusOne := NewConst(0xff, Size8)
	one := NewConst(1, Size8)

	slt, ok := AsConst(NewBinary(Slt, minusOne, one))
	require.True(t, ok)
	assert.True(t, slt.IsTrue())

	ult, ok := AsConst(NewBinary(Ult, minusOne, one))
	require.True(t, ok)
	assert.True(t, ult.IsFalse())

	assert.Equal(t, int64(-1), minusOne.Signed())
}

func TestFlagIntrinsics(t *testing.T) {
	tests := []struct {
		name string
		got  Expr
		want string
	}{
		{"sborrow zero", NewFunc(FuncSBorrow, SizeBool, rax, c64(0)), "false"},
		{"sborrow min", NewFunc(FuncSBorrow, SizeBool, NewConst(0x80, Size8), NewConst(1, Size8)), "true"},
		{"sborrow plain", NewFunc(FuncSBorrow, SizeBool, NewConst(5, Size8), NewConst(1, Size8)), "false"},
		{"scarry max", NewFunc(FuncSCarry, SizeBool, NewConst(0x7f, Size8), NewConst(1, Size8)), "true"},
		{"carry wraps", NewFunc(FuncCarry, SizeBool, NewConst(0xff, Size8), NewConst(1, Size8)), "true"},
		{"symbolic", NewFunc(FuncSBorrow, SizeBool, rax, c64(1)), "sborrow(rax, 1)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got.String())
		})
	}
}

func TestUnaryAndCasts(t *testing.T) {
	assert.Equal(t, "rax >= 1", Negate(NewBinary(Slt, rax, c64(1))).String())
	assert.Equal(t, zf, NewUnary(LNot, NewUnary(LNot, zf)))
	assert.Equal(t, eax, NewCast(Trunc, NewCast(ZExt, eax, Size64), Size32))
	assert.Equal(t, "0xffffffffffffffff", NewCast(SExt, NewConst(0xff, Size8), Size64).String())
	assert.Equal(t, "0xff", NewCast(ZExt, NewConst(0xff, Size8), Size64).String())
	assert.Equal(t, "!zf", Negate(zf).String())
	assert.Equal(t, Boolean, Negate(zf).Type())
}

func TestRewriteSubstitutesAndFolds(t *testing.T) {
	e := NewBinary(Eq, NewBinary(Sub, eax, NewConst(0, Size32)), NewConst(0, Size32))
	got := Rewrite(e, func(n Expr) (Expr, bool) {
		if r, ok := n.(*Reg); ok && r.Base == "rax" {
			return NewConst(0, Size32), true
		}
		return nil, false
	})
	c, ok := AsConst(got)
	require.True(t, ok)
	assert.True(t, c.IsTrue())

	regs := Registers(NewBinary(Add, NewMem(NewBinary(Add, rax, c64(8)), Size32), eax))
	require.Len(t, regs, 2)
	assert.Equal(t, "rax", regs[0].Name)
	assert.Equal(t, "eax", regs[1].Name)
}

func TestOperationString(t *testing.T) {
	assert.Equal(t, "eax = 1", Assign(eax, NewConst(1, Size32)).String())
	assert.Equal(t, "*(rax + 8) = 0", Store(NewMem(NewBinary(Add, rax, c64(8)), Size64), c64(0)).String())
	assert.Equal(t, "if (zf) goto 0x1000", CondJump(zf, c64(0x1000)).String())
	assert.True(t, Ret().IsTerminator())
	assert.True(t, Assign(zf, NewBool(true)).WritesFlag())
}
