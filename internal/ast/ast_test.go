package ast

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"ouroboros/internal/ir"
)

var rax = ir.NewReg("rax", "rax", ir.Size64, ir.RegGeneral)

func sample() *Function {
	zf := ir.NewReg("zf", "zf", ir.SizeBool, ir.RegFlag)
	return &Function{Entry: 0x10, Body: &Block{Stmts: []Statement{
		&Basic{Addr: 0x10, Ops: []ir.Operation{ir.Assign(rax, ir.NewConst(0, ir.Size64))}},
		&Loop{Kind: PostTested, Cond: zf, Body: &Block{Stmts: []Statement{
			&Basic{Addr: 0x20},
			&If{Cond: ir.Negate(zf), Then: &Block{Stmts: []Statement{&Break{}}}, Else: &Block{Stmts: []Statement{&Continue{}}}},
		}}},
		&Call{Target: ir.NewConst(0x4000, ir.Size64), Direct: true, Addr: 0x4000, Args: []ir.Expr{rax}},
		&Goto{Target: 0x20},
		&Return{Result: rax},
	}}}
}

func TestDump(t *testing.T) {
	assert.Equal(t, `function 0x10
  0x10:
    rax = 0
  do
    0x20:
    if (!zf)
      break
    else
      continue
  while (zf)
  call 0x4000(rax)
  goto 0x20
  return rax
`, Dump(sample()))
}

func TestDumpLoopKinds(t *testing.T) {
	cond := ir.NewReg("cf", "cf", ir.SizeBool, ir.RegFlag)
	tests := []struct {
		kind LoopKind
		want string
	}{
		{PreTested, "while (cf)\n  return\n"},
		{PostTested, "do\n  return\nwhile (cf)\n"},
		{Endless, "loop\n  return\n"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			l := &Loop{Kind: tt.kind, Cond: cond, Body: &Block{Stmts: []Statement{&Return{}}}}
			assert.Equal(t, tt.want, Dump(l))
		})
	}
}

type recorder struct {
	events []string
	skip   func(Statement) bool
}

func (r *recorder) Enter(s Statement, depth int) bool {
	r.events = append(r.events, fmt.Sprintf("enter %T %d", s, depth))
	return r.skip == nil || !r.skip(s)
}

func (r *recorder) Leave(s Statement, depth int) {
	r.events = append(r.events, fmt.Sprintf("leave %T %d", s, depth))
}

func TestWalkOrder(t *testing.T) {
	fn := &Function{Entry: 0x10, Body: &Block{Stmts: []Statement{
		&If{Cond: rax, Then: &Block{Stmts: []Statement{&Return{}}}},
		&Goto{Target: 0x10},
	}}}
	r := &recorder{}
	Walk(fn, r)
	assert.Equal(t, []string{
		"enter *ast.Function 0",
		"enter *ast.Block 1",
		"enter *ast.If 2",
		"enter *ast.Block 3",
		"enter *ast.Return 4",
		"leave *ast.Return 4",
		"leave *ast.Block 3",
		"leave *ast.If 2",
		"enter *ast.Goto 2",
		"leave *ast.Goto 2",
		"leave *ast.Block 1",
		"leave *ast.Function 0",
	}, r.events)
}

func TestWalkSkipsChildren(t *testing.T) {
	r := &recorder{skip: func(s Statement) bool {
		_, ok := s.(*Loop)
		return ok
	}}
	Walk(sample(), r)
	for _, e := range r.events {
		assert.NotContains(t, e, "Break")
		assert.NotEqual(t, "leave *ast.Loop 2", e)
	}
}

func TestBasics(t *testing.T) {
	assert.Equal(t, []ir.Address{0x10, 0x20}, Basics(sample()))

	var loops int
	Inspect(sample(), func(s Statement) bool {
		if _, ok := s.(*Loop); ok {
			loops++
		}
		return true
	})
	assert.Equal(t, 1, loops)
}

func TestChildren(t *testing.T) {
	then, els := &Block{}, &Block{}
	assert.Equal(t, []Statement{then}, Children(&If{Then: then}))
	assert.Equal(t, []Statement{then, els}, Children(&If{Then: then, Else: els}))
	assert.Nil(t, Children(&Break{}))
	assert.Equal(t, "LoopKind<9>", LoopKind(9).String())
}
