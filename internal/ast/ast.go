// Package ast is the structured program representation produced from a
// function's control-flow graph.
package ast

import (
	"fmt"

	"ouroboros/internal/ir"
)

// Statement is a node of the tree.
type Statement interface {
	stmt()
}

func (*Block) stmt()    {}
func (*If) stmt()       {}
func (*Loop) stmt()     {}
func (*Return) stmt()   {}
func (*Call) stmt()     {}
func (*Function) stmt() {}
func (*Basic) stmt()    {}
func (*Break) stmt()    {}
func (*Continue) stmt() {}
func (*Goto) stmt()     {}

// Block is a sequence of statements. Every Block opens a variable scope
// section.
type Block struct {
	Stmts []Statement
}

func (b *Block) Append(s ...Statement) { b.Stmts = append(b.Stmts, s...) }

// If runs Then when Cond holds and Else otherwise. Else may be nil.
type If struct {
	Cond ir.Expr
	Then *Block
	Else *Block
}

type LoopKind uint8

const (
	// PreTested checks Cond before every iteration.
	PreTested LoopKind = iota
	// PostTested checks Cond after every iteration.
	PostTested
	// Endless loops are left only through Break, Goto or Return.
	Endless
)

var loopKinds = [...]string{PreTested: "pre-tested", PostTested: "post-tested", Endless: "endless"}

func (k LoopKind) String() string {
	if int(k) < len(loopKinds) {
		return loopKinds[k]
	}
	return fmt.Sprintf("LoopKind<%d>", k)
}

// Loop repeats Body. Cond is the condition to keep looping and is nil for
// endless loops.
type Loop struct {
	Kind LoopKind
	Cond ir.Expr
	Body *Block
}

// Return leaves the function. Result is nil for functions with no visible
// return value.
type Return struct {
	Result ir.Expr
}

// Call calls Target with Args. Direct calls carry the callee address.
type Call struct {
	Target ir.Expr
	Direct bool
	Addr   ir.Address
	Args   []ir.Expr
}

// Function is the root of a structured function.
type Function struct {
	Entry ir.Address
	Body  *Block
}

// Basic holds the visible effects of the basic block at Addr.
type Basic struct {
	Addr ir.Address
	Ops  []ir.Operation
}

// Break leaves the innermost loop.
type Break struct{}

// Continue starts the next iteration of the innermost loop.
type Continue struct{}

// Goto transfers control to the block at Target, which is emitted elsewhere
// in the tree.
type Goto struct {
	Target ir.Address
}

// Children returns the direct sub-statements of s in order.
func Children(s Statement) []Statement {
	switch s := s.(type) {
	case *Block:
		return s.Stmts
	case *If:
		if s.Else == nil {
			return []Statement{s.Then}
		}
		return []Statement{s.Then, s.Else}
	case *Loop:
		return []Statement{s.Body}
	case *Function:
		return []Statement{s.Body}
	}
	return nil
}
