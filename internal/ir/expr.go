package ir

import (
	"fmt"
	"strings"
)

// InstructionSize is the bit width of an expression.
type InstructionSize uint8

const (
	SizeBool InstructionSize = 1
	Size8    InstructionSize = 8
	Size16   InstructionSize = 16
	Size32   InstructionSize = 32
	Size64   InstructionSize = 64
)

// Mask returns the value mask for the width.
func (s InstructionSize) Mask() uint64 {
	if s >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << s) - 1
}

// Bytes returns the width in bytes, rounding a boolean up to one byte.
func (s InstructionSize) Bytes() int {
	return (int(s) + 7) / 8
}

// SizeFromBytes converts an operand byte count to a width.
func SizeFromBytes(n int) InstructionSize {
	switch n {
	case 1:
		return Size8
	case 2:
		return Size16
	case 4:
		return Size32
	default:
		return Size64
	}
}

// VariableType is the coarse type recovered for an expression.
type VariableType uint8

const (
	Unknown VariableType = iota
	Integer
	Pointer
	Boolean
)

var variableTypes = [...]string{
	Unknown: "unknown",
	Integer: "int",
	Pointer: "ptr",
	Boolean: "bool",
}

func (t VariableType) String() string {
	if int(t) < len(variableTypes) {
		return variableTypes[t]
	}
	return fmt.Sprintf("VariableType<%d>", t)
}

// Expr is a node of the expression tree.
type Expr interface {
	Width() InstructionSize
	Type() VariableType
	String() string
	expr()
}

func (*Const) expr()  {}
func (*Reg) expr()    {}
func (*Mem) expr()    {}
func (*Unary) expr()  {}
func (*Binary) expr() {}
func (*Func) expr()   {}

// Const is a literal value, masked to its width.
type Const struct {
	Value uint64
	Size  InstructionSize
	Kind  VariableType
}

// NewConst returns a constant masked to size.
func NewConst(value uint64, size InstructionSize) *Const {
	kind := Integer
	if size == SizeBool {
		kind = Boolean
	}
	return &Const{Value: value & size.Mask(), Size: size, Kind: kind}
}

// NewBool returns a boolean constant.
func NewBool(v bool) *Const {
	if v {
		return NewConst(1, SizeBool)
	}
	return NewConst(0, SizeBool)
}

func (c *Const) Width() InstructionSize { return c.Size }
func (c *Const) Type() VariableType     { return c.Kind }

// Signed returns the value sign-extended from its width.
func (c *Const) Signed() int64 {
	return signExtend(c.Value, c.Size)
}

func (c *Const) IsTrue() bool  { return c.Size == SizeBool && c.Value != 0 }
func (c *Const) IsFalse() bool { return c.Size == SizeBool && c.Value == 0 }

func (c *Const) String() string {
	if c.Size == SizeBool {
		if c.Value != 0 {
			return "true"
		}
		return "false"
	}
	if c.Value < 10 {
		return fmt.Sprintf("%d", c.Value)
	}
	return fmt.Sprintf("0x%x", c.Value)
}

// RegClass separates general purpose storage from flags and frame registers.
type RegClass uint8

const (
	RegGeneral RegClass = iota
	RegFlag
	RegStack
	RegPC
)

// Reg is a register reference. Name is the accessed register, Base the full
// width register it aliases.
type Reg struct {
	Name  string
	Base  string
	Size  InstructionSize
	Class RegClass
}

// NewReg returns a register reference.
func NewReg(name, base string, size InstructionSize, class RegClass) *Reg {
	if base == "" {
		base = name
	}
	return &Reg{Name: name, Base: base, Size: size, Class: class}
}

func (r *Reg) Width() InstructionSize { return r.Size }

func (r *Reg) Type() VariableType {
	switch r.Class {
	case RegFlag:
		return Boolean
	case RegStack, RegPC:
		return Pointer
	default:
		return Integer
	}
}

func (r *Reg) String() string { return r.Name }

// Mem is a memory access of Size bits at Addr.
type Mem struct {
	Addr Expr
	Size InstructionSize
}

func NewMem(addr Expr, size InstructionSize) *Mem {
	return &Mem{Addr: addr, Size: size}
}

func (m *Mem) Width() InstructionSize { return m.Size }
func (m *Mem) Type() VariableType     { return Unknown }

func (m *Mem) String() string {
	return "*(" + m.Addr.String() + ")"
}

// UnaryOp is a one operand operation.
type UnaryOp uint8

const (
	Neg UnaryOp = iota
	Not
	LNot
	ZExt
	SExt
	Trunc
)

// Unary applies Op to X. Size is the result width.
type Unary struct {
	Op   UnaryOp
	X    Expr
	Size InstructionSize
}

func (u *Unary) Width() InstructionSize { return u.Size }

func (u *Unary) Type() VariableType {
	if u.Op == LNot {
		return Boolean
	}
	return u.X.Type()
}

func (u *Unary) String() string {
	x := operand(u.X)
	switch u.Op {
	case Neg:
		return "-" + x
	case Not:
		return "~" + x
	case LNot:
		return "!" + x
	case SExt:
		return fmt.Sprintf("(s%d)%s", u.Size, x)
	default:
		return fmt.Sprintf("(u%d)%s", u.Size, x)
	}
}

// BinaryOp is a two operand operation.
type BinaryOp uint8

const (
	arithmeticBegin BinaryOp = iota
	Add
	Sub
	Mul
	And
	Or
	Xor
	Shl
	Shr
	Sar
	arithmeticEnd

	compareBegin
	Eq
	Ne
	Ult
	Ule
	Ugt
	Uge
	Slt
	Sle
	Sgt
	Sge
	compareEnd

	LAnd
	LOr
)

var binaryOps = [...]string{
	Add:  "+",
	Sub:  "-",
	Mul:  "*",
	And:  "&",
	Or:   "|",
	Xor:  "^",
	Shl:  "<<",
	Shr:  ">>",
	Sar:  ">>s",
	Eq:   "==",
	Ne:   "!=",
	Ult:  "<u",
	Ule:  "<=u",
	Ugt:  ">u",
	Uge:  ">=u",
	Slt:  "<",
	Sle:  "<=",
	Sgt:  ">",
	Sge:  ">=",
	LAnd: "&&",
	LOr:  "||",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOps) && binaryOps[op] != "" {
		return binaryOps[op]
	}
	return fmt.Sprintf("BinaryOp<%d>", op)
}

func (op BinaryOp) IsArithmetic() bool { return op > arithmeticBegin && op < arithmeticEnd }
func (op BinaryOp) IsCompare() bool    { return op > compareBegin && op < compareEnd }
func (op BinaryOp) IsLogical() bool    { return op == LAnd || op == LOr }

// Inverse returns the comparison that holds exactly when op does not.
func (op BinaryOp) Inverse() (BinaryOp, bool) {
	switch op {
	case Eq:
		return Ne, true
	case Ne:
		return Eq, true
	case Ult:
		return Uge, true
	case Uge:
		return Ult, true
	case Ule:
		return Ugt, true
	case Ugt:
		return Ule, true
	case Slt:
		return Sge, true
	case Sge:
		return Slt, true
	case Sle:
		return Sgt, true
	case Sgt:
		return Sle, true
	}
	return op, false
}

func (op BinaryOp) commutative() bool {
	switch op {
	case Add, Mul, And, Or, Xor, Eq, Ne, LAnd, LOr:
		return true
	}
	return false
}

// Binary applies Op to X and Y.
type Binary struct {
	Op BinaryOp
	X  Expr
	Y  Expr
}

func (b *Binary) Width() InstructionSize {
	if b.Op.IsCompare() || b.Op.IsLogical() {
		return SizeBool
	}
	return b.X.Width()
}

func (b *Binary) Type() VariableType {
	switch {
	case b.Op.IsCompare() || b.Op.IsLogical():
		return Boolean
	case (b.Op == Add || b.Op == Sub) && (b.X.Type() == Pointer || b.Y.Type() == Pointer):
		return Pointer
	default:
		return Integer
	}
}

func (b *Binary) String() string {
	if c, ok := b.Y.(*Const); ok && b.Op == Add && c.Signed() < 0 && c.Size > SizeBool {
		return fmt.Sprintf("%s - 0x%x", operand(b.X), uint64(-c.Signed()))
	}
	return operand(b.X) + " " + b.Op.String() + " " + operand(b.Y)
}

// Func is an opaque operation the IR does not model structurally, such as a
// flag computation.
type Func struct {
	Name string
	Args []Expr
	Size InstructionSize
}

// Names of the flag intrinsics the oracle emits.
const (
	FuncSBorrow  = "sborrow"
	FuncSCarry   = "scarry"
	FuncCarry    = "carry"
	FuncOverflow = "overflow"
)

func (f *Func) Width() InstructionSize { return f.Size }

func (f *Func) Type() VariableType {
	if f.Size == SizeBool {
		return Boolean
	}
	return Unknown
}

func (f *Func) String() string {
	args := make([]string, len(f.Args))
	for i, a := range f.Args {
		args[i] = a.String()
	}
	return f.Name + "(" + strings.Join(args, ", ") + ")"
}

func operand(e Expr) string {
	if _, ok := e.(*Binary); ok {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func signExtend(v uint64, size InstructionSize) int64 {
	if size >= 64 {
		return int64(v)
	}
	shift := 64 - uint(size)
	return int64(v<<shift) >> shift
}

// AsConst returns e as a constant when it is one.
func AsConst(e Expr) (*Const, bool) {
	c, ok := e.(*Const)
	return c, ok
}

func isConst(e Expr, v uint64) bool {
	c, ok := e.(*Const)
	return ok && c.Value == v
}
