package semantics

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"ouroboros/internal/ir"
)

type regInfo struct {
	base  string
	size  ir.InstructionSize
	class ir.RegClass
}

var x86Bases = [...]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

var x86Regs = map[x86asm.Reg]regInfo{}

func init() {
	groups := []struct {
		size ir.InstructionSize
		regs []x86asm.Reg
	}{
		{ir.Size8, []x86asm.Reg{
			x86asm.AL, x86asm.CL, x86asm.DL, x86asm.BL, x86asm.SPB, x86asm.BPB, x86asm.SIB, x86asm.DIB,
			x86asm.R8B, x86asm.R9B, x86asm.R10B, x86asm.R11B, x86asm.R12B, x86asm.R13B, x86asm.R14B, x86asm.R15B,
		}},
		{ir.Size16, []x86asm.Reg{
			x86asm.AX, x86asm.CX, x86asm.DX, x86asm.BX, x86asm.SP, x86asm.BP, x86asm.SI, x86asm.DI,
			x86asm.R8W, x86asm.R9W, x86asm.R10W, x86asm.R11W, x86asm.R12W, x86asm.R13W, x86asm.R14W, x86asm.R15W,
		}},
		{ir.Size32, []x86asm.Reg{
			x86asm.EAX, x86asm.ECX, x86asm.EDX, x86asm.EBX, x86asm.ESP, x86asm.EBP, x86asm.ESI, x86asm.EDI,
			x86asm.R8L, x86asm.R9L, x86asm.R10L, x86asm.R11L, x86asm.R12L, x86asm.R13L, x86asm.R14L, x86asm.R15L,
		}},
		{ir.Size64, []x86asm.Reg{
			x86asm.RAX, x86asm.RCX, x86asm.RDX, x86asm.RBX, x86asm.RSP, x86asm.RBP, x86asm.RSI, x86asm.RDI,
			x86asm.R8, x86asm.R9, x86asm.R10, x86asm.R11, x86asm.R12, x86asm.R13, x86asm.R14, x86asm.R15,
		}},
	}
	for _, g := range groups {
		for i, r := range g.regs {
			class := ir.RegGeneral
			if x86Bases[i] == "rsp" || x86Bases[i] == "rbp" {
				class = ir.RegStack
			}
			x86Regs[r] = regInfo{base: x86Bases[i], size: g.size, class: class}
		}
	}
	// The high byte registers do not alias the low byte in this model.
	for _, r := range []x86asm.Reg{x86asm.AH, x86asm.CH, x86asm.DH, x86asm.BH} {
		name := strings.ToLower(r.String())
		x86Regs[r] = regInfo{base: name, size: ir.Size8, class: ir.RegGeneral}
	}
	x86Regs[x86asm.EIP] = regInfo{base: "rip", size: ir.Size32, class: ir.RegPC}
	x86Regs[x86asm.RIP] = regInfo{base: "rip", size: ir.Size64, class: ir.RegPC}
}

type condCode uint8

const (
	ccE condCode = iota
	ccNE
	ccB
	ccAE
	ccBE
	ccA
	ccL
	ccGE
	ccLE
	ccG
	ccS
	ccNS
	ccO
	ccNO
	ccP
	ccNP
)

var jccs = map[x86asm.Op]condCode{
	x86asm.JE: ccE, x86asm.JNE: ccNE, x86asm.JB: ccB, x86asm.JAE: ccAE,
	x86asm.JBE: ccBE, x86asm.JA: ccA, x86asm.JL: ccL, x86asm.JGE: ccGE,
	x86asm.JLE: ccLE, x86asm.JG: ccG, x86asm.JS: ccS, x86asm.JNS: ccNS,
	x86asm.JO: ccO, x86asm.JNO: ccNO, x86asm.JP: ccP, x86asm.JNP: ccNP,
}

var setccs = map[x86asm.Op]condCode{
	x86asm.SETE: ccE, x86asm.SETNE: ccNE, x86asm.SETB: ccB, x86asm.SETAE: ccAE,
	x86asm.SETBE: ccBE, x86asm.SETA: ccA, x86asm.SETL: ccL, x86asm.SETGE: ccGE,
	x86asm.SETLE: ccLE, x86asm.SETG: ccG, x86asm.SETS: ccS, x86asm.SETNS: ccNS,
	x86asm.SETO: ccO, x86asm.SETNO: ccNO, x86asm.SETP: ccP, x86asm.SETNP: ccNP,
}

var cmovs = map[x86asm.Op]condCode{
	x86asm.CMOVE: ccE, x86asm.CMOVNE: ccNE, x86asm.CMOVB: ccB, x86asm.CMOVAE: ccAE,
	x86asm.CMOVBE: ccBE, x86asm.CMOVA: ccA, x86asm.CMOVL: ccL, x86asm.CMOVGE: ccGE,
	x86asm.CMOVLE: ccLE, x86asm.CMOVG: ccG, x86asm.CMOVS: ccS, x86asm.CMOVNS: ccNS,
	x86asm.CMOVO: ccO, x86asm.CMOVNO: ccNO, x86asm.CMOVP: ccP, x86asm.CMOVNP: ccNP,
}

// X86 is the oracle for 32 and 64-bit x86, backed by x86asm.
type X86 struct {
	mode int
	word ir.InstructionSize
}

// NewX86 returns an oracle decoding in the given processor mode (32 or 64).
func NewX86(mode int) *X86 {
	return &X86{mode: mode, word: ir.InstructionSize(mode)}
}

func (o *X86) Arch() string {
	if o.mode == 32 {
		return ArchX86
	}
	return ArchX86_64
}

// Convention returns the System V calling convention in 64-bit mode. 32-bit
// code passes arguments on the stack, so it has no parameter registers.
func (o *X86) Convention() Convention {
	c := Convention{StackPointer: "rsp", FramePointer: "rbp", WordSize: o.word}
	if o.mode == 64 {
		c.Return = o.gpr(x86asm.RAX)
		for _, r := range []x86asm.Reg{x86asm.RDI, x86asm.RSI, x86asm.RDX, x86asm.RCX, x86asm.R8, x86asm.R9} {
			c.Params = append(c.Params, o.gpr(r))
		}
		return c
	}
	c.Return = o.gpr(x86asm.EAX)
	return c
}

func (o *X86) gpr(r x86asm.Reg) *ir.Reg {
	name := strings.ToLower(r.String())
	info, ok := x86Regs[r]
	if !ok {
		return ir.NewReg(name, name, o.word, ir.RegGeneral)
	}
	return ir.NewReg(name, info.base, info.size, info.class)
}

// Decode decodes the instruction at the start of code.
func (o *X86) Decode(code []byte, addr ir.Address) (Instruction, error) {
	inst, err := x86asm.Decode(code, o.mode)
	if err != nil {
		return Instruction{}, fmt.Errorf("%w at %s: %v", ErrInvalid, addr, err)
	}
	next := addr + ir.Address(inst.Len)
	out := Instruction{
		Addr:  addr,
		Next:  next,
		Len:   inst.Len,
		Bytes: append([]byte(nil), code[:inst.Len]...),
		Text:  x86asm.IntelSyntax(inst, uint64(addr), nil),
	}
	l := &x86Lifter{o: o, inst: inst, next: next, text: out.Text}
	l.lift(&out)
	out.Ops = l.ops
	return out, nil
}

type x86Lifter struct {
	o    *X86
	inst x86asm.Inst
	next ir.Address
	text string
	ops  []ir.Operation
}

func (l *x86Lifter) emit(ops ...ir.Operation) {
	l.ops = append(l.ops, ops...)
}

func (l *x86Lifter) flag(name string) *ir.Reg {
	return ir.NewReg(name, name, ir.SizeBool, ir.RegFlag)
}

func (l *x86Lifter) sp() *ir.Reg {
	if l.o.mode == 64 {
		return l.o.gpr(x86asm.RSP)
	}
	return l.o.gpr(x86asm.ESP)
}

func (l *x86Lifter) fp() *ir.Reg {
	if l.o.mode == 64 {
		return l.o.gpr(x86asm.RBP)
	}
	return l.o.gpr(x86asm.EBP)
}

func (l *x86Lifter) sized(size ir.InstructionSize, regs [4]x86asm.Reg) *ir.Reg {
	switch size {
	case ir.Size8:
		return l.o.gpr(regs[0])
	case ir.Size16:
		return l.o.gpr(regs[1])
	case ir.Size32:
		return l.o.gpr(regs[2])
	}
	return l.o.gpr(regs[3])
}

var (
	accumulator = [4]x86asm.Reg{x86asm.AL, x86asm.AX, x86asm.EAX, x86asm.RAX}
	dataReg     = [4]x86asm.Reg{x86asm.DL, x86asm.DX, x86asm.EDX, x86asm.RDX}
	counterReg  = [4]x86asm.Reg{x86asm.CL, x86asm.CX, x86asm.ECX, x86asm.RCX}
)

func (l *x86Lifter) argSize(a x86asm.Arg) ir.InstructionSize {
	switch a := a.(type) {
	case x86asm.Reg:
		return l.o.gpr(a).Size
	case x86asm.Mem:
		if l.inst.MemBytes > 0 {
			return ir.SizeFromBytes(l.inst.MemBytes)
		}
	}
	if l.inst.DataSize > 0 {
		return ir.InstructionSize(l.inst.DataSize)
	}
	return l.o.word
}

func (l *x86Lifter) widen(e ir.Expr, size ir.InstructionSize) ir.Expr {
	switch {
	case e.Width() < size:
		return ir.NewCast(ir.ZExt, e, size)
	case e.Width() > size:
		return ir.NewCast(ir.Trunc, e, size)
	}
	return e
}

// displacement sign-extends a disp32, which x86asm reports zero-extended.
func displacement(d int64) int64 {
	if d >= 0 && d <= math.MaxUint32 {
		return int64(int32(d))
	}
	return d
}

func (l *x86Lifter) address(m x86asm.Mem) ir.Expr {
	word := l.o.word
	if m.Base == x86asm.RIP || m.Base == x86asm.EIP {
		return ir.NewConst(uint64(int64(l.next)+displacement(m.Disp)), word)
	}
	var e ir.Expr
	if m.Base != 0 {
		e = l.widen(l.o.gpr(m.Base), word)
	}
	if m.Index != 0 {
		scaled := ir.NewBinary(ir.Mul, l.widen(l.o.gpr(m.Index), word), ir.NewConst(uint64(m.Scale), word))
		if e == nil {
			e = scaled
		} else {
			e = ir.NewBinary(ir.Add, e, scaled)
		}
	}
	disp := ir.NewConst(uint64(displacement(m.Disp)), word)
	if e == nil {
		e = disp
	} else {
		e = ir.NewBinary(ir.Add, e, disp)
	}
	if m.Segment == x86asm.FS || m.Segment == x86asm.GS {
		seg := ir.NewFunc(strings.ToLower(m.Segment.String())+"base", word)
		e = ir.NewBinary(ir.Add, seg, e)
	}
	return e
}

func (l *x86Lifter) read(a x86asm.Arg, size ir.InstructionSize) ir.Expr {
	switch a := a.(type) {
	case x86asm.Reg:
		return l.o.gpr(a)
	case x86asm.Mem:
		return ir.NewMem(l.address(a), l.argSize(a))
	case x86asm.Imm:
		return ir.NewConst(uint64(a), size)
	case x86asm.Rel:
		return ir.NewConst(uint64(int64(l.next)+int64(a)), l.o.word)
	}
	return ir.NewConst(0, size)
}

func (l *x86Lifter) write(a x86asm.Arg, v ir.Expr) ir.Operation {
	switch a := a.(type) {
	case x86asm.Reg:
		return ir.Assign(l.o.gpr(a), v)
	case x86asm.Mem:
		return ir.Store(ir.NewMem(l.address(a), l.argSize(a)), v)
	}
	return ir.Intrinsic(l.text)
}

func (l *x86Lifter) target(a x86asm.Arg) (ir.Address, bool) {
	if rel, ok := a.(x86asm.Rel); ok {
		return ir.Address(int64(l.next) + int64(rel)), true
	}
	return 0, false
}

// Flags are emitted before the destination write so they observe the
// operands' original values.
func (l *x86Lifter) resultFlags(res ir.Expr) {
	zero := ir.NewConst(0, res.Width())
	l.emit(
		ir.Assign(l.flag("zf"), ir.NewBinary(ir.Eq, res, zero)),
		ir.Assign(l.flag("sf"), ir.NewBinary(ir.Slt, res, zero)),
	)
}

func (l *x86Lifter) subFlags(x, y, res ir.Expr) {
	l.resultFlags(res)
	l.emit(
		ir.Assign(l.flag("cf"), ir.NewBinary(ir.Ult, x, y)),
		ir.Assign(l.flag("of"), ir.NewFunc(ir.FuncSBorrow, ir.SizeBool, x, y)),
	)
}

func (l *x86Lifter) addFlags(x, y, res ir.Expr) {
	l.resultFlags(res)
	l.emit(
		ir.Assign(l.flag("cf"), ir.NewFunc(ir.FuncCarry, ir.SizeBool, x, y)),
		ir.Assign(l.flag("of"), ir.NewFunc(ir.FuncSCarry, ir.SizeBool, x, y)),
	)
}

func (l *x86Lifter) logicFlags(res ir.Expr) {
	l.resultFlags(res)
	l.emit(
		ir.Assign(l.flag("cf"), ir.NewBool(false)),
		ir.Assign(l.flag("of"), ir.NewBool(false)),
	)
}

func (l *x86Lifter) condition(c condCode) ir.Expr {
	zf, sf, cf, of := l.flag("zf"), l.flag("sf"), l.flag("cf"), l.flag("of")
	less := ir.NewBinary(ir.Ne, sf, of)
	switch c {
	case ccE:
		return zf
	case ccNE:
		return ir.Negate(zf)
	case ccB:
		return cf
	case ccAE:
		return ir.Negate(cf)
	case ccBE:
		return ir.NewBinary(ir.LOr, cf, zf)
	case ccA:
		return ir.NewBinary(ir.LAnd, ir.Negate(cf), ir.Negate(zf))
	case ccL:
		return less
	case ccGE:
		return ir.NewBinary(ir.Eq, sf, of)
	case ccLE:
		return ir.NewBinary(ir.LOr, zf, less)
	case ccG:
		return ir.NewBinary(ir.LAnd, ir.Negate(zf), ir.NewBinary(ir.Eq, sf, of))
	case ccS:
		return sf
	case ccNS:
		return ir.Negate(sf)
	case ccO:
		return of
	case ccNO:
		return ir.Negate(of)
	case ccP:
		return l.flag("pf")
	default:
		return ir.Negate(l.flag("pf"))
	}
}

func (l *x86Lifter) lift(out *Instruction) {
	in := l.inst
	a0, a1, a2 := in.Args[0], in.Args[1], in.Args[2]
	word := l.o.word
	mnemonic := strings.ToLower(in.Op.String())

	if c, ok := jccs[in.Op]; ok {
		t, _ := l.target(a0)
		out.Flow, out.Target, out.HasTarget = FlowBranch, t, true
		l.emit(ir.CondJump(l.condition(c), ir.NewConst(uint64(t), word)))
		return
	}
	if c, ok := setccs[in.Op]; ok {
		l.emit(l.write(a0, ir.NewCast(ir.ZExt, l.condition(c), ir.Size8)))
		return
	}
	if c, ok := cmovs[in.Op]; ok {
		s := l.argSize(a0)
		sel := ir.NewFunc("select", s, l.condition(c), l.read(a1, s), l.read(a0, s))
		l.emit(l.write(a0, sel))
		return
	}

	switch in.Op {
	case x86asm.NOP:

	case x86asm.MOV:
		s := l.argSize(a0)
		l.emit(l.write(a0, l.widen(l.read(a1, s), s)))

	case x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD:
		s := l.argSize(a0)
		op := ir.SExt
		if in.Op == x86asm.MOVZX {
			op = ir.ZExt
		}
		l.emit(l.write(a0, ir.NewCast(op, l.read(a1, s), s)))

	case x86asm.LEA:
		if m, ok := a1.(x86asm.Mem); ok {
			l.emit(l.write(a0, l.widen(l.address(m), l.argSize(a0))))
		}

	case x86asm.ADD, x86asm.SUB, x86asm.CMP, x86asm.AND, x86asm.TEST, x86asm.OR, x86asm.XOR:
		s := l.argSize(a0)
		x, y := l.read(a0, s), l.widen(l.read(a1, s), s)
		switch in.Op {
		case x86asm.ADD:
			res := ir.NewBinary(ir.Add, x, y)
			l.addFlags(x, y, res)
			l.emit(l.write(a0, res))
		case x86asm.SUB, x86asm.CMP:
			res := ir.NewBinary(ir.Sub, x, y)
			l.subFlags(x, y, res)
			if in.Op == x86asm.SUB {
				l.emit(l.write(a0, res))
			}
		default:
			op := ir.And
			switch in.Op {
			case x86asm.OR:
				op = ir.Or
			case x86asm.XOR:
				op = ir.Xor
			}
			res := ir.NewBinary(op, x, y)
			l.logicFlags(res)
			if in.Op != x86asm.TEST {
				l.emit(l.write(a0, res))
			}
		}

	case x86asm.INC, x86asm.DEC:
		s := l.argSize(a0)
		op := ir.Add
		if in.Op == x86asm.DEC {
			op = ir.Sub
		}
		res := ir.NewBinary(op, l.read(a0, s), ir.NewConst(1, s))
		l.resultFlags(res)
		l.emit(
			ir.Assign(l.flag("of"), ir.NewFunc(ir.FuncOverflow, ir.SizeBool, res)),
			l.write(a0, res),
		)

	case x86asm.NEG:
		s := l.argSize(a0)
		x := l.read(a0, s)
		res := ir.NewUnary(ir.Neg, x)
		l.resultFlags(res)
		l.emit(
			ir.Assign(l.flag("cf"), ir.NewBinary(ir.Ne, x, ir.NewConst(0, s))),
			ir.Assign(l.flag("of"), ir.NewFunc(ir.FuncOverflow, ir.SizeBool, res)),
			l.write(a0, res),
		)

	case x86asm.NOT:
		s := l.argSize(a0)
		l.emit(l.write(a0, ir.NewUnary(ir.Not, l.read(a0, s))))

	case x86asm.SHL, x86asm.SHR, x86asm.SAR:
		s := l.argSize(a0)
		op := ir.Shl
		switch in.Op {
		case x86asm.SHR:
			op = ir.Shr
		case x86asm.SAR:
			op = ir.Sar
		}
		x := l.read(a0, s)
		var count ir.Expr = ir.NewConst(1, s)
		if a1 != nil {
			count = l.widen(l.read(a1, s), s)
		}
		res := ir.NewBinary(op, x, count)
		l.resultFlags(res)
		l.emit(
			ir.Assign(l.flag("cf"), ir.NewFunc("shift_carry", ir.SizeBool, x, count)),
			ir.Assign(l.flag("of"), ir.NewFunc(ir.FuncOverflow, ir.SizeBool, res)),
			l.write(a0, res),
		)

	case x86asm.IMUL, x86asm.MUL, x86asm.DIV, x86asm.IDIV:
		s := l.argSize(a0)
		if in.Op == x86asm.IMUL && a1 != nil {
			x, y := l.read(a0, s), l.widen(l.read(a1, s), s)
			if a2 != nil {
				x, y = l.widen(l.read(a1, s), s), l.read(a2, s)
			}
			res := ir.NewBinary(ir.Mul, x, y)
			ovf := ir.NewFunc(ir.FuncOverflow, ir.SizeBool, res)
			l.emit(
				ir.Assign(l.flag("cf"), ovf),
				ir.Assign(l.flag("of"), ovf),
				l.write(a0, res),
			)
			return
		}
		acc, hi := l.sized(s, accumulator), l.sized(s, dataReg)
		src := l.read(a0, s)
		l.emit(
			ir.Assign(hi, ir.NewFunc(mnemonic+"_hi", s, acc, hi, src)),
			ir.Assign(acc, ir.NewFunc(mnemonic, s, acc, hi, src)),
		)

	case x86asm.XCHG:
		if a0 == a1 {
			return
		}
		s := l.argSize(a0)
		tmp := ir.NewReg("tmp", "tmp", s, ir.RegGeneral)
		l.emit(
			ir.Assign(tmp, l.read(a0, s)),
			l.write(a0, l.read(a1, s)),
			l.write(a1, tmp),
		)

	case x86asm.CDQE:
		l.emit(ir.Assign(l.o.gpr(x86asm.RAX), ir.NewCast(ir.SExt, l.o.gpr(x86asm.EAX), ir.Size64)))
	case x86asm.CDQ:
		l.emit(ir.Assign(l.o.gpr(x86asm.EDX), ir.NewBinary(ir.Sar, l.o.gpr(x86asm.EAX), ir.NewConst(31, ir.Size32))))
	case x86asm.CQO:
		l.emit(ir.Assign(l.o.gpr(x86asm.RDX), ir.NewBinary(ir.Sar, l.o.gpr(x86asm.RAX), ir.NewConst(63, ir.Size64))))

	case x86asm.PUSH:
		sp := l.sp()
		v := l.widen(l.read(a0, word), word)
		top := ir.NewBinary(ir.Sub, sp, ir.NewConst(uint64(word.Bytes()), word))
		l.emit(ir.Store(ir.NewMem(top, word), v), ir.Assign(sp, top))

	case x86asm.POP:
		sp := l.sp()
		l.emit(
			l.write(a0, ir.NewMem(sp, word)),
			ir.Assign(sp, ir.NewBinary(ir.Add, sp, ir.NewConst(uint64(word.Bytes()), word))),
		)

	case x86asm.LEAVE:
		sp, fp := l.sp(), l.fp()
		n := ir.NewConst(uint64(word.Bytes()), word)
		l.emit(
			ir.Assign(sp, ir.NewBinary(ir.Add, fp, n)),
			ir.Assign(fp, ir.NewMem(ir.NewBinary(ir.Sub, sp, n), word)),
		)

	case x86asm.CALL, x86asm.LCALL:
		out.Flow = FlowCall
		if t, ok := l.target(a0); ok {
			out.Target, out.HasTarget = t, true
			l.emit(ir.CallOp(ir.NewConst(uint64(t), word)))
			return
		}
		l.emit(ir.CallOp(l.widen(l.read(a0, word), word)))

	case x86asm.RET, x86asm.LRET:
		out.Flow = FlowReturn
		l.emit(ir.Ret())

	case x86asm.JMP, x86asm.LJMP:
		if t, ok := l.target(a0); ok {
			out.Flow, out.Target, out.HasTarget = FlowJump, t, true
			l.emit(ir.Jump(ir.NewConst(uint64(t), word)))
			return
		}
		out.Flow = FlowIndirect
		l.emit(ir.Jump(l.widen(l.read(a0, word), word)))

	case x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ:
		t, _ := l.target(a0)
		size := ir.Size16
		switch in.Op {
		case x86asm.JECXZ:
			size = ir.Size32
		case x86asm.JRCXZ:
			size = ir.Size64
		}
		cx := l.sized(size, counterReg)
		out.Flow, out.Target, out.HasTarget = FlowBranch, t, true
		l.emit(ir.CondJump(ir.NewBinary(ir.Eq, cx, ir.NewConst(0, size)), ir.NewConst(uint64(t), word)))

	case x86asm.HLT, x86asm.UD2:
		out.Flow = FlowHalt
		l.emit(ir.Intrinsic(mnemonic))

	default:
		if flagsOnly[in.Op] {
			l.emit(ir.Intrinsic(mnemonic))
			l.opaqueFlags(mnemonic, l.operands(in.Args[:]))
			return
		}
		if flagWriters[in.Op] {
			s := l.argSize(a0)
			args := l.operands(in.Args[:])
			if flagReaders[in.Op] {
				args = append(args, l.flag("cf"))
			}
			l.opaqueFlags(mnemonic, args)
			l.emit(l.write(a0, ir.NewFunc(mnemonic, s, args...)))
			return
		}
		r, ok := a0.(x86asm.Reg)
		if !ok {
			l.emit(ir.Intrinsic(l.text))
			return
		}
		dst := l.o.gpr(r)
		var args []ir.Expr
		for _, a := range in.Args[1:] {
			if a == nil {
				break
			}
			args = append(args, l.read(a, dst.Size))
		}
		l.emit(ir.Assign(dst, ir.NewFunc(mnemonic, dst.Size, args...)))
	}
}

// flagsOnly are unmodelled instructions whose only architectural effect on
// the tracked state is the flags.
var flagsOnly = map[x86asm.Op]bool{
	x86asm.BT:      true,
	x86asm.UCOMISS: true,
	x86asm.UCOMISD: true,
	x86asm.COMISS:  true,
	x86asm.COMISD:  true,
	x86asm.PTEST:   true,
}

// flagWriters write their destination and the flags.
var flagWriters = map[x86asm.Op]bool{
	x86asm.ADC:     true,
	x86asm.SBB:     true,
	x86asm.BTS:     true,
	x86asm.BTR:     true,
	x86asm.BTC:     true,
	x86asm.BSF:     true,
	x86asm.BSR:     true,
	x86asm.TZCNT:   true,
	x86asm.LZCNT:   true,
	x86asm.POPCNT:  true,
	x86asm.ROL:     true,
	x86asm.ROR:     true,
	x86asm.RCL:     true,
	x86asm.RCR:     true,
	x86asm.SHLD:    true,
	x86asm.SHRD:    true,
	x86asm.XADD:    true,
	x86asm.CMPXCHG: true,
}

// flagReaders consume the carry flag.
var flagReaders = map[x86asm.Op]bool{
	x86asm.ADC: true,
	x86asm.SBB: true,
	x86asm.RCL: true,
	x86asm.RCR: true,
}

func (l *x86Lifter) operands(args []x86asm.Arg) []ir.Expr {
	var out []ir.Expr
	for _, a := range args {
		if a == nil {
			break
		}
		out = append(out, l.read(a, l.argSize(a)))
	}
	return out
}

// opaqueFlags replaces every status flag with a value the IR cannot
// interpret, so later conditions never test flags from an older compare.
func (l *x86Lifter) opaqueFlags(mnemonic string, args []ir.Expr) {
	for _, f := range [...]string{"zf", "sf", "cf", "of", "pf"} {
		l.emit(ir.Assign(l.flag(f), ir.NewFunc(mnemonic+"_"+f, ir.SizeBool, args...)))
	}
}
