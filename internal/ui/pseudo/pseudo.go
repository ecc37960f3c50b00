// Package pseudo prints a structured function as C-like pseudo-code, naming
// variables from the function's scope and constants from the symbol table.
package pseudo

import (
	"fmt"
	"slices"
	"strings"

	"ouroboros/internal/analysis"
	"ouroboros/internal/ast"
	"ouroboros/internal/ir"
	"ouroboros/internal/symbols"
)

type printer struct {
	s      *analysis.Session
	fn     *analysis.Function
	sb     strings.Builder
	indent int
	labels map[ir.Address]bool
	params map[symbols.Slot]bool
}

// Render returns the pseudo-code of fn.
func Render(s *analysis.Session, fn *analysis.Function) string {
	p := &printer{
		s:      s,
		fn:     fn,
		labels: map[ir.Address]bool{},
		params: map[symbols.Slot]bool{},
	}
	ast.Inspect(fn.AST, func(st ast.Statement) bool {
		if g, ok := st.(*ast.Goto); ok {
			p.labels[g.Target] = true
		}
		return true
	})
	p.function()
	return p.sb.String()
}

func (p *printer) line(format string, args ...any) {
	p.sb.WriteString(strings.Repeat("  ", p.indent))
	fmt.Fprintf(&p.sb, format, args...)
	p.sb.WriteByte('\n')
}

func cType(t ir.VariableType, size ir.InstructionSize) string {
	switch t {
	case ir.Boolean:
		return "bool"
	case ir.Pointer:
		return "void *"
	}
	switch size {
	case ir.Size8:
		return "uint8_t"
	case ir.Size16:
		return "uint16_t"
	case ir.Size32:
		return "uint32_t"
	}
	return "uint64_t"
}

func decl(v *symbols.VariableDefinition) string {
	t := cType(v.Type, v.Size)
	if strings.HasSuffix(t, "*") {
		return t + v.Name
	}
	return t + " " + v.Name
}

func (p *printer) function() {
	conv := p.s.Convention()
	root := p.fn.Scope.Section(symbols.RootSection)

	var params []*symbols.VariableDefinition
	for slot, v := range root.Vars {
		if slot.Kind == symbols.SlotRegister {
			if _, ok := conv.IsParam(slot.Reg); ok {
				params = append(params, v)
				p.params[slot] = true
			}
		}
	}
	slices.SortFunc(params, func(a, b *symbols.VariableDefinition) int {
		i, _ := conv.IsParam(a.Slot.Reg)
		j, _ := conv.IsParam(b.Slot.Reg)
		return i - j
	})
	args := make([]string, len(params))
	for i, v := range params {
		args[i] = decl(v)
	}

	ret := "void"
	ast.Inspect(p.fn.AST, func(st ast.Statement) bool {
		if r, ok := st.(*ast.Return); ok && r.Result != nil {
			ret = cType(r.Result.Type(), r.Result.Width())
			return false
		}
		return true
	})

	entry := p.fn.High.Entry
	name := p.s.Symbols.Name(entry)
	p.line("// %s @ %s", name, entry)
	p.line("%s %s(%s) {", ret, name, strings.Join(args, ", "))
	p.indent++
	p.block(p.fn.AST.Body)
	p.indent--
	p.line("}")
}

// declarations prints the variables a block's scope section owns.
func (p *printer) declarations(b *ast.Block) {
	id, ok := p.fn.Scope.SectionOf(b)
	if !ok {
		return
	}
	var vars []*symbols.VariableDefinition
	for slot, v := range p.fn.Scope.Section(id).Vars {
		if !p.params[slot] {
			vars = append(vars, v)
		}
	}
	slices.SortFunc(vars, func(a, b *symbols.VariableDefinition) int { return strings.Compare(a.Name, b.Name) })
	for _, v := range vars {
		p.line("%s;", decl(v))
	}
}

func (p *printer) block(b *ast.Block) {
	p.declarations(b)
	for _, st := range b.Stmts {
		p.stmt(st)
	}
}

func (p *printer) nested(b *ast.Block) {
	p.indent++
	p.block(b)
	p.indent--
}

func (p *printer) stmt(st ast.Statement) {
	switch st := st.(type) {
	case *ast.Basic:
		if p.labels[st.Addr] {
			p.indent--
			p.line("label_%x:", uint64(st.Addr))
			p.indent++
		}
		for _, op := range st.Ops {
			p.op(op)
		}
	case *ast.If:
		p.line("if (%s) {", p.expr(st.Cond))
		p.nested(st.Then)
		if st.Else != nil {
			p.line("} else {")
			p.nested(st.Else)
		}
		p.line("}")
	case *ast.Loop:
		switch st.Kind {
		case ast.PreTested:
			p.line("while (%s) {", p.expr(st.Cond))
			p.nested(st.Body)
			p.line("}")
		case ast.PostTested:
			p.line("do {")
			p.nested(st.Body)
			p.line("} while (%s);", p.expr(st.Cond))
		default:
			p.line("for (;;) {")
			p.nested(st.Body)
			p.line("}")
		}
	case *ast.Call:
		args := make([]string, len(st.Args))
		for i, a := range st.Args {
			args[i] = p.expr(a)
		}
		target := "(*" + p.expr(st.Target) + ")"
		if st.Direct {
			target = p.s.Symbols.Name(st.Addr)
		}
		p.line("%s(%s);", target, strings.Join(args, ", "))
	case *ast.Return:
		if st.Result == nil {
			p.line("return;")
		} else {
			p.line("return %s;", p.expr(st.Result))
		}
	case *ast.Break:
		p.line("break;")
	case *ast.Continue:
		p.line("continue;")
	case *ast.Goto:
		p.line("goto label_%x;", uint64(st.Target))
	case *ast.Block:
		p.line("{")
		p.nested(st)
		p.line("}")
	}
}

func (p *printer) op(op ir.Operation) {
	switch op.Kind {
	case ir.OpAssign, ir.OpStore:
		p.line("%s = %s;", p.expr(op.Dest), p.expr(op.Src))
	case ir.OpBranch:
		p.line("goto *%s;", p.expr(op.Target))
	case ir.OpIntrinsic:
		p.line("__%s();", op.Name)
	}
}

// expr renders e with variables, strings and symbols substituted.
func (p *printer) expr(e ir.Expr) string {
	if e == nil {
		return "?"
	}
	return ir.Rewrite(e, p.rename).String()
}

// label is a display-only leaf printed verbatim.
func label(text string, size ir.InstructionSize) ir.Expr {
	return ir.NewReg(text, text, size, ir.RegGeneral)
}

func (p *printer) rename(n ir.Expr) (ir.Expr, bool) {
	switch n := n.(type) {
	case *ir.Reg, *ir.Mem:
		slot, ok := symbols.SlotOf(n, p.s.Convention())
		if !ok {
			return nil, false
		}
		if name := p.fn.Scope.Name(slot); name != "" {
			return label(name, n.Width()), true
		}
	case *ir.Const:
		a := ir.Address(n.Value)
		if str, ok := p.s.StringAt(a); ok {
			return label(str, n.Width()), true
		}
		if sym, ok := p.s.Symbols.Resolve(a); ok {
			if sym.Kind == symbols.KindData {
				return label("&"+sym.Name, n.Width()), true
			}
			return label(sym.Name, n.Width()), true
		}
	}
	return nil, false
}
