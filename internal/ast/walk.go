package ast

import (
	"fmt"
	"strings"

	"ouroboros/internal/ir"
)

// Visitor receives the statements of a tree in pre-order. When Enter returns
// false the statement's children are skipped and Leave is not called for it.
type Visitor interface {
	Enter(s Statement, depth int) bool
	Leave(s Statement, depth int)
}

type walkItem struct {
	s     Statement
	depth int
	leave bool
}

// Walk traverses the tree under root with an explicit work stack.
func Walk(root Statement, v Visitor) {
	stack := []walkItem{{s: root}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if it.leave {
			v.Leave(it.s, it.depth)
			continue
		}
		if !v.Enter(it.s, it.depth) {
			continue
		}
		stack = append(stack, walkItem{s: it.s, depth: it.depth, leave: true})
		kids := Children(it.s)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, walkItem{s: kids[i], depth: it.depth + 1})
		}
	}
}

type inspector func(Statement) bool

func (f inspector) Enter(s Statement, _ int) bool { return f(s) }
func (f inspector) Leave(Statement, int)          {}

// Inspect calls fn for every statement under root in pre-order.
func Inspect(root Statement, fn func(Statement) bool) {
	Walk(root, inspector(fn))
}

// Basics returns the addresses of every Basic statement in tree order.
func Basics(root Statement) []ir.Address {
	var out []ir.Address
	Inspect(root, func(s Statement) bool {
		if b, ok := s.(*Basic); ok {
			out = append(out, b.Addr)
		}
		return true
	})
	return out
}

type dumper struct {
	sb     strings.Builder
	indent int
	elses  map[*Block]bool
}

func (d *dumper) line(format string, args ...any) {
	d.sb.WriteString(strings.Repeat("  ", d.indent))
	fmt.Fprintf(&d.sb, format, args...)
	d.sb.WriteByte('\n')
}

func (d *dumper) Enter(s Statement, _ int) bool {
	switch s := s.(type) {
	case *Function:
		d.line("function %s", s.Entry)
		d.indent++
	case *Block:
		if d.elses[s] {
			d.indent--
			d.line("else")
			d.indent++
		}
	case *If:
		d.line("if (%s)", s.Cond)
		if s.Else != nil {
			d.elses[s.Else] = true
		}
		d.indent++
	case *Loop:
		switch s.Kind {
		case PreTested:
			d.line("while (%s)", s.Cond)
		case PostTested:
			d.line("do")
		default:
			d.line("loop")
		}
		d.indent++
	case *Basic:
		d.line("%s:", s.Addr)
		d.indent++
		for _, op := range s.Ops {
			d.line("%s", op)
		}
		d.indent--
	case *Return:
		if s.Result == nil {
			d.line("return")
		} else {
			d.line("return %s", s.Result)
		}
	case *Call:
		args := make([]string, len(s.Args))
		for i, a := range s.Args {
			args[i] = a.String()
		}
		d.line("call %s(%s)", s.Target, strings.Join(args, ", "))
	case *Break:
		d.line("break")
	case *Continue:
		d.line("continue")
	case *Goto:
		d.line("goto %s", s.Target)
	}
	return true
}

func (d *dumper) Leave(s Statement, _ int) {
	switch s := s.(type) {
	case *Function, *If:
		d.indent--
	case *Loop:
		d.indent--
		if s.Kind == PostTested {
			d.line("while (%s)", s.Cond)
		}
	}
}

// Dump renders the tree as indented text. The output depends only on the
// tree.
func Dump(root Statement) string {
	d := &dumper{elses: make(map[*Block]bool)}
	Walk(root, d)
	return d.sb.String()
}
