// Package symbols holds the global symbol table and the per-function
// variable scopes.
package symbols

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/ianlancetaylor/demangle"

	lru "github.com/hashicorp/golang-lru"

	"ouroboros/internal/ir"
)

// ErrUnknownSymbol is returned when a name resolves to no symbol or variable.
var ErrUnknownSymbol = errors.New("unknown symbol")

// demangleCacheSize bounds the number of demangled names kept in memory.
const demangleCacheSize = 4096

// Kind is what a global symbol names.
type Kind uint8

const (
	KindFunction Kind = iota
	KindImport
	KindData
)

func (k Kind) String() string {
	switch k {
	case KindImport:
		return "import"
	case KindData:
		return "data"
	default:
		return "function"
	}
}

// Symbol is a named address. Addr and Kind never change once created.
type Symbol struct {
	Addr ir.Address
	Size uint64
	Name string
	Kind Kind
}

// Table is the global symbol table.
type Table struct {
	syms      map[ir.Address]*Symbol
	demangled *lru.Cache
}

func NewTable() *Table {
	cache, err := lru.New(demangleCacheSize)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Table{syms: make(map[ir.Address]*Symbol), demangled: cache}
}

// Add registers a function symbol. An existing symbol at addr is kept and
// Add reports false.
func (t *Table) Add(addr ir.Address, size uint64, name string) bool {
	return t.Insert(Symbol{Addr: addr, Size: size, Name: name, Kind: KindFunction})
}

// Insert registers sym unless its address already has a symbol.
func (t *Table) Insert(sym Symbol) bool {
	if _, ok := t.syms[sym.Addr]; ok {
		return false
	}
	if sym.Name == "" {
		sym.Name = FunctionName(sym.Addr)
		if sym.Kind == KindData {
			sym.Name = DataName(sym.Addr)
		}
	}
	t.syms[sym.Addr] = &sym
	return true
}

// Resolve returns a copy of the symbol at addr.
func (t *Table) Resolve(addr ir.Address) (Symbol, bool) {
	s, ok := t.syms[addr]
	if !ok {
		return Symbol{}, false
	}
	return *s, true
}

// ResolveMut returns the stored symbol at addr, or nil.
func (t *Table) ResolveMut(addr ir.Address) *Symbol {
	return t.syms[addr]
}

// Rename sets the display name of the symbol at addr and reports whether the
// table changed.
func (t *Table) Rename(addr ir.Address, name string) bool {
	s, ok := t.syms[addr]
	if !ok || name == "" || s.Name == name {
		return false
	}
	s.Name = name
	return true
}

// Name returns the symbol name at addr, or the synthetic function name.
func (t *Table) Name(addr ir.Address) string {
	if s, ok := t.syms[addr]; ok {
		return s.Name
	}
	return FunctionName(addr)
}

// DataName returns the symbol name at addr, or the synthetic data name.
func (t *Table) DataName(addr ir.Address) string {
	if s, ok := t.syms[addr]; ok {
		return s.Name
	}
	return DataName(addr)
}

// Lookup finds a symbol by display name.
func (t *Table) Lookup(name string) (Symbol, bool) {
	for _, s := range t.Symbols() {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Symbols returns every symbol in address order.
func (t *Table) Symbols() []Symbol {
	out := make([]Symbol, 0, len(t.syms))
	for _, s := range t.syms {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

// Addresses returns the addresses of every symbol of kind k, sorted.
func (t *Table) Addresses(k Kind) []ir.Address {
	var out []ir.Address
	for a, s := range t.syms {
		if s.Kind == k {
			out = append(out, a)
		}
	}
	slices.Sort(out)
	return out
}

func (t *Table) Len() int { return len(t.syms) }

// Demangle returns the demangled form of name, or name itself when it is not
// a mangled symbol.
func (t *Table) Demangle(name string) string {
	if v, ok := t.demangled.Get(name); ok {
		return v.(string)
	}
	out := demangle.Filter(name, demangle.NoClones)
	t.demangled.Add(name, out)
	return out
}

func FunctionName(addr ir.Address) string { return fmt.Sprintf("sub_%x", uint64(addr)) }

func DataName(addr ir.Address) string { return fmt.Sprintf("data_%x", uint64(addr)) }
