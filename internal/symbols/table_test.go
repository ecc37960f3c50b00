package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ouroboros/internal/ir"
)

func TestTableAddKeepsFirst(t *testing.T) {
	tab := NewTable()
	assert.True(t, tab.Add(0x1000, 0x20, "main"))
	assert.False(t, tab.Add(0x1000, 0x40, "other"))

	s, ok := tab.Resolve(0x1000)
	require.True(t, ok)
	assert.Equal(t, Symbol{Addr: 0x1000, Size: 0x20, Name: "main", Kind: KindFunction}, s)
}

func TestTableSyntheticNames(t *testing.T) {
	tab := NewTable()
	tab.Add(0x401000, 0, "")
	tab.Insert(Symbol{Addr: 0x404010, Kind: KindData})

	assert.Equal(t, "sub_401000", tab.Name(0x401000))
	assert.Equal(t, "data_404010", tab.DataName(0x404010))
	assert.Equal(t, "sub_500000", tab.Name(0x500000))
	assert.Equal(t, "data_500000", tab.DataName(0x500000))
}

func TestTableRename(t *testing.T) {
	tab := NewTable()
	tab.Add(0x1000, 0, "")

	assert.True(t, tab.Rename(0x1000, "parse"))
	assert.False(t, tab.Rename(0x1000, "parse"), "second rename to the same name is a no-op")
	assert.False(t, tab.Rename(0x1000, ""))
	assert.False(t, tab.Rename(0x2000, "missing"))

	s, ok := tab.Lookup("parse")
	require.True(t, ok)
	assert.Equal(t, ir.Address(0x1000), s.Addr)
	_, ok = tab.Lookup("sub_1000")
	assert.False(t, ok)

	tab.ResolveMut(0x1000).Name = "direct"
	assert.Equal(t, "direct", tab.Name(0x1000))
}

func TestTableOrdering(t *testing.T) {
	tab := NewTable()
	tab.Insert(Symbol{Addr: 0x3000, Name: "puts", Kind: KindImport})
	tab.Add(0x2000, 0, "b")
	tab.Add(0x1000, 0, "a")
	tab.Insert(Symbol{Addr: 0x4000, Kind: KindData})

	var names []string
	for _, s := range tab.Symbols() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"a", "b", "puts", "data_4000"}, names)
	assert.Equal(t, []ir.Address{0x1000, 0x2000}, tab.Addresses(KindFunction))
	assert.Equal(t, []ir.Address{0x3000}, tab.Addresses(KindImport))
	assert.Equal(t, 4, tab.Len())
}

func TestTableDemangle(t *testing.T) {
	tab := NewTable()
	tests := []struct {
		in, want string
	}{
		{"_ZN3foo3barEv", "foo::bar()"},
		{"main", "main"},
		{"_ZN3foo3barEv", "foo::bar()"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tab.Demangle(tt.in))
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "function", KindFunction.String())
	assert.Equal(t, "import", KindImport.String())
	assert.Equal(t, "data", KindData.String())
}
