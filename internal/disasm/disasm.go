// Package disasm builds the listing view: one row per decoded instruction
// and hex rows for the bytes in between.
package disasm

import (
	"fmt"
	"strings"

	"ouroboros/internal/ir"
	"ouroboros/internal/memory"
	"ouroboros/internal/symbols"
)

// DataRowWidth is the number of bytes shown per Data row.
const DataRowWidth = 16

type RowKind uint8

const (
	RowData RowKind = iota
	RowInstruction
)

// Row is one line of the listing.
type Row struct {
	Addr    ir.Address
	Kind    RowKind
	Section string
	Bytes   []byte
	Text    string // disassembly for instructions, printable bytes for data
}

// Stream is the listing of a whole address space in address order.
type Stream []Row

// Rows walks the literals of space and returns their rows.
func Rows(space *memory.Space) Stream {
	var out Stream
	for _, e := range space.Literals() {
		lit := e.Value
		if lit.Kind == memory.LiteralInstruction {
			for _, inst := range lit.Instructions {
				out = append(out, Row{
					Addr:    inst.Addr,
					Kind:    RowInstruction,
					Section: lit.Section,
					Bytes:   inst.Bytes,
					Text:    inst.Text,
				})
			}
			continue
		}
		for off := 0; off < len(lit.Bytes); off += DataRowWidth {
			b := lit.Bytes[off:min(off+DataRowWidth, len(lit.Bytes))]
			out = append(out, Row{
				Addr:    e.Interval.Start + ir.Address(off),
				Kind:    RowData,
				Section: lit.Section,
				Bytes:   b,
				Text:    printable(b),
			})
		}
	}
	return out
}

func printable(b []byte) string {
	var sb strings.Builder
	for _, c := range b {
		if c >= 0x20 && c < 0x7f {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('.')
		}
	}
	return sb.String()
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02x", c)
	}
	return strings.Join(parts, " ")
}

// String formats the row as "<addr> <bytes> <text>". The address comes first
// so colorize.Line can pick it out.
func (r Row) String() string {
	if r.Kind == RowInstruction {
		return fmt.Sprintf("%x %-30s %s", uint64(r.Addr), hexBytes(r.Bytes), r.Text)
	}
	return fmt.Sprintf("%x %-47s |%s|", uint64(r.Addr), hexBytes(r.Bytes), r.Text)
}

// Lines formats the stream, with a label line before every row that starts
// a symbol and a header line at every section change.
func (s Stream) Lines(table *symbols.Table) []string {
	var out []string
	section := ""
	for i, r := range s {
		if i == 0 || r.Section != section {
			section = r.Section
			out = append(out, fmt.Sprintf("; section %s", section))
		}
		if sym, ok := table.Resolve(r.Addr); ok {
			out = append(out, fmt.Sprintf("; %s:", sym.Name))
		}
		out = append(out, r.String())
	}
	return out
}

// Listing caches the rows of a space until Invalidate. The presentation
// layer invalidates it on RepopulateInstructionRows.
type Listing struct {
	space *memory.Space
	rows  Stream
	valid bool
}

func NewListing(space *memory.Space) *Listing {
	return &Listing{space: space}
}

func (l *Listing) Invalidate() { l.valid = false }

func (l *Listing) Rows() Stream {
	if !l.valid {
		l.rows = Rows(l.space)
		l.valid = true
	}
	return l.rows
}

// Find returns the index of the row containing a.
func (l *Listing) Find(a ir.Address) (int, bool) {
	rows := l.Rows()
	for i, r := range rows {
		if a >= r.Addr && a < r.Addr+ir.Address(len(r.Bytes)) {
			return i, true
		}
	}
	return 0, false
}
