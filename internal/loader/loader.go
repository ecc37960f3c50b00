// Package loader reads ELF and PE executables into the sections, entry
// points and symbols the analysis session starts from.
package loader

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"ouroboros/internal/elfx"
	"ouroboros/internal/ir"
	"ouroboros/internal/semantics"
	"ouroboros/internal/symbols"
)

// ErrMalformedFile is returned for containers that cannot be parsed, for
// unsupported machines and for sections outside the file.
var ErrMalformedFile = errors.New("malformed file")

// Section is one loadable region of the image.
type Section struct {
	Name string
	Base ir.Address
	Data []byte
	Exec bool
}

func (s Section) Interval() ir.Interval { return ir.Span(s.Base, uint64(len(s.Data))) }

// Symbol is a name the image itself provides.
type Symbol struct {
	Addr ir.Address
	Size uint64
	Name string
	Kind symbols.Kind
}

// Binary is a parsed executable.
type Binary struct {
	Format   string
	Arch     string
	Sections []Section
	// Entries holds the container entry point first, then named entry
	// points in address order.
	Entries []ir.Address
	Symbols []Symbol
	closer  io.Closer
}

// namedEntries are symbols worth starting analysis from even when the
// container entry point does not reach them.
var namedEntries = []string{"main", "_start", "WinMain", "DllMain"}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedFile, fmt.Sprintf(format, args...))
}

// Load parses an executable held in memory.
func Load(data []byte) (*Binary, error) {
	switch {
	case bytes.HasPrefix(data, []byte(elf.ELFMAG)):
		im, err := elfx.New(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
		}
		return fromELF(im)
	case bytes.HasPrefix(data, []byte("MZ")):
		return loadPE(data)
	}
	return nil, malformed("unknown container")
}

// Open loads the executable at path. ELF images stay mapped until Close.
func Open(path string) (*Binary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	magic := make([]byte, 4)
	_, err = io.ReadFull(f, magic)
	f.Close()
	if err != nil {
		return nil, malformed("%s: %v", path, err)
	}
	if !bytes.Equal(magic, []byte(elf.ELFMAG)) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return Load(data)
	}

	im, err := elfx.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}
	b, err := fromELF(im)
	if err != nil {
		im.Close()
		return nil, err
	}
	b.closer = im
	return b, nil
}

// Close releases the mapping behind the section bytes, if any.
func (b *Binary) Close() error {
	if b.closer == nil {
		return nil
	}
	err := b.closer.Close()
	b.closer = nil
	return err
}

func fromELF(im *elfx.Image) (*Binary, error) {
	b := &Binary{Format: "elf"}
	switch im.File.Machine {
	case elf.EM_X86_64:
		b.Arch = semantics.ArchX86_64
	case elf.EM_386:
		b.Arch = semantics.ArchX86
	default:
		return nil, malformed("unsupported machine %s", im.File.Machine)
	}

	for _, s := range im.Sections {
		if s.Type == elf.SHT_NULL || s.Type == elf.SHT_NOTE || s.VA == 0 || s.Size == 0 {
			continue
		}
		// .tbss is a per-thread template; its VA range is shared with the
		// sections that follow it.
		if s.Type == elf.SHT_NOBITS && s.Flags&elf.SHF_TLS != 0 {
			continue
		}
		sec := Section{Name: s.Name, Base: ir.Address(s.VA), Exec: s.Exec()}
		if s.Type == elf.SHT_NOBITS {
			sec.Data = make([]byte, s.Size)
		} else {
			data, ok := im.SectionBytes(s)
			if !ok {
				return nil, malformed("section %s [0x%x+0x%x] exceeds file size 0x%x", s.Name, s.Off, s.Size, len(im.All))
			}
			sec.Data = data
		}
		b.Sections = append(b.Sections, sec)
	}

	for _, s := range im.Functions() {
		b.Symbols = append(b.Symbols, Symbol{Addr: ir.Address(s.Addr), Size: s.Size, Name: s.Name, Kind: symbols.KindFunction})
	}
	for _, s := range im.Objects() {
		b.Symbols = append(b.Symbols, Symbol{Addr: ir.Address(s.Addr), Size: s.Size, Name: s.Name, Kind: symbols.KindData})
	}
	for _, p := range im.PLTSymbols() {
		b.Symbols = append(b.Symbols, Symbol{Addr: ir.Address(p.Addr), Size: 8, Name: p.Name, Kind: symbols.KindImport})
	}

	if im.File.Entry != 0 {
		b.Entries = append(b.Entries, ir.Address(im.File.Entry))
	}
	b.addNamedEntries()
	return b, nil
}

func loadPE(data []byte) (*Binary, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFile, err)
	}
	defer f.Close()

	b := &Binary{Format: "pe"}
	switch f.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		b.Arch = semantics.ArchX86_64
	case pe.IMAGE_FILE_MACHINE_I386:
		b.Arch = semantics.ArchX86
	default:
		return nil, malformed("unsupported machine 0x%x", f.Machine)
	}

	var base, entry, headers uint64
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader64:
		base, entry, headers = oh.ImageBase, uint64(oh.AddressOfEntryPoint), uint64(oh.SizeOfHeaders)
	case *pe.OptionalHeader32:
		base, entry, headers = uint64(oh.ImageBase), uint64(oh.AddressOfEntryPoint), uint64(oh.SizeOfHeaders)
	default:
		return nil, malformed("missing optional header")
	}
	if headers > uint64(len(data)) {
		return nil, malformed("headers size 0x%x exceeds file size 0x%x", headers, len(data))
	}
	if headers > 0 {
		b.Sections = append(b.Sections, Section{Name: "Headers", Base: ir.Address(base), Data: data[:headers]})
	}

	for _, s := range f.Sections {
		if s.VirtualSize == 0 && s.Size == 0 {
			continue
		}
		end := uint64(s.Offset) + uint64(s.Size)
		if end > uint64(len(data)) {
			return nil, malformed("section %s [0x%x+0x%x] exceeds file size 0x%x", s.Name, s.Offset, s.Size, len(data))
		}
		raw := data[uint64(s.Offset):end]
		if s.VirtualSize > s.Size {
			raw = append(slices.Clone(raw), make([]byte, s.VirtualSize-s.Size)...)
		}
		b.Sections = append(b.Sections, Section{
			Name: s.Name,
			Base: ir.Address(base + uint64(s.VirtualAddress)),
			Data: raw,
			Exec: s.Characteristics&(pe.IMAGE_SCN_MEM_EXECUTE|pe.IMAGE_SCN_CNT_CODE) != 0,
		})
	}

	for _, sym := range f.Symbols {
		if sym.SectionNumber <= 0 || int(sym.SectionNumber) > len(f.Sections) {
			continue
		}
		sec := f.Sections[sym.SectionNumber-1]
		kind := symbols.KindData
		// Derived type 0x20 marks functions.
		if sym.Type>>4 == 2 {
			kind = symbols.KindFunction
		}
		b.Symbols = append(b.Symbols, Symbol{
			Addr: ir.Address(base + uint64(sec.VirtualAddress) + uint64(sym.Value)),
			Name: sym.Name,
			Kind: kind,
		})
	}

	if entry != 0 {
		b.Entries = append(b.Entries, ir.Address(base+entry))
	}
	b.addNamedEntries()
	return b, nil
}

func (b *Binary) addNamedEntries() {
	var named []ir.Address
	for _, s := range b.Symbols {
		if s.Kind != symbols.KindFunction || !slices.Contains(namedEntries, s.Name) {
			continue
		}
		if !slices.Contains(b.Entries, s.Addr) && !slices.Contains(named, s.Addr) {
			named = append(named, s.Addr)
		}
	}
	slices.Sort(named)
	b.Entries = append(b.Entries, named...)
}

// Word returns the pointer width of the image's architecture.
func (b *Binary) Word() ir.InstructionSize {
	if b.Arch == semantics.ArchX86 {
		return ir.Size32
	}
	return ir.Size64
}
