// Package elfx provides helpers for opening ELF binaries, locating sections, and mapping virtual addresses to file offsets.
package elfx

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"syscall"
)

type Image struct {
	Path     string
	File     *elf.File
	All      []byte
	Loads    []Seg
	Sections []Section
	PLT      Section
	Dynsyms  []DynSym
	Syms     []DynSym
	PLTStubs []PLTStub
	PLTRels  []PLTRel
	f        *os.File
	mapped   bool
}

type Seg struct {
	Vaddr, Off, Filesz uint64
	Flags              elf.ProgFlag
}

type Section struct {
	Name          string
	Type          elf.SectionType
	Flags         elf.SectionFlag
	VA, Off, Size uint64
}

func (s Section) Exec() bool { return s.Flags&elf.SHF_EXECINSTR != 0 }

type DynSym struct {
	Name  string
	Addr  uint64
	Size  uint64
	Type  elf.SymType
	IsPLT bool
}

type PLTStub struct {
	Addr    uint64
	GOTAddr uint64
	Index   int
}

type PLTRel struct {
	Offset   uint64
	SymIndex uint32
	SymName  string
	PLTAddr  uint64
}

// PLTSymbol names the stub a call to an imported function goes through.
type PLTSymbol struct {
	Addr uint64
	Name string
}

// Open maps the file at path read-only and parses it.
func Open(path string) (*Image, error) {
	of, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	fi, err := of.Stat()
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if fi.Size() == 0 {
		of.Close()
		return nil, fmt.Errorf("open elf: empty file")
	}

	all, err := syscall.Mmap(int(of.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		of.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	im, err := New(all)
	if err != nil {
		syscall.Munmap(all)
		of.Close()
		return nil, err
	}
	im.Path, im.f, im.mapped = path, of, true
	return im, nil
}

// New parses an ELF image held in memory.
func New(all []byte) (*Image, error) {
	f, err := elf.NewFile(bytes.NewReader(all))
	if err != nil {
		return nil, fmt.Errorf("open elf: %w", err)
	}

	im := &Image{File: f, All: all}
	for _, p := range f.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		im.Loads = append(im.Loads, Seg{
			Vaddr:  p.Vaddr,
			Off:    p.Off,
			Filesz: p.Filesz,
			Flags:  p.Flags,
		})
	}

	var pltSec Section
	for _, s := range f.Sections {
		sec := Section{s.Name, s.Type, s.Flags, s.Addr, s.Offset, s.Size}
		im.Sections = append(im.Sections, sec)
		switch s.Name {
		case ".plt":
			im.PLT = sec
		case ".plt.sec":
			pltSec = sec
		}
	}
	// With IBT the callable stubs live in .plt.sec and .plt only holds
	// the lazy binding trampolines.
	if pltSec.Size != 0 {
		im.PLT = pltSec
	}

	im.loadDynamicSymbols()
	im.loadStaticSymbols()
	im.parsePLTStubs()
	im.parsePLTRelocations()
	return im, nil
}

// Close unmaps the memory and closes the underlying files.
func (im *Image) Close() error {
	var err1, err2 error
	if im.All != nil && im.mapped {
		err1 = syscall.Munmap(im.All)
	}
	im.All = nil
	if im.f != nil {
		err2 = im.f.Close()
		im.f = nil
	}
	if im.File != nil {
		err3 := im.File.Close()
		if err3 != nil && err2 == nil {
			err2 = err3
		}
		im.File = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

// Is64 reports whether the image uses the 64-bit ELF class.
func (im *Image) Is64() bool { return im.File.Class == elf.ELFCLASS64 }

// SectionBytes returns the file bytes of s. It returns false when the
// section extends past the end of the file.
func (im *Image) SectionBytes(s Section) ([]byte, bool) {
	end := s.Off + s.Size
	if end < s.Off || end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[s.Off:end], true
}

// VA2Off translates a virtual address into a file offset
// using PT_LOAD segments. It returns false if VA is unmapped.
func (im *Image) VA2Off(va uint64) (uint64, bool) {
	for _, l := range im.Loads {
		if va >= l.Vaddr && va < l.Vaddr+l.Filesz {
			return l.Off + (va - l.Vaddr), true
		}
	}
	// Relocatable and hand-built images may lack program headers.
	for _, s := range im.Sections {
		if s.Type != elf.SHT_NOBITS && s.VA != 0 && va >= s.VA && va < s.VA+s.Size {
			return s.Off + (va - s.VA), true
		}
	}
	return 0, false
}

// SliceVA returns a subslice of the mapped file corresponding to the virtual address range [va, va+size).
// It returns (nil, false) if the VA is unmapped or the range is out of bounds.
func (im *Image) SliceVA(va uint64, size uint64) ([]byte, bool) {
	off, ok := im.VA2Off(va)
	if !ok {
		return nil, false
	}
	if size == 0 {
		return []byte{}, true
	}
	end := off + size
	if end > uint64(len(im.All)) {
		return nil, false
	}
	return im.All[off:end], true
}

func (im *Image) loadDynamicSymbols() {
	if im.File.Section(".dynsym") == nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}
	for _, sym := range dynsyms {
		im.Dynsyms = append(im.Dynsyms, DynSym{
			Name:  sym.Name,
			Addr:  sym.Value,
			Size:  sym.Size,
			Type:  elf.ST_TYPE(sym.Info),
			IsPLT: strings.HasSuffix(sym.Name, "@plt"),
		})
	}
}

// loadStaticSymbols loads .symtab, which stripped binaries do not have.
func (im *Image) loadStaticSymbols() {
	syms, err := im.File.Symbols()
	if err != nil {
		return
	}
	for _, sym := range syms {
		if sym.Value == 0 || sym.Section == elf.SHN_UNDEF {
			continue
		}
		im.Syms = append(im.Syms, DynSym{
			Name:  sym.Name,
			Addr:  sym.Value,
			Size:  sym.Size,
			Type:  elf.ST_TYPE(sym.Info),
			IsPLT: strings.HasSuffix(sym.Name, "@plt"),
		})
	}
}

// Functions returns the defined function symbols of the static and dynamic
// symbol tables.
func (im *Image) Functions() []DynSym {
	var out []DynSym
	seen := map[uint64]bool{}
	for _, list := range [][]DynSym{im.Syms, im.Dynsyms} {
		for _, s := range list {
			if s.Type != elf.STT_FUNC || s.Addr == 0 || s.IsPLT || seen[s.Addr] {
				continue
			}
			seen[s.Addr] = true
			out = append(out, s)
		}
	}
	return out
}

// Objects returns the defined data symbols.
func (im *Image) Objects() []DynSym {
	var out []DynSym
	seen := map[uint64]bool{}
	for _, list := range [][]DynSym{im.Syms, im.Dynsyms} {
		for _, s := range list {
			if s.Type != elf.STT_OBJECT || s.Addr == 0 || seen[s.Addr] {
				continue
			}
			seen[s.Addr] = true
			out = append(out, s)
		}
	}
	return out
}

func (im *Image) parsePLTRelocations() {
	if s := im.File.Section(".rela.plt"); s != nil {
		im.parsePLTRelocationSection(s, true)
		return
	}
	if s := im.File.Section(".rel.plt"); s != nil {
		im.parsePLTRelocationSection(s, false)
	}
}

// parsePLTRelocationSection reads .rela.plt or .rel.plt and pairs every
// entry with its stub: by GOT slot when the stub could be decoded, else by
// position.
func (im *Image) parsePLTRelocationSection(section *elf.Section, rela bool) {
	data, err := section.Data()
	if err != nil {
		return
	}
	dynsyms, err := im.File.DynamicSymbols()
	if err != nil {
		return
	}

	order := im.File.ByteOrder
	entrySize := 8
	switch {
	case im.Is64() && rela:
		entrySize = 24
	case im.Is64():
		entrySize = 16
	case rela:
		entrySize = 12
	}

	for i := 0; (i+1)*entrySize <= len(data); i++ {
		entry := data[i*entrySize:]
		var offset uint64
		var symIndex uint32
		if im.Is64() {
			offset = order.Uint64(entry)
			symIndex = uint32(order.Uint64(entry[8:]) >> 32)
		} else {
			offset = uint64(order.Uint32(entry))
			symIndex = order.Uint32(entry[4:]) >> 8
		}

		var symName string
		// DynamicSymbols drops the null symbol at index 0.
		if symIndex > 0 && int(symIndex) <= len(dynsyms) {
			symName = dynsyms[symIndex-1].Name
		}

		var pltAddr uint64
		for _, stub := range im.PLTStubs {
			if stub.GOTAddr == offset {
				pltAddr = stub.Addr
				break
			}
		}
		if pltAddr == 0 && i < len(im.PLTStubs) {
			pltAddr = im.PLTStubs[i].Addr
		}

		im.PLTRels = append(im.PLTRels, PLTRel{
			Offset:   offset,
			SymIndex: symIndex,
			SymName:  symName,
			PLTAddr:  pltAddr,
		})
	}
}

const stubSize = 16

// parsePLTStubs walks the 16-byte entries of the PLT. In a classic .plt the
// first entry is the resolver and is skipped.
func (im *Image) parsePLTStubs() {
	if im.PLT.Size == 0 {
		return
	}
	first := uint64(1)
	if im.PLT.Name == ".plt.sec" {
		first = 0
	}
	for i := first; (i+1)*stubSize <= im.PLT.Size; i++ {
		stubAddr := im.PLT.VA + i*stubSize
		gotAddr, _ := im.parsePLTStub(stubAddr)
		im.PLTStubs = append(im.PLTStubs, PLTStub{
			Addr:    stubAddr,
			GOTAddr: gotAddr,
			Index:   int(i - first),
		})
	}
}

// parsePLTStub finds the indirect jump through the GOT in an x86 stub:
//
//	jmp   [rip + rel32]       ff 25 rel32         (.plt, x86-64)
//	endbr64; bnd jmp [rip+r]  f3 0f 1e fa f2 ff 25 (.plt.sec)
//	jmp   [abs32]             ff 25 abs32         (i386, non-PIC)
func (im *Image) parsePLTStub(pltAddr uint64) (uint64, bool) {
	stub, ok := im.SliceVA(pltAddr, stubSize)
	if !ok {
		return 0, false
	}
	i := bytes.Index(stub, []byte{0xff, 0x25})
	if i < 0 || i+6 > len(stub) {
		return 0, false
	}
	disp := binary.LittleEndian.Uint32(stub[i+2:])
	if !im.Is64() {
		return uint64(disp), true
	}
	next := pltAddr + uint64(i) + 6
	return uint64(int64(next) + int64(int32(disp))), true
}

// IsPLTEntry returns true if the given virtual address lies within
// the PLT section, indicating it's a dynamically linked function stub.
func (im *Image) IsPLTEntry(va uint64) bool {
	if im.PLT.Size == 0 {
		return false
	}
	return va >= im.PLT.VA && va < im.PLT.VA+im.PLT.Size
}

// PLTSymbols returns the import name of every stub that has a relocation.
func (im *Image) PLTSymbols() []PLTSymbol {
	var out []PLTSymbol
	for _, rel := range im.PLTRels {
		if rel.PLTAddr == 0 || rel.SymName == "" {
			continue
		}
		out = append(out, PLTSymbol{Addr: rel.PLTAddr, Name: rel.SymName})
	}
	return out
}

// FindFunctionByName searches for a function by name in the symbol tables.
func (im *Image) FindFunctionByName(name string) (uint64, bool) {
	for _, list := range [][]DynSym{im.Dynsyms, im.Syms} {
		for _, sym := range list {
			if sym.Name == name && !sym.IsPLT && sym.Addr != 0 {
				return sym.Addr, true
			}
		}
	}
	return 0, false
}
