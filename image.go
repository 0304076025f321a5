package tracemap

import (
	"bytes"
	"cmp"
	"debug/elf"
	"debug/pe"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"
)

// ErrUnsupportedImage is the underlying cause of Open errors where the file
// is not an ELF, PE or Mach-O binary image.
var ErrUnsupportedImage = errors.New("unsupported binary image format")

// Image architectures.
const (
	ArchAMD64 = "amd64"
	Arch386   = "i386"
	ArchARM64 = "arm64"
)

// Magic bytes of binary image formats.
var (
	elfMagic    = []byte{0x7F, 0x45, 0x4C, 0x46}
	peMagic     = []byte{0x4D, 0x5A}
	machoMagics = [][]byte{
		{0xFE, 0xED, 0xFA, 0xCE},
		{0xFE, 0xED, 0xFA, 0xCF},
		{0xCE, 0xFA, 0xED, 0xFE},
		{0xCF, 0xFA, 0xED, 0xFE},
	}
)

// Image is a loaded view of a binary image: its symbol table and enough of
// its layout to generate a symbol map for it.
type Image struct {
	// Name of the image; base name of the image file.
	Name string
	// Image base address; the default address offset when generating a MAP
	// file for the image.
	Base uint64
	// Architecture the image was compiled for.
	Arch string
	// Pointer size of the image in bits, 32 or 64.
	Bits int
	// Symbols of the image, sorted by address.
	Syms []*Symbol

	// Contents and start address of the executable section, for instruction
	// context.
	code     []byte
	codeAddr uint64
}

// Open reads the symbol table of the binary image at imgPath. ELF, PE and
// Mach-O images are supported; the format is determined from the magic bytes
// of the file.
func Open(imgPath string) (*Image, error) {
	magic, err := readMagic(imgPath)
	if err != nil {
		return nil, err
	}
	var img *Image
	switch {
	case bytes.HasPrefix(magic, elfMagic):
		img, err = openELF(imgPath)
	case bytes.HasPrefix(magic, peMagic):
		img, err = openPE(imgPath)
	case isMachO(magic):
		img, err = openMachO(imgPath)
	default:
		return nil, errors.Wrapf(ErrUnsupportedImage, "file %q", imgPath)
	}
	if err != nil {
		return nil, err
	}
	img.Name = filepath.Base(imgPath)
	dbg.Printf("image %s: %d symbols, base address 0x%x", img.Name, len(img.Syms), img.Base)
	return img, nil
}

// Map returns a symbol map of the image, with the image base address as
// address offset.
func (img *Image) Map() *Map {
	return &Map{Image: img.Name, Offset: img.Base, Syms: img.Syms}
}

// Resolve returns the symbol covering addr, the nearest symbol at or below
// the address. The boolean result reports whether such a symbol exists.
func (img *Image) Resolve(addr uint64) (*Symbol, bool) {
	i := sort.Search(len(img.Syms), func(i int) bool {
		return img.Syms[i].Addr > addr
	})
	if i == 0 {
		return nil, false
	}
	return img.Syms[i-1], true
}

// Disasm decodes the instruction at addr and returns its Intel assembler
// syntax. The boolean result reports whether an instruction was decoded; it
// is false for addresses outside the executable section and for images of
// architectures other than x86.
func (img *Image) Disasm(addr uint64) (string, bool) {
	if img.Arch != ArchAMD64 && img.Arch != Arch386 {
		return "", false
	}
	if addr < img.codeAddr || addr >= img.codeAddr+uint64(len(img.code)) {
		return "", false
	}
	inst, err := x86asm.Decode(img.code[addr-img.codeAddr:], img.Bits)
	if err != nil {
		return "", false
	}
	return x86asm.IntelSyntax(inst, addr, nil), true
}

// readMagic reads the magic bytes of the file at imgPath.
func readMagic(imgPath string) ([]byte, error) {
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, errors.Wrapf(err, "reading magic bytes of %q", imgPath)
	}
	return magic, nil
}

// isMachO reports whether the given magic bytes identify a Mach-O image.
func isMachO(magic []byte) bool {
	for _, m := range machoMagics {
		if bytes.HasPrefix(magic, m) {
			return true
		}
	}
	return false
}

// openELF reads the symbol table of the ELF image at imgPath.
func openELF(imgPath string) (*Image, error) {
	f, err := elf.Open(imgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing ELF image %q", imgPath)
	}
	defer f.Close()

	img := &Image{Base: elfBase(f.Progs), Arch: elfArch(f.Machine), Bits: 64}
	if f.Class == elf.ELFCLASS32 {
		img.Bits = 32
	}

	// Collect both symbol tables; stripped images often retain .dynsym.
	var syms []elf.Symbol
	st, err := f.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.WithStack(err)
	}
	syms = append(syms, st...)
	dynst, err := f.DynamicSymbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return nil, errors.WithStack(err)
	}
	syms = append(syms, dynst...)
	img.Syms = elfSymbols(syms)
	if len(img.Syms) == 0 {
		return nil, errors.Errorf("no symbols in ELF image %q", imgPath)
	}

	if sect := f.Section(".text"); sect != nil {
		if code, err := sect.Data(); err == nil {
			img.code, img.codeAddr = code, sect.Addr
		}
	}
	return img, nil
}

// elfBase returns the base address of an ELF image, the lowest address mapped
// by a loadable segment.
func elfBase(progs []*elf.Prog) uint64 {
	var base uint64
	found := false
	for _, prog := range progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if !found || prog.Vaddr < base {
			base = prog.Vaddr
			found = true
		}
	}
	if !found {
		return 0
	}
	return base
}

// elfSymbols converts ELF symbol table entries into image symbols. Entries
// which do not name a location in the image are dropped: unnamed entries,
// section and file records, and undefined (imported) symbols.
func elfSymbols(syms []elf.Symbol) []*Symbol {
	var out []*Symbol
	for _, s := range syms {
		if len(s.Name) == 0 || s.Section == elf.SHN_UNDEF {
			continue
		}
		switch elf.ST_TYPE(s.Info) {
		case elf.STT_SECTION, elf.STT_FILE:
			continue
		}
		out = append(out, &Symbol{Addr: s.Value, Name: s.Name})
	}
	return sortSyms(out)
}

// elfArch returns the architecture name of an ELF machine.
func elfArch(machine elf.Machine) string {
	switch machine {
	case elf.EM_X86_64:
		return ArchAMD64
	case elf.EM_386:
		return Arch386
	case elf.EM_AARCH64:
		return ArchARM64
	}
	return machine.String()
}

// openPE reads the symbol table of the PE image at imgPath.
func openPE(imgPath string) (img *Image, err error) {
	// debug/pe may panic on malformed images; report the panic as an error.
	defer func() {
		if e := recover(); e != nil {
			img, err = nil, errors.Errorf("malformed PE image %q: %v", imgPath, e)
		}
	}()

	f, err := pe.Open(imgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing PE image %q", imgPath)
	}
	defer f.Close()

	var imageBase uint64
	bits := 32
	switch hdr := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		imageBase = uint64(hdr.ImageBase)
	case *pe.OptionalHeader64:
		imageBase = hdr.ImageBase
		bits = 64
	default:
		return nil, errors.Errorf("missing optional header in PE image %q", imgPath)
	}

	img = &Image{Base: imageBase, Arch: peArch(f.Machine), Bits: bits}
	img.Syms = peSymbols(f.Symbols, f.Sections, imageBase)
	if len(img.Syms) == 0 {
		return nil, errors.Errorf("no symbols in PE image %q; release linkers usually strip the COFF symbol table", imgPath)
	}

	if sect := f.Section(".text"); sect != nil {
		if code, err := sect.Data(); err == nil {
			img.code, img.codeAddr = code, imageBase+uint64(sect.VirtualAddress)
		}
	}
	return img, nil
}

// peSymbols converts COFF symbol table entries into image symbols. Undefined,
// absolute and debug entries carry no image address and are dropped; the
// remaining section relative values are rebased onto the image base.
func peSymbols(syms []*pe.Symbol, sects []*pe.Section, imageBase uint64) []*Symbol {
	// Special section numbers of COFF symbols.
	const (
		symUndef = 0  // undefined (external) symbol
		symAbs   = -1 // absolute symbol, value is a constant
		symDebug = -2 // debugging record
	)
	var out []*Symbol
	for _, s := range syms {
		if len(s.Name) == 0 {
			continue
		}
		switch s.SectionNumber {
		case symUndef, symAbs, symDebug:
			continue
		}
		if s.SectionNumber < 1 || int(s.SectionNumber) > len(sects) {
			warn.Printf("skipping symbol %q with invalid section number %d", s.Name, s.SectionNumber)
			continue
		}
		sect := sects[s.SectionNumber-1]
		addr := imageBase + uint64(sect.VirtualAddress) + uint64(s.Value)
		out = append(out, &Symbol{Addr: addr, Name: s.Name})
	}
	return sortSyms(out)
}

// peArch returns the architecture name of a PE machine.
func peArch(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return ArchAMD64
	case pe.IMAGE_FILE_MACHINE_I386:
		return Arch386
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return ArchARM64
	}
	return fmt.Sprintf("machine-0x%x", machine)
}

// openMachO reads the symbol table of the Mach-O image at imgPath.
func openMachO(imgPath string) (*Image, error) {
	f, err := os.Open(imgPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	mf, err := macho.NewFile(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing Mach-O image %q", imgPath)
	}
	defer mf.Close()

	img := &Image{Base: mf.GetBaseAddress(), Arch: machoArch(mf.CPU), Bits: 64}
	if img.Arch == Arch386 {
		img.Bits = 32
	}
	if mf.Symtab == nil {
		return nil, errors.Errorf("missing symbol table in Mach-O image %q", imgPath)
	}
	img.Syms = machoSymbols(mf.Symtab.Syms)
	if len(img.Syms) == 0 {
		return nil, errors.Errorf("no symbols in Mach-O image %q", imgPath)
	}

	for _, sect := range mf.Sections {
		if sect.Name == "__text" {
			if code, err := sect.Data(); err == nil {
				img.code, img.codeAddr = code, sect.Addr
			}
			break
		}
	}
	return img, nil
}

// machoSymbols converts Mach-O symbol table entries into image symbols,
// dropping stab debug entries and undefined (zero value) symbols.
func machoSymbols(syms []macho.Symbol) []*Symbol {
	const stabTypeMask = 0xE0
	var out []*Symbol
	for _, s := range syms {
		if len(s.Name) == 0 || s.Value == 0 {
			continue
		}
		if s.Type&stabTypeMask != 0 {
			// Skip stab debug info.
			continue
		}
		out = append(out, &Symbol{Addr: s.Value, Name: s.Name})
	}
	return sortSyms(out)
}

// machoArch returns the architecture name of a Mach-O CPU.
func machoArch(cpu types.CPU) string {
	switch cpu {
	case types.CPUAmd64:
		return ArchAMD64
	case types.CPUI386:
		return Arch386
	case types.CPUArm64:
		return ArchARM64
	}
	return fmt.Sprintf("cpu-0x%x", uint32(cpu))
}

// sortSyms orders symbols by address, name, and drops exact duplicates,
// which occur when a symbol appears in both .symtab and .dynsym.
func sortSyms(syms []*Symbol) []*Symbol {
	slices.SortStableFunc(syms, func(a, b *Symbol) int {
		if c := cmp.Compare(a.Addr, b.Addr); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	out := syms[:0]
	var prev *Symbol
	for _, sym := range syms {
		if prev != nil && prev.Addr == sym.Addr && prev.Name == sym.Name {
			continue
		}
		out = append(out, sym)
		prev = sym
	}
	return out
}
