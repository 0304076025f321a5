package tracemap

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidOffset is the underlying cause of encoding errors where the
	// address offset exceeds a symbol address, which would make the relative
	// address underflow.
	ErrInvalidOffset = errors.New("address offset exceeds symbol address")
	// ErrInvalidImageName is the underlying cause of encoding errors where the
	// image name contains a line break and thus cannot occupy the single
	// header line.
	ErrInvalidImageName = errors.New("image name contains line break")
)

// Map is a symbol map of a single binary image.
type Map struct {
	// Name of binary image; header line of the MAP file.
	Image string
	// Address offset, subtracted from each symbol address on encoding. Set to
	// the image base address to produce image relative addresses.
	Offset uint64
	// Demangle is applied to each symbol name on encoding; see EffectiveName
	// for the exact policy. A nil Demangle leaves names untouched.
	Demangle Demangler
	// Symbols in output order.
	Syms []*Symbol
}

// Symbol associates an address within a binary image with a name.
type Symbol struct {
	// Address of symbol.
	Addr uint64
	// Raw name of symbol, as recorded in the symbol table of the image.
	Name string
}

// Encode encodes the symbol map in the MAP file dialect of trace analysis
// tools.
//
// Example output:
//
//    sample.exe
//    00001000 main
//    00002000 _Z3fooi
//
// Symbols appear in the order of m.Syms; symbols sharing a relative address
// are neither merged nor dropped. Relative addresses are zero padded to 8 hex
// digits and widen as needed beyond that, so addresses of 64-bit images are
// never truncated.
//
// Encode validates the map before producing output; a returned error means no
// output. The error is ErrInvalidOffset if m.Offset exceeds a symbol address,
// and ErrInvalidImageName if m.Image contains a line break.
func (m *Map) Encode() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	// Name of binary image.
	//
	//    sample.exe
	fmt.Fprintf(buf, "%s\n", m.Image)
	// Symbols, one per line.
	//
	//    00001000 main
	for _, sym := range m.Syms {
		fmt.Fprintf(buf, "%08x %s\n", sym.Addr-m.Offset, EffectiveName(sym.Name, m.Demangle))
	}
	return buf.Bytes(), nil
}

// validate checks that the symbol map can be encoded. It runs before any
// output is produced, so a failed export never leaves a partial artifact
// behind.
func (m *Map) validate() error {
	if strings.ContainsAny(m.Image, "\n\r") {
		return errors.Wrapf(ErrInvalidImageName, "image name %q", m.Image)
	}
	for _, sym := range m.Syms {
		if sym.Addr < m.Offset {
			return errors.Wrapf(ErrInvalidOffset, "address offset 0x%x exceeds address 0x%x of symbol %q", m.Offset, sym.Addr, sym.Name)
		}
	}
	return nil
}

// WriteTo encodes the symbol map and writes it to w. Nothing is written if
// encoding fails.
func (m *Map) WriteTo(w io.Writer) (int64, error) {
	buf, err := m.Encode()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(buf)
	return int64(n), errors.WithStack(err)
}

// WriteFile encodes the symbol map and writes it to mapPath. The file is not
// created if encoding fails.
func (m *Map) WriteFile(mapPath string) error {
	buf, err := m.Encode()
	if err != nil {
		return err
	}
	return errors.WithStack(os.WriteFile(mapPath, buf, 0644))
}
