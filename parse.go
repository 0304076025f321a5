package tracemap

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseString parses the given symbol map file, reading from s.
func ParseString(s string) (*Map, error) {
	r := strings.NewReader(s)
	return Parse(r)
}

// ParseBytes parses the given symbol map file, reading from buf.
func ParseBytes(buf []byte) (*Map, error) {
	r := bytes.NewReader(buf)
	return Parse(r)
}

// ParseFile parses the given symbol map file, reading from mapPath.
func ParseFile(mapPath string) (*Map, error) {
	buf, err := os.ReadFile(mapPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseBytes(buf)
}

// Parse parses the given symbol map file, reading from r.
//
// Symbol addresses of the returned map are file relative; Offset is left at
// zero. Lines which do not follow the "address name" form are skipped with a
// warning.
func Parse(r io.Reader) (*Map, error) {
	// Read lines.
	lines, err := readLines(r)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	// Example contents of foo.map file:
	//
	//    foo.exe
	//    00001000 main
	//    00001090 foo(int)
	//    000010c0 std::vector<int, std::allocator<int> >::push_back(int const&)
	m := &Map{}
	for i, line := range lines {
		switch {
		// Name of binary image.
		case i == 0:
			m.Image = line // first line is the image name.
		case len(line) == 0:
			// skip empty lines.
		default:
			// 00001000 main
			sym, err := parseSymbol(line)
			if err != nil {
				warn.Printf("skipping symbol line %q: %v", line, err)
				continue
			}
			m.Syms = append(m.Syms, sym)
		}
	}
	return m, nil
}

// parseSymbol parses the string representation of the given symbol.
func parseSymbol(s string) (*Symbol, error) {
	// Example:
	//
	//    00001090 foo(int)
	//
	// The name runs to the end of the line; demangled names contain spaces.
	rawAddr, name, ok := strings.Cut(s, " ")
	if !ok {
		return nil, errors.Errorf("missing space between address and name in %q", s)
	}
	addr, err := strconv.ParseUint(rawAddr, 16, 64)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Symbol{Addr: addr, Name: name}, nil
}

// readLines reads and returns the lines of r, trimming spaces of each line.
func readLines(r io.Reader) ([]string, error) {
	s := bufio.NewScanner(r)
	var lines []string
	for s.Scan() {
		line := s.Text()
		line = strings.TrimSpace(line)
		lines = append(lines, line)
	}
	if err := s.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return lines, nil
}
