package tracemap

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseNM parses a symbol listing in the format of the nm tool, reading from
// r.
//
// Example listing:
//
//    0000000000401000 T main
//    0000000000401090 t helper        [mymodule]
//
// The address, a type letter and the symbol name are required; any further
// fields (such as the module of a /proc/kallsyms line) are ignored. Lines not
// following this form are skipped with a warning. The listing order is
// preserved.
func ParseNM(r io.Reader) (*Map, error) {
	m := &Map{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 {
			continue
		}
		// 0000000000401000 T main
		fields := strings.Fields(line)
		if len(fields) < 3 {
			warn.Printf("skipping symbol listing line %q; expected at least 3 fields, got %d", line, len(fields))
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			warn.Printf("skipping symbol listing line %q; invalid address %q", line, fields[0])
			continue
		}
		m.Syms = append(m.Syms, &Symbol{Addr: addr, Name: fields[2]})
	}
	if err := s.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return m, nil
}

// ParseNMFile parses a symbol listing in the format of the nm tool, reading
// from nmPath. The image name of the returned map is left empty.
func ParseNMFile(nmPath string) (*Map, error) {
	f, err := os.Open(nmPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	return ParseNM(f)
}
