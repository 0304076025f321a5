// Package tracemap generates and parses symbol map files (MAP file format)
// consumed by binary trace analysis tools.
package tracemap

import (
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
)

var (
	// dbg is a logger with the "tracemap:" prefix which logs debug messages to
	// standard error.
	dbg = log.New(os.Stderr, term.CyanBold("tracemap:")+" ", 0)
	// warn is a logger with the "tracemap:" prefix which logs warning messages
	// to standard error.
	warn = log.New(os.Stderr, term.RedBold("tracemap:")+" ", 0)
)

// Note: this package supports the MAP file dialect consumed by side-channel
// trace analysis tools (e.g. Microwalk); a single header line holding the
// image name, followed by one "address name" line per symbol. For the MAP
// file format produced by linkers, see github.com/mewrev/mapfile.
