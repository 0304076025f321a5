// The map_gen tool generates symbol map files (MAP files) from binary images
// for use by trace analysis tools.
//
// Usage:
//
//    map_gen [OPTION]... FILE
//
// The input is a binary image (ELF, PE or Mach-O) or, with -nm, a symbol
// listing in the format of the nm tool.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kr/pretty"
	"github.com/mewrev/tracemap"
)

var (
	// Command line flags.
	outPath    = flag.String("o", "", "output path (default: input path with extension replaced by .map)")
	rawOffset  = flag.String("offset", "", "address offset in hex, subtracted from each symbol address (default: image base address)")
	imageName  = flag.String("name", "", "image name of the MAP header (default: base name of input file)")
	doDemangle = flag.Bool("demangle", false, "demangle C++ symbol names")
	nmListing  = flag.Bool("nm", false, "parse input as a symbol listing in the format of the nm tool")
	verbose    = flag.Bool("v", false, "dump the symbol map to standard error before encoding")
)

func usage() {
	const use = `
Generate symbol map files (MAP files) from binary images.

Usage:

	map_gen [OPTION]... FILE

Flags:
`
	fmt.Fprintln(os.Stderr, use[1:])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}
	inPath := flag.Arg(0)

	m, err := readSymbols(inPath)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if len(*imageName) > 0 {
		m.Image = *imageName
	}
	if len(*rawOffset) > 0 {
		offset, err := strconv.ParseUint(*rawOffset, 16, 64)
		if err != nil {
			log.Fatalf("invalid -offset %q; %v", *rawOffset, err)
		}
		m.Offset = offset
	}
	if *doDemangle {
		m.Demangle = tracemap.CXXFilt()
	}
	if *verbose {
		pretty.Fprintf(os.Stderr, "%# v\n", m)
	}

	mapPath := *outPath
	if len(mapPath) == 0 {
		mapPath = replaceExtension(inPath, ".map")
	}
	if err := m.WriteFile(mapPath); err != nil {
		log.Fatalf("%+v", err)
	}
}

// readSymbols reads the symbols of the input file, either from the symbol
// table of a binary image or from a symbol listing.
func readSymbols(inPath string) (*tracemap.Map, error) {
	if *nmListing {
		m, err := tracemap.ParseNMFile(inPath)
		if err != nil {
			return nil, err
		}
		m.Image = filepath.Base(inPath)
		return m, nil
	}
	img, err := tracemap.Open(inPath)
	if err != nil {
		return nil, err
	}
	return img.Map(), nil
}

// replaceExtension replaces the extension of the given file name.
func replaceExtension(fnm, ext string) string {
	return fnm[:len(fnm)-len(filepath.Ext(fnm))] + ext
}
