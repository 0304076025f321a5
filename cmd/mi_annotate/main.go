// The mi_annotate tool converts mutual information reports of trace analysis
// tools into IDC annotation scripts for IDA.
//
// Usage:
//
//    mi_annotate [OPTION]... REPORT
//
// Addresses with a leaking instruction receive a "MutualInformation score"
// comment and an item highlight color.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/kr/pretty"
	"github.com/mewrev/tracemap"
)

var (
	// Command line flags.
	imgPath   = flag.String("image", "", "binary image the report was produced for; provides the base address and instruction context")
	rawBase   = flag.String("base", "", "image base address in hex, added to each report offset (default: base address of -image, or 0)")
	threshold = flag.Float64("threshold", 0, "annotate only scores strictly above this value")
	rawColor  = flag.String("color", "", "item color in hex 0xBBGGRR encoding (default: ffff00)")
	outPath   = flag.String("o", "", "output path of IDC script (default: standard output)")
	listing   = flag.Bool("print", false, "print an annotation listing instead of an IDC script")
	verbose   = flag.Bool("v", false, "dump the parsed report to standard error")
)

func usage() {
	const use = `
Convert mutual information reports into IDC annotation scripts.

Usage:

	mi_annotate [OPTION]... REPORT

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

	report, err := tracemap.ParseReportFile(flag.Arg(0))
	if err != nil {
		log.Fatalf("%+v", err)
	}
	if *verbose {
		pretty.Fprintf(os.Stderr, "%# v\n", report)
	}

	var img *tracemap.Image
	if len(*imgPath) > 0 {
		img, err = tracemap.Open(*imgPath)
		if err != nil {
			log.Fatalf("%+v", err)
		}
	}
	var base uint64
	if img != nil {
		base = img.Base
	}
	if len(*rawBase) > 0 {
		base, err = strconv.ParseUint(*rawBase, 16, 64)
		if err != nil {
			log.Fatalf("invalid -base %q; %v", *rawBase, err)
		}
	}
	itemColor := uint32(tracemap.DefaultColor)
	if len(*rawColor) > 0 {
		c, err := strconv.ParseUint(*rawColor, 16, 32)
		if err != nil {
			log.Fatalf("invalid -color %q; %v", *rawColor, err)
		}
		itemColor = uint32(c)
	}

	anns := report.Annotations(base, *threshold, itemColor)
	if *listing {
		printListing(anns, img)
		return
	}
	if err := writeScript(anns, *outPath); err != nil {
		log.Fatalf("%+v", err)
	}
}

// writeScript renders the annotations as an IDC script and writes it to
// outPath, or to standard output if outPath is empty.
func writeScript(anns []*tracemap.Annotation, outPath string) error {
	script := &tracemap.IDCScript{}
	if err := tracemap.Apply(script, anns); err != nil {
		return err
	}
	w := os.Stdout
	if len(outPath) > 0 {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := script.WriteTo(w)
	return err
}

// printListing prints the annotations for human consumption, one address per
// line with the covering symbol and the instruction at the address when the
// image provides them.
func printListing(anns []*tracemap.Annotation, img *tracemap.Image) {
	for _, ann := range anns {
		line := color.YellowString("%08x", ann.Addr) + "  " + ann.Comment
		if img != nil {
			if sym, ok := img.Resolve(ann.Addr); ok {
				loc := sym.Name
				if delta := ann.Addr - sym.Addr; delta != 0 {
					loc = fmt.Sprintf("%s+0x%x", sym.Name, delta)
				}
				line += color.GreenString("  %s", loc)
			}
			if inst, ok := img.Disasm(ann.Addr); ok {
				line += color.WhiteString("  %s", inst)
			}
		}
		fmt.Println(line)
	}
}
