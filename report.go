package tracemap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Report is a mutual information report, as produced by side-channel trace
// analysis.
type Report struct {
	// Entries in file order.
	Entries []*Entry
}

// Entry is a single record of a mutual information report; a leakage score
// for one instruction of the analyzed image.
type Entry struct {
	// Label of the record (e.g. "Instruction").
	Label string
	// Image relative address of the instruction.
	Off uint64
	// Mutual information score in bits; higher means more leakage.
	Score float64
}

// ParseReportBytes parses the given mutual information report, reading from
// buf.
func ParseReportBytes(buf []byte) (*Report, error) {
	r := bytes.NewReader(buf)
	return ParseReport(r)
}

// ParseReportFile parses the given mutual information report, reading from
// reportPath.
func ParseReportFile(reportPath string) (*Report, error) {
	buf, err := os.ReadFile(reportPath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseReportBytes(buf)
}

// ParseReport parses a mutual information report, reading from r. Lines not
// following the "label offset: score" form are skipped with a warning.
func ParseReport(r io.Reader) (*Report, error) {
	// Example contents of a mutual information report:
	//
	//    Instruction 00001020: 0.9182958340544896
	//    Instruction 00001039: 0
	//
	// The offset is relative to the image base and carries a trailing colon.
	report := &Report{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			warn.Printf("skipping report line %q: %v", line, err)
			continue
		}
		report.Entries = append(report.Entries, e)
	}
	if err := s.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return report, nil
}

// parseEntry parses the string representation of the given report entry.
func parseEntry(s string) (*Entry, error) {
	// Example:
	//
	//    Instruction 00001020: 0.9182958340544896
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return nil, errors.Errorf("expected 3 fields, got %d", len(fields))
	}
	rawOff, ok := strings.CutSuffix(fields[1], ":")
	if !ok {
		return nil, errors.Errorf("missing trailing colon in offset field %q", fields[1])
	}
	off, err := strconv.ParseUint(rawOff, 16, 64)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	score, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Entry{Label: fields[0], Off: off, Score: score}, nil
}

// Annotations converts the report into annotations of a loaded image. base is
// added to the offset of each entry; entries with a score at or below
// threshold are dropped. Each annotation carries a "MutualInformation score"
// comment and the given item color.
func (r *Report) Annotations(base uint64, threshold float64, color uint32) []*Annotation {
	var anns []*Annotation
	for _, e := range r.Entries {
		if e.Score <= threshold {
			continue
		}
		ann := &Annotation{
			Addr:    base + e.Off,
			Comment: fmt.Sprintf("MutualInformation %v", e.Score),
			Color:   color,
		}
		anns = append(anns, ann)
	}
	return anns
}
