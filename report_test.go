package tracemap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReport(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	const data = `
Instruction 00001020: 0.9182958340544896
Instruction 00001039: 0
Heap 00000010: 1.5

Instruction 0000104a 0.25
Instruction zzzz: 0.25
Instruction 00001050: high
stray
`
	report, err := ParseReport(strings.NewReader(data))
	require.NoError(err)
	// Valid entries survive in file order; malformed lines are skipped.
	want := []*Entry{
		{Label: "Instruction", Off: 0x1020, Score: 0.9182958340544896},
		{Label: "Instruction", Off: 0x1039, Score: 0},
		{Label: "Heap", Off: 0x10, Score: 1.5},
	}
	assert.Equal(want, report.Entries)
}

func TestParseReportBytes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	report, err := ParseReportBytes([]byte("Instruction 00001020: 0.5\n"))
	require.NoError(err)
	require.Len(report.Entries, 1)
	assert.Equal(&Entry{Label: "Instruction", Off: 0x1020, Score: 0.5}, report.Entries[0])
}

func TestParseReportFile(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	reportPath := filepath.Join(t.TempDir(), "mi.txt")
	require.NoError(os.WriteFile(reportPath, []byte("Instruction 00001020: 0.5\n"), 0644))
	report, err := ParseReportFile(reportPath)
	require.NoError(err)
	require.Len(report.Entries, 1)
	assert.Equal(&Entry{Label: "Instruction", Off: 0x1020, Score: 0.5}, report.Entries[0])
}

func TestAnnotations(t *testing.T) {
	assert := assert.New(t)
	report := &Report{
		Entries: []*Entry{
			{Label: "Instruction", Off: 0x1020, Score: 0.5},
			{Label: "Instruction", Off: 0x1039, Score: 0},
			{Label: "Instruction", Off: 0x104A, Score: -0.1},
			{Label: "Instruction", Off: 0x1050, Score: 1},
		},
	}
	// Scores at or below the threshold are dropped; offsets rebase onto the
	// image base.
	anns := report.Annotations(0x140000000, 0, DefaultColor)
	want := []*Annotation{
		{Addr: 0x140001020, Comment: "MutualInformation 0.5", Color: DefaultColor},
		{Addr: 0x140001050, Comment: "MutualInformation 1", Color: DefaultColor},
	}
	assert.Equal(want, anns)

	// The threshold is strict; raising it to a score drops that score.
	anns = report.Annotations(0, 0.5, 0x00FF00)
	want = []*Annotation{
		{Addr: 0x1050, Comment: "MutualInformation 1", Color: 0x00FF00},
	}
	assert.Equal(want, anns)
}
