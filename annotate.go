package tracemap

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/errors"
)

// DefaultColor is the item color attached to annotated addresses, in the
// 0xBBGGRR encoding of IDA (cyan highlight).
const DefaultColor = 0xFFFF00

// Annotation attaches a comment and an item color to a single address of an
// analysis database.
type Annotation struct {
	// Address to annotate.
	Addr uint64
	// Comment attached to the address.
	Comment string
	// Item color of the address.
	Color uint32
}

// Annotator applies annotations to an analysis database. Apply issues calls
// sequentially; implementations need not be safe for concurrent use.
type Annotator interface {
	// SetComment attaches a comment to the given address.
	SetComment(addr uint64, comment string) error
	// SetColor sets the item color of the given address.
	SetColor(addr uint64, color uint32) error
}

// Apply applies the given annotations to a, for each annotation the comment
// first and then the color. The first failing call aborts the run.
func Apply(a Annotator, anns []*Annotation) error {
	for _, ann := range anns {
		if err := a.SetComment(ann.Addr, ann.Comment); err != nil {
			return errors.Wrapf(err, "annotating address 0x%x", ann.Addr)
		}
		if err := a.SetColor(ann.Addr, ann.Color); err != nil {
			return errors.Wrapf(err, "annotating address 0x%x", ann.Addr)
		}
	}
	return nil
}

// IDCScript is an Annotator which records annotations as an IDC script, to be
// run inside the IDA instance holding the analysis database.
//
// Example script:
//
//    #include <idc.idc>
//
//    static main() {
//    	MakeComm(0x00401020, "MutualInformation 0.5");
//    	SetColor(0x00401020, CIC_ITEM, 0xffff00);
//    }
type IDCScript struct {
	stmts []string
}

// compile time check that IDCScript implements the Annotator interface.
var _ Annotator = (*IDCScript)(nil)

// SetComment records a MakeComm statement for the given address.
func (script *IDCScript) SetComment(addr uint64, comment string) error {
	stmt := fmt.Sprintf("MakeComm(0x%08x, %s);", addr, strconv.Quote(comment))
	script.stmts = append(script.stmts, stmt)
	return nil
}

// SetColor records a SetColor statement for the item at the given address.
func (script *IDCScript) SetColor(addr uint64, color uint32) error {
	stmt := fmt.Sprintf("SetColor(0x%08x, CIC_ITEM, 0x%06x);", addr, color)
	script.stmts = append(script.stmts, stmt)
	return nil
}

// Bytes returns the rendered IDC script.
func (script *IDCScript) Bytes() []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("#include <idc.idc>\n")
	buf.WriteString("\n")
	buf.WriteString("static main() {\n")
	for _, stmt := range script.stmts {
		fmt.Fprintf(buf, "\t%s\n", stmt)
	}
	buf.WriteString("}\n")
	return buf.Bytes()
}

// WriteTo writes the rendered IDC script to w.
func (script *IDCScript) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(script.Bytes())
	return int64(n), errors.WithStack(err)
}
