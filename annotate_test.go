package tracemap

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mockAnnotator records annotation calls and can be armed to fail at a given
// address.
type mockAnnotator struct {
	calls    []string
	failAddr uint64
}

func (m *mockAnnotator) SetComment(addr uint64, comment string) error {
	if m.failAddr != 0 && addr == m.failAddr {
		return errors.New("database locked")
	}
	m.calls = append(m.calls, fmt.Sprintf("MakeComm 0x%x %s", addr, comment))
	return nil
}

func (m *mockAnnotator) SetColor(addr uint64, color uint32) error {
	m.calls = append(m.calls, fmt.Sprintf("SetColor 0x%x 0x%06x", addr, color))
	return nil
}

func TestApply(t *testing.T) {
	assert := assert.New(t)
	anns := []*Annotation{
		{Addr: 0x1000, Comment: "MutualInformation 0.5", Color: 0xFFFF00},
		{Addr: 0x2000, Comment: "MutualInformation 1", Color: 0xFFFF00},
	}
	mock := &mockAnnotator{}
	assert.NoError(Apply(mock, anns))
	// For each annotation the comment lands before the color.
	want := []string{
		"MakeComm 0x1000 MutualInformation 0.5",
		"SetColor 0x1000 0xffff00",
		"MakeComm 0x2000 MutualInformation 1",
		"SetColor 0x2000 0xffff00",
	}
	assert.Equal(want, mock.calls)
}

func TestApplyAbortsOnError(t *testing.T) {
	assert := assert.New(t)
	anns := []*Annotation{
		{Addr: 0x1000, Comment: "a", Color: 1},
		{Addr: 0x2000, Comment: "b", Color: 2},
		{Addr: 0x3000, Comment: "c", Color: 3},
	}
	mock := &mockAnnotator{failAddr: 0x2000}
	err := Apply(mock, anns)
	assert.Error(err)
	// The failing second annotation aborts the run before its color call and
	// before the third annotation.
	want := []string{
		"MakeComm 0x1000 a",
		"SetColor 0x1000 0x000001",
	}
	assert.Equal(want, mock.calls)
}

func TestIDCScript(t *testing.T) {
	assert := assert.New(t)
	anns := []*Annotation{
		{Addr: 0x140001020, Comment: "MutualInformation 0.9182958340544896", Color: 0xFFFF00},
		{Addr: 0x140001050, Comment: `quote " me`, Color: 0x00FF00},
	}
	script := &IDCScript{}
	assert.NoError(Apply(script, anns))
	const want = `#include <idc.idc>

static main() {
	MakeComm(0x140001020, "MutualInformation 0.9182958340544896");
	SetColor(0x140001020, CIC_ITEM, 0xffff00);
	MakeComm(0x140001050, "quote \" me");
	SetColor(0x140001050, CIC_ITEM, 0x00ff00);
}
`
	assert.Equal(want, string(script.Bytes()))

	buf := &bytes.Buffer{}
	n, err := script.WriteTo(buf)
	assert.NoError(err)
	assert.Equal(int64(buf.Len()), n)
	assert.Equal(want, buf.String())
}

func TestIDCScriptEmpty(t *testing.T) {
	assert := assert.New(t)
	script := &IDCScript{}
	const want = `#include <idc.idc>

static main() {
}
`
	assert.Equal(want, string(script.Bytes()))
}
