package tracemap

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeDemangler returns a demangler backed by a lookup table; names missing
// from the table fail to demangle.
func fakeDemangler(table map[string]string) Demangler {
	return func(name string) (string, error) {
		s, ok := table[name]
		if !ok {
			return "", errors.New("not a mangled name")
		}
		return s, nil
	}
}

func TestEffectiveName(t *testing.T) {
	assert := assert.New(t)
	d := fakeDemangler(map[string]string{
		"_Z3fooi": "foo(int)",
		"_Z3barv": "bar()",
		"_Zempty": "",
	})
	tests := []struct {
		name string
		d    Demangler
		want string
	}{
		// nil demangler leaves names untouched.
		{"main", nil, "main"},
		{"_Z3fooi", nil, "_Z3fooi"},
		// plain success.
		{"_Z3fooi", d, "foo(int)"},
		// ".cold" suffix comes off before demangling and is not restored.
		{"_Z3fooi.cold", d, "foo(int)"},
		{"_Z3barv.cold", d, "bar()"},
		// only the final ".cold" comes off.
		{"_Z3barv.cold.cold", d, "_Z3barv.cold.cold"},
		// failure falls back to the original name.
		{"local_thing", d, "local_thing"},
		// the stripped suffix does not leak into the fallback.
		{"local_thing.cold", d, "local_thing.cold"},
		// an empty result counts as failure.
		{"_Zempty", d, "_Zempty"},
		{".cold", d, ".cold"},
	}
	for _, test := range tests {
		got := EffectiveName(test.name, test.d)
		assert.Equal(test.want, got, "name %q", test.name)
	}
}

func TestCXXFilt(t *testing.T) {
	assert := assert.New(t)
	d := CXXFilt()

	got, err := d("_Z3fooi")
	assert.NoError(err)
	assert.Equal("foo(int)", got)

	got, err = d("_Z7computev")
	assert.NoError(err)
	assert.Equal("compute()", got)

	// Plain names do not demangle.
	_, err = d("main")
	assert.Error(err)

	// The raw ".cold" suffix defeats the demangler; EffectiveName strips it
	// first.
	_, err = d("_Z3fooi.cold")
	assert.Error(err)
	assert.Equal("foo(int)", EffectiveName("_Z3fooi.cold", d))
}
