package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryType_String(t *testing.T) {
	for _, bt := range []BinaryType{BinaryNone, BinaryCompiledObject, BinaryLibrary, BinaryExecutable} {
		parsed, err := ParseBinaryType(bt.String())
		require.NoError(t, err)
		assert.Equal(t, bt, parsed)
	}
	assert.Equal(t, "BinaryType(9)", BinaryType(9).String())

	_, err := ParseBinaryType("OBJECT")
	assert.Error(t, err)
}

func TestSourceInput_Clone(t *testing.T) {
	in := SourceInput{
		IL:            []byte("il"),
		SpecConstants: map[uint32][]byte{3: {1}, 1: {2, 0}},
		Options:       "-w",
		Headers:       []Header{{Name: "h.h", Source: []byte("x")}},
	}
	out := in.Clone()
	out.SpecConstants[3][0] = 9
	out.Headers[0].Source[0] = 'y'

	assert.Equal(t, []byte{1}, in.SpecConstants[3])
	assert.Equal(t, []byte("x"), in.Headers[0].Source)
	assert.Equal(t, []uint32{1, 3}, in.SpecConstantIDs())
}

func TestResult(t *testing.T) {
	assert.False(t, Failed("error: %s", "boom").OK())
	assert.Equal(t, "error: boom", Failed("error: %s", "boom").Log)
	assert.True(t, Result{Artifact: &Artifact{}}.OK())
}
