// Package backend defines the compiler capability the build coordinator
// drives for each device.
//
// A Compiler turns source text or IR into device artifacts and links
// artifacts together. The coordinator treats it as a black box invoked
// synchronously once per targeted device; implementations must be safe for
// concurrent calls on different devices.
package backend

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/clprog/internal/device"
)

// BinaryType classifies a compiled artifact.
type BinaryType int

const (
	BinaryNone BinaryType = iota
	BinaryCompiledObject
	BinaryLibrary
	BinaryExecutable
)

var binaryTypeNames = map[BinaryType]string{
	BinaryNone:           "NONE",
	BinaryCompiledObject: "COMPILED_OBJECT",
	BinaryLibrary:        "LIBRARY",
	BinaryExecutable:     "EXECUTABLE",
}

// String implements fmt.Stringer.
func (t BinaryType) String() string {
	if s, ok := binaryTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("BinaryType(%d)", int(t))
}

// ParseBinaryType is the inverse of BinaryType.String.
func ParseBinaryType(s string) (BinaryType, error) {
	for t, name := range binaryTypeNames {
		if name == s {
			return t, nil
		}
	}
	return BinaryNone, fmt.Errorf("unknown binary type %q", s)
}

// Artifact is a compiled unit for one device.
//
// Artifacts are immutable once returned by a Compiler; the coordinator shares
// them between build records and link inputs without copying.
type Artifact struct {
	// Type is the kind of unit: compiled object, library or executable.
	Type BinaryType

	// Code is the opaque device code.
	Code []byte

	// Kernels lists the kernel entry points defined by the unit, in
	// definition order.
	Kernels []string
}


// Header is a named source text made available to #include during compile.
type Header struct {
	Name   string
	Source []byte
}

// SourceInput is the input of a build or compile from source text or IR.
// Exactly one of Text and IL is set.
type SourceInput struct {
	Text []byte
	IL   []byte

	// SpecConstants are patched into the IR before code generation.
	// Ignored for text.
	SpecConstants map[uint32][]byte

	// Options is the raw build/compile option string.
	Options string

	// Headers are the compile-time include headers. Always empty for build.
	Headers []Header
}

// Clone returns a deep copy of the input.
func (in SourceInput) Clone() SourceInput {
	out := SourceInput{
		Text:    bytes.Clone(in.Text),
		IL:      bytes.Clone(in.IL),
		Options: in.Options,
	}
	if in.SpecConstants != nil {
		out.SpecConstants = make(map[uint32][]byte, len(in.SpecConstants))
		for id, v := range in.SpecConstants {
			out.SpecConstants[id] = bytes.Clone(v)
		}
	}
	for _, h := range in.Headers {
		out.Headers = append(out.Headers, Header{Name: h.Name, Source: bytes.Clone(h.Source)})
	}
	return out
}

// SpecConstantIDs returns the ids of the spec constants in ascending order.
func (in SourceInput) SpecConstantIDs() []uint32 {
	return slices.Sorted(maps.Keys(in.SpecConstants))
}

// LinkInput is the input of a link for one device.
type LinkInput struct {
	Artifacts []*Artifact
	Options   string
}

// Result is the outcome of one backend invocation on one device.
// A nil Artifact means failure; Log explains it.
type Result struct {
	Artifact *Artifact
	Log      string
}

// OK reports whether the invocation produced an artifact.
func (r Result) OK() bool {
	return r.Artifact != nil
}

// Failed builds a failing Result with a formatted log.
func Failed(format string, args ...any) Result {
	return Result{Log: fmt.Sprintf(format, args...)}
}

// Compiler is the compiler backend capability.
type Compiler interface {
	// Name identifies the backend. It is recorded in exported binaries and
	// checked on import.
	Name() string

	// Build compiles and links source text or IR into an executable.
	Build(dev *device.Device, in SourceInput) Result

	// Compile compiles source text or IR into a compiled object.
	Compile(dev *device.Device, in SourceInput) Result

	// Link merges compiled objects and libraries into an executable or,
	// when the options request it, a library.
	Link(dev *device.Device, in LinkInput) Result

	// SpecConstantSizes returns the declared byte size of every
	// specialization constant in il.
	SpecConstantSizes(il []byte) (map[uint32]int, error)
}
