// Package source holds the three mutually exclusive origins of a program:
// textual source, intermediate representation, or per-device binaries.
//
// Source is a closed sum type. Code that depends on the origin switches on
// the concrete type (Text, IL, Binaries) and ends with a default case that
// panics, so a new variant shows up as a failing switch rather than a silent
// fallthrough.
package source

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
)

// Kind names a source variant.
type Kind string

const (
	KindText     Kind = "text"
	KindIL       Kind = "il"
	KindBinaries Kind = "binaries"
)

// Source is one of Text, IL or Binaries.
type Source interface {
	// Kind returns the variant tag.
	Kind() Kind

	sealed()
}

// Text is program source text. It never contains a NUL byte.
type Text struct {
	data []byte
}

// IL is intermediate-representation bytecode.
type IL struct {
	data []byte
}

// Binaries holds one serialized binary per device.
type Binaries struct {
	blobs map[device.ID][]byte
}

func (Text) Kind() Kind     { return KindText }
func (IL) Kind() Kind       { return KindIL }
func (Binaries) Kind() Kind { return KindBinaries }

func (Text) sealed()     {}
func (IL) sealed()       {}
func (Binaries) sealed() {}

// Bytes returns a copy of the source text.
func (t Text) Bytes() []byte { return bytes.Clone(t.data) }

// String returns the source text.
func (t Text) String() string { return string(t.data) }

// Len returns the length of the source text.
func (t Text) Len() int { return len(t.data) }

// Bytes returns a copy of the IR.
func (il IL) Bytes() []byte { return bytes.Clone(il.data) }

// Len returns the length of the IR.
func (il IL) Len() int { return len(il.data) }

// Binary returns a copy of the binary supplied for dev.
func (b Binaries) Binary(dev device.ID) ([]byte, bool) {
	blob, ok := b.blobs[dev]
	return bytes.Clone(blob), ok
}

// Devices returns the device identities with a binary, sorted.
func (b Binaries) Devices() []device.ID {
	return slices.Sorted(maps.Keys(b.blobs))
}

// Fragment is one piece of source text.
//
// Length > 0 declares the fragment length; the fragment is additionally cut
// at its first NUL. Length == 0 means no declared length: the fragment ends at
// its first NUL, or at the end of Data.
type Fragment struct {
	Data   []byte
	Length int
}

// FromString returns a fragment with no declared length.
func FromString(s string) Fragment {
	return Fragment{Data: []byte(s)}
}

// NewText concatenates fragments byte-for-byte into a Text source.
//
// Fails with InvalidValue if there are no fragments, a fragment has nil Data,
// or a declared length exceeds the data available.
func NewText(fragments []Fragment) (Text, error) {
	if len(fragments) == 0 {
		return Text{}, clerr.New(clerr.InvalidValue, "create program with source", "no source fragments")
	}

	var buf bytes.Buffer
	for i, f := range fragments {
		if f.Data == nil {
			return Text{}, clerr.New(clerr.InvalidValue, "create program with source", "fragment %d is nil", i)
		}
		if f.Length < 0 || f.Length > len(f.Data) {
			return Text{}, clerr.New(clerr.InvalidValue, "create program with source",
				"fragment %d declares length %d but holds %d bytes", i, f.Length, len(f.Data))
		}
		buf.Write(truncate(f))
	}
	return Text{data: buf.Bytes()}, nil
}

// truncate applies the declared length, then cuts at the first NUL.
func truncate(f Fragment) []byte {
	data := f.Data
	if f.Length > 0 {
		data = data[:f.Length]
	}
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return data
}

// NewIL wraps IR bytes. Fails with InvalidValue if il is empty.
func NewIL(il []byte) (IL, error) {
	if len(il) == 0 {
		return IL{}, clerr.New(clerr.InvalidValue, "create program with IL", "IL is empty")
	}
	return IL{data: bytes.Clone(il)}, nil
}

// NewBinaries captures per-device binaries. Blobs are copied; validation of
// their content is the binary codec's job.
func NewBinaries(blobs map[device.ID][]byte) Binaries {
	cp := make(map[device.ID][]byte, len(blobs))
	for id, blob := range blobs {
		cp[id] = bytes.Clone(blob)
	}
	return Binaries{blobs: cp}
}

// Describe returns a short human-readable description of src.
func Describe(src Source) string {
	switch s := src.(type) {
	case Text:
		return fmt.Sprintf("text (%d bytes)", s.Len())
	case IL:
		return fmt.Sprintf("il (%d bytes)", s.Len())
	case Binaries:
		return fmt.Sprintf("binaries for %v", s.Devices())
	default:
		panic(fmt.Sprintf("source: unhandled variant %T", src))
	}
}
