// Package binfmt is the binary codec: it serializes one device's compiled
// artifact, with the metadata needed to restore its build record, into an
// opaque buffer, and validates such buffers on import.
//
// Layout (integers little-endian):
//
//	magic "CLPB" | u16 version | u32 header length | header
//	| u32 payload length | payload | blake3-256 of all preceding bytes
//
// The header is JSON with the log and options carried as base64 so they
// round-trip byte for byte, including invalid UTF-8. The payload is the
// zstd-compressed device code. Encoding is deterministic, so Size always
// equals len(Encode).
package binfmt

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
)

const (
	// Magic opens every binary.
	Magic = "CLPB"

	// Version is the current layout version.
	Version uint16 = 1

	// FormatTag identifies the header schema.
	FormatTag = "clprog-binary"

	checksumSize = 32
	minSize      = len(Magic) + 2 + 4 + 4 + checksumSize
	maxCodeSize  = 256 << 20
)

// Record is the exportable state of one device's build record.
type Record struct {
	Device     device.ID
	Backend    string
	Status     string
	BinaryType backend.BinaryType
	Options    string
	Log        string
	Artifact   *backend.Artifact
}

type header struct {
	Backend    string   `json:"backend"`
	BinaryType string   `json:"binary_type"`
	CodeSize   int      `json:"code_size"`
	Device     string   `json:"device"`
	Format     string   `json:"format"`
	Kernels    []string `json:"kernels"`
	Log        []byte   `json:"log"`
	Options    []byte   `json:"options"`
	Status     string   `json:"status"`
}

var (
	encoderOnce = sync.OnceValues(func() (*zstd.Encoder, error) {
		return zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1))
	})
	decoderOnce = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	})
)

// Encode serializes rec. The record must carry an artifact.
func Encode(rec Record) ([]byte, error) {
	if rec.Artifact == nil {
		return nil, fmt.Errorf("encode binary for %s: no artifact", rec.Device)
	}
	if rec.BinaryType == backend.BinaryNone {
		return nil, fmt.Errorf("encode binary for %s: binary type is NONE", rec.Device)
	}

	kernels := rec.Artifact.Kernels
	if kernels == nil {
		kernels = []string{}
	}
	hdr, err := json.Marshal(header{
		Backend:    rec.Backend,
		BinaryType: rec.BinaryType.String(),
		CodeSize:   len(rec.Artifact.Code),
		Device:     string(rec.Device),
		Format:     FormatTag,
		Kernels:    kernels,
		Log:        []byte(rec.Log),
		Options:    []byte(rec.Options),
		Status:     rec.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("encode binary header: %w", err)
	}

	enc, err := encoderOnce()
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	payload := enc.EncodeAll(rec.Artifact.Code, nil)

	var buf bytes.Buffer
	buf.Grow(minSize + len(hdr) + len(payload))
	buf.WriteString(Magic)
	buf.Write(binary.LittleEndian.AppendUint16(nil, Version))
	buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(hdr))))
	buf.Write(hdr)
	buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(payload))))
	buf.Write(payload)

	sum := blake3.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// Size returns the length Encode produces for rec, or 0 when rec has no
// artifact.
func Size(rec Record) int {
	data, err := Encode(rec)
	if err != nil {
		return 0
	}
	return len(data)
}

// Decode validates data as a binary for dev produced by backendName and
// returns the restored record. Every failure is an InvalidBinary error
// scoped to dev.
func Decode(data []byte, dev device.ID, backendName string) (*Record, error) {
	invalid := func(format string, args ...any) error {
		return clerr.ForDevice(clerr.InvalidBinary, "import binary", string(dev), format, args...)
	}

	if len(data) == 0 {
		return nil, invalid("binary is empty")
	}
	if len(data) < minSize {
		return nil, invalid("binary is truncated (%d bytes)", len(data))
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, invalid("bad magic")
	}

	body, sum := data[:len(data)-checksumSize], data[len(data)-checksumSize:]
	want := blake3.Sum256(body)
	if !bytes.Equal(want[:], sum) {
		return nil, invalid("checksum mismatch")
	}

	r := reader{data: body, off: len(Magic)}
	version := r.uint16()
	if version != Version {
		return nil, invalid("unsupported version %d", version)
	}
	hdrBytes := r.chunk()
	payload := r.chunk()
	if r.err != nil {
		return nil, invalid("bad framing: %v", r.err)
	}
	if r.off != len(body) {
		return nil, invalid("bad framing: %d trailing bytes", len(body)-r.off)
	}

	var hdr header
	if err := json.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, invalid("bad header: %v", err)
	}
	if hdr.Format != FormatTag {
		return nil, invalid("unknown format %q", hdr.Format)
	}
	if hdr.Device != string(dev) {
		return nil, invalid("binary targets device %q", hdr.Device)
	}
	if hdr.Backend != backendName {
		return nil, invalid("binary produced by backend %q, want %q", hdr.Backend, backendName)
	}
	bt, err := backend.ParseBinaryType(hdr.BinaryType)
	if err != nil || bt == backend.BinaryNone {
		return nil, invalid("bad binary type %q", hdr.BinaryType)
	}
	if hdr.CodeSize < 0 || hdr.CodeSize > maxCodeSize {
		return nil, invalid("bad code size %d", hdr.CodeSize)
	}

	dec, err := decoderOnce()
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	code, err := dec.DecodeAll(payload, make([]byte, 0, hdr.CodeSize))
	if err != nil {
		return nil, invalid("bad payload: %v", err)
	}
	if len(code) != hdr.CodeSize {
		return nil, invalid("payload holds %d bytes, header declares %d", len(code), hdr.CodeSize)
	}

	return &Record{
		Device:     dev,
		Backend:    hdr.Backend,
		Status:     hdr.Status,
		BinaryType: bt,
		Options:    string(hdr.Options),
		Log:        string(hdr.Log),
		Artifact: &backend.Artifact{
			Type:    bt,
			Code:    code,
			Kernels: slices.Clone(hdr.Kernels),
		},
	}, nil
}

// Digest returns the blake3-256 digest of an encoded binary.
func Digest(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// reader walks length-prefixed chunks. The first failure sticks in err.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) uint16() uint16 {
	if r.err != nil || r.off+2 > len(r.data) {
		r.fail()
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *reader) chunk() []byte {
	if r.err != nil || r.off+4 > len(r.data) {
		r.fail()
		return nil
	}
	n := int(binary.LittleEndian.Uint32(r.data[r.off:]))
	r.off += 4
	if n < 0 || n > len(r.data)-r.off {
		r.fail()
		return nil
	}
	c := r.data[r.off : r.off+n]
	r.off += n
	return c
}

func (r *reader) fail() {
	if r.err == nil {
		r.err = fmt.Errorf("unexpected end of data at offset %d", r.off)
	}
}
