package refcc

import (
	"encoding/binary"
	"fmt"
	"slices"
	"strconv"

	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ILError is an error found while reading an IR module.
type ILError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ILError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%d:%d: %s: %s", e.Pos.Line(), e.Pos.Column(), e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ilModule is the decoded form of a CUE IR module.
type ilModule struct {
	Kernels       []string                  `json:"kernels"`
	SpecConstants map[string]ilSpecConstant `json:"spec_constants"`
}

type ilSpecConstant struct {
	Size    int    `json:"size"`
	Default *int64 `json:"default,omitempty"`
}

// module is a validated IR module.
type module struct {
	kernels  []string
	sizes    map[uint32]int
	defaults map[uint32][]byte
}

// parseIL compiles and validates an IR module.
func parseIL(il []byte) (*module, error) {
	v := cuecontext.New().CompileBytes(il)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if err := v.Validate(); err != nil {
		return nil, formatCUEError(err)
	}

	var raw ilModule
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}

	m := &module{
		sizes:    make(map[uint32]int, len(raw.SpecConstants)),
		defaults: make(map[uint32][]byte, len(raw.SpecConstants)),
	}
	for i, k := range raw.Kernels {
		if k == "" {
			return nil, &ILError{Field: "kernels", Message: fmt.Sprintf("kernel %d has an empty name", i)}
		}
		if slices.Contains(m.kernels, k) {
			return nil, &ILError{Field: "kernels", Message: fmt.Sprintf("duplicate kernel %q", k)}
		}
		m.kernels = append(m.kernels, k)
	}

	for label, sc := range raw.SpecConstants {
		id, err := strconv.ParseUint(label, 10, 32)
		if err != nil {
			return nil, &ILError{Field: "spec_constants", Message: fmt.Sprintf("invalid id %q", label)}
		}
		switch sc.Size {
		case 1, 2, 4, 8:
		default:
			return nil, &ILError{Field: "spec_constants", Message: fmt.Sprintf("constant %d has unsupported size %d", id, sc.Size)}
		}
		m.sizes[uint32(id)] = sc.Size
		var def int64
		if sc.Default != nil {
			def = *sc.Default
		}
		m.defaults[uint32(id)] = encodeConstant(def, sc.Size)
	}
	return m, nil
}

// encodeConstant lays out v little-endian in size bytes.
func encodeConstant(v int64, size int) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return slices.Clone(buf[:size])
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := cueerrors.Positions(first)
	if len(positions) > 0 {
		return &ILError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return &ILError{Field: "cue", Message: first.Error()}
}
