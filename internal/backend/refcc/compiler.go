package refcc

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/canonical"
	"github.com/roach88/clprog/internal/device"
)

// Name is the backend name recorded in exported binaries.
const Name = "refcc"

// Compiler implements backend.Compiler.
// Thread-safety: Compiler is stateless and safe for concurrent use.
type Compiler struct{}

var _ backend.Compiler = Compiler{}

// New returns the reference compiler.
func New() Compiler {
	return Compiler{}
}

// Name implements backend.Compiler.
func (Compiler) Name() string { return Name }

// SpecConstantSizes implements backend.Compiler.
func (Compiler) SpecConstantSizes(il []byte) (map[uint32]int, error) {
	m, err := parseIL(il)
	if err != nil {
		return nil, err
	}
	return m.sizes, nil
}

// Compile implements backend.Compiler.
func (c Compiler) Compile(dev *device.Device, in backend.SourceInput) backend.Result {
	opts, err := ParseOptions(in.Options)
	if err != nil {
		return backend.Failed("%v\n", err)
	}
	if klog.V(2).Enabled() {
		klog.Infof("refcc: compiling %d text bytes, %d IL bytes for %s with %q", len(in.Text), len(in.IL), dev.ID(), in.Options)
	}
	if in.IL != nil {
		return c.compileIL(dev, opts, in)
	}
	return c.compileText(dev, opts, in)
}

// Build implements backend.Compiler: compile followed by a single-unit link.
func (c Compiler) Build(dev *device.Device, in backend.SourceInput) backend.Result {
	compiled := c.Compile(dev, backend.SourceInput{
		Text:          in.Text,
		IL:            in.IL,
		SpecConstants: in.SpecConstants,
		Options:       in.Options,
	})
	if !compiled.OK() {
		return compiled
	}

	opts, _ := ParseOptions(in.Options)
	opts.CreateLibrary = false
	linked := link(dev, opts, []*backend.Artifact{compiled.Artifact})
	linked.Log = compiled.Log + linked.Log
	return linked
}

// Link implements backend.Compiler.
func (c Compiler) Link(dev *device.Device, in backend.LinkInput) backend.Result {
	opts, err := ParseOptions(in.Options)
	if err != nil {
		return backend.Failed("%v\n", err)
	}
	return link(dev, opts, in.Artifacts)
}

func (c Compiler) compileText(dev *device.Device, opts *Options, in backend.SourceInput) backend.Result {
	u := preprocess(dev, opts, in.Text, in.Headers)
	if u.diags.errors > 0 {
		return backend.Result{Log: u.diags.String()}
	}

	code, err := canonical.Marshal(map[string]any{
		"defines": opts.Defines,
		"device":  string(dev.ID()),
		"kernels": nonNil(u.kernels),
		"kind":    "text",
		"source":  string(u.text),
		"std":     opts.Std,
	})
	if err != nil {
		return backend.Failed("internal error: %v\n", err)
	}
	return backend.Result{
		Artifact: &backend.Artifact{
			Type:    backend.BinaryCompiledObject,
			Code:    code,
			Kernels: u.kernels,
		},
		Log: u.diags.String(),
	}
}

func (c Compiler) compileIL(dev *device.Device, opts *Options, in backend.SourceInput) backend.Result {
	m, err := parseIL(in.IL)
	if err != nil {
		return backend.Failed("error: invalid IL module: %v\n", err)
	}

	values := make(map[string]any, len(m.sizes))
	for id, def := range m.defaults {
		values[strconv.FormatUint(uint64(id), 10)] = hex.EncodeToString(def)
	}
	for _, id := range in.SpecConstantIDs() {
		v := in.SpecConstants[id]
		size, ok := m.sizes[id]
		if !ok {
			return backend.Failed("error: specialization constant %d is not declared by the module\n", id)
		}
		if len(v) != size {
			return backend.Failed("error: specialization constant %d expects %d bytes, got %d\n", id, size, len(v))
		}
		values[strconv.FormatUint(uint64(id), 10)] = hex.EncodeToString(v)
	}

	code, err := canonical.Marshal(map[string]any{
		"defines":        opts.Defines,
		"device":         string(dev.ID()),
		"kernels":        nonNil(m.kernels),
		"kind":           "il",
		"spec_constants": values,
		"std":            opts.Std,
	})
	if err != nil {
		return backend.Failed("internal error: %v\n", err)
	}
	return backend.Result{
		Artifact: &backend.Artifact{
			Type:    backend.BinaryCompiledObject,
			Code:    code,
			Kernels: m.kernels,
		},
	}
}

// link merges compiled objects and libraries.
func link(dev *device.Device, opts *Options, inputs []*backend.Artifact) backend.Result {
	if len(inputs) == 0 {
		return backend.Failed("error: no input files\n")
	}

	var kernels []string
	units := make([]any, 0, len(inputs))
	for i, in := range inputs {
		switch in.Type {
		case backend.BinaryCompiledObject, backend.BinaryLibrary:
		default:
			return backend.Failed("error: input %d: cannot link %s\n", i, in.Type)
		}
		for _, k := range in.Kernels {
			if slices.Contains(kernels, k) {
				return backend.Failed("error: duplicate symbol '%s'\n", k)
			}
			kernels = append(kernels, k)
		}
		units = append(units, string(in.Code))
	}

	out := backend.BinaryExecutable
	if opts.CreateLibrary {
		out = backend.BinaryLibrary
	}
	code, err := canonical.Marshal(map[string]any{
		"device":  string(dev.ID()),
		"kernels": nonNil(kernels),
		"type":    out.String(),
		"units":   units,
	})
	if err != nil {
		return backend.Failed("internal error: %v\n", err)
	}
	return backend.Result{
		Artifact: &backend.Artifact{
			Type:    out,
			Code:    code,
			Kernels: kernels,
		},
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// String implements fmt.Stringer.
func (Compiler) String() string {
	return fmt.Sprintf("%s reference compiler", Name)
}
