// Package testutil provides deterministic collaborators for tests.
package testutil

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/device"
)

// FakeCompilerName is the backend name of FakeCompiler.
const FakeCompilerName = "fake"

// FakeCompiler is a backend.Compiler that succeeds or fails per device as
// configured and records every call.
//
// Successful artifacts define the configured kernels; their code encodes the
// device, options and input so distinct inputs yield distinct binaries. Logs
// name the options, so a rebuild with new options yields a new log.
//
// Thread-safety: FakeCompiler is safe for concurrent use via internal mutex.
type FakeCompiler struct {
	mu        sync.Mutex
	kernels   []string
	fail      map[device.ID]string
	specSizes map[uint32]int
	calls     map[string]int
	inputs    map[device.ID]backend.SourceInput
	links     map[device.ID]backend.LinkInput
}

var _ backend.Compiler = (*FakeCompiler)(nil)

// NewFakeCompiler creates a compiler whose artifacts define kernels.
func NewFakeCompiler(kernels ...string) *FakeCompiler {
	return &FakeCompiler{
		kernels:   kernels,
		fail:      make(map[device.ID]string),
		specSizes: make(map[uint32]int),
		calls:     make(map[string]int),
		inputs:    make(map[device.ID]backend.SourceInput),
		links:     make(map[device.ID]backend.LinkInput),
	}
}

// FailOn makes every call on dev fail with log.
func (f *FakeCompiler) FailOn(dev device.ID, log string) *FakeCompiler {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[dev] = log
	return f
}

// Heal makes calls on dev succeed again.
func (f *FakeCompiler) Heal(dev device.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.fail, dev)
}

// WithSpecConstant declares a specialization constant for every IL module.
func (f *FakeCompiler) WithSpecConstant(id uint32, size int) *FakeCompiler {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specSizes[id] = size
	return f
}

// Calls returns how often op ("build", "compile", "link") was invoked.
func (f *FakeCompiler) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls returns the number of build, compile and link invocations.
func (f *FakeCompiler) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["build"] + f.calls["compile"] + f.calls["link"]
}

// LastInput returns the most recent build or compile input seen for dev.
func (f *FakeCompiler) LastInput(dev device.ID) backend.SourceInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[dev].Clone()
}

// LastLink returns the most recent link input seen for dev.
func (f *FakeCompiler) LastLink(dev device.ID) backend.LinkInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links[dev]
}

// Name implements backend.Compiler.
func (f *FakeCompiler) Name() string { return FakeCompilerName }

// SpecConstantSizes implements backend.Compiler.
func (f *FakeCompiler) SpecConstantSizes([]byte) (map[uint32]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint32]int, len(f.specSizes))
	for id, size := range f.specSizes {
		out[id] = size
	}
	return out, nil
}

// Build implements backend.Compiler.
func (f *FakeCompiler) Build(dev *device.Device, in backend.SourceInput) backend.Result {
	return f.source("build", backend.BinaryExecutable, dev, in)
}

// Compile implements backend.Compiler.
func (f *FakeCompiler) Compile(dev *device.Device, in backend.SourceInput) backend.Result {
	return f.source("compile", backend.BinaryCompiledObject, dev, in)
}

func (f *FakeCompiler) source(op string, out backend.BinaryType, dev *device.Device, in backend.SourceInput) backend.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.inputs[dev.ID()] = in.Clone()

	if log, ok := f.fail[dev.ID()]; ok {
		return backend.Result{Log: log}
	}
	input := in.Text
	if in.IL != nil {
		input = in.IL
	}
	code := fmt.Sprintf("%s|%s|%s|%s", out, dev.ID(), in.Options, input)
	for _, id := range in.SpecConstantIDs() {
		code += fmt.Sprintf("|sc%d=%x", id, in.SpecConstants[id])
	}
	return backend.Result{
		Artifact: &backend.Artifact{Type: out, Code: []byte(code), Kernels: slices.Clone(f.kernels)},
		Log:      fmt.Sprintf("fake: %s with '%s'\n", op, in.Options),
	}
}

// Link implements backend.Compiler. Inputs must be compiled objects or
// libraries; "-create-library" produces a library.
func (f *FakeCompiler) Link(dev *device.Device, in backend.LinkInput) backend.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["link"]++
	f.links[dev.ID()] = in

	if log, ok := f.fail[dev.ID()]; ok {
		return backend.Result{Log: log}
	}
	var kernels []string
	parts := []string{}
	for i, a := range in.Artifacts {
		if a.Type != backend.BinaryCompiledObject && a.Type != backend.BinaryLibrary {
			return backend.Failed("fake: input %d is a %s\n", i, a.Type)
		}
		for _, k := range a.Kernels {
			if !slices.Contains(kernels, k) {
				kernels = append(kernels, k)
			}
		}
		parts = append(parts, string(a.Code))
	}
	out := backend.BinaryExecutable
	if slices.Contains(strings.Fields(in.Options), "-create-library") {
		out = backend.BinaryLibrary
	}
	return backend.Result{
		Artifact: &backend.Artifact{
			Type:    out,
			Code:    []byte(fmt.Sprintf("%s|%s|%s", out, dev.ID(), strings.Join(parts, "+"))),
			Kernels: kernels,
		},
		Log: fmt.Sprintf("fake: link %d inputs with '%s'\n", len(in.Artifacts), in.Options),
	}
}
