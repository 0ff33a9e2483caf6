package harness

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/config"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/program"
	"github.com/roach88/clprog/internal/source"
	"github.com/roach88/clprog/internal/store"
	"github.com/roach88/clprog/internal/testutil"
)

// ErrScenario marks a malformed flow: an undefined handle, bundle or
// kernel, or an undecodable value. Run returns it instead of a result.
var ErrScenario = errors.New("scenario error")

// IDPrefix prefixes every context and program identity in a run.
const IDPrefix = "obj"

// Harness executes one scenario.
type Harness struct {
	scenario *Scenario
	store    *store.Store
	ctx      *program.Context
	programs map[string]*program.Program
	bundles  map[string]*bundle
	kernels  map[string][]*program.Kernel // keyed by program handle + "/" + kernel
}

// bundle is the exported binaries of a program, by device.
type bundle struct {
	devices []device.ID
	blobs   [][]byte
}

func (b *bundle) blob(id device.ID) []byte {
	if i := slices.Index(b.devices, id); i >= 0 {
		return b.blobs[i]
	}
	return nil
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh context over the reference compiler,
// journaled to an in-memory database. Identities come from a sequence
// generator so repeated runs produce identical traces.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	cfg := config.Default()
	if len(scenario.Devices) > 0 {
		cfg.Devices = scenario.Devices
	}
	if scenario.MaxParallel > 0 {
		cfg.MaxParallel = scenario.MaxParallel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrScenario, err)
	}
	ctx, err := cfg.NewContext(
		program.WithIDGenerator(testutil.NewSequenceIDGenerator(IDPrefix)),
		program.WithJournal(st),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	h := &Harness{
		scenario: scenario,
		store:    st,
		ctx:      ctx,
		programs: make(map[string]*program.Program),
		bundles:  make(map[string]*bundle),
		kernels:  make(map[string][]*program.Kernel),
	}
	defer h.releaseAll()

	result := NewResult()
	for i, step := range scenario.Flow {
		ev := TraceEvent{Op: step.Op, Program: step.Program}
		opErr, err := h.execute(step, &ev)
		if err != nil {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Op, err)
		}
		if opErr != nil {
			ev.Error = string(clerr.CodeOf(opErr))
		}
		klog.V(1).Infof("harness %s: flow[%d] %s %s: %v", scenario.Name, i, step.Op, step.Program, opErr)
		checkExpect(i, step, ev, opErr, result)
		result.AddEvent(ev)
	}

	actx := &AssertionContext{
		Store:    h.store,
		Ctx:      context.Background(),
		Programs: h.programs,
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// checkExpect compares a step's outcome with its expect clause.
func checkExpect(i int, step Step, ev TraceEvent, opErr error, result *Result) {
	want := Expect{}
	if step.Expect != nil {
		want = *step.Expect
	}
	if ev.Error != want.Error {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected error %q, got %q (%v)", i, step.Op, want.Error, ev.Error, opErr))
	}
	if want.Result != "" && ev.Result != want.Result {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected result %q, got %q", i, step.Op, want.Result, ev.Result))
	}
	if want.Statuses != nil && !slices.Equal(want.Statuses, ev.Statuses) {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected statuses %v, got %v", i, step.Op, want.Statuses, ev.Statuses))
	}
}

// execute runs one step. opErr is the coordinator's error, which the
// scenario may expect; err is a malformed-scenario error.
func (h *Harness) execute(step Step, ev *TraceEvent) (opErr error, err error) {
	switch step.Op {
	case OpCreateSource:
		fragments := make([]source.Fragment, len(step.Sources))
		for i, name := range step.Sources {
			fragments[i] = source.FromString(h.scenario.Sources[name])
		}
		p, opErr := program.NewWithSource(h.ctx, fragments)
		h.define(step.Program, p, ev)
		return opErr, nil

	case OpCreateIL:
		p, opErr := program.NewWithIL(h.ctx, []byte(h.scenario.Sources[step.Sources[0]]))
		h.define(step.Program, p, ev)
		return opErr, nil

	case OpBuild:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		opErr = p.Build(deviceIDs(step.Devices), step.Options, nil)
		ev.Devices = deviceStates(p)
		return opErr, nil

	case OpCompile:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		headers, err := h.headers(step.Headers)
		if err != nil {
			return nil, err
		}
		opErr = p.Compile(deviceIDs(step.Devices), step.Options, headers, nil)
		ev.Devices = deviceStates(p)
		return opErr, nil

	case OpLink:
		inputs := make([]*program.Program, len(step.Inputs))
		for i, name := range step.Inputs {
			if inputs[i], err = h.program(name); err != nil {
				return nil, err
			}
		}
		p, opErr := program.Link(h.ctx, deviceIDs(step.Devices), inputs, step.Options, nil)
		h.define(step.Program, p, ev)
		return opErr, nil

	case OpExport:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		blobs, opErr := p.Binaries()
		if opErr == nil {
			h.bundles[step.Bundle] = &bundle{devices: p.Devices(), blobs: blobs}
		}
		return opErr, nil

	case OpImport:
		b, ok := h.bundles[step.Bundle]
		if !ok {
			return nil, fmt.Errorf("%w: undefined bundle %q", ErrScenario, step.Bundle)
		}
		devs := b.devices
		if len(step.Devices) > 0 {
			devs = deviceIDs(step.Devices)
		}
		blobs := make([][]byte, len(devs))
		for i, id := range devs {
			blobs[i] = b.blob(id)
		}
		p, statuses, opErr := program.NewWithBinary(h.ctx, devs, blobs)
		for _, st := range statuses {
			ev.Statuses = append(ev.Statuses, string(st))
		}
		h.define(step.Program, p, ev)
		return opErr, nil

	case OpCorrupt:
		b, ok := h.bundles[step.Bundle]
		if !ok {
			return nil, fmt.Errorf("%w: undefined bundle %q", ErrScenario, step.Bundle)
		}
		for i, id := range b.devices {
			if len(step.Devices) > 0 && !slices.Contains(step.Devices, string(id)) {
				continue
			}
			if len(b.blobs[i]) > 0 {
				blob := slices.Clone(b.blobs[i])
				blob[len(blob)/2] ^= 0xff
				b.blobs[i] = blob
			}
		}
		return nil, nil

	case OpSetSpecConstant:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		value, err := hex.DecodeString(step.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: spec constant value: %v", ErrScenario, err)
		}
		return p.SetSpecConstant(step.SpecID, value), nil

	case OpCreateKernel:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		k, opErr := p.CreateKernel(step.Kernel)
		if opErr == nil {
			key := step.Program + "/" + step.Kernel
			h.kernels[key] = append(h.kernels[key], k)
		}
		return opErr, nil

	case OpReleaseKernel:
		key := step.Program + "/" + step.Kernel
		ks := h.kernels[key]
		if len(ks) == 0 {
			return nil, fmt.Errorf("%w: no kernel %q attached to %q", ErrScenario, step.Kernel, step.Program)
		}
		h.kernels[key] = ks[:len(ks)-1]
		return ks[len(ks)-1].Release(), nil

	case OpRetain:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		return p.Retain(), nil

	case OpRelease:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		return p.Release(), nil

	case OpQuery:
		p, err := h.program(step.Program)
		if err != nil {
			return nil, err
		}
		ev.Result, opErr, err = query(p, step.Query)
		return opErr, err
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrScenario, step.Op)
}

// query answers a query step. opErr is the program's error; err reports an
// unknown key.
func query(p *program.Program, key string) (result string, opErr, err error) {
	switch key {
	case QueryKernelNames:
		names, err := p.KernelNames()
		return names, err, nil
	case QueryNumKernels:
		n, err := p.NumKernels()
		if err != nil {
			return "", err, nil
		}
		return strconv.Itoa(n), nil, nil
	case QuerySource:
		return p.Source(), nil, nil
	case QueryNumDevices:
		return strconv.Itoa(p.NumDevices()), nil, nil
	}
	return "", nil, fmt.Errorf("%w: unknown query %q", ErrScenario, key)
}

// define binds handle to p, replacing and releasing any earlier program.
func (h *Harness) define(handle string, p *program.Program, ev *TraceEvent) {
	if p == nil {
		return
	}
	if old, ok := h.programs[handle]; ok {
		_ = old.Release()
	}
	h.programs[handle] = p
	ev.Devices = deviceStates(p)
}

func (h *Harness) program(handle string) (*program.Program, error) {
	p, ok := h.programs[handle]
	if !ok {
		return nil, fmt.Errorf("%w: undefined program %q", ErrScenario, handle)
	}
	return p, nil
}

func (h *Harness) headers(refs []HeaderRef) (*program.Headers, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	headers := &program.Headers{}
	for _, ref := range refs {
		p, err := h.program(ref.Program)
		if err != nil {
			return nil, err
		}
		headers.Programs = append(headers.Programs, p)
		headers.IncludeNames = append(headers.IncludeNames, ref.Name)
	}
	return headers, nil
}

// releaseAll drops every kernel and program reference the scenario still
// holds, then the context.
func (h *Harness) releaseAll() {
	for _, ks := range h.kernels {
		for _, k := range ks {
			_ = k.Release()
		}
	}
	for _, p := range h.programs {
		for p.RefCount() > 0 {
			if err := p.Release(); err != nil {
				break
			}
		}
	}
	_ = h.ctx.Release()
}

// deviceStates snapshots p's records. A released program has none.
func deviceStates(p *program.Program) []DeviceState {
	var out []DeviceState
	for _, id := range p.Devices() {
		status, err := p.Status(id)
		if err != nil {
			return nil
		}
		binType, err := p.BinaryType(id)
		if err != nil {
			return nil
		}
		out = append(out, DeviceState{Device: string(id), Status: status.String(), BinaryType: binType.String()})
	}
	return out
}

func deviceIDs(names []string) []device.ID {
	ids := make([]device.ID, len(names))
	for i, n := range names {
		ids[i] = device.ID(n)
	}
	return ids
}
