package program

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/refcount"
	"github.com/roach88/clprog/internal/source"
)

// Program is a program object: one source representation plus a build record
// for every associated device.
type Program struct {
	id      string
	ctx     *Context
	src     source.Source
	devices []*device.Device
	records map[device.ID]*record
	refs    *refcount.Counter

	// kernels counts live Kernel objects; non-zero blocks build and compile.
	kernels atomic.Int64

	mu        sync.RWMutex
	spec      map[uint32][]byte
	specSizes map[uint32]int
	built     bool
}

func newProgram(ctx *Context, src source.Source, devs []*device.Device) (*Program, error) {
	if err := ctx.Retain(); err != nil {
		return nil, err
	}

	p := &Program{
		id:      ctx.ids.Generate(),
		ctx:     ctx,
		src:     src,
		devices: slices.Clone(devs),
		records: make(map[device.ID]*record, len(devs)),
		refs:    refcount.New(),
	}
	for _, d := range devs {
		p.records[d.ID()] = newRecord(d)
	}
	klog.V(1).Infof("program %s: created from %s for %d devices", p.id, source.Describe(src), len(devs))
	return p, nil
}

// NewWithSource creates a program from concatenated source text fragments.
// The program is associated with every device of ctx.
func NewWithSource(ctx *Context, fragments []source.Fragment) (*Program, error) {
	src, err := source.NewText(fragments)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		return nil, clerr.New(clerr.InvalidValue, "create program with source", "no context")
	}
	return newProgram(ctx, src, ctx.devices)
}

// NewWithIL creates a program from intermediate-representation bytes.
// The program is associated with every device of ctx.
func NewWithIL(ctx *Context, il []byte) (*Program, error) {
	src, err := source.NewIL(il)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		return nil, clerr.New(clerr.InvalidValue, "create program with IL", "no context")
	}
	return newProgram(ctx, src, ctx.devices)
}

// ID returns the program identity.
func (p *Program) ID() string { return p.id }

// Context returns the owning context. The reference count is not changed.
func (p *Program) Context() *Context { return p.ctx }

// Devices returns the IDs of the associated devices in association order.
func (p *Program) Devices() []device.ID { return device.IDs(p.devices) }

// NumDevices returns the number of associated devices.
func (p *Program) NumDevices() int { return len(p.devices) }

// Kind returns the source representation kind.
func (p *Program) Kind() source.Kind { return p.src.Kind() }

// Source returns the source text, or "" when the program was not created
// from text.
func (p *Program) Source() string {
	switch s := p.src.(type) {
	case source.Text:
		return s.String()
	case source.IL, source.Binaries:
		return ""
	default:
		panic(unhandled(s))
	}
}

// IL returns the intermediate representation, or nil when the program was
// not created from IL.
func (p *Program) IL() []byte {
	switch s := p.src.(type) {
	case source.IL:
		return s.Bytes()
	case source.Text, source.Binaries:
		return nil
	default:
		panic(unhandled(s))
	}
}

// RefCount returns the current reference count.
func (p *Program) RefCount() int64 { return p.refs.Load() }

// AttachedKernels returns the number of live kernels created from p.
func (p *Program) AttachedKernels() int64 { return p.kernels.Load() }

// Retain adds a reference.
func (p *Program) Retain() error {
	if err := p.refs.Retain(); err != nil {
		return clerr.Wrap(clerr.InvalidProgram, "retain program", err)
	}
	return nil
}

// Release drops a reference. The last release destroys the program and its
// build records and drops the program's reference on its context.
func (p *Program) Release() error {
	last, err := p.refs.Release()
	if err != nil {
		return clerr.Wrap(clerr.InvalidProgram, "release program", err)
	}
	if last {
		p.destroy()
	}
	return nil
}

func (p *Program) destroy() {
	p.mu.Lock()
	for _, r := range p.records {
		r.state = buildState{}
	}
	p.spec = nil
	p.mu.Unlock()

	if err := p.ctx.Release(); err != nil {
		klog.Warningf("program %s: %v", p.id, err)
	}
	klog.V(1).Infof("program %s: destroyed", p.id)
}

// SetReleaseCallback always fails: release callbacks are not supported.
func (p *Program) SetReleaseCallback(func(*Program)) error {
	return clerr.New(clerr.InvalidOperation, "set program release callback", "release callbacks are not supported")
}

// check fails with InvalidProgram once the program has been destroyed.
func (p *Program) check(op string) error {
	if !p.refs.Alive() {
		return clerr.New(clerr.InvalidProgram, op, "program %s has been released", p.id)
	}
	return nil
}

// state returns a snapshot of the device's build record.
func (p *Program) state(op string, id device.ID) (buildState, error) {
	if err := p.check(op); err != nil {
		return buildState{}, err
	}
	r, ok := p.records[id]
	if !ok {
		return buildState{}, clerr.ForDevice(clerr.InvalidDevice, op, string(id), "device is not associated with program %s", p.id)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return r.state, nil
}

// snapshot returns the build records of every device in association order.
func (p *Program) snapshot() []buildState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]buildState, len(p.devices))
	for i, d := range p.devices {
		out[i] = p.records[d.ID()].state
	}
	return out
}

func unhandled(src source.Source) string {
	return fmt.Sprintf("program: unhandled source variant %T", src)
}
