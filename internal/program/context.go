package program

import (
	"slices"

	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/refcount"
)

// DefaultMaxParallel bounds how many devices an operation drives at once.
const DefaultMaxParallel = 4

// DebugFlags select diagnostic output.
type DebugFlags struct {
	// Program prints every targeted device's non-empty build log after
	// build, compile and link.
	Program bool
}

// Context owns the device set and the backend compiler programs are built
// with.
type Context struct {
	id          string
	compiler    backend.Compiler
	devices     []*device.Device
	debug       DebugFlags
	maxParallel int
	ids         IDGenerator
	journal     Journal
	refs        *refcount.Counter
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithDebug sets the debug flags.
func WithDebug(flags DebugFlags) ContextOption {
	return func(c *Context) {
		c.debug = flags
	}
}

// WithMaxParallel bounds per-device fan-out. Values below 1 mean sequential.
func WithMaxParallel(n int) ContextOption {
	return func(c *Context) {
		c.maxParallel = max(n, 1)
	}
}

// WithIDGenerator sets the identity generator for the context and its
// programs. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) ContextOption {
	return func(c *Context) {
		c.ids = g
	}
}

// WithJournal records every per-device build attempt in j.
func WithJournal(j Journal) ContextOption {
	return func(c *Context) {
		c.journal = j
	}
}

// NewContext creates a context over devices, compiled by compiler.
//
// Fails with InvalidValue if compiler is nil, devices is empty, or two
// devices share an ID.
func NewContext(compiler backend.Compiler, devices []*device.Device, opts ...ContextOption) (*Context, error) {
	const op = "create context"
	if compiler == nil {
		return nil, clerr.New(clerr.InvalidValue, op, "no compiler")
	}
	if len(devices) == 0 {
		return nil, clerr.New(clerr.InvalidValue, op, "no devices")
	}
	for i, d := range devices {
		if d == nil {
			return nil, clerr.New(clerr.InvalidValue, op, "device %d is nil", i)
		}
		if device.IndexOf(devices[:i], d.ID()) >= 0 {
			return nil, clerr.New(clerr.InvalidValue, op, "duplicate device %s", d.ID())
		}
	}

	c := &Context{
		compiler:    compiler,
		devices:     slices.Clone(devices),
		maxParallel: DefaultMaxParallel,
		ids:         UUIDv7Generator{},
		refs:        refcount.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.id = c.ids.Generate()

	klog.V(1).Infof("context %s: %d devices, backend %s", c.id, len(c.devices), compiler.Name())
	return c, nil
}

// ID returns the context identity.
func (c *Context) ID() string { return c.id }

// Compiler returns the backend compiler.
func (c *Context) Compiler() backend.Compiler { return c.compiler }

// Devices returns the context's devices in association order.
func (c *Context) Devices() []*device.Device { return slices.Clone(c.devices) }

// Device looks up a context device by ID.
func (c *Context) Device(id device.ID) (*device.Device, bool) {
	i := device.IndexOf(c.devices, id)
	if i < 0 {
		return nil, false
	}
	return c.devices[i], true
}

// Debug returns the debug flags.
func (c *Context) Debug() DebugFlags { return c.debug }

// RefCount returns the current reference count.
func (c *Context) RefCount() int64 { return c.refs.Load() }

// Retain adds a reference.
func (c *Context) Retain() error {
	if err := c.refs.Retain(); err != nil {
		return clerr.Wrap(clerr.InvalidValue, "retain context", err)
	}
	return nil
}

// Release drops a reference.
func (c *Context) Release() error {
	last, err := c.refs.Release()
	if err != nil {
		return clerr.Wrap(clerr.InvalidValue, "release context", err)
	}
	if last {
		klog.V(1).Infof("context %s: destroyed", c.id)
	}
	return nil
}

// resolve maps device IDs to context devices. An empty list selects fallback.
func resolve(op string, ids []device.ID, within []*device.Device, fallback []*device.Device) ([]*device.Device, error) {
	if len(ids) == 0 {
		return slices.Clone(fallback), nil
	}
	devs := make([]*device.Device, 0, len(ids))
	for _, id := range ids {
		i := device.IndexOf(within, id)
		if i < 0 {
			return nil, clerr.ForDevice(clerr.InvalidDevice, op, string(id), "device is not associated")
		}
		devs = append(devs, within[i])
	}
	return device.Dedup(devs), nil
}
