package program

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/source"
)

// Notify is called once per build, compile or link, after every targeted
// device has been attempted and before the operation returns.
type Notify func(*Program)

// Headers are the include headers of a compile. IncludeNames[i] is the name
// under which Programs[i]'s source text is visible to #include.
//
// A nil *Headers means no headers. A non-nil Headers with no programs must
// not carry include names, and vice versa.
type Headers struct {
	Programs     []*Program
	IncludeNames []string
}

// invocation produces the backend result for one device given its current
// record.
type invocation func(dev *device.Device, cur buildState) backend.Result

// Build compiles and links the program into an executable for every device
// in devices, or every associated device when devices is empty.
//
// Argument and precondition failures (InvalidDevice, InvalidOperation when
// kernels are attached) are returned before any record changes. Otherwise
// every targeted device is attempted and BuildFailure is returned if any of
// them failed.
func (p *Program) Build(devices []device.ID, options string, notify Notify) error {
	const op = "build program"
	if err := p.check(op); err != nil {
		return err
	}
	devs, err := resolve(op, devices, p.devices, p.devices)
	if err != nil {
		return err
	}
	if n := p.kernels.Load(); n > 0 {
		return clerr.New(clerr.InvalidOperation, op, "program %s has %d kernels attached", p.id, n)
	}

	var invoke invocation
	switch s := p.src.(type) {
	case source.Text:
		text := s.Bytes()
		invoke = func(dev *device.Device, _ buildState) backend.Result {
			return p.ctx.compiler.Build(dev, backend.SourceInput{Text: text, Options: options})
		}
	case source.IL:
		il, spec := s.Bytes(), p.specConstants()
		invoke = func(dev *device.Device, _ buildState) backend.Result {
			return p.ctx.compiler.Build(dev, backend.SourceInput{IL: il, SpecConstants: spec, Options: options})
		}
	case source.Binaries:
		invoke = func(dev *device.Device, cur buildState) backend.Result {
			return p.finishBinary(dev, cur, s, options)
		}
	default:
		panic(unhandled(s))
	}

	ok := p.run(OpBuild, devs, options, invoke)
	p.finish(devs, notify)
	if !ok {
		return clerr.New(clerr.BuildFailure, op, "build failed for at least one device of program %s", p.id)
	}
	return nil
}

// finishBinary turns a binary-origin record into an executable: an
// executable is reused, a compiled object or library is linked alone.
// A record cleared by a failed attempt falls back to the binary the program
// was created with.
func (p *Program) finishBinary(dev *device.Device, cur buildState, src source.Binaries, options string) backend.Result {
	artifact := cur.artifact
	if artifact == nil {
		blob, ok := src.Binary(dev.ID())
		if !ok {
			return backend.Failed("error: no binary available for device %s\n", dev.ID())
		}
		st, err := importBinary(blob, dev.ID(), p.ctx.compiler.Name())
		if err != nil {
			return backend.Failed("error: %v\n", err)
		}
		artifact = st.artifact
	}
	if artifact.Type == backend.BinaryExecutable {
		return backend.Result{Artifact: artifact}
	}
	res := p.ctx.compiler.Link(dev, backend.LinkInput{Artifacts: []*backend.Artifact{artifact}, Options: options})
	if res.OK() && res.Artifact.Type != backend.BinaryExecutable {
		return backend.Result{Log: res.Log + "error: build produced a " + res.Artifact.Type.String() + ", not an executable\n"}
	}
	return res
}

// Compile compiles the program's source or IR into a compiled object for
// every device in devices, or every associated device when devices is empty.
//
// Headers are ignored, though still shape-checked, for IL programs. Header
// programs must have been created from source text (InvalidOperation
// otherwise). The program itself must be text or IL backed and have no
// kernels attached (InvalidOperation). CompileFailure is returned if any
// targeted device failed.
func (p *Program) Compile(devices []device.ID, options string, headers *Headers, notify Notify) error {
	const op = "compile program"
	if err := p.check(op); err != nil {
		return err
	}
	devs, err := resolve(op, devices, p.devices, p.devices)
	if err != nil {
		return err
	}
	if err := headers.validate(op); err != nil {
		return err
	}

	var invoke invocation
	switch s := p.src.(type) {
	case source.Text:
		hdrs, err := headers.resolve(op)
		if err != nil {
			return err
		}
		text := s.Bytes()
		invoke = func(dev *device.Device, _ buildState) backend.Result {
			return p.ctx.compiler.Compile(dev, backend.SourceInput{Text: text, Options: options, Headers: hdrs})
		}
	case source.IL:
		il, spec := s.Bytes(), p.specConstants()
		invoke = func(dev *device.Device, _ buildState) backend.Result {
			return p.ctx.compiler.Compile(dev, backend.SourceInput{IL: il, SpecConstants: spec, Options: options})
		}
	case source.Binaries:
		return clerr.New(clerr.InvalidOperation, op, "program %s has no source or IL", p.id)
	default:
		panic(unhandled(s))
	}

	if n := p.kernels.Load(); n > 0 {
		return clerr.New(clerr.InvalidOperation, op, "program %s has %d kernels attached", p.id, n)
	}

	ok := p.run(OpCompile, devs, options, invoke)
	p.finish(devs, notify)
	if !ok {
		return clerr.New(clerr.CompileFailure, op, "compile failed for at least one device of program %s", p.id)
	}
	return nil
}

func (h *Headers) validate(op string) error {
	if h == nil {
		return nil
	}
	n := len(h.Programs)
	if n == 0 && (h.Programs != nil || h.IncludeNames != nil) {
		return clerr.New(clerr.InvalidValue, op, "no input headers, but header programs or include names given")
	}
	if len(h.IncludeNames) != n {
		return clerr.New(clerr.InvalidValue, op, "%d header programs but %d include names", n, len(h.IncludeNames))
	}
	return nil
}

func (h *Headers) resolve(op string) ([]backend.Header, error) {
	if h == nil {
		return nil, nil
	}
	out := make([]backend.Header, 0, len(h.Programs))
	for i, hp := range h.Programs {
		if hp == nil {
			return nil, clerr.New(clerr.InvalidProgram, op, "header %d is nil", i)
		}
		if err := hp.check(op); err != nil {
			return nil, err
		}
		if h.IncludeNames[i] == "" {
			return nil, clerr.New(clerr.InvalidValue, op, "header %d has no include name", i)
		}
		text, ok := hp.src.(source.Text)
		if !ok {
			return nil, clerr.New(clerr.InvalidOperation, op,
				"header %q: program %s was not created from source", h.IncludeNames[i], hp.id)
		}
		out = append(out, backend.Header{Name: h.IncludeNames[i], Source: text.Bytes()})
	}
	return out, nil
}

// Link links inputs into a new program for every device in devices, or every
// device of ctx when devices is empty. The new program is associated with the
// targeted devices.
//
// Fails before invoking the backend with InvalidValue when inputs is empty,
// InvalidDevice when a device is outside ctx or an input, and
// InvalidOperation when any input's record for a targeted device is not
// SUCCESS. Otherwise the new program is always returned, together with
// LinkFailure if any device failed to link.
func Link(ctx *Context, devices []device.ID, inputs []*Program, options string, notify Notify) (*Program, error) {
	const op = "link program"
	if ctx == nil {
		return nil, clerr.New(clerr.InvalidValue, op, "no context")
	}
	if len(inputs) == 0 {
		return nil, clerr.New(clerr.InvalidValue, op, "no input programs")
	}
	devs, err := resolve(op, devices, ctx.devices, ctx.devices)
	if err != nil {
		return nil, err
	}

	// artifacts[d] holds every input's artifact for device d, in input order.
	artifacts := make(map[device.ID][]*backend.Artifact, len(devs))
	for i, in := range inputs {
		if in == nil {
			return nil, clerr.New(clerr.InvalidProgram, op, "input %d is nil", i)
		}
		for _, d := range devs {
			st, err := in.state(op, d.ID())
			if err != nil {
				return nil, err
			}
			if st.status != StatusSuccess || st.artifact == nil {
				return nil, clerr.ForDevice(clerr.InvalidOperation, op, string(d.ID()),
					"input %d (program %s) has build status %s", i, in.id, st.status)
			}
			artifacts[d.ID()] = append(artifacts[d.ID()], st.artifact)
		}
	}

	p, err := newProgram(ctx, source.NewBinaries(nil), devs)
	if err != nil {
		return nil, err
	}
	ok := p.run(OpLink, devs, options, func(dev *device.Device, _ buildState) backend.Result {
		return ctx.compiler.Link(dev, backend.LinkInput{Artifacts: artifacts[dev.ID()], Options: options})
	})
	p.src = p.exportedSource()
	p.finish(devs, notify)
	if !ok {
		return p, clerr.New(clerr.LinkFailure, op, "link failed for at least one device of program %s", p.id)
	}
	return p, nil
}

// exportedSource captures the exported binary of every successful device.
func (p *Program) exportedSource() source.Binaries {
	blobs := make(map[device.ID][]byte)
	bins, err := p.Binaries()
	if err != nil {
		klog.Warningf("program %s: %v", p.id, err)
	}
	for i, d := range p.devices {
		if i < len(bins) && bins[i] != nil {
			blobs[d.ID()] = bins[i]
		}
	}
	return source.NewBinaries(blobs)
}

// run attempts every device in devs, at most maxParallel at a time, and
// commits each outcome to the device's record. It reports whether every
// device succeeded.
func (p *Program) run(op Op, devs []*device.Device, options string, invoke invocation) bool {
	var failed atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(p.ctx.maxParallel)

	for _, dev := range devs {
		rec := p.records[dev.ID()]
		g.Go(func() error {
			rec.op.Lock()
			defer rec.op.Unlock()

			p.mu.RLock()
			cur := rec.state
			p.mu.RUnlock()

			res := invoke(dev, cur)
			next := buildState{status: StatusError, log: res.Log, options: options}
			if res.OK() {
				next.status = StatusSuccess
				next.binaryType = res.Artifact.Type
				next.artifact = res.Artifact
			} else {
				failed.Store(true)
			}

			p.mu.Lock()
			rec.state = next
			if next.status == StatusSuccess {
				p.built = true
			}
			p.mu.Unlock()

			klog.V(1).Infof("program %s: %s on %s: %s %s", p.id, op, dev.ID(), next.status, next.binaryType)
			if klog.V(2).Enabled() && next.log != "" {
				klog.Infof("program %s: %s log for %s:\n%s", p.id, op, dev.ID(), next.log)
			}
			p.journal(op, dev.ID(), next)
			return nil
		})
	}
	_ = g.Wait()
	return !failed.Load()
}

func (p *Program) journal(op Op, id device.ID, st buildState) {
	if p.ctx.journal == nil {
		return
	}
	err := p.ctx.journal.RecordAttempt(context.Background(), Attempt{
		ProgramID:  p.id,
		Device:     id,
		Op:         op,
		Status:     st.status,
		BinaryType: st.binaryType,
		Options:    st.options,
		Log:        st.log,
	})
	if err != nil {
		klog.Warningf("program %s: journal %s on %s: %v", p.id, op, id, err)
	}
}

// finish runs the notification and dumps build logs when enabled.
func (p *Program) finish(devs []*device.Device, notify Notify) {
	if notify != nil {
		notify(p)
	}
	if !p.ctx.debug.Program {
		return
	}
	for _, d := range devs {
		if msg, err := p.Log(d.ID()); err == nil && msg != "" {
			klog.Info(msg)
		}
	}
}
