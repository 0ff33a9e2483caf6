package program

import (
	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/binfmt"
	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/source"
)

// NewWithBinary creates a program from per-device binaries previously
// exported by Binaries. binaries[i] is the binary for devices[i].
//
// Argument-shape failures (no devices, length mismatch, duplicate device)
// return InvalidValue with nil statuses; a device outside ctx returns
// InvalidDevice. Otherwise statuses holds one code per device: CodeSuccess,
// or InvalidBinary for a device whose binary is empty or does not decode.
// When any device fails no program is returned and the error carries the
// first failing device's code.
func NewWithBinary(ctx *Context, devices []device.ID, binaries [][]byte) (*Program, []clerr.Code, error) {
	const op = "create program with binary"
	if ctx == nil {
		return nil, nil, clerr.New(clerr.InvalidValue, op, "no context")
	}
	if len(devices) == 0 {
		return nil, nil, clerr.New(clerr.InvalidValue, op, "no devices")
	}
	if len(binaries) != len(devices) {
		return nil, nil, clerr.New(clerr.InvalidValue, op, "%d binaries for %d devices", len(binaries), len(devices))
	}

	devs := make([]*device.Device, len(devices))
	for i, id := range devices {
		d, ok := ctx.Device(id)
		if !ok {
			return nil, nil, clerr.ForDevice(clerr.InvalidDevice, op, string(id), "device is not associated with context %s", ctx.id)
		}
		if device.IndexOf(devs[:i], id) >= 0 {
			return nil, nil, clerr.ForDevice(clerr.InvalidValue, op, string(id), "device listed twice")
		}
		devs[i] = d
	}

	statuses := make([]clerr.Code, len(devices))
	states := make([]buildState, len(devices))
	var first error
	for i, id := range devices {
		st, err := importBinary(binaries[i], id, ctx.compiler.Name())
		statuses[i] = clerr.CodeOf(err)
		if err != nil {
			klog.V(1).Infof("%v", err)
			if first == nil {
				first = err
			}
			continue
		}
		states[i] = st
	}
	if first != nil {
		return nil, statuses, first
	}

	blobs := make(map[device.ID][]byte, len(devices))
	for i, id := range devices {
		blobs[id] = binaries[i]
	}
	p, err := newProgram(ctx, source.NewBinaries(blobs), devs)
	if err != nil {
		return nil, nil, err
	}
	for i, id := range devices {
		p.records[id].state = states[i]
	}
	return p, statuses, nil
}

func importBinary(data []byte, id device.ID, backendName string) (buildState, error) {
	rec, err := binfmt.Decode(data, id, backendName)
	if err != nil {
		return buildState{}, err
	}
	status, err := ParseBuildStatus(rec.Status)
	if err != nil {
		return buildState{}, clerr.ForDevice(clerr.InvalidBinary, "import binary", string(id), "%v", err)
	}
	return buildState{
		status:     status,
		binaryType: rec.BinaryType,
		log:        rec.Log,
		options:    rec.Options,
		artifact:   rec.Artifact,
	}, nil
}

func (p *Program) exportRecord(id device.ID, st buildState) binfmt.Record {
	return binfmt.Record{
		Device:     id,
		Backend:    p.ctx.compiler.Name(),
		Status:     st.status.String(),
		BinaryType: st.binaryType,
		Options:    st.options,
		Log:        st.log,
		Artifact:   st.artifact,
	}
}

// Binaries returns the exported binary of every associated device, in
// association order. Devices without a compiled artifact yield nil.
func (p *Program) Binaries() ([][]byte, error) {
	const op = "get program binaries"
	if err := p.check(op); err != nil {
		return nil, err
	}
	states := p.snapshot()
	out := make([][]byte, len(p.devices))
	for i, d := range p.devices {
		if states[i].artifact == nil {
			continue
		}
		data, err := binfmt.Encode(p.exportRecord(d.ID(), states[i]))
		if err != nil {
			return nil, clerr.ForDevice(clerr.InvalidValue, op, string(d.ID()), "%v", err)
		}
		out[i] = data
	}
	return out, nil
}

// BinarySizes returns len(Binaries()[i]) for every device without encoding
// the payload into a caller buffer.
func (p *Program) BinarySizes() ([]int, error) {
	if err := p.check("get program binary sizes"); err != nil {
		return nil, err
	}
	states := p.snapshot()
	out := make([]int, len(p.devices))
	for i, d := range p.devices {
		if states[i].artifact != nil {
			out[i] = binfmt.Size(p.exportRecord(d.ID(), states[i]))
		}
	}
	return out, nil
}

// Binary returns the exported binary for one device, or nil when the device
// has no compiled artifact.
func (p *Program) Binary(id device.ID) ([]byte, error) {
	const op = "get program binary"
	st, err := p.state(op, id)
	if err != nil {
		return nil, err
	}
	if st.artifact == nil {
		return nil, nil
	}
	data, err := binfmt.Encode(p.exportRecord(id, st))
	if err != nil {
		return nil, clerr.ForDevice(clerr.InvalidValue, op, string(id), "%v", err)
	}
	return data, nil
}
