package program

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
)

// ProgramInfo selects a program-wide query.
type ProgramInfo int

const (
	InfoBinaries ProgramInfo = iota + 1
	InfoBinarySizes
	InfoContext
	InfoDevices
	InfoIL
	InfoKernelNames
	InfoNumDevices
	InfoNumKernels
	InfoReferenceCount
	InfoScopeGlobalCtorsPresent
	InfoScopeGlobalDtorsPresent
	InfoSource
)

var programInfoNames = map[ProgramInfo]string{
	InfoBinaries:                "BINARIES",
	InfoBinarySizes:             "BINARY_SIZES",
	InfoContext:                 "CONTEXT",
	InfoDevices:                 "DEVICES",
	InfoIL:                      "IL",
	InfoKernelNames:             "KERNEL_NAMES",
	InfoNumDevices:              "NUM_DEVICES",
	InfoNumKernels:              "NUM_KERNELS",
	InfoReferenceCount:          "REFERENCE_COUNT",
	InfoScopeGlobalCtorsPresent: "SCOPE_GLOBAL_CTORS_PRESENT",
	InfoScopeGlobalDtorsPresent: "SCOPE_GLOBAL_DTORS_PRESENT",
	InfoSource:                  "SOURCE",
}

func (q ProgramInfo) String() string {
	if s, ok := programInfoNames[q]; ok {
		return s
	}
	return fmt.Sprintf("ProgramInfo(%d)", int(q))
}

// BuildInfoParam selects a per-device build query.
type BuildInfoParam int

const (
	BuildInfoBinaryType BuildInfoParam = iota + 1
	BuildInfoGlobalVariableTotalSize
	BuildInfoLog
	BuildInfoOptions
	BuildInfoStatus
)

var buildInfoNames = map[BuildInfoParam]string{
	BuildInfoBinaryType:              "BINARY_TYPE",
	BuildInfoGlobalVariableTotalSize: "BUILD_GLOBAL_VARIABLE_TOTAL_SIZE",
	BuildInfoLog:                     "BUILD_LOG",
	BuildInfoOptions:                 "BUILD_OPTIONS",
	BuildInfoStatus:                  "BUILD_STATUS",
}

func (q BuildInfoParam) String() string {
	if s, ok := buildInfoNames[q]; ok {
		return s
	}
	return fmt.Sprintf("BuildInfoParam(%d)", int(q))
}

// Info answers a program-wide query.
//
// Result types: InfoBinaries [][]byte, InfoBinarySizes []int, InfoContext
// *Context, InfoDevices []device.ID, InfoIL []byte (nil unless created from
// IL), InfoKernelNames string, InfoNumDevices int, InfoNumKernels int,
// InfoReferenceCount int64, the ctor/dtor flags bool, InfoSource string.
//
// Kernel and ctor/dtor queries fail with InvalidProgramExecutable until at
// least one device holds a successful executable. Unknown keys fail with
// InvalidValue.
func (p *Program) Info(q ProgramInfo) (any, error) {
	const op = "get program info"
	if err := p.check(op); err != nil {
		return nil, err
	}

	switch q {
	case InfoKernelNames, InfoNumKernels, InfoScopeGlobalCtorsPresent, InfoScopeGlobalDtorsPresent:
		if !p.hasExecutable() {
			return nil, clerr.New(clerr.InvalidProgramExecutable, op,
				"%s requires a successful executable on at least one device", q)
		}
	}

	switch q {
	case InfoBinaries:
		return p.Binaries()
	case InfoBinarySizes:
		return p.BinarySizes()
	case InfoContext:
		return p.ctx, nil
	case InfoDevices:
		return p.Devices(), nil
	case InfoIL:
		return p.IL(), nil
	case InfoKernelNames:
		return p.KernelNames()
	case InfoNumDevices:
		return p.NumDevices(), nil
	case InfoNumKernels:
		return p.NumKernels()
	case InfoReferenceCount:
		return p.RefCount(), nil
	case InfoScopeGlobalCtorsPresent, InfoScopeGlobalDtorsPresent:
		return false, nil
	case InfoSource:
		return p.Source(), nil
	default:
		return nil, clerr.New(clerr.InvalidValue, op, "unsupported query %s", q)
	}
}

// BuildInfo answers a per-device build query.
//
// Result types: BuildInfoBinaryType backend.BinaryType,
// BuildInfoGlobalVariableTotalSize int (always 0), BuildInfoLog string,
// BuildInfoOptions string, BuildInfoStatus BuildStatus.
func (p *Program) BuildInfo(id device.ID, q BuildInfoParam) (any, error) {
	const op = "get program build info"
	st, err := p.state(op, id)
	if err != nil {
		return nil, err
	}
	switch q {
	case BuildInfoBinaryType:
		return st.binaryType, nil
	case BuildInfoGlobalVariableTotalSize:
		return 0, nil
	case BuildInfoLog:
		return st.log, nil
	case BuildInfoOptions:
		return st.options, nil
	case BuildInfoStatus:
		return st.status, nil
	default:
		return nil, clerr.New(clerr.InvalidValue, op, "unsupported query %s", q)
	}
}

// Status returns the device's build status.
func (p *Program) Status(id device.ID) (BuildStatus, error) {
	st, err := p.state("get build status", id)
	return st.status, err
}

// BinaryType returns the type of the device's artifact.
func (p *Program) BinaryType(id device.ID) (backend.BinaryType, error) {
	st, err := p.state("get binary type", id)
	return st.binaryType, err
}

// Log returns the diagnostic log of the device's most recent attempt.
func (p *Program) Log(id device.ID) (string, error) {
	st, err := p.state("get build log", id)
	return st.log, err
}

// Options returns the option string of the device's most recent attempt.
func (p *Program) Options(id device.ID) (string, error) {
	st, err := p.state("get build options", id)
	return st.options, err
}

// KernelNames returns the kernels of every successful executable, in
// first-seen order across devices, joined with ";".
func (p *Program) KernelNames() (string, error) {
	names, err := p.kernelNames("get kernel names")
	if err != nil {
		return "", err
	}
	return strings.Join(names, ";"), nil
}

// NumKernels returns the number of distinct kernels of every successful
// executable.
func (p *Program) NumKernels() (int, error) {
	names, err := p.kernelNames("get kernel count")
	return len(names), err
}

func (p *Program) kernelNames(op string) ([]string, error) {
	if err := p.check(op); err != nil {
		return nil, err
	}
	var names []string
	found := false
	for _, st := range p.snapshot() {
		if !st.executable() {
			continue
		}
		found = true
		for _, k := range st.artifact.Kernels {
			if !slices.Contains(names, k) {
				names = append(names, k)
			}
		}
	}
	if !found {
		return nil, clerr.New(clerr.InvalidProgramExecutable, op, "no device holds a successful executable")
	}
	return names, nil
}

func (p *Program) hasExecutable() bool {
	for _, st := range p.snapshot() {
		if st.executable() {
			return true
		}
	}
	return false
}
