package program

import (
	"slices"
	"sync/atomic"

	"github.com/roach88/clprog/internal/clerr"
)

// Kernel is a kernel object attached to a program. While any kernel is
// alive the program cannot be rebuilt.
type Kernel struct {
	name     string
	program  *Program
	released atomic.Bool
}

// CreateKernel attaches a kernel named name. The kernel holds a reference on
// the program until released.
//
// Fails with InvalidProgramExecutable when no device holds a successful
// executable and with InvalidValue when no executable defines name.
func (p *Program) CreateKernel(name string) (*Kernel, error) {
	const op = "create kernel"
	if name == "" {
		return nil, clerr.New(clerr.InvalidValue, op, "kernel name is empty")
	}
	names, err := p.kernelNames(op)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(names, name) {
		return nil, clerr.New(clerr.InvalidValue, op, "program %s defines no kernel %q", p.id, name)
	}
	if err := p.Retain(); err != nil {
		return nil, err
	}
	p.kernels.Add(1)
	return &Kernel{name: name, program: p}, nil
}

// Name returns the kernel entry point.
func (k *Kernel) Name() string { return k.name }

// Program returns the program the kernel is attached to.
func (k *Kernel) Program() *Program { return k.program }

// Release detaches the kernel and drops its program reference.
func (k *Kernel) Release() error {
	if !k.released.CompareAndSwap(false, true) {
		return clerr.New(clerr.InvalidValue, "release kernel", "kernel %q already released", k.name)
	}
	k.program.kernels.Add(-1)
	return k.program.Release()
}
