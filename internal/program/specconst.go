package program

import (
	"bytes"
	"maps"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/source"
)

// SetSpecConstant stores the value of specialization constant id. The value
// is patched into the IR by the next build or compile.
//
// Fails with InvalidProgram unless the program was created from IL, with
// InvalidValue when value is empty or its length differs from the size the
// module declares for id (an undeclared id has size 0), and with
// InvalidOperation once a build or compile has succeeded.
func (p *Program) SetSpecConstant(id uint32, value []byte) error {
	const op = "set specialization constant"
	if err := p.check(op); err != nil {
		return err
	}

	var il source.IL
	switch s := p.src.(type) {
	case source.IL:
		il = s
	case source.Text, source.Binaries:
		return clerr.New(clerr.InvalidProgram, op, "program %s was not created from IL", p.id)
	default:
		panic(unhandled(s))
	}

	sizes, err := p.specConstantSizes(il)
	if err != nil {
		return clerr.Wrap(clerr.InvalidValue, op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.specSizes == nil {
		p.specSizes = sizes
	}
	if size := p.specSizes[id]; len(value) != size {
		return clerr.New(clerr.InvalidValue, op, "constant %d has size %d, got %d bytes", id, size, len(value))
	}
	if len(value) == 0 {
		return clerr.New(clerr.InvalidValue, op, "constant %d: value is empty", id)
	}
	if p.built {
		return clerr.New(clerr.InvalidOperation, op, "program %s has already been built", p.id)
	}

	if p.spec == nil {
		p.spec = make(map[uint32][]byte)
	}
	p.spec[id] = bytes.Clone(value)
	return nil
}

// specConstantSizes returns the sizes the module declares, parsing it on
// first use. Parsing runs without p.mu held so queries are not blocked
// behind it; concurrent first callers may each parse, and the first to
// store wins.
func (p *Program) specConstantSizes(il source.IL) (map[uint32]int, error) {
	p.mu.RLock()
	sizes := p.specSizes
	p.mu.RUnlock()
	if sizes != nil {
		return sizes, nil
	}
	return p.ctx.compiler.SpecConstantSizes(il.Bytes())
}

// specConstants returns a copy of the table for one backend invocation.
func (p *Program) specConstants() map[uint32][]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.spec) == 0 {
		return nil
	}
	return maps.Clone(p.spec)
}
