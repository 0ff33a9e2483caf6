package program

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/source"
	"github.com/roach88/clprog/internal/testutil"
)

var (
	gpu0 = device.ID("gpu0")
	gpu1 = device.ID("gpu1")
)

// createTestContext creates a two-device context over fc with deterministic ids.
func createTestContext(t *testing.T, fc *testutil.FakeCompiler, opts ...ContextOption) *Context {
	t.Helper()
	devs := []*device.Device{
		device.New(gpu0, "GPU 0", "fp64"),
		device.New(gpu1, "GPU 1"),
	}
	opts = append([]ContextOption{WithIDGenerator(testutil.NewSequenceIDGenerator("obj"))}, opts...)
	ctx, err := NewContext(fc, devs, opts...)
	require.NoError(t, err)
	return ctx
}

func createTextProgram(t *testing.T, ctx *Context, src string) *Program {
	t.Helper()
	p, err := NewWithSource(ctx, []source.Fragment{source.FromString(src)})
	require.NoError(t, err)
	return p
}

// memJournal is an in-memory Journal.
type memJournal struct {
	mu       sync.Mutex
	attempts []Attempt
	err      error
}

func (j *memJournal) RecordAttempt(_ context.Context, a Attempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
	return j.err
}

func (j *memJournal) all() []Attempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]Attempt(nil), j.attempts...)
}
