package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/source"
	"github.com/roach88/clprog/internal/testutil"
)

func TestNewContext_Rejects(t *testing.T) {
	fc := testutil.NewFakeCompiler()
	dev := device.New("gpu0", "")

	_, err := NewContext(nil, []*device.Device{dev})
	assert.True(t, clerr.Is(err, clerr.InvalidValue))

	_, err = NewContext(fc, nil)
	assert.True(t, clerr.Is(err, clerr.InvalidValue))

	_, err = NewContext(fc, []*device.Device{dev, device.New("gpu0", "again")})
	assert.True(t, clerr.Is(err, clerr.InvalidValue))
	assert.Contains(t, err.Error(), "duplicate device gpu0")
}

func TestNewContext_Options(t *testing.T) {
	ctx := createTestContext(t, testutil.NewFakeCompiler(),
		WithDebug(DebugFlags{Program: true}),
		WithMaxParallel(0),
	)

	assert.Equal(t, "obj-1", ctx.ID())
	assert.True(t, ctx.Debug().Program)
	assert.Equal(t, 1, ctx.maxParallel)
	assert.Equal(t, []device.ID{gpu0, gpu1}, device.IDs(ctx.Devices()))

	d, ok := ctx.Device(gpu0)
	require.True(t, ok)
	assert.True(t, d.HasExtension("fp64"))
	_, ok = ctx.Device("gpu7")
	assert.False(t, ok)
}

func TestContext_RefCount(t *testing.T) {
	ctx := createTestContext(t, testutil.NewFakeCompiler())
	assert.Equal(t, int64(1), ctx.RefCount())

	require.NoError(t, ctx.Retain())
	assert.Equal(t, int64(2), ctx.RefCount())
	require.NoError(t, ctx.Release())
	require.NoError(t, ctx.Release())

	assert.Error(t, ctx.Release())
	assert.Error(t, ctx.Retain())

	_, err := NewWithSource(ctx, []source.Fragment{source.FromString("kernel void k(){}")})
	assert.True(t, clerr.Is(err, clerr.InvalidValue))
}

func TestGenerators(t *testing.T) {
	gen := NewFixedGenerator("a", "b")
	assert.Equal(t, "a", gen.Generate())
	assert.Equal(t, "b", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })

	id := UUIDv7Generator{}.Generate()
	assert.Len(t, id, 36)
	assert.NotEqual(t, id, UUIDv7Generator{}.Generate())
}
