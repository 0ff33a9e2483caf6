package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/testutil"
)

func TestBinaries_SizesMatchBinaries(t *testing.T) {
	fc := testutil.NewFakeCompiler("k").FailOn(gpu1, "bad\n")
	p := createTextProgram(t, createTestContext(t, fc), "src")

	sizes, err := p.BinarySizes()
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0}, sizes, "nothing is built yet")

	_ = p.Build(nil, "-w", nil)

	bins, err := p.Binaries()
	require.NoError(t, err)
	sizes, err = p.BinarySizes()
	require.NoError(t, err)

	require.Len(t, bins, 2)
	assert.Equal(t, len(bins[0]), sizes[0])
	assert.NotZero(t, sizes[0])
	assert.Nil(t, bins[1], "a failed device has no binary")
	assert.Equal(t, 0, sizes[1])

	one, err := p.Binary(gpu0)
	require.NoError(t, err)
	assert.Equal(t, bins[0], one)

	again, err := p.Binaries()
	require.NoError(t, err)
	assert.Equal(t, bins, again, "export is deterministic")
}

func TestExportImport_RoundTrip(t *testing.T) {
	fc := testutil.NewFakeCompiler("k1", "k2")
	ctx := createTestContext(t, fc)
	orig := createTextProgram(t, ctx, "src")
	require.NoError(t, orig.Build(nil, "-DN=2", nil))
	bins, err := orig.Binaries()
	require.NoError(t, err)

	imported, statuses, err := NewWithBinary(ctx, []device.ID{gpu0, gpu1}, bins)
	require.NoError(t, err)
	assert.Equal(t, []clerr.Code{clerr.CodeSuccess, clerr.CodeSuccess}, statuses)

	for _, id := range []device.ID{gpu0, gpu1} {
		for _, q := range []BuildInfoParam{BuildInfoStatus, BuildInfoBinaryType, BuildInfoLog, BuildInfoOptions} {
			want, err := orig.BuildInfo(id, q)
			require.NoError(t, err)
			got, err := imported.BuildInfo(id, q)
			require.NoError(t, err)
			assert.Equal(t, want, got, "%s on %s", q, id)
		}
	}
	names, err := imported.KernelNames()
	require.NoError(t, err)
	assert.Equal(t, "k1;k2", names)

	again, err := imported.Binaries()
	require.NoError(t, err)
	assert.Equal(t, bins, again)
	assert.Equal(t, "", imported.Source())
	assert.Nil(t, imported.IL())

	calls := fc.TotalCalls()
	require.NoError(t, imported.Build(nil, "", nil))
	assert.Equal(t, calls, fc.TotalCalls(), "an imported executable is reused without the backend")
	bt, _ := imported.BinaryType(gpu0)
	assert.Equal(t, backend.BinaryExecutable, bt)
}

func TestNewWithBinary_ImportedObjectIsLinkedOnBuild(t *testing.T) {
	fc := testutil.NewFakeCompiler("k")
	ctx := createTestContext(t, fc)
	obj := createTextProgram(t, ctx, "src")
	require.NoError(t, obj.Compile([]device.ID{gpu1}, "", nil, nil))
	bin, err := obj.Binary(gpu1)
	require.NoError(t, err)

	p, _, err := NewWithBinary(ctx, []device.ID{gpu1}, [][]byte{bin})
	require.NoError(t, err)
	assert.Equal(t, []device.ID{gpu1}, p.Devices())
	bt, _ := p.BinaryType(gpu1)
	assert.Equal(t, backend.BinaryCompiledObject, bt)

	require.NoError(t, p.Build(nil, "", nil))
	assert.Equal(t, 1, fc.Calls("link"))
	bt, _ = p.BinaryType(gpu1)
	assert.Equal(t, backend.BinaryExecutable, bt)
}

func TestExportImport_OptionsAndLogAreByteExact(t *testing.T) {
	fc := testutil.NewFakeCompiler("k")
	ctx := createTestContext(t, fc)
	orig := createTextProgram(t, ctx, "src")
	const options = "-DX=e\u0301 -DY=\xff\xfe"
	require.NoError(t, orig.Build([]device.ID{gpu0}, options, nil))
	bin, err := orig.Binary(gpu0)
	require.NoError(t, err)

	imported, _, err := NewWithBinary(ctx, []device.ID{gpu0}, [][]byte{bin})
	require.NoError(t, err)

	gotOpts, err := imported.Options(gpu0)
	require.NoError(t, err)
	assert.Equal(t, []byte(options), []byte(gotOpts))

	wantLog, err := orig.Log(gpu0)
	require.NoError(t, err)
	gotLog, err := imported.Log(gpu0)
	require.NoError(t, err)
	assert.Equal(t, []byte(wantLog), []byte(gotLog))
	assert.Contains(t, gotLog, "\xff\xfe")
}

func TestNewWithBinary_RebuildAfterFailedBuild(t *testing.T) {
	fc := testutil.NewFakeCompiler("k")
	ctx := createTestContext(t, fc)
	obj := createTextProgram(t, ctx, "src")
	require.NoError(t, obj.Compile([]device.ID{gpu1}, "", nil, nil))
	bin, err := obj.Binary(gpu1)
	require.NoError(t, err)

	p, _, err := NewWithBinary(ctx, []device.ID{gpu1}, [][]byte{bin})
	require.NoError(t, err)

	fc.FailOn(gpu1, "link: unresolved\n")
	err = p.Build(nil, "", nil)
	assert.True(t, clerr.Is(err, clerr.BuildFailure))
	bt, _ := p.BinaryType(gpu1)
	assert.Equal(t, backend.BinaryNone, bt)

	fc.Heal(gpu1)
	require.NoError(t, p.Build(nil, "", nil))
	bt, _ = p.BinaryType(gpu1)
	assert.Equal(t, backend.BinaryExecutable, bt)
	assert.Equal(t, 2, fc.Calls("link"))
}

func TestNewWithBinary_EmptyBufferMarksOnlyThatDevice(t *testing.T) {
	fc := testutil.NewFakeCompiler("k")
	ctx := createTestContext(t, fc)
	src := createTextProgram(t, ctx, "src")
	require.NoError(t, src.Build(nil, "", nil))
	good, err := src.Binary(gpu0)
	require.NoError(t, err)

	p, statuses, err := NewWithBinary(ctx, []device.ID{gpu0, gpu1}, [][]byte{good, {}})
	assert.Nil(t, p)
	assert.True(t, clerr.Is(err, clerr.InvalidBinary))
	assert.Equal(t, []clerr.Code{clerr.CodeSuccess, clerr.InvalidBinary}, statuses)
	assert.Equal(t, int64(2), ctx.RefCount(), "a failed import holds no context reference")
}

func TestNewWithBinary_Rejects(t *testing.T) {
	fc := testutil.NewFakeCompiler("k")
	ctx := createTestContext(t, fc)
	src := createTextProgram(t, ctx, "src")
	require.NoError(t, src.Build(nil, "", nil))
	bin0, err := src.Binary(gpu0)
	require.NoError(t, err)

	_, statuses, err := NewWithBinary(ctx, nil, nil)
	assert.True(t, clerr.Is(err, clerr.InvalidValue))
	assert.Nil(t, statuses)

	_, _, err = NewWithBinary(ctx, []device.ID{gpu0, gpu1}, [][]byte{bin0})
	assert.True(t, clerr.Is(err, clerr.InvalidValue))

	_, _, err = NewWithBinary(ctx, []device.ID{"gpu9"}, [][]byte{bin0})
	assert.True(t, clerr.Is(err, clerr.InvalidDevice))

	_, _, err = NewWithBinary(ctx, []device.ID{gpu0, gpu0}, [][]byte{bin0, bin0})
	assert.True(t, clerr.Is(err, clerr.InvalidValue))

	_, statuses, err = NewWithBinary(ctx, []device.ID{gpu1}, [][]byte{bin0})
	assert.True(t, clerr.Is(err, clerr.InvalidBinary), "a gpu0 binary is never accepted for gpu1")
	assert.Equal(t, []clerr.Code{clerr.InvalidBinary}, statuses)

	garbage := append([]byte(nil), bin0...)
	garbage[len(garbage)/2] ^= 0xff
	_, statuses, err = NewWithBinary(ctx, []device.ID{gpu0}, [][]byte{garbage})
	assert.True(t, clerr.Is(err, clerr.InvalidBinary))
	assert.Equal(t, []clerr.Code{clerr.InvalidBinary}, statuses)
}

func TestNewWithBinary_OtherBackendRejected(t *testing.T) {
	ctx := createTestContext(t, testutil.NewFakeCompiler("k"))
	src := createTextProgram(t, ctx, "src")
	require.NoError(t, src.Build(nil, "", nil))
	bin, err := src.Binary(gpu0)
	require.NoError(t, err)

	other, err := NewContext(renamedCompiler{testutil.NewFakeCompiler("k")}, ctx.Devices())
	require.NoError(t, err)
	_, _, err = NewWithBinary(other, []device.ID{gpu0}, [][]byte{bin})
	assert.True(t, clerr.Is(err, clerr.InvalidBinary))
}

type renamedCompiler struct {
	*testutil.FakeCompiler
}

func (renamedCompiler) Name() string { return "vendorcc" }
