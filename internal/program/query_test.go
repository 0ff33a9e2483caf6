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

func TestInfo_BeforeBuild(t *testing.T) {
	ctx := createTestContext(t, testutil.NewFakeCompiler("k"))
	p := createTextProgram(t, ctx, "kernel void k(){}")

	for _, q := range []ProgramInfo{InfoKernelNames, InfoNumKernels, InfoScopeGlobalCtorsPresent, InfoScopeGlobalDtorsPresent} {
		_, err := p.Info(q)
		assert.True(t, clerr.Is(err, clerr.InvalidProgramExecutable), "%s", q)
	}

	tests := []struct {
		q    ProgramInfo
		want any
	}{
		{InfoSource, "kernel void k(){}"},
		{InfoIL, []byte(nil)},
		{InfoNumDevices, 2},
		{InfoDevices, []device.ID{gpu0, gpu1}},
		{InfoReferenceCount, int64(1)},
		{InfoBinarySizes, []int{0, 0}},
		{InfoBinaries, [][]byte{nil, nil}},
		{InfoContext, ctx},
	}
	for _, tt := range tests {
		got, err := p.Info(tt.q)
		require.NoError(t, err, "%s", tt.q)
		assert.Equal(t, tt.want, got, "%s", tt.q)
	}

	_, err := p.Info(ProgramInfo(99))
	assert.True(t, clerr.Is(err, clerr.InvalidValue))
	assert.Contains(t, err.Error(), "ProgramInfo(99)")
}

func TestInfo_AfterBuild(t *testing.T) {
	fc := testutil.NewFakeCompiler("vadd", "vmul").FailOn(gpu1, "bad\n")
	p := createTextProgram(t, createTestContext(t, fc), "src")
	_ = p.Build(nil, "", nil)

	tests := []struct {
		q    ProgramInfo
		want any
	}{
		{InfoKernelNames, "vadd;vmul"},
		{InfoNumKernels, 2},
		{InfoScopeGlobalCtorsPresent, false},
		{InfoScopeGlobalDtorsPresent, false},
	}
	for _, tt := range tests {
		got, err := p.Info(tt.q)
		require.NoError(t, err, "%s", tt.q)
		assert.Equal(t, tt.want, got, "%s", tt.q)
	}
}

func TestBuildInfo(t *testing.T) {
	fc := testutil.NewFakeCompiler("k")
	p := createTextProgram(t, createTestContext(t, fc), "src")
	require.NoError(t, p.Build([]device.ID{gpu0}, "-w", nil))

	tests := []struct {
		q    BuildInfoParam
		want any
	}{
		{BuildInfoStatus, StatusSuccess},
		{BuildInfoBinaryType, backend.BinaryExecutable},
		{BuildInfoLog, "fake: build with '-w'\n"},
		{BuildInfoOptions, "-w"},
		{BuildInfoGlobalVariableTotalSize, 0},
	}
	for _, tt := range tests {
		got, err := p.BuildInfo(gpu0, tt.q)
		require.NoError(t, err, "%s", tt.q)
		assert.Equal(t, tt.want, got, "%s", tt.q)
	}

	_, err := p.BuildInfo(gpu0, BuildInfoParam(42))
	assert.True(t, clerr.Is(err, clerr.InvalidValue))
	_, err = p.BuildInfo("gpu9", BuildInfoStatus)
	assert.True(t, clerr.Is(err, clerr.InvalidDevice))
}

func TestCreateKernel(t *testing.T) {
	fc := testutil.NewFakeCompiler("vadd")
	p := createTextProgram(t, createTestContext(t, fc), "src")

	_, err := p.CreateKernel("vadd")
	assert.True(t, clerr.Is(err, clerr.InvalidProgramExecutable))

	require.NoError(t, p.Build(nil, "", nil))

	_, err = p.CreateKernel("missing")
	assert.True(t, clerr.Is(err, clerr.InvalidValue))
	_, err = p.CreateKernel("")
	assert.True(t, clerr.Is(err, clerr.InvalidValue))

	k, err := p.CreateKernel("vadd")
	require.NoError(t, err)
	assert.Equal(t, "vadd", k.Name())
	assert.Same(t, p, k.Program())
	assert.Equal(t, int64(2), p.RefCount(), "a kernel holds a program reference")

	require.NoError(t, p.Release())
	st, err := k.Program().Status(gpu0)
	require.NoError(t, err, "the program survives while the kernel lives")
	assert.Equal(t, StatusSuccess, st)
	require.NoError(t, k.Release())
	assert.Equal(t, int64(0), p.RefCount())
	assert.True(t, clerr.Is(k.Release(), clerr.InvalidValue))
}
