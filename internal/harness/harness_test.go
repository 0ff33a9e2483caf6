package harness

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			s, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
			assert.Len(t, result.Trace, len(s.Flow))
		})
	}
}

func TestGoldenTraces(t *testing.T) {
	for _, name := range []string{"partial_build", "binary_roundtrip"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadScenario(t, "compile_link")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_ExpectationMismatch(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: mismatch
description: a failing build that the flow expects to succeed
sources:
  bad: |
    #error nope
flow:
  - op: create_source
    program: p
    sources: [bad]
  - op: build
    program: p
assertions:
  - type: trace_count
    op: build
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], `flow[1] build: expected error "", got "BUILD_PROGRAM_FAILURE"`)
	assert.Equal(t, "BUILD_PROGRAM_FAILURE", result.Trace[1].Error)
}

func TestRun_AssertionFailureCarriesTrace(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong_status
description: asserts the wrong final status
sources:
  ok: |
    __kernel void k(__global int *x) { }
flow:
  - op: create_source
    program: p
    sources: [ok]
  - op: build
    program: p
assertions:
  - type: status
    program: p
    device: gpu0
    equals: ERROR
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: status")
	assert.Contains(t, result.Errors[0], `Actual: "SUCCESS"`)
	assert.Contains(t, result.Errors[0], "[2] build p")
}

func TestRun_CustomDevices(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: three_devices
description: scenario devices replace the defaults
devices:
  - id: a
  - id: b
    extensions: [fp64]
  - id: c
max_parallel: 1
sources:
  k: |
    __kernel void k(__global int *x) { }
flow:
  - op: create_source
    program: p
    sources: [k]
  - op: build
    program: p
    devices: [b]
  - op: query
    program: p
    query: num_devices
    expect:
      result: "3"
assertions:
  - type: status
    program: p
    device: a
    equals: NONE
  - type: status
    program: p
    device: b
    equals: SUCCESS
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors:\n%s", strings.Join(result.Errors, "\n"))
}

func TestRun_ScenarioErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "undefined program",
			yaml: `
name: undefined
description: builds a program that was never created
flow:
  - op: build
    program: ghost
assertions:
  - type: trace_count
    op: build
    count: 1
`,
		},
		{
			name: "undefined bundle",
			yaml: `
name: no_bundle
description: imports a bundle that was never exported
flow:
  - op: import
    program: p
    bundle: missing
assertions:
  - type: trace_count
    op: import
    count: 1
`,
		},
		{
			name: "bad hex",
			yaml: `
name: bad_hex
description: spec constant value is not hex
sources:
  m: |
    kernels: ["k"]
flow:
  - op: create_il
    program: m
    sources: [m]
  - op: set_spec_constant
    program: m
    spec_id: 1
    value: zz
assertions:
  - type: trace_count
    op: set_spec_constant
    count: 1
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(tt.yaml))
			require.NoError(t, err)

			_, err = Run(s)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrScenario), "got %v", err)
		})
	}
}

func TestAssertGolden_CanonicalTrace(t *testing.T) {
	snapshot := TraceSnapshot{
		ScenarioName: "x",
		Trace: []TraceEvent{
			{Seq: 1, Op: OpCorrupt},
			{Seq: 2, Op: OpImport, Program: "p", Error: "INVALID_BINARY", Statuses: []string{"INVALID_BINARY"}},
		},
	}
	m := snapshot.toCanonicalMap()

	trace := m["trace"].([]any)
	require.Len(t, trace, 2)
	assert.Equal(t, map[string]any{"seq": 1, "op": OpCorrupt}, trace[0])
	assert.Equal(t, []string{"INVALID_BINARY"}, trace[1].(map[string]any)["statuses"])
}
