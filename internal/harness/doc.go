// Package harness runs YAML scenarios against the program build coordinator.
//
// A scenario names a device set, a few inline sources, and a flow of steps
// (create, build, compile, link, export, import, spec constants, kernels,
// release). Each step runs against a fresh context backed by the reference
// compiler, with deterministic identities and an in-memory journal. The
// harness records a trace of every step and evaluates the scenario's
// assertions against the final program state and the journal.
//
// # Scenario format
//
//	name: partial_build
//	description: fp64 kernels build only where fp64 is available
//	sources:
//	  dscale: |
//	    #pragma require fp64
//	    __kernel void dscale(__global double *x) { }
//	flow:
//	  - op: create_source
//	    program: p
//	    sources: [dscale]
//	  - op: build
//	    program: p
//	    expect:
//	      error: BUILD_PROGRAM_FAILURE
//	assertions:
//	  - type: status
//	    program: p
//	    device: gpu1
//	    equals: ERROR
//
// # Golden traces
//
// RunWithGolden compares the canonical JSON trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
//
// Traces hold statuses, binary types and error codes only. Build logs and
// binary sizes are checked by assertions so that goldens stay stable across
// compression library versions.
package harness
