package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/clprog/internal/config"
)

// Scenario is one conformance scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Devices replaces the default device set (gpu0 with fp64, gpu1).
	Devices []config.Device `yaml:"devices,omitempty"`

	// MaxParallel bounds per-device fan-out. Zero uses the default.
	MaxParallel int `yaml:"max_parallel,omitempty"`

	// Sources are named inline source texts or IL modules.
	Sources map[string]string `yaml:"sources,omitempty"`

	// Flow is executed in order.
	Flow []Step `yaml:"flow"`

	// Assertions are evaluated after the flow.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one operation of the flow.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Program is the handle the step creates or acts on.
	Program string `yaml:"program,omitempty"`

	// Sources lists source names, one fragment each (create_source), or
	// the single IL module (create_il).
	Sources []string `yaml:"sources,omitempty"`

	// Devices targets a subset of devices. Empty targets all.
	Devices []string `yaml:"devices,omitempty"`

	// Options are passed to the backend.
	Options string `yaml:"options,omitempty"`

	// Headers are compile headers, in order.
	Headers []HeaderRef `yaml:"headers,omitempty"`

	// Inputs are the programs to link.
	Inputs []string `yaml:"inputs,omitempty"`

	// Bundle names exported binaries (export, import, corrupt).
	Bundle string `yaml:"bundle,omitempty"`

	// Kernel is the kernel name (create_kernel, release_kernel).
	Kernel string `yaml:"kernel,omitempty"`

	// SpecID and Value set a specialization constant; Value is hex.
	SpecID uint32 `yaml:"spec_id,omitempty"`
	Value  string `yaml:"value,omitempty"`

	// Query is the query key (query).
	Query string `yaml:"query,omitempty"`

	// Expect describes the expected outcome. Nil expects success.
	Expect *Expect `yaml:"expect,omitempty"`
}

// HeaderRef binds an include name to a program handle.
type HeaderRef struct {
	Name    string `yaml:"name"`
	Program string `yaml:"program"`
}

// Expect is the expected outcome of a step.
type Expect struct {
	// Error is the expected clerr code. Empty expects success.
	Error string `yaml:"error,omitempty"`

	// Result is the expected query result.
	Result string `yaml:"result,omitempty"`

	// Statuses are the expected per-device import statuses.
	Statuses []string `yaml:"statuses,omitempty"`
}

// Step operations.
const (
	OpCreateSource    = "create_source"
	OpCreateIL        = "create_il"
	OpBuild           = "build"
	OpCompile         = "compile"
	OpLink            = "link"
	OpExport          = "export"
	OpImport          = "import"
	OpCorrupt         = "corrupt"
	OpSetSpecConstant = "set_spec_constant"
	OpCreateKernel    = "create_kernel"
	OpReleaseKernel   = "release_kernel"
	OpRetain          = "retain"
	OpRelease         = "release"
	OpQuery           = "query"
)

var stepOps = []string{
	OpCreateSource, OpCreateIL, OpBuild, OpCompile, OpLink, OpExport, OpImport, OpCorrupt,
	OpSetSpecConstant, OpCreateKernel, OpReleaseKernel, OpRetain, OpRelease, OpQuery,
}

// Query keys.
const (
	QueryKernelNames = "kernel_names"
	QueryNumKernels  = "num_kernels"
	QuerySource      = "source"
	QueryNumDevices  = "num_devices"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and that every
// reference resolves.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Flow {
		if err := validateStep(s, i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(s *Scenario, i int, step Step) error {
	if step.Op == "" {
		return fmt.Errorf("flow[%d]: op is required", i)
	}
	if !slices.Contains(stepOps, step.Op) {
		return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
	}

	switch step.Op {
	case OpCorrupt:
		if step.Bundle == "" {
			return fmt.Errorf("flow[%d]: bundle is required for corrupt", i)
		}
	case OpExport, OpImport:
		if step.Bundle == "" || step.Program == "" {
			return fmt.Errorf("flow[%d]: bundle and program are required for %s", i, step.Op)
		}
	case OpCreateKernel, OpReleaseKernel:
		if step.Program == "" || step.Kernel == "" {
			return fmt.Errorf("flow[%d]: program and kernel are required for %s", i, step.Op)
		}
	case OpQuery:
		if step.Program == "" || step.Query == "" {
			return fmt.Errorf("flow[%d]: program and query are required for query", i)
		}
	default:
		if step.Program == "" {
			return fmt.Errorf("flow[%d]: program is required for %s", i, step.Op)
		}
	}

	for _, name := range step.Sources {
		if _, ok := s.Sources[name]; !ok {
			return fmt.Errorf("flow[%d]: unknown source %q", i, name)
		}
	}
	if step.Op == OpCreateIL && len(step.Sources) != 1 {
		return fmt.Errorf("flow[%d]: create_il takes exactly one source", i)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStatus, AssertBinaryType, AssertLogContains:
		if a.Program == "" || a.Device == "" {
			return fmt.Errorf("assertions[%d]: program and device are required for %s", index, a.Type)
		}
	case AssertKernelNames, AssertRefCount:
		if a.Program == "" {
			return fmt.Errorf("assertions[%d]: program is required for %s", index, a.Type)
		}
	case AssertAttempts:
		if a.Program == "" {
			return fmt.Errorf("assertions[%d]: program is required for attempts", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for attempts", index)
		}
	case AssertTraceCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
