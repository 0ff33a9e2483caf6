package harness

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/program"
	"github.com/roach88/clprog/internal/store"
)

// Assertion types.
const (
	AssertStatus      = "status"
	AssertBinaryType  = "binary_type"
	AssertLogContains = "log_contains"
	AssertKernelNames = "kernel_names"
	AssertRefCount    = "ref_count"
	AssertAttempts    = "attempts"
	AssertTraceCount  = "trace_count"
)

// Assertion is a check on the final state of a scenario.
type Assertion struct {
	Type string `yaml:"type"`

	// Program is the handle checked by status, binary_type, log_contains,
	// kernel_names, ref_count and attempts.
	Program string `yaml:"program,omitempty"`

	// Device selects the record (status, binary_type, log_contains) or
	// filters journal attempts.
	Device string `yaml:"device,omitempty"`

	// Op filters journal attempts or names the traced op (trace_count).
	Op string `yaml:"op,omitempty"`

	Equals   string `yaml:"equals,omitempty"`
	Contains string `yaml:"contains,omitempty"`
	Count    int    `yaml:"count,omitempty"`
}

// AssertionContext gives assertions access to the scenario's programs and
// journal.
type AssertionContext struct {
	Store    *store.Store
	Ctx      context.Context
	Programs map[string]*program.Program
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", ev.Seq, ev.Op, ev.Program)
		if ev.Error != "" {
			fmt.Fprintf(&buf, " -> %s", ev.Error)
		}
		buf.WriteByte('\n')
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result.Trace, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(trace []TraceEvent, a Assertion, actx *AssertionContext) error {
	if a.Type == AssertTraceCount {
		return assertTraceCount(trace, a)
	}

	p, ok := actx.Programs[a.Program]
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("program %q", a.Program),
			Actual:   "program was never created",
			Trace:    trace,
		}
	}

	var actual string
	switch a.Type {
	case AssertStatus:
		status, err := p.Status(device.ID(a.Device))
		if err != nil {
			return err
		}
		actual = status.String()
	case AssertBinaryType:
		binType, err := p.BinaryType(device.ID(a.Device))
		if err != nil {
			return err
		}
		actual = binType.String()
	case AssertLogContains:
		log, err := p.Log(device.ID(a.Device))
		if err != nil {
			return err
		}
		if !strings.Contains(log, a.Contains) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("log of %s on %s containing %q", a.Program, a.Device, a.Contains),
				Actual:   fmt.Sprintf("%q", log),
				Trace:    trace,
			}
		}
		return nil
	case AssertKernelNames:
		names, err := p.KernelNames()
		if err != nil {
			return err
		}
		actual = names
	case AssertRefCount:
		actual = strconv.FormatInt(p.RefCount(), 10)
	case AssertAttempts:
		return assertAttempts(trace, p, a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}

	if actual != a.Equals {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s of %s = %q", a.Type, target(a), a.Equals),
			Actual:   fmt.Sprintf("%q", actual),
			Trace:    trace,
		}
	}
	return nil
}

// assertAttempts counts journaled attempts of a program, optionally
// filtered by device and op.
func assertAttempts(trace []TraceEvent, p *program.Program, a Assertion, actx *AssertionContext) error {
	attempts, err := actx.Store.ReadAttempts(actx.Ctx, p.ID())
	if err != nil {
		return fmt.Errorf("read attempts: %w", err)
	}
	count := 0
	for _, at := range attempts {
		if a.Device != "" && string(at.Device) != a.Device {
			continue
		}
		if a.Op != "" && string(at.Op) != a.Op {
			continue
		}
		count++
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d attempts for %s", a.Count, target(a)),
			Actual:   fmt.Sprintf("%d attempts", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceCount checks how many steps of an op were traced.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Op == a.Op {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d %s steps", a.Count, a.Op),
			Actual:   fmt.Sprintf("%d %s steps", count, a.Op),
			Trace:    trace,
		}
	}
	return nil
}

func target(a Assertion) string {
	parts := []string{a.Program}
	if a.Device != "" {
		parts = append(parts, "device="+a.Device)
	}
	if a.Op != "" {
		parts = append(parts, "op="+a.Op)
	}
	return strings.Join(parts, " ")
}
