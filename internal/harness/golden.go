package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/clprog/internal/canonical"
)

// TraceSnapshot captures the trace of a scenario execution.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot to the generic values
// canonical.Marshal accepts.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		m := map[string]any{
			"seq": ev.Seq,
			"op":  ev.Op,
		}
		if ev.Program != "" {
			m["program"] = ev.Program
		}
		if ev.Error != "" {
			m["error"] = ev.Error
		}
		if len(ev.Devices) > 0 {
			devs := make([]any, len(ev.Devices))
			for j, d := range ev.Devices {
				devs[j] = map[string]any{
					"device":      d.Device,
					"status":      d.Status,
					"binary_type": d.BinaryType,
				}
			}
			m["devices"] = devs
		}
		if len(ev.Statuses) > 0 {
			m["statuses"] = ev.Statuses
		}
		if ev.Result != "" {
			m["result"] = ev.Result
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not run. A trace mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against the golden file
// named scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	traceJSON, err := canonical.Marshal(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
