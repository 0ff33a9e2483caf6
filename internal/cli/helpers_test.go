package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/config"
)

const (
	scaleSource = `__kernel void scale(__global float *x, float k) {
    x[get_global_id(0)] *= k;
}
`
	fp64Source = `#pragma require fp64
__kernel void dscale(__global double *x) { }
`
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// cleanEnv clears configuration overrides inherited from the environment.
func cleanEnv(t *testing.T) {
	t.Helper()
	t.Setenv(config.EnvCache, "")
	t.Setenv(config.EnvDebug, "")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// decodeReport decodes a JSON response whose data or error details hold a
// ProgramReport.
func decodeReport(t *testing.T, out string) (CLIResponse, ProgramReport) {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	payload := resp.Data
	if resp.Error != nil {
		payload = resp.Error.Details
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	var report ProgramReport
	require.NoError(t, json.Unmarshal(raw, &report))
	return resp, report
}
