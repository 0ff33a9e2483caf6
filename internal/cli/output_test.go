package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/clerr"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("INVALID_VALUE", "no source fragments", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_VALUE", resp.Error.Code)
	assert.Equal(t, "no source fragments", resp.Error.Message)
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("INVALID_DEVICE", "unknown device gpu9", map[string]string{"device": "gpu9"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [INVALID_DEVICE]")
	assert.Contains(t, buf.String(), "unknown device gpu9")
	assert.NotContains(t, buf.String(), "Details:")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	err := formatter.Error("INVALID_DEVICE", "unknown device gpu9", map[string]string{"device": "gpu9"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_Fail(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: buf}

	cause := clerr.New(clerr.InvalidOperation, "build program", "program p has 1 kernels attached")
	err := formatter.Fail(ExitCommandError, "build", cause, nil)

	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.True(t, clerr.Is(err, clerr.InvalidOperation))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_OPERATION", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "build: ")
}

func TestOutputFormatter_Partial(t *testing.T) {
	cause := clerr.New(clerr.BuildFailure, "build program", "build failed")

	t.Run("text", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "text", Writer: buf}

		err := formatter.Partial("build failed", "report body", cause)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Equal(t, "report body\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		formatter := &OutputFormatter{Format: "json", Writer: buf}

		err := formatter.Partial("build failed", map[string]int{"devices": 2}, cause)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var resp CLIResponse
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, "BUILD_PROGRAM_FAILURE", resp.Error.Code)
		assert.NotNil(t, resp.Error.Details)
	})
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		wantLog bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			errBuf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:    "json",
				Writer:    buf,
				ErrWriter: errBuf,
				Verbose:   tt.verbose,
			}

			formatter.VerboseLog("Processing %s", "kernel.cl")

			assert.Empty(t, buf.String())
			if tt.wantLog {
				assert.Contains(t, errBuf.String(), "Processing kernel.cl")
			} else {
				assert.Empty(t, errBuf.String())
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", WrapExitError(ExitFailure, "build", errors.New("x"))), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, ExitFailure, exitCodeFor(clerr.New(clerr.BuildFailure, "build", "x")))
	assert.Equal(t, ExitFailure, exitCodeFor(clerr.New(clerr.CompileFailure, "compile", "x")))
	assert.Equal(t, ExitFailure, exitCodeFor(clerr.New(clerr.LinkFailure, "link", "x")))
	assert.Equal(t, ExitCommandError, exitCodeFor(clerr.New(clerr.InvalidDevice, "build", "x")))
	assert.Equal(t, ExitCommandError, exitCodeFor(errors.New("plain")))

	assert.Equal(t, "INVALID_DEVICE", errorCode(clerr.New(clerr.InvalidDevice, "build", "x")))
	assert.Equal(t, ErrCodeCommand, errorCode(errors.New("plain")))
}
