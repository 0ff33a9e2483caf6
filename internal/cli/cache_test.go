package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/config"
	"github.com/roach88/clprog/internal/program"
	"github.com/roach88/clprog/internal/source"
)

func decodeListing(t *testing.T, out string) CacheListing {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)

	var listing CacheListing
	require.NoError(t, json.Unmarshal(raw, &listing))
	return listing
}

func TestCacheList(t *testing.T) {
	cleanEnv(t)
	dir := t.TempDir()
	t.Setenv(config.EnvCache, filepath.Join(dir, "cache.db"))

	output, err := runCLI(t, "cache", "ls")
	require.NoError(t, err)
	assert.Contains(t, output, "No cached binaries")

	src := writeFile(t, dir, "scale.cl", scaleSource)
	_, err = runCLI(t, "build", src, "--cache")
	require.NoError(t, err)

	output, err = runCLI(t, "--format", "json", "cache", "ls")
	require.NoError(t, err)
	listing := decodeListing(t, output)
	require.Len(t, listing.Entries, 2)
	digest := listing.Entries[0].Digest
	for _, e := range listing.Entries {
		assert.Equal(t, digest, e.Digest)
		assert.Equal(t, "refcc", e.Backend)
		assert.Equal(t, "EXECUTABLE", e.BinaryType)
		assert.Positive(t, e.Size)
	}

	output, err = runCLI(t, "cache", "ls", digest)
	require.NoError(t, err)
	assert.Contains(t, output, "2 cached binary(ies)")

	output, err = runCLI(t, "--format", "json", "cache", "ls", "0000")
	require.NoError(t, err)
	assert.Empty(t, decodeListing(t, output).Entries)
}

func TestCacheList_NotConfigured(t *testing.T) {
	cleanEnv(t)

	output, err := runCLI(t, "cache", "ls")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "no cache configured")
}

func TestCacheKey_OptionsAreByteExact(t *testing.T) {
	ctx, err := config.Default().NewContext()
	require.NoError(t, err)
	defer ctx.Release()
	p, err := program.NewWithSource(ctx, []source.Fragment{source.FromString(scaleSource)})
	require.NoError(t, err)
	defer p.Release()

	decomposed, err := cacheKey(ctx, p, "-DX=e\u0301")
	require.NoError(t, err)
	composed, err := cacheKey(ctx, p, "-DX=\u00e9")
	require.NoError(t, err)
	again, err := cacheKey(ctx, p, "-DX=e\u0301")
	require.NoError(t, err)

	assert.NotEqual(t, decomposed, composed)
	assert.Equal(t, decomposed, again)
}
