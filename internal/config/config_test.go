package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/clprog/internal/device"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	devs := cfg.DeviceList()
	require.Len(t, devs, 2)
	assert.Equal(t, device.ID("gpu0"), devs[0].ID())
	assert.True(t, devs[0].HasExtension("fp64"))
	assert.False(t, devs[1].HasExtension("fp64"))
	assert.Equal(t, 4, cfg.MaxParallel)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
backend: refcc
max_parallel: 2
debug:
  program: true
cache: /tmp/cache.db
devices:
  - id: acc0
    name: Accelerator
    extensions: [fp16, fp64]
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.MaxParallel)
	assert.True(t, cfg.Debug.Program)
	assert.Equal(t, "/tmp/cache.db", cfg.Cache)
	assert.Equal(t, []Device{{ID: "acc0", Name: "Accelerator", Extensions: []string{"fp16", "fp64"}}}, cfg.Devices)
}

func TestParse_EmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("max_paralel: 3\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"backend", func(c *Config) { c.Backend = "llvm" }, `unknown backend "llvm"`},
		{"parallel", func(c *Config) { c.MaxParallel = 0 }, "max_parallel must be at least 1"},
		{"no devices", func(c *Config) { c.Devices = nil }, "no devices configured"},
		{"missing id", func(c *Config) { c.Devices[1].ID = "" }, "device 1: id is required"},
		{"duplicate id", func(c *Config) { c.Devices[1].ID = "gpu0" }, `duplicate id "gpu0"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDebug: "kernel, program",
		EnvCache: "/var/cache/clprog.db",
	}
	cfg := Default()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	assert.True(t, cfg.Debug.Program)
	assert.Equal(t, "/var/cache/clprog.db", cfg.Cache)

	cfg = Default()
	cfg.ApplyEnv(func(string) string { return "" })
	assert.False(t, cfg.Debug.Program)
	assert.Empty(t, cfg.Cache)
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvDebug, "")
	t.Setenv(EnvCache, "")

	path := filepath.Join(t.TempDir(), "clprog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 1\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxParallel)
	assert.Len(t, cfg.Devices, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 0\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestNewContext(t *testing.T) {
	cfg := Default()
	cfg.Debug.Program = true

	ctx, err := cfg.NewContext()
	require.NoError(t, err)
	assert.Equal(t, "refcc", ctx.Compiler().Name())
	assert.True(t, ctx.Debug().Program)
	assert.Len(t, ctx.Devices(), 2)
}
