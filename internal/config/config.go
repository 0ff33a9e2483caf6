// Package config loads the platform configuration: the backend compiler,
// the device set, fan-out, debug flags and the binary cache location.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/clprog/internal/backend"
	"github.com/roach88/clprog/internal/backend/refcc"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/program"
)

// Environment variables that override the file.
const (
	EnvDebug = "CLPROG_DEBUG"
	EnvCache = "CLPROG_CACHE"
)

// Config is the platform configuration.
type Config struct {
	// Backend names the compiler backend. Only "refcc" is available.
	Backend string `yaml:"backend"`

	// MaxParallel bounds how many devices an operation drives at once.
	MaxParallel int `yaml:"max_parallel"`

	Debug Debug `yaml:"debug"`

	Devices []Device `yaml:"devices"`

	// Cache is the SQLite binary cache path. Empty disables caching.
	Cache string `yaml:"cache"`
}

// Debug selects diagnostic output.
type Debug struct {
	// Program prints build logs after every build, compile and link.
	Program bool `yaml:"program"`
}

// Device describes one compute device.
type Device struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Extensions []string `yaml:"extensions"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:     refcc.Name,
		MaxParallel: program.DefaultMaxParallel,
		Devices: []Device{
			{ID: "gpu0", Name: "Reference GPU 0", Extensions: []string{"fp64"}},
			{ID: "gpu1", Name: "Reference GPU 1"},
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path loads only defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if cfg, err = Parse(data); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
// A file that lists devices replaces the default device set.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Devices = nil

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if cfg.Devices == nil {
		cfg.Devices = Default().Devices
	}
	return cfg, nil
}

// ApplyEnv applies CLPROG_DEBUG (comma-separated; "program" enables build
// log dumps) and CLPROG_CACHE.
func (c *Config) ApplyEnv(getenv func(string) string) {
	for _, flag := range strings.Split(getenv(EnvDebug), ",") {
		if strings.TrimSpace(flag) == "program" {
			c.Debug.Program = true
		}
	}
	if path := getenv(EnvCache); path != "" {
		c.Cache = path
	}
}

// Validate checks the backend, the fan-out and the device set.
func (c *Config) Validate() error {
	if c.Backend != refcc.Name {
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.MaxParallel < 1 {
		return fmt.Errorf("max_parallel must be at least 1, got %d", c.MaxParallel)
	}
	if len(c.Devices) == 0 {
		return errors.New("no devices configured")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("device %d: id is required", i)
		}
		if seen[d.ID] {
			return fmt.Errorf("device %d: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// DeviceList builds the configured devices in order.
func (c *Config) DeviceList() []*device.Device {
	out := make([]*device.Device, len(c.Devices))
	for i, d := range c.Devices {
		out[i] = device.New(device.ID(d.ID), d.Name, d.Extensions...)
	}
	return out
}

// Compiler returns the configured backend.
func (c *Config) Compiler() (backend.Compiler, error) {
	switch c.Backend {
	case refcc.Name:
		return refcc.New(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// NewContext creates a context over the configured devices and backend.
// opts are applied after the configured ones.
func (c *Config) NewContext(opts ...program.ContextOption) (*program.Context, error) {
	compiler, err := c.Compiler()
	if err != nil {
		return nil, err
	}
	base := []program.ContextOption{
		program.WithMaxParallel(c.MaxParallel),
		program.WithDebug(program.DebugFlags{Program: c.Debug.Program}),
	}
	return program.NewContext(compiler, c.DeviceList(), append(base, opts...)...)
}
