package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/config"
	"github.com/roach88/clprog/internal/device"
	"github.com/roach88/clprog/internal/program"
	"github.com/roach88/clprog/internal/source"
	"github.com/roach88/clprog/internal/store"
)

// binaryExt is the extension of per-device binary files in an output
// directory. The file stem is the device id.
const binaryExt = ".bin"

// session is the per-invocation state shared by subcommands.
type session struct {
	cfg   *config.Config
	ctx   *program.Context
	cache *store.Store // nil unless the command asked for it
	out   *OutputFormatter
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// openSession loads the config and creates the device context. With
// withCache the binary cache is opened and journals every build attempt.
func openSession(opts *RootOptions, cmd *cobra.Command, withCache bool) (*session, error) {
	s := &session{out: newFormatter(opts, cmd)}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return s, err
	}
	s.cfg = cfg

	var ctxOpts []program.ContextOption
	if withCache {
		if cfg.Cache == "" {
			return s, fmt.Errorf("no cache configured (set cache in the config file or %s)", config.EnvCache)
		}
		st, err := store.Open(cfg.Cache)
		if err != nil {
			return s, fmt.Errorf("open cache: %w", err)
		}
		klog.V(1).Infof("clprog: using binary cache %s", cfg.Cache)
		s.cache = st
		ctxOpts = append(ctxOpts, program.WithJournal(st))
	}

	if s.ctx, err = cfg.NewContext(ctxOpts...); err != nil {
		return s, err
	}
	s.out.VerboseLog("Context %s: backend %s, %d device(s)", s.ctx.ID(), cfg.Backend, len(s.ctx.Devices()))
	return s, nil
}

// Close releases the context and closes the cache.
func (s *session) Close() error {
	var errs []error
	if s.ctx != nil {
		errs = append(errs, s.ctx.Release())
	}
	if s.cache != nil {
		errs = append(errs, s.cache.Close())
	}
	return errors.Join(errs...)
}

// targets returns the requested devices, or every context device.
func (s *session) targets(requested []device.ID) []device.ID {
	if len(requested) > 0 {
		return requested
	}
	return device.IDs(s.ctx.Devices())
}

func deviceIDs(names []string) []device.ID {
	ids := make([]device.ID, len(names))
	for i, n := range names {
		ids[i] = device.ID(n)
	}
	return ids
}

// newSourceProgram creates a program from files: one text fragment per
// file, in order, or a single IL module.
func newSourceProgram(ctx *program.Context, paths []string, il bool) (*program.Program, error) {
	if il {
		if len(paths) != 1 {
			return nil, fmt.Errorf("--il takes exactly one module, got %d files", len(paths))
		}
		data, err := os.ReadFile(paths[0])
		if err != nil {
			return nil, fmt.Errorf("read IL module: %w", err)
		}
		return program.NewWithIL(ctx, data)
	}

	fragments := make([]source.Fragment, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read source: %w", err)
		}
		fragments[i] = source.Fragment{Data: data}
	}
	return program.NewWithSource(ctx, fragments)
}

// writeBinaries writes one <device>.bin file per device that has a binary
// and returns the written paths.
func writeBinaries(dir string, p *program.Program) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	var written []string
	for _, id := range p.Devices() {
		data, err := p.Binary(id)
		if err != nil {
			return written, err
		}
		if data == nil {
			continue
		}
		path := filepath.Join(dir, string(id)+binaryExt)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return written, fmt.Errorf("write binary: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

// readBinaries reads every <device>.bin file in dir, ordered by device id.
func readBinaries(dir string) ([]device.ID, [][]byte, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+binaryExt))
	if err != nil {
		return nil, nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, nil, fmt.Errorf("no %s files in %s", binaryExt, dir)
	}
	sort.Strings(paths)

	ids := make([]device.ID, len(paths))
	blobs := make([][]byte, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read binary: %w", err)
		}
		ids[i] = device.ID(strings.TrimSuffix(filepath.Base(path), binaryExt))
		blobs[i] = data
	}
	return ids, blobs, nil
}

// importDir creates a binary-origin program from a directory written by
// writeBinaries.
func importDir(ctx *program.Context, dir string) (*program.Program, error) {
	ids, blobs, err := readBinaries(dir)
	if err != nil {
		return nil, err
	}
	p, statuses, err := program.NewWithBinary(ctx, ids, blobs)
	if err != nil {
		for i, st := range statuses {
			klog.V(1).Infof("clprog: import %s: %s", ids[i], st)
		}
		return nil, fmt.Errorf("import %s: %w", dir, err)
	}
	return p, nil
}
