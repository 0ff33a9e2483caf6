package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/program"
	"github.com/roach88/clprog/internal/source"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Devices []string // target devices; empty targets all
	Options string   // backend compile options
	Headers []string // name=path pairs
	Out     string   // directory for per-device objects
	IL      bool     // treat the single input as an IL module
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <source>...",
		Short: "Compile source files to per-device compiled objects",
		Long: `Compile a program to a compiled object for every configured device
(or the devices given with --device).

Each --header name=path makes the file at path available to
#include "name" directives. Headers are ignored for IL modules.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Devices, "device", "d", nil, "target device id (repeatable)")
	cmd.Flags().StringVar(&opts.Options, "options", "", "compile options passed to the backend")
	cmd.Flags().StringArrayVar(&opts.Headers, "header", nil, "embedded header as name=path (repeatable)")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write <device>.bin files to this directory")
	cmd.Flags().BoolVar(&opts.IL, "il", false, "input is an IL module")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	sess, err := openSession(opts.RootOptions, cmd, false)
	defer sess.Close()
	formatter := sess.out
	if err != nil {
		return formatter.Fail(ExitCommandError, "load configuration", err, nil)
	}

	p, err := newSourceProgram(sess.ctx, args, opts.IL)
	if err != nil {
		return formatter.Fail(ExitCommandError, "create program", err, nil)
	}
	defer func() { _ = p.Release() }()

	headers, err := loadHeaders(sess.ctx, opts.Headers)
	defer func() {
		for _, h := range headers.Programs {
			_ = h.Release()
		}
	}()
	if err != nil {
		return formatter.Fail(ExitCommandError, "load headers", err, nil)
	}
	formatter.VerboseLog("Compiling %d file(s) with %d header(s)", len(args), len(headers.Programs))

	compileErr := p.Compile(deviceIDs(opts.Devices), opts.Options, headers, notifier(formatter, "compile"))
	if compileErr != nil && !clerr.Is(compileErr, clerr.CompileFailure) {
		return formatter.Fail(exitCodeFor(compileErr), "compile", compileErr, nil)
	}
	return finishReport(formatter, "compile", p, opts.Out, false, compileErr)
}

// loadHeaders turns name=path pairs into source programs.
func loadHeaders(ctx *program.Context, specs []string) (*program.Headers, error) {
	headers := &program.Headers{}
	for _, spec := range specs {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return headers, fmt.Errorf("header %q: want name=path", spec)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return headers, fmt.Errorf("read header %s: %w", name, err)
		}
		h, err := program.NewWithSource(ctx, []source.Fragment{{Data: data}})
		if err != nil {
			return headers, fmt.Errorf("header %s: %w", name, err)
		}
		headers.Programs = append(headers.Programs, h)
		headers.IncludeNames = append(headers.IncludeNames, name)
	}
	return headers, nil
}
