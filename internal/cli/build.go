package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/program"
)

// BuildOptions holds flags for the build command.
type BuildOptions struct {
	*RootOptions
	Devices []string // target devices; empty targets all
	Options string   // backend build options
	Out     string   // directory for per-device binaries
	IL      bool     // treat the single input as an IL module
	Cache   bool     // reuse and populate the binary cache
}

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BuildOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "build <source>...",
		Short: "Build executables from source files or an IL module",
		Long: `Build a program for every configured device (or the devices given
with --device). Source files are concatenated in order into one
translation unit; with --il the single input is an IL module.

With --cache, binaries built earlier from the same source, options and
backend are imported instead of rebuilt, and new binaries are stored.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Devices, "device", "d", nil, "target device id (repeatable)")
	cmd.Flags().StringVar(&opts.Options, "options", "", "build options passed to the backend")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write <device>.bin files to this directory")
	cmd.Flags().BoolVar(&opts.IL, "il", false, "input is an IL module")
	cmd.Flags().BoolVar(&opts.Cache, "cache", false, "use the binary cache")

	return cmd
}

func runBuild(opts *BuildOptions, args []string, cmd *cobra.Command) error {
	sess, err := openSession(opts.RootOptions, cmd, opts.Cache)
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

	targets := sess.targets(deviceIDs(opts.Devices))
	var key string
	cached := false
	if sess.cache != nil {
		if key, err = cacheKey(sess.ctx, p, opts.Options); err != nil {
			return formatter.Fail(ExitCommandError, "compute cache key", err, nil)
		}
		if hit, ok := lookupCache(cmd.Context(), sess, key, targets); ok {
			formatter.VerboseLog("Cache hit for %s", key)
			_ = p.Release()
			p, cached = hit, true
		}
	}

	buildErr := p.Build(targets, opts.Options, notifier(formatter, "build"))
	if buildErr != nil && !clerr.Is(buildErr, clerr.BuildFailure) {
		return formatter.Fail(exitCodeFor(buildErr), "build", buildErr, nil)
	}

	if sess.cache != nil && !cached {
		if err := storeCache(cmd.Context(), sess, key, p, targets); err != nil {
			return formatter.Fail(ExitCommandError, "update cache", err, nil)
		}
	}
	return finishReport(formatter, "build", p, opts.Out, cached, buildErr)
}

// finishReport writes binaries to out (if set), prints the program report
// and turns a per-device failure into ExitFailure.
func finishReport(formatter *OutputFormatter, op string, p *program.Program, out string, cached bool, opErr error) error {
	report, err := reportProgram(op, p)
	if err != nil {
		return formatter.Fail(ExitCommandError, "query program", err, nil)
	}
	report.Cached = cached
	if out != "" {
		if report.Written, err = writeBinaries(out, p); err != nil {
			return formatter.Fail(ExitCommandError, "write binaries", err, nil)
		}
	}
	if opErr == nil {
		return formatter.Success(report)
	}
	return formatter.Partial(op+" failed", report, opErr)
}
