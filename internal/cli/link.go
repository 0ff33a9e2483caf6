package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/clprog/internal/clerr"
	"github.com/roach88/clprog/internal/program"
)

// LinkOptions holds flags for the link command.
type LinkOptions struct {
	*RootOptions
	Inputs  []string // directories of per-device binaries
	Devices []string // target devices; empty targets all
	Options string   // backend link options
	Out     string   // directory for the linked binaries
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link --input <dir>...",
		Short: "Link compiled objects and libraries into an executable",
		Long: `Link the per-device binaries in each --input directory (as written by
compile --out or link --out) into a new program. Every input must hold
a successfully compiled binary for every targeted device.

Pass --options -create-library to produce a library instead of an
executable.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Inputs, "input", "i", nil, "input directory (repeatable)")
	cmd.Flags().StringSliceVarP(&opts.Devices, "device", "d", nil, "target device id (repeatable)")
	cmd.Flags().StringVar(&opts.Options, "options", "", "link options passed to the backend")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write <device>.bin files to this directory")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runLink(opts *LinkOptions, cmd *cobra.Command) error {
	sess, err := openSession(opts.RootOptions, cmd, false)
	defer sess.Close()
	formatter := sess.out
	if err != nil {
		return formatter.Fail(ExitCommandError, "load configuration", err, nil)
	}

	inputs := make([]*program.Program, 0, len(opts.Inputs))
	defer func() {
		for _, in := range inputs {
			_ = in.Release()
		}
	}()
	for _, dir := range opts.Inputs {
		in, err := importDir(sess.ctx, dir)
		if err != nil {
			return formatter.Fail(ExitCommandError, "load input", err, nil)
		}
		formatter.VerboseLog("Input %s: %d device binary(ies)", dir, in.NumDevices())
		inputs = append(inputs, in)
	}

	p, linkErr := program.Link(sess.ctx, deviceIDs(opts.Devices), inputs, opts.Options, notifier(formatter, "link"))
	if p == nil {
		return formatter.Fail(exitCodeFor(linkErr), "link", linkErr, nil)
	}
	defer func() { _ = p.Release() }()
	if linkErr != nil && !clerr.Is(linkErr, clerr.LinkFailure) {
		return formatter.Fail(exitCodeFor(linkErr), "link", linkErr, nil)
	}
	return finishReport(formatter, "link", p, opts.Out, false, linkErr)
}

// notifier logs operation completion in verbose mode.
func notifier(formatter *OutputFormatter, op string) program.Notify {
	return func(p *program.Program) {
		formatter.VerboseLog("%s of program %s finished on %d device(s)", op, p.ID(), p.NumDevices())
	}
}
