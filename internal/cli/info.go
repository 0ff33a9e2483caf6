package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/clprog/internal/binfmt"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <dir>",
		Short: "Describe the per-device binaries in a directory",
		Long: `Decode every <device>.bin file in a directory and print the build
record it carries: binary type, status, options, size, blake3 digest
(base58), kernels and build log.

A file that fails validation is reported with its error and makes the
command exit with status 1.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, args[0], cmd)
		},
	}
}

func runInfo(opts *RootOptions, dir string, cmd *cobra.Command) error {
	sess, err := openSession(opts, cmd, false)
	defer sess.Close()
	formatter := sess.out
	if err != nil {
		return formatter.Fail(ExitCommandError, "load configuration", err, nil)
	}

	ids, blobs, err := readBinaries(dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, "read binaries", err, nil)
	}

	report := ProgramReport{Op: "info"}
	var firstErr error
	for i, id := range ids {
		d := DeviceReport{Device: string(id), Size: len(blobs[i]), Digest: digestString(blobs[i])}
		rec, err := binfmt.Decode(blobs[i], id, sess.ctx.Compiler().Name())
		if err != nil {
			d.Status = "INVALID"
			d.BinaryType = "NONE"
			d.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			d.Status = rec.Status
			d.BinaryType = rec.BinaryType.String()
			d.Options = rec.Options
			d.Log = rec.Log
			d.Kernels = rec.Artifact.Kernels
		}
		report.Devices = append(report.Devices, d)
	}

	if firstErr == nil {
		return formatter.Success(report)
	}
	return formatter.Partial("invalid binary", report, firstErr)
}
