// Command clprog builds, compiles, links and inspects compute programs.
package main

import (
	"errors"
	"fmt"
	"os"

	"k8s.io/klog/v2"

	"github.com/roach88/clprog/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	defer klog.Flush()

	err := cli.NewRootCommand().Execute()
	if err == nil {
		return cli.ExitSuccess
	}
	// Commands report their own failures; anything else is a usage error
	// from cobra itself.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.GetExitCode(err)
}
