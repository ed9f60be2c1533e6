// Package main provides the mk0link CLI entrypoint.
//
// Usage:
//
//	mk0link <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: usage or command failure
//   - 2: device or transport failure
//   - 3: command rejected by the device
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/cmd"
	"github.com/justapithecus/mk0link/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already exited for handled errors.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "mk0link",
		Usage:          "Host link to the Mk0 device",
		Version:        fmt.Sprintf("%s (wire %s, commit: %s)", types.Version, types.WireVersion, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.MonitorCommand(),
			cmd.SendCommand(),
			cmd.PortsCommand(),
			cmd.LogTableCommand(),
			cmd.ReplayCommand(),
			cmd.ArchiveCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler preserves exit codes from cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(report(os.Stderr, err))
}

// report prints err and returns the process exit code.
func report(w io.Writer, err error) int {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is "exit status N"; nothing to print.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			_, _ = fmt.Fprintln(w, msg)
		}
		return code
	}

	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
