// Package cmd provides CLI commands for the mk0link binary.
package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/config"
	"github.com/justapithecus/mk0link/serial"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// ConfigFlag returns the --config flag. An explicit --config must exist;
// the default path is read only when present.
func ConfigFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to mk0link.yaml",
		Value:   config.DefaultPath,
	}
}

// ConnectionFlags returns the flags of commands that open the device port.
// Values left unset fall back to the config file, then to built-in defaults.
func ConnectionFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag(),
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Serial device (prompted for when omitted on a terminal)",
		},
		&cli.IntFlag{
			Name:  "baud",
			Usage: "Baud rate",
			Value: serial.DefaultBaudRate,
		},
		&cli.DurationFlag{
			Name:  "read-timeout",
			Usage: "Serial read timeout",
			Value: serial.DefaultReadTimeout,
		},
		&cli.StringFlag{
			Name:  "log-table",
			Usage: "Path to the log table artifact",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Host log format: json, console",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Minimum host log level: debug, info, warn, error",
		},
	}
}
