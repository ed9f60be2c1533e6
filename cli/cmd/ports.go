package cmd

import (
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/serial"
)

// PortsCommand returns the ports command.
func PortsCommand() *cli.Command {
	return &cli.Command{
		Name:   "ports",
		Usage:  "List serial ports",
		Flags:  ReadOnlyFlags(),
		Action: portsAction,
	}
}

func portsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ports, err := listPorts()
	if err != nil && !errors.Is(err, serial.ErrNoPorts) {
		return cli.Exit(err.Error(), exitTransport)
	}
	return r.Render(render.NewPorts(ports))
}
