package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/cli/tui"
	"github.com/justapithecus/mk0link/command"
	"github.com/justapithecus/mk0link/device"
	"github.com/justapithecus/mk0link/iox"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/types"
)

// DefaultSendTimeout bounds the wait for a device response.
const DefaultSendTimeout = 5 * time.Second

// SendResult is the outcome of a one-shot command.
type SendResult struct {
	Command string `json:"command" yaml:"command"`
	ID      uint32 `json:"id" yaml:"id"`
	Status  string `json:"status" yaml:"status"`
}

// TableHeader implements render.Table.
func (r SendResult) TableHeader() []string { return []string{"COMMAND", "ID", "STATUS"} }

// TableRows implements render.Table.
func (r SendResult) TableRows() [][]string {
	return [][]string{{r.Command, strconv.FormatUint(uint64(r.ID), 10), r.Status}}
}

// SendCommand returns the send command with one subcommand per request.
func SendCommand() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send one command to the device and wait for its response",
		Subcommands: []*cli.Command{
			{
				Name:      "recording",
				Usage:     "Turn recording on or off",
				ArgsUsage: "<on|off>",
				Flags:     sendFlags(),
				Action: func(c *cli.Context) error {
					enable, err := parseSwitch(c.Args().First())
					if err != nil {
						return cli.Exit(err.Error(), exitFailure)
					}
					return sendRequest(c, func(d *device.Client) (*command.Pending, error) {
						return d.ConfigureRecording(command.Bool(enable))
					})
				},
			},
			{
				Name:      "playback",
				Usage:     "Turn playback on or off",
				ArgsUsage: "<on|off>",
				Flags: append(sendFlags(), &cli.Float64Flag{
					Name:  "volume",
					Usage: "Playback volume between 0.0 and 1.0",
				}),
				Action: func(c *cli.Context) error {
					enable, err := parseSwitch(c.Args().First())
					if err != nil {
						return cli.Exit(err.Error(), exitFailure)
					}
					var volume *float32
					if c.IsSet("volume") {
						v, err := checkVolume(c.Float64("volume"))
						if err != nil {
							return cli.Exit(err.Error(), exitFailure)
						}
						volume = &v
					}
					return sendRequest(c, func(d *device.Client) (*command.Pending, error) {
						return d.ConfigurePlayback(command.Bool(enable), volume)
					})
				},
			},
			{
				Name:      "volume",
				Usage:     "Set the playback volume",
				ArgsUsage: "<0.0-1.0>",
				Flags:     sendFlags(),
				Action: func(c *cli.Context) error {
					v, err := parseVolume(c.Args().First())
					if err != nil {
						return cli.Exit(err.Error(), exitFailure)
					}
					return sendRequest(c, func(d *device.Client) (*command.Pending, error) {
						return d.SetVolume(v)
					})
				},
			},
			{
				Name:  "reset",
				Usage: "Soft reset the device",
				Flags: append(sendFlags(), &cli.BoolFlag{
					Name:    "yes",
					Aliases: []string{"y"},
					Usage:   "Skip the confirmation prompt",
				}),
				Action: func(c *cli.Context) error {
					ok, err := confirmReset(c)
					if err != nil {
						return err
					}
					if !ok {
						_, _ = fmt.Fprintln(c.App.Writer, "Reset cancelled.")
						return nil
					}
					return sendRequest(c, func(d *device.Client) (*command.Pending, error) {
						return d.Reset()
					})
				},
			},
		},
	}
}

func sendFlags() []cli.Flag {
	flags := ConnectionFlags()
	return append(flags,
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "How long to wait for the device response",
			Value: DefaultSendTimeout,
		},
		FormatFlag,
		NoColorFlag,
	)
}

// parseSwitch accepts on/off and the strconv boolean spellings.
func parseSwitch(arg string) (bool, error) {
	switch strings.ToLower(arg) {
	case "on", "enable":
		return true, nil
	case "off", "disable":
		return false, nil
	}
	v, err := strconv.ParseBool(arg)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", arg)
	}
	return v, nil
}

var errVolume = errors.New("volume must be a number between 0.0 and 1.0")

func parseVolume(arg string) (float32, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(arg), 64)
	if err != nil {
		return 0, errVolume
	}
	return checkVolume(v)
}

func checkVolume(v float64) (float32, error) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return 0, errVolume
	}
	return float32(v), nil
}

// confirmReset asks before resetting unless --yes was given.
func confirmReset(c *cli.Context) (bool, error) {
	if c.Bool("yes") {
		return true, nil
	}
	if !render.IsTTY(os.Stdin) {
		return false, cli.Exit("reset needs --yes when stdin is not a terminal", exitFailure)
	}
	return readConfirmation(c.App.Reader, c.App.Writer), nil
}

func readConfirmation(in io.Reader, out io.Writer) bool {
	_, _ = fmt.Fprint(out, tui.ResetPrompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// sendRequest opens the device, runs a session long enough to receive the
// response to submit's command, and reports it.
func sendRequest(c *cli.Context, submit func(*device.Client) (*command.Pending, error)) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	conn := resolveConnection(c, cfg)
	if err := choosePort(c, &conn); err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta := &types.SessionMeta{SessionID: uuid.NewString(), Port: conn.port, BaudRate: conn.baud}
	defaultFormat := log.FormatJSON
	if render.IsTTY(os.Stderr) {
		defaultFormat = log.FormatConsole
	}
	logger := newLogger(c, cfg, meta, c.App.ErrWriter, defaultFormat)
	defer func() { _ = logger.Sync() }()

	// Lines the device emits while we wait are still decoded and logged.
	store, _, err := loadTableStore(ctx, c, cfg, logger, nil)
	if err != nil {
		return err
	}

	port, err := openPort(conn.port, conn.baud, conn.readTimeout)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open %s: %v", conn.port, err), exitTransport)
	}
	defer iox.DiscardClose(port)

	commands := command.NewChannel(port, command.Options{Logger: logger})
	client := device.NewClient(commands, logger)
	dispatcher := device.NewDispatcher(logtable.NewDecoder(store, logger, nil), device.DispatcherOptions{
		Commands: commands,
		Logger:   logger,
	})
	session := device.NewSession(dispatcher, device.SessionOptions{
		Commands: commands,
		Logger:   logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- session.Run(runCtx, port) }()

	pending, err := submit(client)
	if err != nil {
		cancel()
		<-done
		return cli.Exit(err.Error(), exitTransport)
	}

	waitCtx, waitCancel := context.WithTimeout(runCtx, c.Duration("timeout"))
	resp, err := pending.Wait(waitCtx)
	waitCancel()
	cancel()
	<-done

	name := pending.Request().Name()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return cli.Exit(fmt.Sprintf("%s: no response within %s", name, c.Duration("timeout")), exitTransport)
	case err != nil:
		return cli.Exit(fmt.Sprintf("%s: %v", name, err), exitTransport)
	}

	if rerr := r.Render(SendResult{Command: name, ID: resp.ID, Status: resp.Status.String()}); rerr != nil {
		return rerr
	}
	if !resp.Status.OK() {
		return cli.Exit("", exitRejected)
	}
	return nil
}
