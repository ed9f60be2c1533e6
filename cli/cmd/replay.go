package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/capture"
	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/device"
	"github.com/justapithecus/mk0link/iox"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
)

// ReplayCommand returns the replay command.
func ReplayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "Decode a capture file through the same path as a live session",
		ArgsUsage: "<capture>",
		Flags: []cli.Flag{
			ConfigFlag(),
			logTableFlag(),
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Host log format: json, console",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Minimum host log level: debug, info, warn, error",
			},
			&cli.BoolFlag{
				Name:  "sinks",
				Usage: "Feed decoded lines to the configured forwarder and archive",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print link statistics when done",
			},
			FormatFlag,
			NoColorFlag,
		},
		Action: replayAction,
	}
}

func replayAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: mk0link replay <capture>", exitFailure)
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open capture: %v", err), exitFailure)
	}
	defer iox.DiscardClose(f)

	rd, err := capture.NewReader(f)
	if err != nil {
		return cli.Exit(fmt.Sprintf("%s: %v", path, err), exitFailure)
	}
	header := rd.Header()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta := &types.SessionMeta{
		SessionID: uuid.NewString(),
		Port:      header.Port,
		BaudRate:  header.BaudRate,
	}
	logger := newLogger(c, cfg, meta, c.App.ErrWriter, log.FormatConsole)
	defer func() { _ = logger.Sync() }()

	var forwardType, archiveBackend string
	if c.Bool("sinks") {
		forwardType, archiveBackend = cfg.Forward.Type, cfg.Archive.Backend
	}
	collector := metrics.NewCollector(header.Port, forwardType, archiveBackend, meta.SessionID)

	store, _, err := loadTableStore(ctx, c, cfg, logger, collector)
	if err != nil {
		return err
	}

	out := &sinks{}
	if c.Bool("sinks") {
		out, err = startSinks(ctx, cfg, meta, logger, collector)
		if err != nil {
			return cli.Exit(err.Error(), exitFailure)
		}
	}

	dispatcher := device.NewDispatcher(logtable.NewDecoder(store, logger, collector), device.DispatcherOptions{
		Sinks:     out.lines,
		Logger:    logger,
		Collector: collector,
	})
	session := device.NewSession(dispatcher, device.SessionOptions{
		Logger:    logger,
		Collector: collector,
	})

	runErr := session.Run(ctx, rd.Stream())
	out.close(logger)

	if c.Bool("stats") {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if err := r.Render(render.NewStats(collector.Snapshot())); err != nil {
			return err
		}
	}
	return sessionExit(runErr)
}
