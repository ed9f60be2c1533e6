package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/capture"
	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/cli/tui"
	"github.com/justapithecus/mk0link/command"
	"github.com/justapithecus/mk0link/device"
	"github.com/justapithecus/mk0link/iox"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
)

// defaultSweepInterval applies when a response timeout is set without a
// sweep interval.
const defaultSweepInterval = time.Second

// MonitorCommand returns the monitor command.
func MonitorCommand() *cli.Command {
	flags := ConnectionFlags()
	flags = append(flags,
		&cli.BoolFlag{
			Name:  "shell",
			Usage: "Open the interactive device shell",
		},
		&cli.BoolFlag{
			Name:  "hotreload",
			Usage: "Reload the log table when its file changes",
		},
		&cli.StringFlag{
			Name:  "capture",
			Usage: "Record raw link bytes to a capture file",
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Print link statistics on exit",
		},
		FormatFlag,
		NoColorFlag,
	)
	return &cli.Command{
		Name:   "monitor",
		Usage:  "Stream decoded device logs, optionally with an interactive shell",
		Flags:  flags,
		Action: monitorAction,
	}
}

func monitorAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	conn := resolveConnection(c, cfg)
	if err := choosePort(c, &conn); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	meta := &types.SessionMeta{
		SessionID: uuid.NewString(),
		Port:      conn.port,
		BaudRate:  conn.baud,
	}
	shell := c.Bool("shell")
	defaultFormat := log.FormatJSON
	if shell || render.IsTTY(os.Stderr) {
		defaultFormat = log.FormatConsole
	}
	out := &outputSwitch{w: c.App.ErrWriter}
	logger := newLogger(c, cfg, meta, out, defaultFormat)
	defer func() { _ = logger.Sync() }()

	collector := metrics.NewCollector(conn.port, cfg.Forward.Type, cfg.Archive.Backend, meta.SessionID)

	store, tablePath, err := loadTableStore(ctx, c, cfg, logger, collector)
	if err != nil {
		return err
	}

	sinks, err := startSinks(ctx, cfg, meta, logger, collector)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}

	port, err := openPort(conn.port, conn.baud, conn.readTimeout)
	if err != nil {
		sinks.close(logger)
		return cli.Exit(fmt.Sprintf("failed to open %s: %v", conn.port, err), exitTransport)
	}
	defer iox.DiscardClose(port)

	var link io.Reader = port
	var rec *recorder
	if path := stringSetting(c, "capture", cfg.Capture.Path); path != "" {
		rec, err = startCapture(path, conn)
		if err != nil {
			sinks.close(logger)
			return cli.Exit(err.Error(), exitFailure)
		}
		link = iox.TeeReadCloser(port, rec)
	}

	timeout := cfg.Commands.ResponseTimeout.Duration
	commands := command.NewChannel(port, command.Options{
		ResponseTimeout: timeout,
		Logger:          logger,
		Collector:       collector,
	})
	client := device.NewClient(commands, logger)
	dispatcher := device.NewDispatcher(logtable.NewDecoder(store, logger, collector), device.DispatcherOptions{
		Commands:  commands,
		Sinks:     sinks.lines,
		Logger:    logger,
		Collector: collector,
	})
	session := device.NewSession(dispatcher, device.SessionOptions{
		Commands:  commands,
		Logger:    logger,
		Collector: collector,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if timeout > 0 {
		interval := cfg.Commands.SweepInterval.Duration
		if interval <= 0 {
			interval = defaultSweepInterval
		}
		wg.Go(func() { commands.RunSweeper(runCtx, interval) })
	}
	if c.Bool("hotreload") || cfg.LogTable.HotReload {
		if tablePath == "" {
			logger.Warn("hot reload needs a local log table, ignoring", nil)
		} else {
			watcher := logtable.NewWatcher(store, tablePath, 0, logger)
			wg.Go(func() {
				if err := watcher.Run(runCtx); err != nil {
					logger.Error("log table watch failed", map[string]any{"error": err.Error()})
				}
			})
		}
	}

	if shell {
		err = runShell(runCtx, session, link, client, out, conn.port)
	} else {
		err = session.Run(runCtx, link)
	}
	cancel()
	wg.Wait()

	sinks.close(logger)
	if rec != nil {
		rec.close(logger)
	}

	if c.Bool("stats") {
		r, rerr := render.NewRenderer(c)
		if rerr != nil {
			return rerr
		}
		if rerr := r.Render(render.NewStats(collector.Snapshot())); rerr != nil {
			return rerr
		}
	}

	return sessionExit(err)
}

// sessionExit maps the result of Session.Run to an exit code.
func sessionExit(err error) error {
	switch {
	case err == nil, device.IsCanceledError(err):
		return nil
	case device.IsTransportError(err):
		return cli.Exit(err.Error(), exitTransport)
	default:
		return cli.Exit(err.Error(), exitFailure)
	}
}

// runShell runs the session under the interactive shell. Host logs go to
// the shell viewport until it exits.
func runShell(ctx context.Context, session *device.Session, link io.Reader, client *device.Client, out *outputSwitch, title string) error {
	p := tui.NewProgram(ctx, tui.NewModel(tui.NewShell(client), title))
	writer := tui.NewLogWriter(p)
	defer func() { _ = writer.Close() }()
	out.redirect(writer)
	defer out.restore()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		err := session.Run(sessionCtx, link)
		if !device.IsCanceledError(err) {
			p.Send(tui.DisconnectedMsg{Err: err})
		}
		errc <- err
	}()

	uiErr := tui.Run(ctx, p)
	out.restore()
	cancel()
	err := <-errc
	if uiErr != nil {
		return uiErr
	}
	return err
}

// outputSwitch lets the shell take over host log output while it runs.
type outputSwitch struct {
	mu   sync.Mutex
	w    io.Writer
	prev io.Writer
}

func (o *outputSwitch) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

func (o *outputSwitch) redirect(w io.Writer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prev, o.w = o.w, w
}

func (o *outputSwitch) restore() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.prev != nil {
		o.w, o.prev = o.prev, nil
	}
}

// recorder tees link reads into a capture file.
type recorder struct {
	f *os.File
	*capture.Writer
}

func startCapture(path string, conn connection) (*recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture: %w", err)
	}
	w, err := capture.NewWriter(f, conn.port, conn.baud)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &recorder{f: f, Writer: w}, nil
}

func (r *recorder) close(logger *log.Logger) {
	if err := r.Flush(); err != nil {
		logger.Error("capture flush failed", map[string]any{"error": err.Error()})
	}
	if err := r.f.Close(); err != nil {
		logger.Error("capture close failed", map[string]any{"error": err.Error()})
		return
	}
	logger.Info("capture written", map[string]any{
		"path":   r.f.Name(),
		"chunks": r.Chunks(),
	})
}
