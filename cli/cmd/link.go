package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/cli/config"
	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/s3x"
	"github.com/justapithecus/mk0link/serial"
	"github.com/justapithecus/mk0link/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitFailure   = 1
	exitTransport = 2
	exitRejected  = 3
)

// openPort opens the device transport. Tests replace it.
var openPort = func(name string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	return serial.Open(name, baud, readTimeout)
}

// listPorts enumerates serial ports. Tests replace it.
var listPorts = serial.ListPorts

// connection is the resolved transport settings of one command.
type connection struct {
	port        string
	baud        int
	readTimeout time.Duration
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"), c.IsSet("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitFailure)
	}
	return cfg, nil
}

// stringSetting returns the flag when set, else the config value, else the
// flag default.
func stringSetting(c *cli.Context, flag, fromConfig string) string {
	if c.IsSet(flag) || fromConfig == "" {
		return c.String(flag)
	}
	return fromConfig
}

func resolveConnection(c *cli.Context, cfg *config.Config) connection {
	conn := connection{
		port:        stringSetting(c, "port", cfg.Serial.Port),
		baud:        c.Int("baud"),
		readTimeout: c.Duration("read-timeout"),
	}
	if !c.IsSet("baud") && cfg.Serial.BaudRate > 0 {
		conn.baud = cfg.Serial.BaudRate
	}
	if !c.IsSet("read-timeout") && cfg.Serial.ReadTimeout.Duration > 0 {
		conn.readTimeout = cfg.Serial.ReadTimeout.Duration
	}
	return conn
}

// choosePort resolves an empty port by prompting on a terminal.
func choosePort(c *cli.Context, conn *connection) error {
	if conn.port != "" {
		return nil
	}
	if !render.IsTTY(os.Stdin) {
		return cli.Exit("--port is required when stdin is not a terminal", exitFailure)
	}
	ports, err := listPorts()
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	name, err := promptPort(c.App.Reader, c.App.Writer, ports)
	if err != nil {
		return cli.Exit(err.Error(), exitFailure)
	}
	conn.port = name
	return nil
}

// promptPort lists ports and reads an index until a valid one is entered.
func promptPort(in io.Reader, out io.Writer, ports []serial.PortInfo) (string, error) {
	for _, p := range ports {
		_, _ = fmt.Fprintf(out, "[%d] %s - %s\n", p.Index, p.Device, p.Description)
	}
	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "Select a port: ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		i, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
		if err == nil && i >= 0 && i < len(ports) {
			return ports[i].Device, nil
		}
		_, _ = fmt.Fprintln(out, "Invalid selection. Please try again.")
	}
}

func newLogger(c *cli.Context, cfg *config.Config, meta *types.SessionMeta, w io.Writer, defaultFormat string) *log.Logger {
	format := stringSetting(c, "log-format", cfg.Log.Format)
	if format == "" {
		format = defaultFormat
	}
	return log.NewLoggerWithOptions(meta, w, log.Options{
		Format: format,
		Level:  stringSetting(c, "log-level", cfg.Log.Level),
	})
}

// newTableSource locates the log table. S3 wins over a local path unless
// --log-table is given. The returned path is the local file to watch,
// empty for S3.
func newTableSource(ctx context.Context, c *cli.Context, cfg *config.Config) (logtable.Source, string, error) {
	obj := cfg.LogTable.S3
	if obj.Bucket != "" && !c.IsSet("log-table") {
		src, err := logtable.NewS3SourceFromConfig(ctx, logtable.S3Config{
			Bucket: obj.Bucket,
			Key:    obj.Key,
			Options: s3x.Options{
				Region:       obj.Region,
				Endpoint:     obj.Endpoint,
				UsePathStyle: obj.PathStyle,
			},
		})
		if err != nil {
			return nil, "", err
		}
		return src, "", nil
	}

	path := stringSetting(c, "log-table", cfg.LogTable.Path)
	if path == "" {
		path = logtable.DefaultPath
	}
	return logtable.FileSource{Path: path}, path, nil
}

// loadTableStore builds and loads the log table store. A missing artifact
// leaves an empty table; a malformed one fails.
func loadTableStore(ctx context.Context, c *cli.Context, cfg *config.Config, logger *log.Logger, collector *metrics.Collector) (*logtable.Store, string, error) {
	src, path, err := newTableSource(ctx, c, cfg)
	if err != nil {
		return nil, "", cli.Exit(fmt.Sprintf("log table: %v", err), exitFailure)
	}
	store := logtable.NewStore(src, logger, collector)
	if err := store.Load(ctx); err != nil {
		return nil, "", cli.Exit(fmt.Sprintf("log table: %v", err), exitFailure)
	}
	return store, path, nil
}
