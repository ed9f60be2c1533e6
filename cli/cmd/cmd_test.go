package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/justapithecus/lode/lode"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mk0link/archive"
	"github.com/justapithecus/mk0link/capture"
	"github.com/justapithecus/mk0link/cli/render"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/serial"
	"github.com/justapithecus/mk0link/types"
	"github.com/justapithecus/mk0link/wire"
)

// syncBuffer is shared by the logger goroutines and the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// runApp runs the CLI with args and returns stdout, stderr and the error
// the exit handler would have seen.
func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &syncBuffer{}, &syncBuffer{}
	app := &cli.App{
		Name:           "mk0link",
		Writer:         out,
		ErrWriter:      errOut,
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			MonitorCommand(),
			SendCommand(),
			PortsCommand(),
			LogTableCommand(),
			ReplayCommand(),
			ArchiveCommand(),
			VersionCommand("abc123"),
		},
	}
	err := app.Run(append([]string{"mk0link"}, args...))
	return out.String(), errOut.String(), err
}

func exitCode(err error) int {
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	if err != nil {
		return 1
	}
	return 0
}

// usePort makes openPort return conn or err.
func usePort(t *testing.T, conn io.ReadWriteCloser, err error) {
	t.Helper()
	prev := openPort
	openPort = func(string, int, time.Duration) (io.ReadWriteCloser, error) { return conn, err }
	t.Cleanup(func() { openPort = prev })
}

// simDevice answers every command with status unless silent.
func simDevice(status types.CommandStatus, silent bool) (net.Conn, <-chan types.Command) {
	host, dev := net.Pipe()
	received := make(chan types.Command, 4)
	go func() {
		defer func() { _ = dev.Close() }()
		reader := wire.NewFrameReader(dev)
		for {
			payload, err := reader.ReadFrame()
			if err != nil {
				return
			}
			cmd, err := wire.DecodeCommand(payload)
			if err != nil {
				return
			}
			received <- cmd
			if silent {
				continue
			}
			out, _ := wire.EncodeFrame(wire.EncodeCommandResponse(&types.CommandResponse{ID: cmd.ID, Status: status}))
			if _, err := dev.Write(out); err != nil {
				return
			}
		}
	}()
	return host, received
}

// writeTable writes a log table holding msgs and returns its path.
func writeTable(t *testing.T, msgs ...string) string {
	t.Helper()
	entries := map[string]map[string]string{}
	for _, m := range msgs {
		entries[logtable.Key(logtable.FNV1a64(m))] = map[string]string{"msg": m, "latest_version": "1.2.0"}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "log_table.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func logFrame(t *testing.T, level types.LogLevel, msg string, args ...types.LogArg) []byte {
	t.Helper()
	frame, err := wire.EncodeFrame(wire.EncodeLogRecord(&types.LogRecord{
		Level: level,
		Hash:  logtable.FNV1a64(msg),
		Args:  args,
	}))
	if err != nil {
		t.Fatal(err)
	}
	return frame
}

func TestSend_VolumeSucceeds(t *testing.T) {
	conn, received := simDevice(types.CommandStatusSuccess, false)
	usePort(t, conn, nil)

	out, _, err := runApp(t, "send", "volume",
		"--port", "sim", "--log-table", filepath.Join(t.TempDir(), "none.json"),
		"--log-format", "json", "--format", "json", "--timeout", "2s", "0.5")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}

	var res SendResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if res.Command != "configure_playback" || res.Status != "SUCCESS" || res.ID != 1 {
		t.Errorf("result = %+v", res)
	}

	cmd := <-received
	pb, ok := cmd.Request.(types.ConfigurePlayback)
	if !ok || pb.Volume == nil || *pb.Volume != 0.5 || pb.Enable != nil {
		t.Errorf("device received %#v, want volume 0.5 only", cmd.Request)
	}
}

func TestSend_RecordingOn(t *testing.T) {
	conn, received := simDevice(types.CommandStatusSuccess, false)
	usePort(t, conn, nil)

	_, _, err := runApp(t, "send", "recording",
		"--port", "sim", "--log-table", filepath.Join(t.TempDir(), "none.json"),
		"--log-format", "json", "--format", "json", "on")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	cmd := <-received
	rec, ok := cmd.Request.(types.ConfigureRecording)
	if !ok || rec.Enable == nil || !*rec.Enable {
		t.Errorf("device received %#v, want recording enabled", cmd.Request)
	}
}

func TestSend_RejectedExitsThree(t *testing.T) {
	conn, _ := simDevice(types.CommandStatusErrInvalidArgument, false)
	usePort(t, conn, nil)

	out, _, err := runApp(t, "send", "playback",
		"--port", "sim", "--log-table", filepath.Join(t.TempDir(), "none.json"),
		"--log-format", "json", "--format", "json", "off")
	if got := exitCode(err); got != exitRejected {
		t.Fatalf("exit code = %d, want %d (err %v)", got, exitRejected, err)
	}
	if !strings.Contains(out, "ERR_INVALID_ARGUMENT") {
		t.Errorf("output %q does not report the status", out)
	}
}

func TestSend_NoResponseExitsTwo(t *testing.T) {
	conn, _ := simDevice(types.CommandStatusSuccess, true)
	usePort(t, conn, nil)

	_, _, err := runApp(t, "send", "reset", "--yes",
		"--port", "sim", "--log-table", filepath.Join(t.TempDir(), "none.json"),
		"--log-format", "json", "--timeout", "50ms")
	if got := exitCode(err); got != exitTransport {
		t.Fatalf("exit code = %d, want %d (err %v)", got, exitTransport, err)
	}
	if !strings.Contains(err.Error(), "no response within 50ms") {
		t.Errorf("error = %v", err)
	}
}

func TestSend_OpenFailureExitsTwo(t *testing.T) {
	usePort(t, nil, errors.New("no such device"))

	_, _, err := runApp(t, "send", "recording",
		"--port", "/dev/missing", "--log-table", filepath.Join(t.TempDir(), "none.json"), "off")
	if got := exitCode(err); got != exitTransport {
		t.Errorf("exit code = %d, want %d", got, exitTransport)
	}
}

func TestSend_InvalidArgumentsExitOne(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"volume not a number", []string{"send", "volume", "--port", "sim", "loud"}},
		{"volume out of range", []string{"send", "volume", "--port", "sim", "1.5"}},
		{"switch", []string{"send", "recording", "--port", "sim", "maybe"}},
		{"playback volume", []string{"send", "playback", "--volume", "-1", "--port", "sim", "on"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runApp(t, tt.args...)
			if got := exitCode(err); got != exitFailure {
				t.Errorf("exit code = %d, want %d", got, exitFailure)
			}
		})
	}
}

func TestParseSwitch(t *testing.T) {
	tests := []struct {
		in      string
		want    bool
		wantErr bool
	}{
		{"on", true, false},
		{"OFF", false, false},
		{"enable", true, false},
		{"true", true, false},
		{"0", false, false},
		{"maybe", false, true},
	}
	for _, tt := range tests {
		got, err := parseSwitch(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseSwitch(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestReadConfirmation(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := readConfirmation(strings.NewReader(tt.in), &out); got != tt.want {
			t.Errorf("readConfirmation(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if !strings.HasPrefix(out.String(), "Are you sure you want to reset the device?") {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestPromptPort_RetriesInvalidSelection(t *testing.T) {
	ports := []serial.PortInfo{
		{Index: 0, Device: "/dev/ttyACM0", Description: "Mk0"},
		{Index: 1, Device: "/dev/ttyUSB0", Description: "n/a"},
	}
	var out bytes.Buffer
	got, err := promptPort(strings.NewReader("7\nabc\n1\n"), &out, ports)
	if err != nil {
		t.Fatalf("promptPort failed: %v", err)
	}
	if got != "/dev/ttyUSB0" {
		t.Errorf("port = %q, want /dev/ttyUSB0", got)
	}
	if n := strings.Count(out.String(), "Invalid selection. Please try again."); n != 2 {
		t.Errorf("invalid selection printed %d times, want 2", n)
	}
	if !strings.Contains(out.String(), "[0] /dev/ttyACM0 - Mk0") {
		t.Errorf("listing missing from %q", out.String())
	}

	if _, err := promptPort(strings.NewReader(""), &out, ports); !errors.Is(err, io.EOF) {
		t.Errorf("promptPort on empty input = %v, want io.EOF", err)
	}
}

func TestPorts_RendersListing(t *testing.T) {
	prev := listPorts
	t.Cleanup(func() { listPorts = prev })

	listPorts = func() ([]serial.PortInfo, error) {
		return []serial.PortInfo{{Index: 0, Device: "/dev/ttyACM0", Description: "Mk0"}}, nil
	}
	out, _, err := runApp(t, "ports", "--format", "json")
	if err != nil {
		t.Fatalf("ports failed: %v", err)
	}
	var got render.Ports
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if len(got) != 1 || got[0].Device != "/dev/ttyACM0" {
		t.Errorf("ports = %+v", got)
	}

	listPorts = func() ([]serial.PortInfo, error) { return nil, serial.ErrNoPorts }
	out, _, err = runApp(t, "ports", "--format", "table", "--no-color")
	if err != nil {
		t.Fatalf("ports with none failed: %v", err)
	}
	if strings.TrimSpace(out) != "(no results)" {
		t.Errorf("output = %q", out)
	}
}

func TestLogTable_BuildAndShow(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "main.c")
	code := "void f(int x) {\n  MK0_LOG_INFO(\"Boot %u\", x);\n  MK0_LOG_ERROR(\"Fault\");\n}\n"
	if err := os.WriteFile(src, []byte(code), 0o644); err != nil {
		t.Fatal(err)
	}
	output := filepath.Join(dir, "table.json")

	out, _, err := runApp(t, "logtable", "build",
		"--output", output, "--macro", "MK0_LOG_INFO", "--macro", "MK0_LOG_ERROR",
		"--source-version", "1.4.0", src, filepath.Join(dir, "missing.c"))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if !strings.Contains(out, "File not found: "+filepath.Join(dir, "missing.c")) {
		t.Errorf("missing source not reported: %q", out)
	}
	if !strings.Contains(out, "Wrote 2 log calls to "+output) {
		t.Errorf("summary missing: %q", out)
	}

	out, _, err = runApp(t, "logtable", "show", "--log-table", output, "--format", "json")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	var entries render.LogTableEntries
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	byMsg := map[string]render.LogTableEntry{}
	for _, e := range entries {
		byMsg[e.Msg] = e
	}
	boot, ok := byMsg["Boot %u"]
	if !ok || len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if boot.Hash != logtable.Key(logtable.FNV1a64("Boot %u")) || boot.LatestVersion != "1.4.0" {
		t.Errorf("entry = %+v", boot)
	}
}

func TestLogTable_BuildCollision(t *testing.T) {
	dir := t.TempDir()
	// A prior artifact that holds a different message under the key of
	// "Boot" forces a collision when "Boot" is scanned.
	latest := filepath.Join(dir, "latest.json")
	prior := fmt.Sprintf(`{%q: {"msg": "Other", "latest_version": "1.0.0"}}`, logtable.Key(logtable.FNV1a64("Boot")))
	if err := os.WriteFile(latest, []byte(prior), 0o644); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "main.c")
	if err := os.WriteFile(src, []byte(`LOG("Boot");`), 0o644); err != nil {
		t.Fatal(err)
	}

	args := []string{"logtable", "build", "--output", filepath.Join(dir, "out.json"),
		"--latest", latest, "--macro", "LOG"}

	out, _, err := runApp(t, append(args, src)...)
	if err != nil {
		t.Fatalf("non-strict build failed: %v", err)
	}
	if !strings.Contains(out, "COLLISION DETECTED!") {
		t.Errorf("collision not reported: %q", out)
	}

	_, _, err = runApp(t, append(args, "--strict", src)...)
	if got := exitCode(err); got != exitFailure {
		t.Errorf("strict exit code = %d, want %d", got, exitFailure)
	}
}

func TestLogTable_Hash(t *testing.T) {
	out, _, err := runApp(t, "logtable", "hash", "--format", "json", "Boot %u")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	var got HashResults
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	want := logtable.Key(logtable.FNV1a64("Boot %u"))
	if len(got) != 1 || got[0].Hash != want {
		t.Errorf("hash = %+v, want %s", got, want)
	}

	if _, _, err := runApp(t, "logtable", "hash"); exitCode(err) != exitFailure {
		t.Errorf("hash without args exit code = %d", exitCode(err))
	}
}

func TestReplay_DecodesCapture(t *testing.T) {
	table := writeTable(t, "Boot %u")
	frame := logFrame(t, types.LogLevelInfo, "Boot %u", types.U32Arg(3))

	path := filepath.Join(t.TempDir(), "link.mk0cap")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := capture.NewWriter(f, "/dev/ttyACM0", 115200)
	if err != nil {
		t.Fatal(err)
	}
	// Noise before the frame and a split read exercise resync and
	// reassembly.
	_, _ = w.Write([]byte{0x00, 0x42})
	_, _ = w.Write(frame[:3])
	_, _ = w.Write(frame[3:])
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	_ = f.Close()

	out, logs, err := runApp(t, "replay", "--log-table", table, "--log-format", "json",
		"--stats", "--format", "json", path)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if !strings.Contains(logs, `"message":"Boot 3"`) {
		t.Errorf("decoded line missing from logs: %s", logs)
	}

	var stats render.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats %q: %v", out, err)
	}
	if stats.FramesDecoded != 1 || stats.LogLines != 1 || stats.BytesDiscarded != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Port != "/dev/ttyACM0" {
		t.Errorf("port = %q, want the captured port", stats.Port)
	}
}

func TestReplay_RejectsNonCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk")
	if err := os.WriteFile(path, []byte("not a capture"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runApp(t, "replay", path)
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit code = %d, want %d", got, exitFailure)
	}
}

func TestMonitor_StreamsArchivesAndCaptures(t *testing.T) {
	dir := t.TempDir()
	table := writeTable(t, "Boot %u", "Overheat")
	archiveDir := filepath.Join(dir, "archive")
	if err := os.Mkdir(archiveDir, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "mk0link.yaml")
	cfg := fmt.Sprintf("archive:\n  backend: fs\n  path: %s\n  device: bench\n", archiveDir)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	capPath := filepath.Join(dir, "link.mk0cap")

	host, dev := net.Pipe()
	usePort(t, host, nil)
	stream := append(logFrame(t, types.LogLevelInfo, "Boot %u", types.U32Arg(7)),
		logFrame(t, types.LogLevelError, "Overheat")...)
	go func() {
		_, _ = dev.Write(stream)
		_ = dev.Close()
	}()

	out, logs, err := runApp(t, "monitor", "--config", cfgPath, "--port", "sim",
		"--log-table", table, "--log-format", "json", "--capture", capPath,
		"--stats", "--format", "json")
	if err != nil {
		t.Fatalf("monitor failed: %v", err)
	}
	for _, want := range []string{`"message":"Boot 7"`, `"message":"Overheat"`, "Disconnected from device."} {
		if !strings.Contains(logs, want) {
			t.Errorf("logs missing %s: %s", want, logs)
		}
	}

	var stats render.Stats
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("stats %q: %v", out, err)
	}
	if stats.FramesDecoded != 2 || stats.ArchiveWriteSuccess != 1 || stats.Archive != "fs" {
		t.Errorf("stats = %+v", stats)
	}

	reader, err := archive.NewReader("", lode.NewFSFactory(archiveDir))
	if err != nil {
		t.Fatal(err)
	}
	recs, err := reader.Query(t.Context(), archive.Filter{Level: "ERROR"})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(recs) != 1 || recs[0].Message != "Overheat" || recs[0].Device != "bench" {
		t.Errorf("archived = %+v", recs)
	}

	f, err := os.Open(capPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()
	rd, err := capture.NewReader(f)
	if err != nil {
		t.Fatalf("capture unreadable: %v", err)
	}
	if rd.Header().Port != "sim" {
		t.Errorf("capture port = %q, want sim", rd.Header().Port)
	}
	captured, err := io.ReadAll(rd.Stream())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(captured, stream) {
		t.Errorf("captured %x, want %x", captured, stream)
	}
}

func TestMonitor_OpenFailureExitsTwo(t *testing.T) {
	usePort(t, nil, errors.New("permission denied"))
	_, _, err := runApp(t, "monitor", "--port", "/dev/ttyACM0",
		"--log-table", filepath.Join(t.TempDir(), "none.json"), "--log-format", "json")
	if got := exitCode(err); got != exitTransport {
		t.Errorf("exit code = %d, want %d", got, exitTransport)
	}
}

func TestMonitor_BadConfigExitsOne(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "mk0link.yaml")
	if err := os.WriteFile(cfgPath, []byte("forward:\n  type: kafka\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := runApp(t, "monitor", "--config", cfgPath, "--port", "sim")
	if got := exitCode(err); got != exitFailure {
		t.Errorf("exit code = %d, want %d", got, exitFailure)
	}
}

func TestArchiveQuery_FiltersByLevel(t *testing.T) {
	dir := t.TempDir()
	a, err := archive.NewFS(archive.Config{Device: "bench"}, dir, archive.Options{})
	if err != nil {
		t.Fatal(err)
	}
	a.HandleLine(types.LogLine{Level: types.LogLevelInfo, Hash: 1, Template: "ok", Text: "ok"})
	a.HandleLine(types.LogLine{Level: types.LogLevelError, Hash: 2, Template: "bad", Text: "bad"})
	if err := a.Flush(t.Context()); err != nil {
		t.Fatal(err)
	}

	out, _, err := runApp(t, "archive", "query", "--path", dir, "--level", "ERROR", "--format", "json")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	var lines render.ArchivedLines
	if err := json.Unmarshal([]byte(out), &lines); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if len(lines) != 1 || lines[0].Message != "bad" || lines[0].Device != "bench" {
		t.Errorf("lines = %+v", lines)
	}

	if _, _, err := runApp(t, "archive", "query", "--backend", "gcs", "--path", dir); exitCode(err) != exitFailure {
		t.Errorf("unknown backend exit code = %d", exitCode(err))
	}
}

func TestVersion_JSON(t *testing.T) {
	out, _, err := runApp(t, "version", "--format", "json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var v VersionResponse
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("output %q: %v", out, err)
	}
	if v.Version != types.Version || v.WireVersion != types.WireVersion || v.Commit != "abc123" {
		t.Errorf("version = %+v", v)
	}
}

func TestStringSetting_FlagOverridesConfig(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"flag wins", []string{"x", "--port", "/dev/flag"}, "/dev/flag"},
		{"config fills unset flag", []string{"x"}, "/dev/from-config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			app := &cli.App{
				Flags: []cli.Flag{&cli.StringFlag{Name: "port"}},
				Action: func(c *cli.Context) error {
					got = stringSetting(c, "port", "/dev/from-config")
					return nil
				},
			}
			if err := app.Run(tt.args); err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("stringSetting = %q, want %q", got, tt.want)
			}
		})
	}
}
