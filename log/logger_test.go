package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/justapithecus/mk0link/types"
)

func decodeEntries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_SessionFields(t *testing.T) {
	var buf bytes.Buffer
	version := "1.2.0"
	logger := NewLoggerWithOptions(&types.SessionMeta{
		SessionID:       "sess-1",
		Port:            "/dev/ttyACM0",
		BaudRate:        115200,
		FirmwareVersion: &version,
	}, &buf, Options{})

	logger.Info("Connected to device.", nil)

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry["message"] != "Connected to device." {
		t.Errorf("message = %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}
	if entry["session_id"] != "sess-1" || entry["port"] != "/dev/ttyACM0" {
		t.Errorf("session fields = %v, %v", entry["session_id"], entry["port"])
	}
	if entry["baud_rate"] != float64(115200) {
		t.Errorf("baud_rate = %v, want 115200", entry["baud_rate"])
	}
	if entry["firmware_version"] != "1.2.0" {
		t.Errorf("firmware_version = %v", entry["firmware_version"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_DeviceLevelMapping(t *testing.T) {
	tests := []struct {
		level types.LogLevel
		want  string
	}{
		{types.LogLevelTrace, "debug"},
		{types.LogLevelDebug, "debug"},
		{types.LogLevelInfo, "info"},
		{types.LogLevelWarning, "warn"},
		{types.LogLevelError, "error"},
		{types.LogLevel(42), "info"},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithOptions(nil, &buf, Options{})
			logger.Device(types.LogLine{Level: tt.level, Hash: 7, Text: "hello 1"})

			entries := decodeEntries(t, &buf)
			if len(entries) != 1 {
				t.Fatalf("got %d entries, want 1", len(entries))
			}
			if entries[0]["level"] != tt.want {
				t.Errorf("level = %v, want %s", entries[0]["level"], tt.want)
			}
			if entries[0]["device_level"] != tt.level.String() {
				t.Errorf("device_level = %v, want %s", entries[0]["device_level"], tt.level)
			}
			if entries[0]["hash"] != "7" {
				t.Errorf("hash = %v, want \"7\"", entries[0]["hash"])
			}
			if entries[0]["message"] != "hello 1" {
				t.Errorf("message = %v, want hello 1", entries[0]["message"])
			}
		})
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(nil, &buf, Options{Level: "warn"})

	logger.Info("dropped", nil)
	logger.Device(types.LogLine{Level: types.LogLevelDebug, Text: "dropped"})
	logger.Warn("kept", map[string]any{"hash": 1})

	entries := decodeEntries(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields, ok := entries[0]["fields"].(map[string]any)
	if !ok || fields["hash"] != float64(1) {
		t.Errorf("fields = %v, want hash=1", entries[0]["fields"])
	}
}

func TestLogger_ConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithOptions(nil, &buf, Options{Format: FormatConsole})
	logger.Info("Sources changed. Reloading...", nil)

	out := buf.String()
	if !strings.Contains(out, " | ") {
		t.Errorf("console output %q missing separator", out)
	}
	if !strings.Contains(out, "Sources changed. Reloading...") {
		t.Errorf("console output %q missing message", out)
	}
}

func TestLogger_WithOutputKeepsSession(t *testing.T) {
	var first, second bytes.Buffer
	logger := NewLoggerWithOptions(&types.SessionMeta{SessionID: "s"}, &first, Options{})
	logger.WithOutput(&second).Info("moved", nil)

	if first.Len() != 0 {
		t.Errorf("original writer received %q", first.String())
	}
	entries := decodeEntries(t, &second)
	if len(entries) != 1 || entries[0]["session_id"] != "s" {
		t.Errorf("entries = %v, want one entry with session_id", entries)
	}
}

func TestDeviceLevel(t *testing.T) {
	if DeviceLevel(types.LogLevelWarning) != zapcore.WarnLevel {
		t.Error("WARNING should map to warn")
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("nothing", nil)
	logger.Device(types.LogLine{Text: "nothing"})
	logger.Sugar().Infof("nothing %d", 1)
}
