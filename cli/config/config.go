package config

import (
	"fmt"
	"time"
)

// Config represents an mk0link.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	LogTable LogTableConfig `yaml:"log_table"`
	Commands CommandsConfig `yaml:"commands"`
	Forward  ForwardConfig  `yaml:"forward"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Capture  CaptureConfig  `yaml:"capture"`
	Log      LogConfig      `yaml:"log"`
}

// SerialConfig holds transport defaults.
type SerialConfig struct {
	Port        string   `yaml:"port"`
	BaudRate    int      `yaml:"baud_rate"`
	ReadTimeout Duration `yaml:"read_timeout"`
}

// LogTableConfig locates the log table artifact. S3 takes precedence over
// Path when a bucket is set.
type LogTableConfig struct {
	Path      string   `yaml:"path"`
	S3        S3Object `yaml:"s3"`
	HotReload bool     `yaml:"hot_reload"`
}

// S3Object addresses a single object in S3 or an S3-compatible store.
type S3Object struct {
	Bucket    string `yaml:"bucket"`
	Key       string `yaml:"key"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`
}

// CommandsConfig tunes the command channel.
type CommandsConfig struct {
	ResponseTimeout Duration `yaml:"response_timeout"`
	SweepInterval   Duration `yaml:"sweep_interval"`
}

// ForwardConfig selects a downstream for decoded lines.
type ForwardConfig struct {
	Type    string            `yaml:"type"` // redis or webhook
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Stream  bool              `yaml:"stream,omitempty"`  // redis: XADD instead of PUBLISH
	MaxLen  int64             `yaml:"max_len,omitempty"` // redis stream trim length
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
	Queue   int               `yaml:"queue,omitempty"`
}

// ArchiveConfig holds archive storage defaults.
type ArchiveConfig struct {
	Dataset       string   `yaml:"dataset"`
	Backend       string   `yaml:"backend"` // fs or s3
	Path          string   `yaml:"path"`
	Region        string   `yaml:"region"`
	Endpoint      string   `yaml:"endpoint"`
	S3PathStyle   bool     `yaml:"s3_path_style"`
	Device        string   `yaml:"device"`
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// CaptureConfig enables raw link capture.
type CaptureConfig struct {
	Path string `yaml:"path"`
}

// LogConfig selects the host log output.
type LogConfig struct {
	Format string `yaml:"format"` // json or console
	Level  string `yaml:"level"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.Forward.Type {
	case "", "redis", "webhook":
	default:
		return fmt.Errorf("forward.type must be redis or webhook, got %q", c.Forward.Type)
	}
	if c.Forward.Type != "" && c.Forward.URL == "" {
		return fmt.Errorf("forward.url is required when forward.type is %s", c.Forward.Type)
	}
	if c.Forward.Stream && c.Forward.Type != "redis" {
		return fmt.Errorf("forward.stream requires forward.type redis, got %q", c.Forward.Type)
	}
	switch c.Archive.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("archive.backend must be fs or s3, got %q", c.Archive.Backend)
	}
	if c.Archive.Backend != "" && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when archive.backend is %s", c.Archive.Backend)
	}
	switch c.Log.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Serial.BaudRate < 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", c.Serial.BaudRate)
	}
	return nil
}
