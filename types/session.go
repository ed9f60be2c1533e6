package types

// SessionMeta identifies one connection to a device. Log entries emitted
// during the connection carry these fields.
type SessionMeta struct {
	// SessionID is unique per connection.
	SessionID string
	// Port is the serial device path, or a capture file during replay.
	Port string
	// BaudRate is zero when the source is not a serial port.
	BaudRate int
	// FirmwareVersion is the log table version the host expects, if known.
	FirmwareVersion *string
}

// LogLine is a device log record rendered against the log table.
type LogLine struct {
	Level    LogLevel
	Hash     uint64
	Template string
	Text     string
	// Version is the latest firmware version the template was seen in.
	Version string
	Values  []any
}
