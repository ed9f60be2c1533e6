// Package adapter defines the forwarding boundary for decoded device log lines.
//
// Adapters publish each rendered line to a downstream system. The monitor
// owns adapter lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/justapithecus/mk0link/types"
)

// EventType is the event_type value carried by every forwarded line.
const EventType = "device_log"

// LogLineEvent is the payload published for each decoded device log line.
type LogLineEvent struct {
	EventType     string `json:"event_type"` // always "device_log"
	SessionID     string `json:"session_id,omitempty"`
	Port          string `json:"port,omitempty"`
	Level         string `json:"level"`
	Hash          string `json:"hash"` // decimal, matches the log table key
	Template      string `json:"template"`
	Message       string `json:"message"`
	Args          []any  `json:"args,omitempty"`
	LatestVersion string `json:"latest_version,omitempty"`
	Timestamp     string `json:"timestamp"` // RFC 3339, host receive time
}

// NewLogLineEvent builds the forwarded payload for line.
// meta may be nil.
func NewLogLineEvent(meta *types.SessionMeta, line types.LogLine, at time.Time) *LogLineEvent {
	ev := &LogLineEvent{
		EventType:     EventType,
		Level:         line.Level.String(),
		Hash:          strconv.FormatUint(line.Hash, 10),
		Template:      line.Template,
		Message:       line.Text,
		Args:          line.Values,
		LatestVersion: line.Version,
		Timestamp:     at.UTC().Format(time.RFC3339Nano),
	}
	if meta != nil {
		ev.SessionID = meta.SessionID
		ev.Port = meta.Port
	}
	return ev
}

// Adapter publishes device log events to a downstream system.
type Adapter interface {
	// Publish sends one event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *LogLineEvent) error

	// Close releases adapter resources.
	Close() error
}
