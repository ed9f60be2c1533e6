package render

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/justapithecus/mk0link/archive"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/serial"
)

// Port is the output shape of one serial port.
type Port struct {
	Index       int    `json:"index" yaml:"index"`
	Device      string `json:"device" yaml:"device"`
	Description string `json:"description" yaml:"description"`
}

// Ports renders the port listing.
type Ports []Port

// NewPorts converts enumerated ports.
func NewPorts(in []serial.PortInfo) Ports {
	out := make(Ports, len(in))
	for i, p := range in {
		out[i] = Port{Index: p.Index, Device: p.Device, Description: p.Description}
	}
	return out
}

func (p Ports) TableHeader() []string { return []string{"INDEX", "DEVICE", "DESCRIPTION"} }

func (p Ports) TableRows() [][]string {
	rows := make([][]string, len(p))
	for i, port := range p {
		rows[i] = []string{strconv.Itoa(port.Index), port.Device, port.Description}
	}
	return rows
}

// LogTableEntry is the output shape of one log table entry. Hash is a
// decimal string so JSON consumers do not lose precision.
type LogTableEntry struct {
	Hash          string `json:"hash" yaml:"hash"`
	Msg           string `json:"msg" yaml:"msg"`
	LatestVersion string `json:"latest_version" yaml:"latest_version"`
}

// LogTableEntries renders log table rows.
type LogTableEntries []LogTableEntry

// NewLogTableEntries converts table rows, preserving their order.
func NewLogTableEntries(rows []logtable.Row) LogTableEntries {
	out := make(LogTableEntries, len(rows))
	for i, r := range rows {
		out[i] = LogTableEntry{Hash: logtable.Key(r.Hash), Msg: r.Msg, LatestVersion: r.LatestVersion}
	}
	return out
}

func (e LogTableEntries) TableHeader() []string { return []string{"HASH", "MESSAGE", "LATEST_VERSION"} }

func (e LogTableEntries) TableRows() [][]string {
	rows := make([][]string, len(e))
	for i, entry := range e {
		rows[i] = []string{entry.Hash, strconv.Quote(entry.Msg), entry.LatestVersion}
	}
	return rows
}

// Stats is the output shape of session metrics.
type Stats struct {
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
	Port      string `json:"port,omitempty" yaml:"port,omitempty"`
	Forwarder string `json:"forwarder,omitempty" yaml:"forwarder,omitempty"`
	Archive   string `json:"archive_backend,omitempty" yaml:"archive_backend,omitempty"`

	FramesDecoded  int64 `json:"frames_decoded" yaml:"frames_decoded"`
	BytesDiscarded int64 `json:"bytes_discarded" yaml:"bytes_discarded"`
	DecodeErrors   int64 `json:"decode_errors" yaml:"decode_errors"`
	EmptyPackets   int64 `json:"empty_packets" yaml:"empty_packets"`

	LogLines      int64            `json:"log_lines" yaml:"log_lines"`
	UnknownHashes int64            `json:"unknown_hashes" yaml:"unknown_hashes"`
	LinesByLevel  map[string]int64 `json:"lines_by_level,omitempty" yaml:"lines_by_level,omitempty"`

	CommandsSubmitted int64 `json:"commands_submitted" yaml:"commands_submitted"`
	ResponsesMatched  int64 `json:"responses_matched" yaml:"responses_matched"`
	UnknownResponses  int64 `json:"unknown_responses" yaml:"unknown_responses"`
	SendFailures      int64 `json:"send_failures" yaml:"send_failures"`
	CommandsAbandoned int64 `json:"commands_abandoned" yaml:"commands_abandoned"`
	CommandsExpired   int64 `json:"commands_expired" yaml:"commands_expired"`
	CommandsClosed    int64 `json:"commands_closed" yaml:"commands_closed"`

	TableReloads        int64 `json:"table_reloads" yaml:"table_reloads"`
	TableReloadFailures int64 `json:"table_reload_failures" yaml:"table_reload_failures"`

	ForwardFailures     int64 `json:"forward_failures" yaml:"forward_failures"`
	ArchiveWriteSuccess int64 `json:"archive_write_success" yaml:"archive_write_success"`
	ArchiveWriteFailure int64 `json:"archive_write_failure" yaml:"archive_write_failure"`
}

// NewStats converts a metrics snapshot.
func NewStats(s metrics.Snapshot) Stats {
	return Stats{
		SessionID:           s.SessionID,
		Port:                s.Port,
		Forwarder:           s.Forwarder,
		Archive:             s.ArchiveBackend,
		FramesDecoded:       s.FramesDecoded,
		BytesDiscarded:      s.BytesDiscarded,
		DecodeErrors:        s.DecodeErrors,
		EmptyPackets:        s.EmptyPackets,
		LogLines:            s.LogLinesEmitted,
		UnknownHashes:       s.UnknownHashes,
		LinesByLevel:        s.LinesByLevel,
		CommandsSubmitted:   s.CommandsSubmitted,
		ResponsesMatched:    s.ResponsesMatched,
		UnknownResponses:    s.UnknownResponses,
		SendFailures:        s.SendFailures,
		CommandsAbandoned:   s.CommandsAbandoned,
		CommandsExpired:     s.CommandsExpired,
		CommandsClosed:      s.CommandsClosed,
		TableReloads:        s.TableReloads,
		TableReloadFailures: s.TableReloadFailures,
		ForwardFailures:     s.ForwardFailures,
		ArchiveWriteSuccess: s.ArchiveWriteSuccess,
		ArchiveWriteFailure: s.ArchiveWriteFailure,
	}
}

func (s Stats) TableHeader() []string { return []string{"METRIC", "VALUE"} }

func (s Stats) TableRows() [][]string {
	n := func(v int64) string { return strconv.FormatInt(v, 10) }
	rows := [][]string{
		{"frames_decoded", n(s.FramesDecoded)},
		{"bytes_discarded", n(s.BytesDiscarded)},
		{"decode_errors", n(s.DecodeErrors)},
		{"empty_packets", n(s.EmptyPackets)},
		{"log_lines", n(s.LogLines)},
		{"unknown_hashes", n(s.UnknownHashes)},
	}
	for _, level := range slices.Sorted(maps.Keys(s.LinesByLevel)) {
		rows = append(rows, []string{"lines." + level, n(s.LinesByLevel[level])})
	}
	rows = append(rows,
		[]string{"commands_submitted", n(s.CommandsSubmitted)},
		[]string{"responses_matched", n(s.ResponsesMatched)},
		[]string{"unknown_responses", n(s.UnknownResponses)},
		[]string{"send_failures", n(s.SendFailures)},
		[]string{"commands_abandoned", n(s.CommandsAbandoned)},
		[]string{"commands_expired", n(s.CommandsExpired)},
		[]string{"commands_closed", n(s.CommandsClosed)},
		[]string{"table_reloads", n(s.TableReloads)},
		[]string{"table_reload_failures", n(s.TableReloadFailures)},
	)
	if s.Forwarder != "" {
		rows = append(rows, []string{fmt.Sprintf("forward_failures (%s)", s.Forwarder), n(s.ForwardFailures)})
	}
	if s.Archive != "" {
		rows = append(rows,
			[]string{fmt.Sprintf("archive_write_success (%s)", s.Archive), n(s.ArchiveWriteSuccess)},
			[]string{fmt.Sprintf("archive_write_failure (%s)", s.Archive), n(s.ArchiveWriteFailure)},
		)
	}
	return rows
}

// ArchivedLine is the output shape of one archived log line.
type ArchivedLine struct {
	Ts      string `json:"ts" yaml:"ts"`
	Device  string `json:"device" yaml:"device"`
	Level   string `json:"level" yaml:"level"`
	Hash    string `json:"hash" yaml:"hash"`
	Message string `json:"message" yaml:"message"`
	Session string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// ArchivedLines renders archive query results.
type ArchivedLines []ArchivedLine

// NewArchivedLines converts archive records.
func NewArchivedLines(recs []archive.Record) ArchivedLines {
	out := make(ArchivedLines, len(recs))
	for i, r := range recs {
		out[i] = ArchivedLine{Ts: r.Ts, Device: r.Device, Level: r.Level, Hash: r.Hash, Message: r.Message, Session: r.SessionID}
	}
	return out
}

func (a ArchivedLines) TableHeader() []string {
	return []string{"TS", "DEVICE", "LEVEL", "MESSAGE"}
}

func (a ArchivedLines) TableRows() [][]string {
	rows := make([][]string, len(a))
	for i, l := range a {
		rows[i] = []string{l.Ts, l.Device, l.Level, l.Message}
	}
	return rows
}
