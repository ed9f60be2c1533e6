// Package metrics provides per-session counters for the device link.
//
// The Collector accumulates counters during a single connection. It is a leaf
// package with no internal dependencies so every layer (framing, dispatch,
// commands, sinks) can record into it.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all session metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Framing
	FramesDecoded  int64
	BytesDiscarded int64
	DecodeErrors   int64
	EmptyPackets   int64

	// Log decoding
	LogLinesEmitted int64
	UnknownHashes   int64
	LinesByLevel    map[string]int64

	// Commands
	CommandsSubmitted int64
	ResponsesMatched  int64
	UnknownResponses  int64
	SendFailures      int64
	CommandsAbandoned int64
	CommandsExpired   int64
	CommandsClosed    int64

	// Log table
	TableReloads        int64
	TableReloadFailures int64

	// Sinks
	ForwardFailures     int64
	ArchiveWriteSuccess int64
	ArchiveWriteFailure int64

	// Dimensions (informational, set at construction)
	Port           string
	Forwarder      string
	ArchiveBackend string
	SessionID      string
}

// Collector accumulates metrics during a single session.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	framesDecoded  int64
	bytesDiscarded int64
	decodeErrors   int64
	emptyPackets   int64

	logLinesEmitted int64
	unknownHashes   int64
	linesByLevel    map[string]int64

	commandsSubmitted int64
	responsesMatched  int64
	unknownResponses  int64
	sendFailures      int64
	commandsAbandoned int64
	commandsExpired   int64
	commandsClosed    int64

	tableReloads        int64
	tableReloadFailures int64

	forwardFailures     int64
	archiveWriteSuccess int64
	archiveWriteFailure int64

	port           string
	forwarder      string
	archiveBackend string
	sessionID      string
}

// NewCollector creates a Collector with dimension labels.
// forwarder and archiveBackend are empty when the sink is disabled.
func NewCollector(port, forwarder, archiveBackend, sessionID string) *Collector {
	return &Collector{
		linesByLevel:   make(map[string]int64),
		port:           port,
		forwarder:      forwarder,
		archiveBackend: archiveBackend,
		sessionID:      sessionID,
	}
}

func (c *Collector) add(counter *int64, n int64) {
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Framing ---

// IncFramesDecoded records a frame handed to the dispatcher.
func (c *Collector) IncFramesDecoded() {
	if c == nil {
		return
	}
	c.add(&c.framesDecoded, 1)
}

// AddBytesDiscarded records bytes skipped while seeking a marker.
func (c *Collector) AddBytesDiscarded(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.add(&c.bytesDiscarded, n)
}

// IncDecodeErrors records a frame whose payload failed to decode.
func (c *Collector) IncDecodeErrors() {
	if c == nil {
		return
	}
	c.add(&c.decodeErrors, 1)
}

// IncEmptyPackets records a frame that decoded to no message.
func (c *Collector) IncEmptyPackets() {
	if c == nil {
		return
	}
	c.add(&c.emptyPackets, 1)
}

// --- Log decoding ---

// IncLogLine records a rendered device log line. level is the device level name.
func (c *Collector) IncLogLine(level string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.logLinesEmitted++
	c.linesByLevel[level]++
	c.mu.Unlock()
}

// IncUnknownHash records a log record whose hash is not in the table.
func (c *Collector) IncUnknownHash() {
	if c == nil {
		return
	}
	c.add(&c.unknownHashes, 1)
}

// --- Commands ---

// IncCommandSubmitted records a command registered for sending.
func (c *Collector) IncCommandSubmitted() {
	if c == nil {
		return
	}
	c.add(&c.commandsSubmitted, 1)
}

// IncResponseMatched records a response correlated to an outstanding command.
func (c *Collector) IncResponseMatched() {
	if c == nil {
		return
	}
	c.add(&c.responsesMatched, 1)
}

// IncUnknownResponse records a response whose id is not outstanding.
func (c *Collector) IncUnknownResponse() {
	if c == nil {
		return
	}
	c.add(&c.unknownResponses, 1)
}

// IncSendFailure records a command whose frame was not fully written.
func (c *Collector) IncSendFailure() {
	if c == nil {
		return
	}
	c.add(&c.sendFailures, 1)
}

// IncCommandAbandoned records a command the caller stopped waiting for.
func (c *Collector) IncCommandAbandoned() {
	if c == nil {
		return
	}
	c.add(&c.commandsAbandoned, 1)
}

// IncCommandExpired records a command that hit the response timeout.
func (c *Collector) IncCommandExpired() {
	if c == nil {
		return
	}
	c.add(&c.commandsExpired, 1)
}

// AddCommandsClosed records commands resolved by channel shutdown.
func (c *Collector) AddCommandsClosed(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.add(&c.commandsClosed, n)
}

// --- Log table ---

// IncTableReload records a successful log table swap.
func (c *Collector) IncTableReload() {
	if c == nil {
		return
	}
	c.add(&c.tableReloads, 1)
}

// IncTableReloadFailure records a reload that kept the previous table.
func (c *Collector) IncTableReloadFailure() {
	if c == nil {
		return
	}
	c.add(&c.tableReloadFailures, 1)
}

// --- Sinks ---
// Archive counters are per-flush, not per-line.

// IncForwardFailure records a forwarder publish that exhausted its retries.
func (c *Collector) IncForwardFailure() {
	if c == nil {
		return
	}
	c.add(&c.forwardFailures, 1)
}

// IncArchiveWriteSuccess records a successful archive flush.
func (c *Collector) IncArchiveWriteSuccess() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteSuccess, 1)
}

// IncArchiveWriteFailure records a failed archive flush.
func (c *Collector) IncArchiveWriteFailure() {
	if c == nil {
		return
	}
	c.add(&c.archiveWriteFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byLevel := make(map[string]int64, len(c.linesByLevel))
	for k, v := range c.linesByLevel {
		byLevel[k] = v
	}

	return Snapshot{
		FramesDecoded:  c.framesDecoded,
		BytesDiscarded: c.bytesDiscarded,
		DecodeErrors:   c.decodeErrors,
		EmptyPackets:   c.emptyPackets,

		LogLinesEmitted: c.logLinesEmitted,
		UnknownHashes:   c.unknownHashes,
		LinesByLevel:    byLevel,

		CommandsSubmitted: c.commandsSubmitted,
		ResponsesMatched:  c.responsesMatched,
		UnknownResponses:  c.unknownResponses,
		SendFailures:      c.sendFailures,
		CommandsAbandoned: c.commandsAbandoned,
		CommandsExpired:   c.commandsExpired,
		CommandsClosed:    c.commandsClosed,

		TableReloads:        c.tableReloads,
		TableReloadFailures: c.tableReloadFailures,

		ForwardFailures:     c.forwardFailures,
		ArchiveWriteSuccess: c.archiveWriteSuccess,
		ArchiveWriteFailure: c.archiveWriteFailure,

		Port:           c.port,
		Forwarder:      c.forwarder,
		ArchiveBackend: c.archiveBackend,
		SessionID:      c.sessionID,
	}
}
