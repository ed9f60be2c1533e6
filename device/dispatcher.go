// Package device connects the framing, log decoding and command layers to
// one device connection.
package device

import (
	"github.com/justapithecus/mk0link/command"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/logtable"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
	"github.com/justapithecus/mk0link/wire"
)

// LineSink receives rendered device log lines on the reader goroutine.
// Implementations must not block; slow work belongs on their own goroutine.
type LineSink interface {
	HandleLine(line types.LogLine)
}

// LineSinkFunc adapts a function to LineSink.
type LineSinkFunc func(types.LogLine)

// HandleLine calls f(line).
func (f LineSinkFunc) HandleLine(line types.LogLine) { f(line) }

// Dispatcher decodes frames and routes each message to the log decoder or
// the command channel. It never returns an error: a bad frame is logged and
// dropped so the connection survives.
type Dispatcher struct {
	decoder   *logtable.Decoder
	commands  *command.Channel
	sinks     []LineSink
	logger    *log.Logger
	collector *metrics.Collector
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// Commands receives command responses. Nil logs them as unknown.
	Commands *command.Channel
	// Sinks receive every rendered line after it is logged.
	Sinks     []LineSink
	Logger    *log.Logger
	Collector *metrics.Collector
}

// NewDispatcher creates a dispatcher rendering logs through decoder. A nil
// decoder leaves every log record undecoded.
func NewDispatcher(decoder *logtable.Decoder, opts DispatcherOptions) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Dispatcher{
		decoder:   decoder,
		commands:  opts.Commands,
		sinks:     opts.Sinks,
		logger:    logger,
		collector: opts.Collector,
	}
}

// Dispatch handles one frame.
func (d *Dispatcher) Dispatch(frame []byte) {
	d.collector.IncFramesDecoded()

	msg, err := wire.DecodePacket(frame)
	if err != nil {
		d.collector.IncDecodeErrors()
		d.logger.Error("frame decode error", map[string]any{
			"error": err.Error(),
			"size":  len(frame),
		})
		return
	}

	switch m := msg.(type) {
	case nil:
		d.collector.IncEmptyPackets()
	case *types.LogRecord:
		d.handleLog(m)
	case *types.CommandResponse:
		d.handleResponse(m)
	}
}

func (d *Dispatcher) handleLog(rec *types.LogRecord) {
	if d.decoder == nil {
		d.collector.IncUnknownHash()
		d.logger.Warn("log record without a log table", map[string]any{
			"hash":  logtable.Key(rec.Hash),
			"level": rec.Level.String(),
		})
		return
	}
	line, ok := d.decoder.Decode(rec)
	if !ok {
		return
	}
	d.logger.Device(line)
	d.collector.IncLogLine(line.Level.String())
	for _, sink := range d.sinks {
		sink.HandleLine(line)
	}
}

func (d *Dispatcher) handleResponse(resp *types.CommandResponse) {
	if d.commands == nil {
		d.collector.IncUnknownResponse()
		d.logger.Warn("command response without a command channel", map[string]any{
			"cmd_id": resp.ID,
			"status": resp.Status.String(),
		})
		return
	}
	d.commands.OnResponse(resp)
}
