package device

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/justapithecus/mk0link/command"
	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/wire"
)

// DefaultReadSize is the read buffer size for Run.
const DefaultReadSize = 256

// SessionErrorKind classifies why Run stopped.
type SessionErrorKind int

const (
	// SessionErrorTransport indicates the byte source failed.
	SessionErrorTransport SessionErrorKind = iota
	// SessionErrorCanceled indicates the context was canceled.
	SessionErrorCanceled
)

// SessionError is returned by Session.Run.
type SessionError struct {
	Kind SessionErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	return e.Err.Error()
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if the session ended on a transport failure.
func IsTransportError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorTransport
	}
	return false
}

// IsCanceledError returns true if the session ended by cancellation.
func IsCanceledError(err error) bool {
	var sessErr *SessionError
	if errors.As(err, &sessErr) {
		return sessErr.Kind == SessionErrorCanceled
	}
	return false
}

// Session is the state of one connection: a frame decoder feeding a
// dispatcher. It is owned by a single reader goroutine; only the command
// channel is shared with callers.
type Session struct {
	frames     *wire.FrameDecoder
	dispatcher *Dispatcher
	commands   *command.Channel
	logger     *log.Logger
	collector  *metrics.Collector

	discarded uint64
	readSize  int
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Commands is closed when Run returns so waiting callers are released.
	Commands  *command.Channel
	Logger    *log.Logger
	Collector *metrics.Collector
	// ReadSize overrides DefaultReadSize.
	ReadSize int
}

// NewSession creates a session dispatching through dispatcher.
func NewSession(dispatcher *Dispatcher, opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	readSize := opts.ReadSize
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &Session{
		frames:     wire.NewFrameDecoder(),
		dispatcher: dispatcher,
		commands:   opts.Commands,
		logger:     logger,
		collector:  opts.Collector,
		readSize:   readSize,
	}
}

// Feed processes one chunk of received bytes, dispatching every frame it
// completes.
func (s *Session) Feed(chunk []byte) {
	s.frames.FeedFunc(chunk, s.dispatcher.Dispatch)

	if d := s.frames.Discarded(); d != s.discarded {
		s.collector.AddBytesDiscarded(int64(d - s.discarded))
		s.discarded = d
	}
}

// Reset drops any partial frame. Call it when the transport reconnects.
func (s *Session) Reset() {
	s.frames.Reset()
}

// Run resets the decoder and reads r until EOF, a read error, or ctx is
// done. When ctx is done and r implements io.Closer, r is closed so a
// blocked Read returns.
//
// Returns:
//   - nil: r reached EOF
//   - *SessionError with Kind=SessionErrorCanceled: ctx was done
//   - *SessionError with Kind=SessionErrorTransport: r failed
func (s *Session) Run(ctx context.Context, r io.Reader) error {
	s.Reset()
	s.logger.Info("Connected to device.", nil)
	defer func() {
		if s.commands != nil {
			s.commands.Close()
		}
		s.logger.Info("Disconnected from device.", nil)
	}()

	if closer, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	buf := make([]byte, s.readSize)
	for {
		if err := ctx.Err(); err != nil {
			return &SessionError{Kind: SessionErrorCanceled, Err: err}
		}

		n, err := r.Read(buf)
		if n > 0 {
			s.Feed(buf[:n])
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return &SessionError{Kind: SessionErrorCanceled, Err: ctx.Err()}
		}
		if errors.Is(err, io.EOF) {
			if s.frames.State() != wire.StateSeeking {
				s.logger.Warn("stream ended inside a frame", map[string]any{
					"state":    s.frames.State().String(),
					"buffered": s.frames.Buffered(),
				})
			}
			return nil
		}
		s.logger.Error("read error", map[string]any{"error": err.Error()})
		return &SessionError{
			Kind: SessionErrorTransport,
			Err:  fmt.Errorf("read error: %w", err),
		}
	}
}
