// Package wire implements Mk0 link framing and the device payload codec.
//
// Frame layout:
//
//	byte 0       magic marker (0xEB)
//	byte 1       payload length L (0..255)
//	bytes 2..2+L protobuf payload
//
// The marker is a single octet and can appear inside payloads, so framing
// is best effort: the decoder resynchronizes on the next marker after
// garbage and never reports an error.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Frame constants.
const (
	// Magic marks the start of every frame.
	Magic byte = 0xEB
	// HeaderSize is the marker plus the length byte.
	HeaderSize = 2
	// MaxPayloadSize is the largest payload a one-byte length can declare.
	MaxPayloadSize = 255
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates the stream ended inside a frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates an outbound payload over MaxPayloadSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a payload that is not a valid message.
	FrameErrorDecode
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FrameError represents a framing or payload error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true if err is a payload decode error.
func IsDecodeError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorDecode
	}
	return false
}

// IsPartialFrame returns true if err reports a stream that ended mid-frame.
func IsPartialFrame(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.Kind == FrameErrorPartial
	}
	return false
}

// State is the decoder phase.
type State int

const (
	// StateSeeking discards bytes until a marker is found.
	StateSeeking State = iota
	// StateReadingLength expects the length byte.
	StateReadingLength
	// StateReadingBody accumulates the declared number of payload bytes.
	StateReadingBody
)

func (s State) String() string {
	switch s {
	case StateSeeking:
		return "seeking"
	case StateReadingLength:
		return "reading_length"
	case StateReadingBody:
		return "reading_body"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FrameDecoder reassembles frames from arbitrarily chunked input.
//
// The decoder is owned by a single reader goroutine and is not safe for
// concurrent use. While in StateReadingBody, len(buf)+remaining equals the
// declared length.
type FrameDecoder struct {
	state     State
	remaining int
	buf       []byte
	discarded uint64
}

// NewFrameDecoder creates a decoder in StateSeeking.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{}
}

// Feed consumes chunk and returns every frame it completes, in order.
// Partial frames are kept until later chunks complete them.
func (d *FrameDecoder) Feed(chunk []byte) [][]byte {
	var frames [][]byte
	d.FeedFunc(chunk, func(frame []byte) {
		frames = append(frames, frame)
	})
	return frames
}

// FeedFunc consumes chunk and calls emit for each completed frame as soon as
// it is complete. Ownership of the frame passes to emit. Bytes following a
// completed frame are processed from StateSeeking in the same call.
func (d *FrameDecoder) FeedFunc(chunk []byte, emit func(frame []byte)) {
	for len(chunk) > 0 {
		switch d.state {
		case StateSeeking:
			i := bytes.IndexByte(chunk, Magic)
			if i < 0 {
				d.discarded += uint64(len(chunk))
				return
			}
			d.discarded += uint64(i)
			chunk = chunk[i+1:]
			d.state = StateReadingLength

		case StateReadingLength:
			d.remaining = int(chunk[0])
			chunk = chunk[1:]
			d.buf = make([]byte, 0, d.remaining)
			d.state = StateReadingBody
			if d.remaining == 0 {
				emit(d.take())
			}

		case StateReadingBody:
			n := min(len(chunk), d.remaining)
			d.buf = append(d.buf, chunk[:n]...)
			chunk = chunk[n:]
			d.remaining -= n
			if d.remaining == 0 {
				emit(d.take())
			}
		}
	}
}

// take hands off the buffered frame and returns to StateSeeking.
func (d *FrameDecoder) take() []byte {
	frame := d.buf
	d.buf = nil
	d.remaining = 0
	d.state = StateSeeking
	return frame
}

// Reset drops any partial frame and returns to StateSeeking. Call it when a
// new connection begins so stale bytes are never joined to fresh ones.
func (d *FrameDecoder) Reset() {
	d.buf = nil
	d.remaining = 0
	d.state = StateSeeking
}

// State returns the current phase.
func (d *FrameDecoder) State() State {
	return d.state
}

// Buffered returns the number of payload bytes held for the current frame.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// Discarded returns the total number of bytes skipped while seeking.
func (d *FrameDecoder) Discarded() uint64 {
	return d.discarded
}

// EncodeFrame wraps payload in the marker/length envelope.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = Magic
	buf[1] = byte(len(payload))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// FrameReader pulls frames from an io.Reader through a FrameDecoder.
type FrameReader struct {
	reader  io.Reader
	decoder *FrameDecoder
	pending [][]byte
	chunk   []byte
	err     error
}

// NewFrameReader creates a frame reader with a 256-byte read buffer.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		reader:  r,
		decoder: NewFrameDecoder(),
		chunk:   make([]byte, MaxPayloadSize+1),
	}
}

// ReadFrame returns the next complete frame. Frames completed before a read
// error are returned first; the error is reported once they are drained.
//
// Errors:
//   - io.EOF: stream ended cleanly between frames
//   - *FrameError with Kind=FrameErrorPartial: stream ended mid-frame
//   - any other error from the underlying reader
func (r *FrameReader) ReadFrame() ([]byte, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return nil, r.streamError()
		}
		n, err := r.reader.Read(r.chunk)
		if n > 0 {
			r.pending = append(r.pending, r.decoder.Feed(r.chunk[:n])...)
		}
		if err != nil {
			r.err = err
		}
	}
	frame := r.pending[0]
	r.pending = r.pending[1:]
	return frame, nil
}

func (r *FrameReader) streamError() error {
	if errors.Is(r.err, io.EOF) && r.decoder.State() != StateSeeking {
		return &FrameError{
			Kind: FrameErrorPartial,
			Msg:  fmt.Sprintf("stream ended in %s", r.decoder.State()),
			Err:  r.err,
		}
	}
	return r.err
}

// Decoder exposes the underlying decoder for stats.
func (r *FrameReader) Decoder() *FrameDecoder {
	return r.decoder
}
