// Package capture records raw link bytes to a file and plays them back.
//
// A capture is a msgpack stream: one Header followed by Chunk records, each
// holding the bytes of a single transport read. Replaying a capture through
// a Session reproduces the original read boundaries, so resync behavior on
// noisy links can be examined offline.
package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Magic identifies a capture file.
const Magic = "mk0cap"

// Version is the capture format version written by this package.
const Version = 1

// ErrBadHeader is returned when a stream does not start with a capture header.
var ErrBadHeader = errors.New("capture: missing or invalid header")

// Header opens every capture.
type Header struct {
	Magic    string `msgpack:"magic"`
	Version  int    `msgpack:"version"`
	Port     string `msgpack:"port,omitempty"`
	BaudRate int    `msgpack:"baud_rate,omitempty"`
	Started  int64  `msgpack:"started"` // unix nanoseconds
}

// Chunk is one transport read.
type Chunk struct {
	Ts   int64  `msgpack:"ts"` // unix nanoseconds
	Data []byte `msgpack:"data"`
}

// Time returns the chunk timestamp.
func (c Chunk) Time() time.Time { return time.Unix(0, c.Ts) }

// Writer appends chunks to a capture. It implements io.Writer so it can sit
// behind io.TeeReader on the transport. Safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *msgpack.Encoder
	now func() time.Time
	n   int
}

// NewWriter writes the header and returns a Writer appending to w.
func NewWriter(w io.Writer, port string, baud int) (*Writer, error) {
	buf := bufio.NewWriter(w)
	cw := &Writer{buf: buf, enc: msgpack.NewEncoder(buf), now: time.Now}
	h := Header{
		Magic:    Magic,
		Version:  Version,
		Port:     port,
		BaudRate: baud,
		Started:  cw.now().UnixNano(),
	}
	if err := cw.enc.Encode(&h); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return cw, nil
}

// Write records p as one chunk. Empty writes are ignored.
func (w *Writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(&Chunk{Ts: w.now().UnixNano(), Data: p}); err != nil {
		return 0, fmt.Errorf("capture: write chunk: %w", err)
	}
	w.n++
	return len(p), nil
}

// Chunks reports how many chunks were recorded.
func (w *Writer) Chunks() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Flush()
}

// Reader iterates the chunks of a capture.
type Reader struct {
	dec    *msgpack.Decoder
	header Header
}

// NewReader reads and validates the header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if h.Magic != Magic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadHeader, h.Magic)
	}
	if h.Version > Version {
		return nil, fmt.Errorf("capture: unsupported version %d", h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next chunk, or io.EOF at the end of the capture.
func (r *Reader) Next() (Chunk, error) {
	var c Chunk
	if err := r.dec.Decode(&c); err != nil {
		if errors.Is(err, io.EOF) {
			return Chunk{}, err
		}
		return Chunk{}, fmt.Errorf("capture: read chunk: %w", err)
	}
	return c, nil
}

// Stream returns an io.Reader over the captured bytes. Each Read returns
// data from at most one chunk, preserving the recorded read boundaries.
func (r *Reader) Stream() io.Reader {
	return &stream{r: r}
}

type stream struct {
	r    *Reader
	rest []byte
	err  error
}

func (s *stream) Read(p []byte) (int, error) {
	for len(s.rest) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		c, err := s.r.Next()
		if err != nil {
			s.err = err
			continue
		}
		s.rest = c.Data
	}
	n := copy(p, s.rest)
	s.rest = s.rest[n:]
	return n, nil
}
