// Package iox holds small I/O helpers shared by the link and its tooling.
package iox

import "io"

// DiscardClose closes c and drops the error. For defers on ports, files
// and response bodies where nothing useful can be done about a failure.
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc adapts c for t.Cleanup.
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// TeeReadCloser copies everything read from rc into w, like io.TeeReader,
// but keeps rc's Close. A session closes its reader to unblock a pending
// Read on cancellation, so a tee in front of a port must stay closable.
func TeeReadCloser(rc io.ReadCloser, w io.Writer) io.ReadCloser {
	return teeReadCloser{Reader: io.TeeReader(rc, w), Closer: rc}
}

type teeReadCloser struct {
	io.Reader
	io.Closer
}
